package ocr

import (
	"context"
	"image"
	"log"
	"sync"

	"github.com/corona10/goimagehash"
)

// DefaultMaxHashDistance treats frames within this Hamming distance of the
// previous perceptual hash as unchanged.
const DefaultMaxHashDistance = 2

// Cached skips recognition when a frame looks the same as the last one that
// was actually recognized and returns that frame's fragments instead.
type Cached struct {
	inner       Recognizer
	maxDistance int

	mu        sync.Mutex
	lastHash  *goimagehash.ImageHash
	fragments []string
	hits      int
}

func NewCached(r Recognizer, maxDistance int) *Cached {
	if maxDistance < 0 {
		maxDistance = DefaultMaxHashDistance
	}
	return &Cached{inner: r, maxDistance: maxDistance}
}

func (c *Cached) Recognize(ctx context.Context, img image.Image) ([]string, error) {
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		// Hashing is an optimization only.
		return c.inner.Recognize(ctx, img)
	}

	c.mu.Lock()
	if c.lastHash != nil {
		if dist, err := c.lastHash.Distance(hash); err == nil && dist <= c.maxDistance {
			c.hits++
			out := append([]string(nil), c.fragments...)
			c.mu.Unlock()
			return out, nil
		}
	}
	c.mu.Unlock()

	fragments, err := c.inner.Recognize(ctx, img)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.lastHash = hash
	c.fragments = append([]string(nil), fragments...)
	c.mu.Unlock()
	return fragments, nil
}

// Hits reports how many frames were answered from the cache.
func (c *Cached) Hits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits
}

// Reset forgets the last frame, so the next call always recognizes.
func (c *Cached) Reset() {
	c.mu.Lock()
	c.lastHash = nil
	c.fragments = nil
	c.mu.Unlock()
	log.Printf("OCR: frame cache cleared")
}

func (c *Cached) Close() error { return Close(c.inner) }
