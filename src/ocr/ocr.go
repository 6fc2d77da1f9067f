// Package ocr turns preprocessed frames into recognized text fragments.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"strings"
	"time"

	"screen-watch/src/llm"
)

const (
	BackendTesseract = "tesseract"
	BackendVision    = "vision"
)

var (
	// ErrUnavailable means the recognition backend could not be initialized.
	ErrUnavailable    = errors.New("text recognition unavailable")
	ErrUnknownBackend = errors.New("unknown OCR backend")
)

// Recognizer returns the text fragments found in an image. Implementations
// may block; callers that need a bound wrap them with WithDeadline.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) ([]string, error)
}

// RecognizerFunc adapts a function to the Recognizer interface.
type RecognizerFunc func(ctx context.Context, img image.Image) ([]string, error)

func (f RecognizerFunc) Recognize(ctx context.Context, img image.Image) ([]string, error) {
	return f(ctx, img)
}

type Options struct {
	Backend   string
	Languages []string
	UseGPU    bool
	Vision    llm.Config
	// Deadline bounds a single recognition call; 0 disables the bound.
	Deadline time.Duration
	// SkipUnchanged reuses the previous fragments for frames whose
	// perceptual hash is within MaxHashDistance of the last recognized one.
	SkipUnchanged   bool
	MaxHashDistance int
}

// New builds the configured backend and its decorators. Any error wraps
// ErrUnavailable so callers can report it and keep running without OCR.
func New(opts Options) (Recognizer, error) {
	var (
		r   Recognizer
		err error
	)
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendTesseract:
		r, err = NewTesseract(opts.Languages, opts.UseGPU)
	case BackendVision:
		r, err = NewVision(opts.Vision)
	default:
		return nil, fmt.Errorf("%w: %w %q", ErrUnavailable, ErrUnknownBackend, opts.Backend)
	}
	if err != nil {
		return nil, err
	}

	if opts.SkipUnchanged {
		r = NewCached(r, opts.MaxHashDistance)
	}
	if opts.Deadline > 0 {
		r = WithDeadline(r, opts.Deadline)
	}
	return r, nil
}

// Close releases the backend behind r if it holds native resources.
func Close(r Recognizer) error {
	if c, ok := r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

type deadlineRecognizer struct {
	inner    Recognizer
	deadline time.Duration
}

// WithDeadline bounds each Recognize call. The engine call itself cannot be
// interrupted; on timeout it keeps running in the background and its result
// is dropped.
func WithDeadline(r Recognizer, d time.Duration) Recognizer {
	return &deadlineRecognizer{inner: r, deadline: d}
}

func (d *deadlineRecognizer) Recognize(ctx context.Context, img image.Image) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.deadline)
	defer cancel()

	type result struct {
		fragments []string
		err       error
	}
	resCh := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resCh <- result{err: fmt.Errorf("recognizer panic: %v", r)}
			}
		}()
		fragments, err := d.inner.Recognize(ctx, img)
		resCh <- result{fragments, err}
	}()

	select {
	case r := <-resCh:
		return r.fragments, r.err
	case <-ctx.Done():
		log.Printf("OCR: recognition abandoned after %v: %v", d.deadline, ctx.Err())
		return nil, ctx.Err()
	}
}

func (d *deadlineRecognizer) Close() error { return Close(d.inner) }

// splitLines turns a block of recognized text into trimmed, non-empty lines.
func splitLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
