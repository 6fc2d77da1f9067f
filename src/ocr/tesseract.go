package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log"
	"strings"
	"sync"
	"unicode"

	"github.com/otiai10/gosseract/v2"
)

// DefaultLanguages covers simplified Chinese course listings and English.
var DefaultLanguages = []string{"chi_sim", "eng"}

// Tesseract recognizes text lines with a local Tesseract engine. The
// underlying client is not safe for concurrent use, calls are serialized.
type Tesseract struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseract loads the language data and runs a probe recognition so that
// a missing installation is reported here rather than on the first cycle.
func NewTesseract(languages []string, useGPU bool) (*Tesseract, error) {
	if len(languages) == 0 {
		languages = DefaultLanguages
	}
	if useGPU {
		log.Printf("OCR: GPU acceleration requested but Tesseract runs on the CPU; ignoring use_gpu")
	}

	client := gosseract.NewClient()
	if err := client.SetLanguage(languages...); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	t := &Tesseract{client: client}
	probe := image.NewGray(image.Rect(0, 0, 16, 16))
	if _, err := t.Recognize(context.Background(), probe); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: tesseract %s with languages %s: %v",
			ErrUnavailable, gosseract.Version(), strings.Join(languages, "+"), err)
	}

	log.Printf("OCR: tesseract %s ready (languages: %s)", gosseract.Version(), strings.Join(languages, "+"))
	return t, nil
}

func (t *Tesseract) Recognize(ctx context.Context, img image.Image) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image as PNG: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	boxes, err := t.client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("recognize: %w", err)
	}

	fragments := make([]string, 0, len(boxes))
	for _, box := range boxes {
		if text := joinCJK(strings.TrimSpace(box.Word)); text != "" {
			fragments = append(fragments, text)
		}
	}
	return fragments, nil
}

func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}

// joinCJK drops the spaces Tesseract inserts between Han characters so that
// a keyword like 机器学习 still matches "机 器 学 习". Spaces next to Latin
// text are kept.
func joinCJK(s string) string {
	if !strings.ContainsRune(s, ' ') {
		return s
	}
	runes := []rune(s)
	var sb strings.Builder
	sb.Grow(len(s))
	for i, r := range runes {
		if r == ' ' {
			prev, next := prevNonSpace(runes, i), nextNonSpace(runes, i)
			if prev >= 0 && next >= 0 && isHan(runes[prev]) && isHan(runes[next]) {
				continue
			}
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func prevNonSpace(runes []rune, i int) int {
	for j := i - 1; j >= 0; j-- {
		if runes[j] != ' ' {
			return j
		}
	}
	return -1
}

func nextNonSpace(runes []rune, i int) int {
	for j := i + 1; j < len(runes); j++ {
		if runes[j] != ' ' {
			return j
		}
	}
	return -1
}

func isHan(r rune) bool { return unicode.Is(unicode.Han, r) }
