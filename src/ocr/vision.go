package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"

	"screen-watch/src/llm"
)

// visionClient is the part of llm.Client the vision backend needs.
type visionClient interface {
	QueryVision(ctx context.Context, imageData []byte) (string, error)
}

// Vision sends frames to a hosted vision model and splits its answer into
// lines. It trades latency for better accuracy on stylized text.
type Vision struct {
	client visionClient
}

func NewVision(cfg llm.Config) (*Vision, error) {
	client, err := llm.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &Vision{client: client}, nil
}

func (v *Vision) Recognize(ctx context.Context, img image.Image) ([]string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image as PNG: %w", err)
	}

	text, err := v.client.QueryVision(ctx, buf.Bytes())
	if errors.Is(err, llm.ErrNoText) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return splitLines(text), nil
}
