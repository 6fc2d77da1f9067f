package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"screen-watch/src/ocr"
)

func writePNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "region.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadImage(t *testing.T) {
	path := writePNG(t, 40, 30)
	img, err := readImage(path, nil, false)
	if err != nil {
		t.Fatalf("readImage: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 40 || b.Dy() != 30 {
		t.Errorf("decoded %dx%d, want 40x30", b.Dx(), b.Dy())
	}

	data, _ := os.ReadFile(path)
	if _, err := readImage("-", bytes.NewReader(data), false); err != nil {
		t.Errorf("readImage(stdin): %v", err)
	}
}

func TestReadImageRejects(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.png")
	text := filepath.Join(dir, "notes.png")
	os.WriteFile(empty, nil, 0644)
	os.WriteFile(text, []byte("not an image at all"), 0644)

	tests := []struct {
		name string
		path string
		want string
	}{
		{"missing", filepath.Join(dir, "nope.png"), "failed to read file"},
		{"empty", empty, "empty"},
		{"not an image", text, "not a supported image"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readImage(tt.path, nil, false)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("readImage(%s) = %v, want error containing %q", tt.name, err, tt.want)
			}
		})
	}
}

func TestScan(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 50))
	var got image.Image
	rec := ocr.RecognizerFunc(func(ctx context.Context, img image.Image) ([]string, error) {
		got = img
		return []string{"今天学习机器学习", "Python 3.12"}, nil
	})

	res, err := scan(context.Background(), rec, src, []string{"Python", "机器学习", "Go"}, 0.5, false)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(res.Matched, ",") != "Python,机器学习" {
		t.Errorf("Matched = %q", res.Matched)
	}
	if _, ok := got.(*image.Gray); !ok {
		t.Errorf("recognizer got %T, want the preprocessed *image.Gray", got)
	}
	if b := got.Bounds(); b.Dx() != 50 || b.Dy() != 25 {
		t.Errorf("preprocessed frame is %dx%d, want 50x25", b.Dx(), b.Dy())
	}

	if _, err := scan(context.Background(), rec, src, nil, 0.5, true); err != nil {
		t.Fatal(err)
	}
	if got != image.Image(src) {
		t.Error("--raw should hand the decoded image to the recognizer unchanged")
	}
}

func TestScanRecognizerError(t *testing.T) {
	boom := errors.New("engine crashed")
	rec := ocr.RecognizerFunc(func(context.Context, image.Image) ([]string, error) { return nil, boom })
	_, err := scan(context.Background(), rec, image.NewGray(image.Rect(0, 0, 10, 10)), []string{"x"}, 1, false)
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestOutputResult(t *testing.T) {
	res := ScanResult{Source: "a.png", Lines: []string{"第一行", "line <2>"}, Matched: []string{"第一"}}

	var text bytes.Buffer
	if err := outputResult(&text, res, false); err != nil {
		t.Fatal(err)
	}
	if text.String() != "第一行\nline <2>\n\nmatched: 第一\n" {
		t.Errorf("text output = %q", text.String())
	}

	var js bytes.Buffer
	if err := outputResult(&js, res, true); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(js.String(), "line <2>") {
		t.Errorf("JSON output escaped HTML: %s", js.String())
	}
	var back ScanResult
	if err := json.Unmarshal(js.Bytes(), &back); err != nil {
		t.Fatalf("JSON output does not parse: %v", err)
	}
	if back.Source != "a.png" || len(back.Lines) != 2 {
		t.Errorf("decoded %+v", back)
	}

	text.Reset()
	outputResult(&text, ScanResult{Lines: []string{}}, false)
	if !strings.Contains(text.String(), "matched: none") {
		t.Errorf("no-match output = %q", text.String())
	}
}

func TestFileFlagRequired(t *testing.T) {
	var out bytes.Buffer
	err := runWithArgs([]string{"scan", "--json"}, nil, &out)
	if err == nil || !strings.Contains(err.Error(), "file") {
		t.Errorf("missing --file: err = %v", err)
	}
}
