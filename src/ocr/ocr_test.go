package ocr

import (
	"context"
	"errors"
	"image"
	"image/color"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"screen-watch/src/llm"
)

func testImage(v uint8) image.Image {
	img := image.NewGray(image.Rect(0, 0, 64, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 64; x++ {
			if (x/8+y/8)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: v})
			}
		}
	}
	return img
}

func TestJoinCJK(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"机 器 学 习", "机器学习"},
		{"机器学习 Python", "机器学习 Python"},
		{"Deep Learning", "Deep Learning"},
		{"课程  编 号", "课程编号"},
		{"AI 课程", "AI 课程"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := joinCJK(tt.in); got != tt.want {
			t.Errorf("joinCJK(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSplitLines(t *testing.T) {
	got := splitLines("  first \n\n second\r\n\t\n")
	want := []string{"first", "second"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitLines = %q, want %q", got, want)
	}
	if splitLines("   ") != nil {
		t.Error("blank text should produce no fragments")
	}
}

func TestNewUnknownBackend(t *testing.T) {
	_, err := New(Options{Backend: "paddle"})
	if !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got %v", err)
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestNewVisionWithoutKey(t *testing.T) {
	_, err := New(Options{Backend: BackendVision, Vision: llm.Config{Model: "m"}})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestWithDeadlineTimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	slow := RecognizerFunc(func(ctx context.Context, img image.Image) ([]string, error) {
		<-release
		return []string{"late"}, nil
	})

	start := time.Now()
	got, err := WithDeadline(slow, 20*time.Millisecond).Recognize(context.Background(), testImage(255))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v (%q)", err, got)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("deadline shim returned after %v", elapsed)
	}
}

func TestWithDeadlinePassesResults(t *testing.T) {
	fast := RecognizerFunc(func(ctx context.Context, img image.Image) ([]string, error) {
		return []string{"机器学习"}, nil
	})
	got, err := WithDeadline(fast, time.Second).Recognize(context.Background(), testImage(255))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"机器学习"}) {
		t.Errorf("got %q", got)
	}
}

func TestWithDeadlineRecoversPanic(t *testing.T) {
	bad := RecognizerFunc(func(ctx context.Context, img image.Image) ([]string, error) {
		panic("engine crashed")
	})
	if _, err := WithDeadline(bad, time.Second).Recognize(context.Background(), testImage(255)); err == nil {
		t.Error("expected an error from a panicking recognizer")
	}
}

func TestCachedSkipsUnchangedFrames(t *testing.T) {
	var calls atomic.Int32
	inner := RecognizerFunc(func(ctx context.Context, img image.Image) ([]string, error) {
		calls.Add(1)
		return []string{"Python"}, nil
	})
	c := NewCached(inner, DefaultMaxHashDistance)

	for i := 0; i < 3; i++ {
		got, err := c.Recognize(context.Background(), testImage(200))
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if !reflect.DeepEqual(got, []string{"Python"}) {
			t.Fatalf("call %d: got %q", i, got)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("inner recognizer called %d times, want 1", n)
	}
	if c.Hits() != 2 {
		t.Errorf("Hits() = %d, want 2", c.Hits())
	}

	c.Reset()
	if _, err := c.Recognize(context.Background(), testImage(200)); err != nil {
		t.Fatal(err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("after Reset inner called %d times, want 2", n)
	}
}

func TestCachedDoesNotStoreFailures(t *testing.T) {
	var calls atomic.Int32
	inner := RecognizerFunc(func(ctx context.Context, img image.Image) ([]string, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("transient")
		}
		return []string{"ok"}, nil
	})
	c := NewCached(inner, DefaultMaxHashDistance)
	if _, err := c.Recognize(context.Background(), testImage(90)); err == nil {
		t.Fatal("expected first call to fail")
	}
	got, err := c.Recognize(context.Background(), testImage(90))
	if err != nil || !reflect.DeepEqual(got, []string{"ok"}) {
		t.Errorf("second call = %q, %v", got, err)
	}
}

type fakeVisionClient struct {
	text string
	err  error
}

func (f fakeVisionClient) QueryVision(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty image")
	}
	return f.text, f.err
}

func TestVisionRecognize(t *testing.T) {
	v := &Vision{client: fakeVisionClient{text: "课程列表\n机器学习 入门\n"}}
	got, err := v.Recognize(context.Background(), testImage(255))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"课程列表", "机器学习 入门"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}

	v = &Vision{client: fakeVisionClient{err: llm.ErrNoText}}
	got, err = v.Recognize(context.Background(), testImage(255))
	if err != nil || got != nil {
		t.Errorf("no-text answer = %q, %v; want nil, nil", got, err)
	}
}

func TestTesseractProbe(t *testing.T) {
	tess, err := NewTesseract([]string{"eng"}, false)
	if err != nil {
		t.Skipf("tesseract not available: %v", err)
	}
	defer tess.Close()

	got, err := tess.Recognize(context.Background(), image.NewGray(image.Rect(0, 0, 32, 32)))
	if err != nil {
		t.Fatalf("blank image: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("blank image produced %q", got)
	}
}
