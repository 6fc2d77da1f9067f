package prompt

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"screen-watch/src/input"
	"screen-watch/src/screenshot"
)

// scriptedMouse reports the next position each time Location is called.
type scriptedMouse struct {
	points []input.Point
}

func (m *scriptedMouse) Location() input.Point {
	p := m.points[0]
	m.points = m.points[1:]
	return p
}

func (m *scriptedMouse) Click(input.Point, input.Button, time.Duration) error { return nil }

func TestConfirm(t *testing.T) {
	tests := []struct {
		answer string
		def    bool
		want   bool
	}{
		{"y", false, true},
		{"YES", false, true},
		{"n", true, false},
		{"", true, true},
		{"", false, false},
		{"maybe", true, false},
	}
	for _, tt := range tests {
		p := New(strings.NewReader(tt.answer+"\n"), io.Discard, nil)
		got, err := p.Confirm(context.Background(), "Enable?", tt.def)
		if err != nil || got != tt.want {
			t.Errorf("Confirm(%q, def=%v) = %v, %v; want %v", tt.answer, tt.def, got, err, tt.want)
		}
	}
}

func TestRegionNormalizesCorners(t *testing.T) {
	mouse := &scriptedMouse{points: []input.Point{{X: 400, Y: 300}, {X: 100, Y: 120}}}
	var out bytes.Buffer
	p := New(strings.NewReader("\n\n"), &out, mouse)

	r, err := p.Region(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := screenshot.Region{Left: 100, Top: 120, Right: 400, Bottom: 300}
	if r != want {
		t.Errorf("Region() = %s, want %s", r, want)
	}
	if !strings.Contains(out.String(), "size 300 x 180") {
		t.Errorf("size not reported:\n%s", out.String())
	}
}

func TestRegionRetriesDegenerate(t *testing.T) {
	mouse := &scriptedMouse{points: []input.Point{
		{X: 10, Y: 10}, {X: 10, Y: 200}, // zero width
		{X: 10, Y: 10}, {X: 210, Y: 110},
	}}
	var out bytes.Buffer
	p := New(strings.NewReader("\n\n\n\n"), &out, mouse)

	r, err := p.Region(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if r != (screenshot.Region{Left: 10, Top: 10, Right: 210, Bottom: 110}) {
		t.Errorf("Region() = %s", r)
	}
	if !strings.Contains(out.String(), "try again") {
		t.Errorf("no guidance printed:\n%s", out.String())
	}
}

func TestRegionSmallWarning(t *testing.T) {
	t.Run("keep", func(t *testing.T) {
		mouse := &scriptedMouse{points: []input.Point{{X: 0, Y: 0}, {X: 30, Y: 10}}}
		var out bytes.Buffer
		p := New(strings.NewReader("\n\nn\n"), &out, mouse)
		r, err := p.Region(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if r.Width() != 30 || r.Height() != 10 {
			t.Errorf("Region() = %s", r)
		}
		if !strings.Contains(out.String(), "Warning") {
			t.Error("small region warning missing")
		}
	})
	t.Run("redo", func(t *testing.T) {
		mouse := &scriptedMouse{points: []input.Point{
			{X: 0, Y: 0}, {X: 30, Y: 10},
			{X: 0, Y: 0}, {X: 300, Y: 100},
		}}
		p := New(strings.NewReader("\n\ny\n\n\n"), io.Discard, mouse)
		r, err := p.Region(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if r.Width() != 300 {
			t.Errorf("Region() = %s", r)
		}
	})
}

func TestRegionGivesUp(t *testing.T) {
	var pts []input.Point
	for i := 0; i < maxAttempts; i++ {
		pts = append(pts, input.Point{X: 5, Y: 5}, input.Point{X: 5, Y: 5})
	}
	p := New(strings.NewReader(strings.Repeat("\n", 2*maxAttempts)), io.Discard, &scriptedMouse{points: pts})
	if _, err := p.Region(context.Background()); !errors.Is(err, screenshot.ErrInvalidRegion) {
		t.Errorf("Region() error = %v, want ErrInvalidRegion", err)
	}
}

func TestClickPosition(t *testing.T) {
	p := New(strings.NewReader("\n"), io.Discard, &scriptedMouse{points: []input.Point{{X: 640, Y: 480}}})
	pt, err := p.ClickPosition(context.Background())
	if err != nil || pt != (input.Point{X: 640, Y: 480}) {
		t.Errorf("ClickPosition() = %s, %v", pt, err)
	}
}

func TestInputClosedAndCancelled(t *testing.T) {
	p := New(strings.NewReader(""), io.Discard, &scriptedMouse{})
	if _, err := p.ClickPosition(context.Background()); !errors.Is(err, ErrInputClosed) {
		t.Errorf("closed input: %v", err)
	}

	pr, pw := io.Pipe()
	defer pw.Close()
	p = New(pr, io.Discard, &scriptedMouse{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Confirm(ctx, "Enable?", false); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("cancelled prompt: %v", err)
	}
}
