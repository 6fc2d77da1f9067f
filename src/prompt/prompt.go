// Package prompt walks the user through console setup of the click target
// and the monitored region.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"screen-watch/src/input"
	"screen-watch/src/screenshot"
)

const (
	MinRegionWidth  = 50
	MinRegionHeight = 20
	maxAttempts     = 3
)

var ErrInputClosed = errors.New("console input closed")

// Prompter reads answers line by line. Lines are read by a background
// goroutine so a pending question can be abandoned through its context.
type Prompter struct {
	out   io.Writer
	mouse input.Mouse

	once  sync.Once
	in    io.Reader
	lines chan string
}

func New(in io.Reader, out io.Writer, mouse input.Mouse) *Prompter {
	return &Prompter{in: in, out: out, mouse: mouse}
}

func (p *Prompter) readLine(ctx context.Context) (string, error) {
	p.once.Do(func() {
		p.lines = make(chan string)
		go func() {
			defer close(p.lines)
			sc := bufio.NewScanner(p.in)
			for sc.Scan() {
				p.lines <- sc.Text()
			}
		}()
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-p.lines:
		if !ok {
			return "", ErrInputClosed
		}
		return strings.TrimSpace(line), nil
	}
}

// Confirm asks a y/n question; an empty answer selects def.
func (p *Prompter) Confirm(ctx context.Context, question string, def bool) (bool, error) {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	fmt.Fprintf(p.out, "%s (%s): ", question, hint)
	answer, err := p.readLine(ctx)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "":
		return def, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Point records the pointer position once the user presses Enter.
func (p *Prompter) Point(ctx context.Context, what string) (input.Point, error) {
	fmt.Fprintf(p.out, "Move the mouse to the %s and press Enter...", what)
	if _, err := p.readLine(ctx); err != nil {
		return input.Point{}, err
	}
	pt := p.mouse.Location()
	fmt.Fprintf(p.out, "Recorded %s at %s\n", what, pt)
	return pt, nil
}

// ClickPosition asks for the click target.
func (p *Prompter) ClickPosition(ctx context.Context) (input.Point, error) {
	fmt.Fprintln(p.out, strings.Repeat("=", 60))
	fmt.Fprintln(p.out, "Set click position")
	fmt.Fprintln(p.out, strings.Repeat("=", 60))
	return p.Point(ctx, "click target")
}

// Region asks for two opposite corners. A degenerate rectangle is rejected
// and asked again; a small one only triggers a warning with the option to
// redo it.
func (p *Prompter) Region(ctx context.Context) (screenshot.Region, error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		fmt.Fprintln(p.out, strings.Repeat("=", 60))
		fmt.Fprintln(p.out, "Set monitored region")
		fmt.Fprintln(p.out, strings.Repeat("=", 60))

		a, err := p.Point(ctx, "top-left corner")
		if err != nil {
			return screenshot.Region{}, err
		}
		b, err := p.Point(ctx, "bottom-right corner")
		if err != nil {
			return screenshot.Region{}, err
		}

		r := screenshot.RegionFromCorners(a.X, a.Y, b.X, b.Y)
		fmt.Fprintf(p.out, "Region: %s, size %d x %d pixels\n", r, r.Width(), r.Height())
		if err := r.Validate(); err != nil {
			fmt.Fprintf(p.out, "The two corners must differ in both directions, try again.\n")
			continue
		}
		if r.Width() < MinRegionWidth || r.Height() < MinRegionHeight {
			fmt.Fprintln(p.out, "Warning: the region is small and recognition may suffer")
			redo, err := p.Confirm(ctx, "Set it again?", false)
			if err != nil {
				return screenshot.Region{}, err
			}
			if redo {
				continue
			}
		}
		return r, nil
	}
	return screenshot.Region{}, fmt.Errorf("%w: gave up after %d attempts", screenshot.ErrInvalidRegion, maxAttempts)
}
