package clicker

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"screen-watch/src/input"
)

const positionRefresh = 100 * time.Millisecond

// PositionDisplay keeps printing the pointer position on a single line,
// which helps when picking coordinates for a region or click target.
type PositionDisplay struct {
	mouse input.Mouse
	out   io.Writer
	hint  string

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPositionDisplay(mouse input.Mouse, out io.Writer, hint string) *PositionDisplay {
	if out == nil {
		out = os.Stdout
	}
	return &PositionDisplay{mouse: mouse, out: out, hint: hint}
}

func (d *PositionDisplay) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancel != nil
}

func (d *PositionDisplay) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	d.cancel, d.done = cancel, done
	go d.run(ctx, done)
}

// Stop ends the display and waits for its goroutine.
func (d *PositionDisplay) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Toggle reports whether the display is on afterwards.
func (d *PositionDisplay) Toggle(ctx context.Context) bool {
	if d.Active() {
		d.Stop()
		return false
	}
	d.Start(ctx)
	return true
}

func (d *PositionDisplay) Close() error {
	d.Stop()
	return nil
}

func (d *PositionDisplay) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(positionRefresh)
	defer t.Stop()
	for {
		p := d.mouse.Location()
		fmt.Fprintf(d.out, "\rMouse position: %s%s   ", p, d.hint)
		select {
		case <-ctx.Done():
			fmt.Fprintln(d.out)
			return
		case <-t.C:
		}
	}
}
