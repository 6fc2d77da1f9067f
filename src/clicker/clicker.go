// Package clicker repeats synthetic mouse clicks at a fixed position.
package clicker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"screen-watch/src/clock"
	"screen-watch/src/input"
)

var (
	ErrNoPosition = errors.New("click position not set")
	ErrStopping   = errors.New("clicker is still stopping")
)

type State int32

const (
	Idle State = iota
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

type Config struct {
	// Position nil means it has to be resolved before Start.
	Position *input.Point
	Interval time.Duration
	// Duration is how long the button is held down.
	Duration time.Duration
	// MaxClicks nil means unbounded.
	MaxClicks *int
	Button    input.Button
	Verbose   bool
}

func DefaultConfig() Config {
	return Config{
		Interval: 2 * time.Second,
		Duration: 100 * time.Millisecond,
		Button:   input.Left,
		Verbose:  true,
	}
}

func (c Config) clone() Config {
	if c.Position != nil {
		p := *c.Position
		c.Position = &p
	}
	if c.MaxClicks != nil {
		n := *c.MaxClicks
		c.MaxClicks = &n
	}
	return c
}

type Loop struct {
	mouse input.Mouse
	out   io.Writer
	clk   clock.Clock

	mu     sync.Mutex
	cfg    Config
	cancel context.CancelFunc
	done   chan struct{}

	running atomic.Bool
	state   atomic.Int32
	clicks  atomic.Int64
}

// New returns an idle clicker. A nil out writes progress to stdout and a nil
// clk uses the wall clock.
func New(cfg Config, mouse input.Mouse, out io.Writer, clk clock.Clock) *Loop {
	if out == nil {
		out = os.Stdout
	}
	if clk == nil {
		clk = clock.Real()
	}
	done := make(chan struct{})
	close(done)
	return &Loop{mouse: mouse, out: out, clk: clk, cfg: cfg.clone(), done: done}
}

func (l *Loop) SetConfig(cfg Config) {
	l.mu.Lock()
	l.cfg = cfg.clone()
	l.mu.Unlock()
}

func (l *Loop) Config() Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg.clone()
}

// SetPosition records the click target used by the next Start.
func (l *Loop) SetPosition(p input.Point) {
	l.mu.Lock()
	l.cfg.Position = &p
	l.mu.Unlock()
}

func (l *Loop) HasPosition() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg.Position != nil
}

func (l *Loop) IsRunning() bool { return l.running.Load() }

func (l *Loop) State() State { return State(l.state.Load()) }

// Clicks returns the number of successful clicks of the current or last run.
func (l *Loop) Clicks() int { return int(l.clicks.Load()) }

func (l *Loop) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

func (l *Loop) Wait(ctx context.Context) error {
	select {
	case <-l.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start begins clicking in a new goroutine. It is a no-op when already
// running, and when MaxClicks is zero it returns at once without clicking.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.State() {
	case Running:
		return nil
	case Stopping:
		return ErrStopping
	}
	if l.cfg.Position == nil {
		return ErrNoPosition
	}
	if l.mouse == nil {
		return fmt.Errorf("clicker: no mouse driver configured")
	}

	cfg := l.cfg.clone()
	l.clicks.Store(0)
	if cfg.MaxClicks != nil && *cfg.MaxClicks <= 0 {
		if cfg.Verbose {
			fmt.Fprintln(l.out, "Click count is 0, nothing to do")
		}
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done
	l.running.Store(true)
	l.state.Store(int32(Running))

	go l.run(runCtx, cancel, done, cfg)
	return nil
}

// Stop asks the loop to exit; an in-progress click completes first.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running.Load() {
		return
	}
	l.running.Store(false)
	l.state.Store(int32(Stopping))
	l.cancel()
}

func (l *Loop) Toggle(ctx context.Context) error {
	if l.IsRunning() {
		l.Stop()
		return nil
	}
	return l.Start(ctx)
}

func (l *Loop) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}, cfg Config) {
	defer func() {
		l.mu.Lock()
		l.running.Store(false)
		l.state.Store(int32(Idle))
		cancel()
		close(done)
		l.mu.Unlock()
		if cfg.Verbose {
			fmt.Fprintf(l.out, "Clicking stopped, %d clicks in total\n", l.Clicks())
		}
	}()

	pos := *cfg.Position
	if cfg.Verbose {
		l.printBanner(pos, cfg)
	}
	log.Printf("Clicker: started at %s every %v", pos, cfg.Interval)

	for l.running.Load() && ctx.Err() == nil {
		if err := click(l.mouse, pos, cfg); err != nil {
			log.Printf("ERROR: Clicker: click failed: %v", err)
			if cfg.Verbose {
				fmt.Fprintf(l.out, "[error] click failed: %v\n", err)
			}
		} else {
			n := int(l.clicks.Add(1))
			if cfg.Verbose {
				l.printProgress(n, cfg.MaxClicks)
			}
			if cfg.MaxClicks != nil && n >= *cfg.MaxClicks {
				if cfg.Verbose {
					fmt.Fprintf(l.out, "Completed %d clicks, stopping\n", n)
				}
				return
			}
		}

		if l.clk.Sleep(ctx, cfg.Interval) != nil {
			return
		}
	}
}

func click(m input.Mouse, pos input.Point, cfg Config) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("input driver panic: %v", r)
		}
	}()
	return m.Click(pos, cfg.Button, cfg.Duration)
}

func (l *Loop) printProgress(n int, max *int) {
	status := fmt.Sprintf("[%s] click #%d", l.clk.Now().Format("15:04:05"), n)
	if max != nil {
		status += fmt.Sprintf(" (%d remaining)", *max-n)
	}
	fmt.Fprintln(l.out, status)
}

func (l *Loop) printBanner(pos input.Point, cfg Config) {
	count := "unlimited"
	if cfg.MaxClicks != nil {
		count = fmt.Sprint(*cfg.MaxClicks)
	}
	fmt.Fprintln(l.out, strings.Repeat("=", 60))
	fmt.Fprintf(l.out, "Click position: %s\n", pos)
	fmt.Fprintf(l.out, "Interval: %.2fs, hold: %v, clicks: %s, button: %s\n",
		cfg.Interval.Seconds(), cfg.Duration, count, cfg.Button)
	fmt.Fprintln(l.out, strings.Repeat("=", 60))
}
