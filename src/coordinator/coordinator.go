// Package coordinator owns the monitor and clicker lifecycles and routes
// detections, hotkey actions and config reloads through a single goroutine.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"screen-watch/src/clicker"
	"screen-watch/src/input"
	"screen-watch/src/monitor"
	"screen-watch/src/screenshot"
)

// DefaultShutdownTimeout bounds the join on both loops at exit.
const DefaultShutdownTimeout = 3 * time.Second

var ErrShutdownTimeout = errors.New("loops did not stop in time")

type Action int

const (
	ToggleMonitor Action = iota
	ToggleClicker
	TogglePosition
	Quit
)

func (a Action) String() string {
	switch a {
	case ToggleMonitor:
		return "toggle-monitor"
	case ToggleClicker:
		return "toggle-clicker"
	case TogglePosition:
		return "toggle-position"
	case Quit:
		return "quit"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Reload carries loop configurations from a changed config file. Nil fields
// leave the corresponding loop untouched.
type Reload struct {
	Monitor *monitor.Config
	Clicker *clicker.Config
	Region  *screenshot.Region
}

// Status is a snapshot of what is running.
type Status struct {
	Monitoring bool
	Clicking   bool
	Detections int
}

type Options struct {
	// Either loop may be nil when its feature is disabled.
	Monitor  *monitor.Loop
	Clicker  *clicker.Loop
	Position *clicker.PositionDisplay

	// Region is the monitored area; a zero value is resolved through
	// ResolveRegion on the first monitor start.
	Region          screenshot.Region
	ResolveRegion   func(ctx context.Context) (screenshot.Region, error)
	ResolvePosition func(ctx context.Context) (input.Point, error)

	Reloads  <-chan Reload
	OnStatus func(Status)
	Out      io.Writer
}

type Coordinator struct {
	opts    Options
	out     io.Writer
	actions chan Action
	events  <-chan monitor.DetectionEvent

	mu         sync.Mutex
	region     screenshot.Region
	detections int
	bannerDone bool

	shutdownOnce sync.Once
	shutdownErr  error
}

func New(opts Options) *Coordinator {
	c := &Coordinator{
		opts:    opts,
		out:     opts.Out,
		actions: make(chan Action, 4),
		region:  opts.Region,
	}
	if c.out == nil {
		c.out = os.Stdout
	}
	if opts.Monitor != nil {
		c.events = opts.Monitor.Subscribe()
	}
	return c
}

// Start launches the monitor first and then the clicker, so a detection
// raised while the clicker is starting still reaches it. A failing loop is
// reported and does not prevent the other from starting.
func (c *Coordinator) Start(ctx context.Context) error {
	var errs []error
	if c.opts.Monitor != nil {
		if err := c.startMonitor(ctx); err != nil {
			errs = append(errs, fmt.Errorf("monitor: %w", err))
		}
	}
	if c.opts.Clicker != nil {
		if err := c.startClicker(ctx); err != nil {
			errs = append(errs, fmt.Errorf("clicker: %w", err))
		}
	}
	c.publishStatus()
	return errors.Join(errs...)
}

// Post queues an action for Run. It never blocks; when the queue is full the
// action is dropped and false is returned.
func (c *Coordinator) Post(a Action) bool {
	select {
	case c.actions <- a:
		return true
	default:
		log.Printf("Coordinator: action queue full, dropping %s", a)
		return false
	}
}

// Run processes detections, actions and reloads until Quit is posted or ctx
// is done, then shuts the loops down.
func (c *Coordinator) Run(ctx context.Context) error {
	defer c.Shutdown(DefaultShutdownTimeout)

	reloads := c.opts.Reloads
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-c.events:
			c.handleDetection(ev)
		case a := <-c.actions:
			if a == Quit {
				log.Printf("Coordinator: quit requested")
				return nil
			}
			c.handleAction(ctx, a)
		case r, ok := <-reloads:
			if !ok {
				reloads = nil
				continue
			}
			c.applyReload(r)
		}
	}
}

// Shutdown stops both loops and the position display and waits up to
// timeout for the loops to exit. Only the first call has any effect.
func (c *Coordinator) Shutdown(timeout time.Duration) error {
	c.shutdownOnce.Do(func() {
		if c.opts.Position != nil {
			_ = c.opts.Position.Close()
		}
		if c.opts.Monitor != nil {
			c.opts.Monitor.Stop()
		}
		if c.opts.Clicker != nil {
			c.opts.Clicker.Stop()
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if c.opts.Monitor != nil {
			if err := c.opts.Monitor.Wait(ctx); err != nil {
				c.shutdownErr = ErrShutdownTimeout
			}
		}
		if c.opts.Clicker != nil {
			if err := c.opts.Clicker.Wait(ctx); err != nil {
				c.shutdownErr = ErrShutdownTimeout
			}
		}
		if c.shutdownErr != nil {
			log.Printf("ERROR: Coordinator: %v after %v", c.shutdownErr, timeout)
		} else {
			log.Printf("Coordinator: shutdown complete")
		}
		c.publishStatus()
	})
	return c.shutdownErr
}

func (c *Coordinator) Status() Status {
	c.mu.Lock()
	s := Status{Detections: c.detections}
	c.mu.Unlock()
	if c.opts.Monitor != nil {
		s.Monitoring = c.opts.Monitor.IsRunning()
	}
	if c.opts.Clicker != nil {
		s.Clicking = c.opts.Clicker.IsRunning()
	}
	return s
}

func (c *Coordinator) Region() screenshot.Region {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.region
}

func (c *Coordinator) handleDetection(ev monitor.DetectionEvent) {
	c.mu.Lock()
	c.detections++
	c.mu.Unlock()
	log.Printf("Coordinator: detection at check %d: %s", ev.Cycle, strings.Join(ev.Keywords, ", "))

	if c.opts.Clicker != nil && c.opts.Clicker.IsRunning() {
		c.mu.Lock()
		first := !c.bannerDone
		c.bannerDone = true
		c.mu.Unlock()
		if first {
			fmt.Fprintln(c.out, strings.Repeat("=", 60))
			fmt.Fprintf(c.out, "Target detected (%s), stopping the clicker\n", strings.Join(ev.Keywords, ", "))
			fmt.Fprintln(c.out, strings.Repeat("=", 60))
		}
		c.opts.Clicker.Stop()
	}
	c.publishStatus()
}

func (c *Coordinator) handleAction(ctx context.Context, a Action) {
	log.Printf("Coordinator: %s", a)
	switch a {
	case ToggleMonitor:
		if c.opts.Monitor == nil {
			fmt.Fprintln(c.out, "Keyword monitoring is disabled")
			return
		}
		if c.opts.Monitor.IsRunning() {
			c.opts.Monitor.Stop()
			fmt.Fprintln(c.out, "Stopping monitoring...")
		} else if err := c.startMonitor(ctx); err != nil {
			fmt.Fprintf(c.out, "Cannot start monitoring: %v\n", err)
		}
	case ToggleClicker:
		if c.opts.Clicker == nil {
			fmt.Fprintln(c.out, "Auto clicker is disabled")
			return
		}
		if c.opts.Clicker.IsRunning() {
			c.opts.Clicker.Stop()
			fmt.Fprintln(c.out, "Stopping clicker...")
		} else if err := c.startClicker(ctx); err != nil {
			fmt.Fprintf(c.out, "Cannot start clicker: %v\n", err)
		}
	case TogglePosition:
		if c.opts.Position == nil {
			return
		}
		if c.opts.Position.Toggle(ctx) {
			fmt.Fprintln(c.out, "Mouse position display on")
		} else {
			fmt.Fprintln(c.out, "Mouse position display off")
		}
	}
	c.publishStatus()
}

func (c *Coordinator) startMonitor(ctx context.Context) error {
	region := c.Region()
	if !region.Valid() && c.opts.ResolveRegion != nil {
		r, err := c.opts.ResolveRegion(ctx)
		if err != nil {
			return fmt.Errorf("region setup: %w", err)
		}
		region = r
		c.mu.Lock()
		c.region = r
		c.mu.Unlock()
	}
	return c.opts.Monitor.Start(ctx, region)
}

func (c *Coordinator) startClicker(ctx context.Context) error {
	if !c.opts.Clicker.HasPosition() && c.opts.ResolvePosition != nil {
		p, err := c.opts.ResolvePosition(ctx)
		if err != nil {
			return fmt.Errorf("position setup: %w", err)
		}
		c.opts.Clicker.SetPosition(p)
	}
	if err := c.opts.Clicker.Start(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.bannerDone = false
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) applyReload(r Reload) {
	if r.Monitor != nil && c.opts.Monitor != nil {
		c.opts.Monitor.SetConfig(*r.Monitor)
	}
	if r.Clicker != nil && c.opts.Clicker != nil {
		cfg := *r.Clicker
		if cfg.Position == nil {
			cfg.Position = c.opts.Clicker.Config().Position
		}
		c.opts.Clicker.SetConfig(cfg)
	}
	if r.Region != nil && r.Region.Valid() {
		c.mu.Lock()
		c.region = *r.Region
		c.mu.Unlock()
	}
	log.Printf("Coordinator: configuration reloaded")
	fmt.Fprintln(c.out, "Configuration reloaded; changes apply the next time a loop starts")
}

func (c *Coordinator) publishStatus() {
	if c.opts.OnStatus != nil {
		c.opts.OnStatus(c.Status())
	}
}
