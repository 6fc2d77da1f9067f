// Package monitor runs the capture, recognize, match and alert cycle over a
// screen region.
package monitor

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

	"screen-watch/src/alert"
	"screen-watch/src/clock"
	"screen-watch/src/keyword"
	"screen-watch/src/notification"
	"screen-watch/src/ocr"
	"screen-watch/src/preprocess"
	"screen-watch/src/screenshot"
)

var (
	ErrRecognizerUnavailable = errors.New("text recognizer not initialized")
	ErrInvalidRegion         = screenshot.ErrInvalidRegion
	ErrStopping              = errors.New("monitor is still stopping")

	errCyclePanic = errors.New("cycle panicked")
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

// DetectionEvent describes one dispatched alert.
type DetectionEvent struct {
	Keywords []string
	At       time.Time
	Cycle    int
}

// Stats are counters of the current or last run.
type Stats struct {
	Cycles        int
	Alerts        int
	LastDetection time.Time
}

// Deps are the collaborators of the loop. Recognizer nil means the OCR
// backend failed to initialize; Start then refuses to run.
type Deps struct {
	Capturer   screenshot.Capturer
	Recognizer ocr.Recognizer
	Sink       alert.Sink
	Notifier   notification.Notifier
	Out        io.Writer
	Clock      clock.Clock
}

const subscriberBuffer = 8

type Loop struct {
	deps Deps

	mu       sync.Mutex
	cfg      Config
	onDetect func(DetectionEvent) error
	subs     []chan DetectionEvent
	cancel   context.CancelFunc
	done     chan struct{}

	running atomic.Bool
	state   atomic.Int32
	cycles  atomic.Int64
	alerts  atomic.Int64
	lastHit atomic.Int64
}

func New(cfg Config, deps Deps) *Loop {
	if deps.Out == nil {
		deps.Out = os.Stdout
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Sink == nil {
		deps.Sink = alert.SinkFunc(func() bool { return false })
	}
	done := make(chan struct{})
	close(done)
	return &Loop{deps: deps, cfg: cfg.clone(), done: done}
}

// SetConfig replaces the configuration used by the next Start.
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

// SetOnDetect registers a callback invoked synchronously on the loop's
// goroutine for every dispatched alert. If it calls Stop, the loop exits as
// soon as the callback returns.
func (l *Loop) SetOnDetect(fn func(DetectionEvent) error) {
	l.mu.Lock()
	l.onDetect = fn
	l.mu.Unlock()
}

// Subscribe returns a channel receiving every dispatched DetectionEvent.
// Events are dropped for a subscriber whose buffer is full.
func (l *Loop) Subscribe() <-chan DetectionEvent {
	ch := make(chan DetectionEvent, subscriberBuffer)
	l.mu.Lock()
	l.subs = append(l.subs, ch)
	l.mu.Unlock()
	return ch
}

func (l *Loop) IsRunning() bool { return l.running.Load() }

func (l *Loop) State() State { return State(l.state.Load()) }

// Done is closed when the current run's goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

// Wait blocks until the current run has exited or ctx is done.
func (l *Loop) Wait(ctx context.Context) error {
	select {
	case <-l.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) Stats() Stats {
	s := Stats{Cycles: int(l.cycles.Load()), Alerts: int(l.alerts.Load())}
	if ns := l.lastHit.Load(); ns != 0 {
		s.LastDetection = time.Unix(0, ns)
	}
	return s
}

// Start begins monitoring region in a new goroutine. Starting a running loop
// is a no-op.
func (l *Loop) Start(ctx context.Context, region screenshot.Region) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.State() {
	case Running:
		return nil
	case Stopping:
		return ErrStopping
	}
	if l.deps.Recognizer == nil {
		return ErrRecognizerUnavailable
	}
	if err := region.Validate(); err != nil {
		return err
	}
	if l.deps.Capturer == nil {
		return fmt.Errorf("monitor: no screen capturer configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done
	l.cycles.Store(0)
	l.alerts.Store(0)
	l.lastHit.Store(0)
	l.running.Store(true)
	l.state.Store(int32(Running))

	cfg := l.cfg.clone()
	go l.run(runCtx, cancel, done, region, cfg)
	return nil
}

// Stop asks the running loop to exit. It returns without waiting; use Wait
// or Done to join. Stopping an idle loop is a no-op.
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

// Toggle stops a running loop or starts an idle one.
func (l *Loop) Toggle(ctx context.Context, region screenshot.Region) error {
	if l.IsRunning() {
		l.Stop()
		return nil
	}
	return l.Start(ctx, region)
}

func (l *Loop) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}, region screenshot.Region, cfg Config) {
	defer func() {
		l.mu.Lock()
		l.running.Store(false)
		l.state.Store(int32(Idle))
		cancel()
		close(done)
		l.mu.Unlock()
		if cfg.Verbose {
			s := l.Stats()
			fmt.Fprintf(l.deps.Out, "Monitoring stopped after %d checks, %d alerts\n", s.Cycles, s.Alerts)
		}
		log.Printf("Monitor: loop exited")
	}()

	clk := l.deps.Clock
	if cfg.Verbose {
		l.printBanner(region, cfg)
	}
	log.Printf("Monitor: started on region %s with %d keywords", region, len(cfg.Keywords))

	var lastAlert time.Time
	lastStatus := clk.Now()

	for cycle := 1; l.running.Load() && ctx.Err() == nil; cycle++ {
		l.cycles.Store(int64(cycle))
		start := clk.Now()

		if start.Sub(lastStatus) > cfg.StatusInterval {
			if cfg.Verbose {
				fmt.Fprintf(l.deps.Out, "[%s] monitoring... %d checks, %d alerts\n",
					start.Format("15:04:05"), cycle, l.alerts.Load())
			}
			lastStatus = start
		}

		exit, err := l.runCycle(ctx, region, cfg, cycle, start, &lastAlert)
		if exit {
			log.Printf("Monitor: stopped during detection dispatch at check %d", cycle)
			return
		}

		wait := cfg.CheckInterval - clk.Now().Sub(start)
		if err != nil {
			log.Printf("ERROR: Monitor: check %d failed: %v", cycle, err)
			if cfg.Verbose {
				fmt.Fprintf(l.deps.Out, "[error] check %d: %v\n", cycle, err)
			}
			if errors.Is(err, errCyclePanic) {
				wait = 2 * cfg.CheckInterval
			}
		}

		if wait > 0 {
			if clk.Sleep(ctx, wait) != nil {
				return
			}
		} else if elapsed := clk.Now().Sub(start); elapsed > 2*cfg.CheckInterval {
			if cfg.Verbose {
				fmt.Fprintf(l.deps.Out, "[note] recognition is slow: check took %.2fs\n", elapsed.Seconds())
			}
		}
	}
}

// runCycle performs steps capture to dispatch. exit reports that the
// detection callback stopped the loop.
func (l *Loop) runCycle(ctx context.Context, region screenshot.Region, cfg Config, cycle int, start time.Time, lastAlert *time.Time) (exit bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errCyclePanic, r)
		}
	}()

	img, err := l.deps.Capturer.Capture(region)
	if err != nil {
		return false, fmt.Errorf("capture: %w", err)
	}
	frame := preprocess.Frame(img, cfg.ImageScale)
	if frame == nil {
		return false, nil
	}

	fragments, err := l.deps.Recognizer.Recognize(ctx, frame)
	if err != nil {
		if ctx.Err() != nil {
			return false, nil
		}
		return false, fmt.Errorf("recognize: %w", err)
	}

	found := keyword.Match(fragments, cfg.Keywords)
	if len(found) == 0 {
		return false, nil
	}
	if start.Sub(*lastAlert) <= cfg.AlertCooldown {
		return false, nil
	}

	*lastAlert = start
	n := l.alerts.Add(1)
	l.lastHit.Store(start.UnixNano())
	l.deps.Sink.Emit()
	if cfg.Verbose {
		fmt.Fprintf(l.deps.Out, "[%s] alert %d: found 「%s」\n", start.Format("15:04:05"), n, strings.Join(found, ", "))
	}
	if l.deps.Notifier != nil {
		l.deps.Notifier.Notify(found, start)
	}

	l.dispatch(DetectionEvent{Keywords: found, At: start, Cycle: cycle})
	return !l.running.Load(), nil
}

func (l *Loop) dispatch(ev DetectionEvent) {
	l.mu.Lock()
	fn := l.onDetect
	subs := l.subs
	l.mu.Unlock()

	if fn != nil {
		if err := callDetect(fn, ev); err != nil {
			log.Printf("ERROR: Monitor: detection callback failed: %v", err)
		}
	}
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			log.Printf("Monitor: subscriber buffer full, dropping detection at check %d", ev.Cycle)
		}
	}
}

func callDetect(fn func(DetectionEvent) error, ev DetectionEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panic: %v", r)
		}
	}()
	return fn(ev)
}

func (l *Loop) printBanner(region screenshot.Region, cfg Config) {
	w := l.deps.Out
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "Region: %s\n", region)
	fmt.Fprintf(w, "Keywords: %s\n", strings.Join(cfg.Keywords, ", "))
	fmt.Fprintf(w, "Image scale %.0f%%, check interval %.2fs, alert cooldown %.2fs, GPU: %v\n",
		cfg.ImageScale*100, cfg.CheckInterval.Seconds(), cfg.AlertCooldown.Seconds(), cfg.UseGPU)
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintln(w, "Monitoring started. An alert sounds when a keyword appears.")
}
