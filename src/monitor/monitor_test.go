package monitor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"screen-watch/src/alert"
	"screen-watch/src/clock"
	"screen-watch/src/ocr"
	"screen-watch/src/screenshot"
)

var (
	testRegion = screenshot.Region{Left: 10, Top: 10, Right: 110, Bottom: 60}
	epoch      = time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)
)

// script drives a loop deterministically: each capture advances the fake
// clock by latency and calls onCapture with the 1-based check number.
type script struct {
	clk       *clock.Fake
	latency   time.Duration
	onCapture func(n int)
	fragments func(n int) []string

	mu       sync.Mutex
	captures int
	starts   []time.Time
}

func (s *script) Capture(r screenshot.Region) (image.Image, error) {
	s.mu.Lock()
	s.captures++
	n := s.captures
	s.starts = append(s.starts, s.clk.Now())
	s.mu.Unlock()

	s.clk.Advance(s.latency)
	if s.onCapture != nil {
		s.onCapture(n)
	}
	img := image.NewRGBA(image.Rect(0, 0, r.Width(), r.Height()))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img, nil
}

func (s *script) Recognize(ctx context.Context, img image.Image) ([]string, error) {
	s.mu.Lock()
	n := s.captures
	s.mu.Unlock()
	if s.fragments == nil {
		return nil, nil
	}
	return s.fragments(n), nil
}

func (s *script) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captures
}

func (s *script) cycleStarts() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.starts...)
}

func always(text ...string) func(int) []string {
	return func(int) []string { return text }
}

func testConfig() Config {
	return Config{
		Keywords:       []string{"Python", "机器学习"},
		ImageScale:     0.8,
		CheckInterval:  time.Second,
		AlertCooldown:  2500 * time.Millisecond,
		StatusInterval: 30 * time.Second,
	}
}

func newScripted(t *testing.T, cfg Config, s *script) (*Loop, *bytes.Buffer) {
	t.Helper()
	if s.clk == nil {
		s.clk = clock.NewFake(epoch)
	}
	var out bytes.Buffer
	l := New(cfg, Deps{Capturer: s, Recognizer: s, Out: &out, Clock: s.clk})
	return l, &out
}

func stopAfter(l **Loop, n int) func(int) {
	return func(i int) {
		if i >= n {
			(*l).Stop()
		}
	}
}

func waitIdle(t *testing.T, l *Loop) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("loop did not exit: %v", err)
	}
	if l.IsRunning() || l.State() != Idle {
		t.Fatalf("after exit IsRunning=%v State=%v", l.IsRunning(), l.State())
	}
}

func collect(ch <-chan DetectionEvent) []DetectionEvent {
	var out []DetectionEvent
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestCooldownSpacing(t *testing.T) {
	var l *Loop
	s := &script{latency: 100 * time.Millisecond, fragments: always("课程: Python 基础")}
	s.onCapture = stopAfter(&l, 10)
	l, _ = newScripted(t, testConfig(), s)
	events := l.Subscribe()

	if err := l.Start(context.Background(), testRegion); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, l)

	got := collect(events)
	// Checks start at 0s,1s,...,9s; alerts need more than 2.5s since the last.
	wantCycles := []int{1, 4, 7, 10}
	if len(got) != len(wantCycles) {
		t.Fatalf("got %d alerts, want %d: %+v", len(got), len(wantCycles), got)
	}
	for i, ev := range got {
		if ev.Cycle != wantCycles[i] {
			t.Errorf("alert %d on check %d, want %d", i, ev.Cycle, wantCycles[i])
		}
		if i > 0 && ev.At.Sub(got[i-1].At) < testConfig().AlertCooldown {
			t.Errorf("alerts %d and %d only %v apart", i-1, i, ev.At.Sub(got[i-1].At))
		}
		if len(ev.Keywords) != 1 || ev.Keywords[0] != "Python" {
			t.Errorf("alert keywords %q", ev.Keywords)
		}
	}
	if st := l.Stats(); st.Alerts != 4 || st.Cycles != 10 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestAdaptiveCadence(t *testing.T) {
	tests := []struct {
		name    string
		latency time.Duration
		gap     time.Duration
		warn    bool
	}{
		{"fast recognition", 300 * time.Millisecond, time.Second, false},
		{"slow recognition", 1500 * time.Millisecond, 1500 * time.Millisecond, false},
		{"very slow recognition", 2500 * time.Millisecond, 2500 * time.Millisecond, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l *Loop
			s := &script{latency: tt.latency}
			s.onCapture = stopAfter(&l, 5)
			cfg := testConfig()
			cfg.Verbose = true
			var out *bytes.Buffer
			l, out = newScripted(t, cfg, s)

			if err := l.Start(context.Background(), testRegion); err != nil {
				t.Fatal(err)
			}
			waitIdle(t, l)

			starts := s.cycleStarts()
			if len(starts) != 5 {
				t.Fatalf("ran %d checks, want 5", len(starts))
			}
			for i := 1; i < len(starts); i++ {
				if gap := starts[i].Sub(starts[i-1]); gap != tt.gap {
					t.Errorf("check %d started %v after the previous, want %v", i+1, gap, tt.gap)
				}
			}
			if warned := strings.Contains(out.String(), "recognition is slow"); warned != tt.warn {
				t.Errorf("slow warning printed = %v, want %v", warned, tt.warn)
			}
		})
	}
}

func TestCallbackStopExitsImmediately(t *testing.T) {
	var l *Loop
	s := &script{
		latency: 200 * time.Millisecond,
		fragments: func(n int) []string {
			if n == 2 {
				return []string{"机器学习导论"}
			}
			return []string{"线性代数"}
		},
	}
	l, _ = newScripted(t, testConfig(), s)

	var calls atomic.Int32
	l.SetOnDetect(func(ev DetectionEvent) error {
		calls.Add(1)
		l.Stop()
		return nil
	})
	events := l.Subscribe()

	if err := l.Start(context.Background(), testRegion); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, l)

	if calls.Load() != 1 {
		t.Errorf("callback called %d times", calls.Load())
	}
	if n := s.count(); n != 2 {
		t.Errorf("ran %d checks, want 2", n)
	}
	// Only the sleep after check 1; check 2 exits without its timing step.
	if sleeps := s.clk.Sleeps(); len(sleeps) != 1 {
		t.Errorf("slept %d times, want 1: %v", len(sleeps), sleeps)
	}
	if got := collect(events); len(got) != 1 || got[0].Cycle != 2 {
		t.Errorf("events %+v", got)
	}
}

func TestCallbackFailureIsContained(t *testing.T) {
	tests := []struct {
		name string
		fn   func(DetectionEvent) error
	}{
		{"error", func(DetectionEvent) error { return errors.New("clicker gone") }},
		{"panic", func(DetectionEvent) error { panic("boom") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l *Loop
			s := &script{latency: 10 * time.Millisecond, fragments: always("Python")}
			s.onCapture = stopAfter(&l, 8)
			cfg := testConfig()
			cfg.AlertCooldown = 0
			l, _ = newScripted(t, cfg, s)

			var calls atomic.Int32
			l.SetOnDetect(func(ev DetectionEvent) error {
				calls.Add(1)
				return tt.fn(ev)
			})
			events := l.Subscribe()

			if err := l.Start(context.Background(), testRegion); err != nil {
				t.Fatal(err)
			}
			waitIdle(t, l)

			if s.count() != 8 {
				t.Errorf("ran %d checks, want 8", s.count())
			}
			if calls.Load() != 8 {
				t.Errorf("callback called %d times, want 8", calls.Load())
			}
			if got := collect(events); len(got) != 8 {
				t.Errorf("subscriber got %d events, want 8", len(got))
			}
		})
	}
}

func TestTransientFailuresKeepLoopAlive(t *testing.T) {
	clk := clock.NewFake(epoch)
	var l *Loop
	var n atomic.Int32
	capturer := screenshot.CapturerFunc(func(r screenshot.Region) (image.Image, error) {
		i := n.Add(1)
		clk.Advance(50 * time.Millisecond)
		if i >= 6 {
			l.Stop()
		}
		switch i {
		case 1:
			return nil, errors.New("display asleep")
		case 2:
			panic("driver fault")
		}
		return image.NewGray(image.Rect(0, 0, r.Width(), r.Height())), nil
	})
	recognizer := ocr.RecognizerFunc(func(ctx context.Context, img image.Image) ([]string, error) {
		if n.Load() == 3 {
			return nil, errors.New("engine hiccup")
		}
		return []string{"Python"}, nil
	})

	var alerts atomic.Int32
	sink := alert.SinkFunc(func() bool { alerts.Add(1); return true })
	var out bytes.Buffer
	cfg := testConfig()
	cfg.Verbose = true
	l = New(cfg, Deps{Capturer: capturer, Recognizer: recognizer, Sink: sink, Out: &out, Clock: clk})

	if err := l.Start(context.Background(), testRegion); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, l)

	if n.Load() != 6 {
		t.Errorf("ran %d checks, want 6", n.Load())
	}
	if alerts.Load() == 0 {
		t.Error("no alert after failures cleared")
	}
	// A panic backs off for two intervals instead of the adaptive wait.
	sleeps := clk.Sleeps()
	if len(sleeps) < 2 || sleeps[1] != 2*time.Second {
		t.Errorf("sleeps %v, want 2s backoff after the panicking check", sleeps)
	}
	if !strings.Contains(out.String(), "display asleep") {
		t.Errorf("capture error not reported: %q", out.String())
	}
}

func TestStartRejectsInvalidRegion(t *testing.T) {
	s := &script{}
	l, _ := newScripted(t, testConfig(), s)
	for _, r := range []screenshot.Region{
		{Left: 10, Top: 10, Right: 10, Bottom: 60},
		{Left: 10, Top: 60, Right: 110, Bottom: 10},
		{},
	} {
		if err := l.Start(context.Background(), r); !errors.Is(err, ErrInvalidRegion) {
			t.Errorf("Start(%s) = %v, want ErrInvalidRegion", r, err)
		}
	}
	if l.IsRunning() || l.State() != Idle {
		t.Errorf("loop left in state %v", l.State())
	}
	if s.count() != 0 {
		t.Errorf("captured %d frames for invalid regions", s.count())
	}
}

func TestStartWithoutRecognizer(t *testing.T) {
	s := &script{clk: clock.NewFake(epoch)}
	l := New(testConfig(), Deps{Capturer: s, Clock: s.clk, Out: &bytes.Buffer{}})
	if err := l.Start(context.Background(), testRegion); !errors.Is(err, ErrRecognizerUnavailable) {
		t.Fatalf("Start() = %v, want ErrRecognizerUnavailable", err)
	}
	if l.IsRunning() {
		t.Error("loop running without a recognizer")
	}
}

func TestStartStopIdempotent(t *testing.T) {
	clk := clock.NewFake(epoch)
	entered := make(chan struct{})
	release := make(chan struct{})
	var captures atomic.Int32
	capturer := screenshot.CapturerFunc(func(r screenshot.Region) (image.Image, error) {
		if captures.Add(1) == 1 {
			close(entered)
			<-release
		}
		return image.NewGray(image.Rect(0, 0, 4, 4)), nil
	})
	recognizer := ocr.RecognizerFunc(func(context.Context, image.Image) ([]string, error) { return nil, nil })
	l := New(testConfig(), Deps{Capturer: capturer, Recognizer: recognizer, Out: &bytes.Buffer{}, Clock: clk})

	l.Stop() // never started
	if l.State() != Idle {
		t.Fatalf("state %v after Stop on idle loop", l.State())
	}

	if err := l.Start(context.Background(), testRegion); err != nil {
		t.Fatal(err)
	}
	if err := l.Start(context.Background(), testRegion); err != nil {
		t.Fatalf("second Start() = %v", err)
	}
	<-entered
	if !l.IsRunning() || l.State() != Running {
		t.Fatalf("IsRunning=%v State=%v", l.IsRunning(), l.State())
	}

	l.Stop()
	l.Stop()
	if l.IsRunning() {
		t.Error("running flag still set after Stop")
	}
	if l.State() != Stopping {
		t.Errorf("state %v while the capture is in flight, want stopping", l.State())
	}
	if err := l.Start(context.Background(), testRegion); !errors.Is(err, ErrStopping) {
		t.Errorf("Start while stopping = %v, want ErrStopping", err)
	}

	close(release)
	waitIdle(t, l)
	if captures.Load() != 1 {
		t.Errorf("captured %d frames, want 1 (no second goroutine)", captures.Load())
	}
}

func TestParentCancelStopsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &script{latency: 10 * time.Millisecond}
	s.onCapture = func(n int) {
		if n == 3 {
			cancel()
		}
	}
	l, _ := newScripted(t, testConfig(), s)
	if err := l.Start(ctx, testRegion); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, l)
	if s.count() != 3 {
		t.Errorf("ran %d checks after cancel at 3", s.count())
	}
}

func TestToggleAndRestart(t *testing.T) {
	var l *Loop
	s := &script{latency: 10 * time.Millisecond, fragments: always("Python")}
	l, _ = newScripted(t, testConfig(), s)
	s.onCapture = stopAfter(&l, 2)

	if err := l.Toggle(context.Background(), testRegion); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, l)
	first := l.Stats()

	s.onCapture = nil
	if err := l.Toggle(context.Background(), testRegion); err != nil {
		t.Fatal(err)
	}
	if !l.IsRunning() {
		t.Fatal("Toggle did not restart the loop")
	}
	if err := l.Toggle(context.Background(), testRegion); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, l)

	if first.Cycles != 2 || first.Alerts != 1 {
		t.Errorf("first run stats %+v", first)
	}
	if first.LastDetection.IsZero() {
		t.Error("LastDetection not recorded")
	}
}

func TestStatusLine(t *testing.T) {
	var l *Loop
	s := &script{latency: 100 * time.Millisecond}
	s.onCapture = stopAfter(&l, 7)
	cfg := testConfig()
	cfg.Verbose = true
	cfg.StatusInterval = 2 * time.Second
	var out *bytes.Buffer
	l, out = newScripted(t, cfg, s)

	if err := l.Start(context.Background(), testRegion); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, l)

	// Checks start at 0..6s; status when more than 2s passed: at 3s and 6s.
	if n := strings.Count(out.String(), "monitoring..."); n != 2 {
		t.Errorf("printed %d status lines, want 2:\n%s", n, out.String())
	}
}

func TestSetConfigAppliesOnNextStart(t *testing.T) {
	var l *Loop
	s := &script{latency: 10 * time.Millisecond, fragments: always("Go 并发编程")}
	s.onCapture = stopAfter(&l, 1)
	l, _ = newScripted(t, testConfig(), s)
	events := l.Subscribe()

	if err := l.Start(context.Background(), testRegion); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, l)
	if got := collect(events); len(got) != 0 {
		t.Fatalf("unexpected events %+v", got)
	}

	cfg := testConfig()
	cfg.Keywords = []string{"并发"}
	l.SetConfig(cfg)
	s.onCapture = stopAfter(&l, 2)
	if err := l.Start(context.Background(), testRegion); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, l)
	if got := collect(events); len(got) != 1 || got[0].Keywords[0] != "并发" {
		t.Errorf("events after SetConfig %+v", got)
	}
}

func TestNotifierCalled(t *testing.T) {
	var l *Loop
	s := &script{clk: clock.NewFake(epoch), latency: 10 * time.Millisecond, fragments: always("Python")}
	s.onCapture = stopAfter(&l, 1)
	n := &recordingNotifier{}
	l = New(testConfig(), Deps{Capturer: s, Recognizer: s, Notifier: n, Out: &bytes.Buffer{}, Clock: s.clk})
	if err := l.Start(context.Background(), testRegion); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, l)
	if n.count() != 1 {
		t.Errorf("notifier called %d times", n.count())
	}
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *recordingNotifier) Notify(keywords []string, at time.Time) {
	r.mu.Lock()
	r.calls = append(r.calls, keywords)
	r.mu.Unlock()
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{Idle: "idle", Running: "running", Stopping: "stopping"} {
		if s.String() != want {
			t.Errorf("%d.String() = %q", s, s.String())
		}
	}
}
