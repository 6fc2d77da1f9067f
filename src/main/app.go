package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"screen-watch/src/alert"
	"screen-watch/src/clicker"
	"screen-watch/src/config"
	"screen-watch/src/coordinator"
	"screen-watch/src/hotkey"
	"screen-watch/src/input"
	"screen-watch/src/monitor"
	"screen-watch/src/notification"
	"screen-watch/src/ocr"
	"screen-watch/src/prompt"
	"screen-watch/src/runtimeinit"
	"screen-watch/src/screenshot"
	"screen-watch/src/singleinstance"
	"screen-watch/src/tray"
)

var errNothingEnabled = errors.New("neither monitoring nor the auto-clicker is enabled")

type confirmer interface {
	Confirm(ctx context.Context, question string, def bool) (bool, error)
}

func runApp(ctx context.Context, opts *mainOptions, explicit bool, overrides []func(*config.Config)) error {
	loadOpts := config.LoadOptions{
		ConfigPath:         opts.configPath,
		EnvPath:            opts.envPath,
		APIKeyPathOverride: opts.apiKeyPath,
		Overrides:          overrides,
	}
	cfg, logs, err := runtimeinit.Bootstrap(runtimeinit.Options{LoadOptions: loadOpts, Verbose: opts.verbose})
	if err != nil {
		return err
	}
	defer logs.Close()

	enableDPIAwareness()
	if bounds, err := screenshot.GetDisplayBounds(); err == nil {
		log.Printf("Screen: virtual screen %v", bounds)
	}

	guard, err := singleinstance.Acquire(ctx)
	switch {
	case errors.Is(err, singleinstance.ErrAlreadyRunning):
		return err
	case err != nil:
		log.Printf("singleinstance: guard unavailable, continuing: %v", err)
	default:
		defer guard.Close()
	}

	robot := input.NewRobot()
	prompter := prompt.New(os.Stdin, os.Stdout, robot)

	wantMonitor, wantClicker, err := chooseFeatures(ctx, cfg, explicit, prompter)
	if err != nil {
		return err
	}

	var mon *monitor.Loop
	if wantMonitor {
		var cleanup func()
		mon, cleanup = buildMonitor(cfg, os.Stdout)
		defer cleanup()
	}
	var clk *clicker.Loop
	var position *clicker.PositionDisplay
	if wantClicker {
		clk = clicker.New(cfg.ClickerConfig(), robot, os.Stdout, nil)
		if cfg.ShowMousePosition {
			position = clicker.NewPositionDisplay(robot, os.Stdout, fmt.Sprintf("  (%s hides)", cfg.Hotkeys.Position))
		}
	}
	if mon == nil && clk == nil {
		return errNothingEnabled
	}

	var region screenshot.Region
	if cfg.Region != nil {
		region = *cfg.Region
	}

	var ui *tray.Tray
	coord := coordinator.New(coordinator.Options{
		Monitor:         mon,
		Clicker:         clk,
		Position:        position,
		Region:          region,
		ResolveRegion:   prompter.Region,
		ResolvePosition: prompter.ClickPosition,
		Reloads:         watchReloads(ctx, cfg, loadOpts),
		OnStatus: func(s coordinator.Status) {
			if ui != nil {
				ui.Update(s)
			}
		},
		Out: os.Stdout,
	})
	if cfg.EnableTray {
		ui = tray.New(coord.Post)
	}

	keys := hotkey.NewListener()
	if err := registerHotkeys(keys, cfg.Hotkeys, coord.Post, position != nil); err != nil {
		return err
	}
	printStartup(os.Stdout, cfg, mon != nil, clk != nil, position != nil)

	if err := coord.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	if err := keys.Start(); err != nil {
		log.Printf("ERROR: Hotkey listener failed to start: %v", err)
		fmt.Fprintln(os.Stderr, "Hotkeys are unavailable; press Ctrl+C to exit.")
	} else {
		defer keys.Stop()
	}

	if ui == nil {
		return ignoreCancel(coord.Run(ctx))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- coord.Run(ctx)
		ui.Quit()
	}()
	ui.Run(nil)
	return ignoreCancel(<-errCh)
}

// ignoreCancel treats an interrupt as a normal exit.
func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// chooseFeatures decides which loops run. Flags and config values win;
// when neither loop is enabled anywhere the user is asked.
func chooseFeatures(ctx context.Context, cfg *config.Config, explicit bool, ask confirmer) (bool, bool, error) {
	if explicit || cfg.EnableMonitor || cfg.EnableClicker {
		return cfg.EnableMonitor, cfg.EnableClicker, nil
	}
	mon, err := ask.Confirm(ctx, "Enable keyword monitoring?", true)
	if err != nil {
		return false, false, err
	}
	clk, err := ask.Confirm(ctx, "Enable the auto-clicker?", false)
	if err != nil {
		return false, false, err
	}
	return mon, clk, nil
}

// buildMonitor wires the OCR backend, the alert sound and notifications.
// When OCR cannot start it prints guidance and returns a nil loop.
func buildMonitor(cfg *config.Config, out io.Writer) (*monitor.Loop, func()) {
	rec, err := runtimeinit.InitOCR(cfg, out, true)
	if err != nil {
		fmt.Fprintln(out, "Monitoring is disabled.")
		return nil, func() {}
	}

	var player alert.Player
	pa, err := alert.NewPortAudioPlayer()
	if err != nil {
		log.Printf("Alert: audio output unavailable, using the terminal bell: %v", err)
	} else {
		player = pa
	}

	deps := monitor.Deps{
		Capturer:   screenshot.NewScreenCapturer(),
		Recognizer: rec,
		Sink:       alert.NewToneSink(player, out),
		Out:        out,
	}
	if cfg.DesktopNotify {
		deps.Notifier = notification.NewDesktop()
	}

	cleanup := func() {
		if err := ocr.Close(rec); err != nil {
			log.Printf("OCR: close: %v", err)
		}
		if pa != nil {
			_ = pa.Close()
		}
	}
	return monitor.New(cfg.MonitorConfig(), deps), cleanup
}

func registerHotkeys(l *hotkey.Listener, hk config.Hotkeys, post func(coordinator.Action) bool, withPosition bool) error {
	bind := func(combo string, a coordinator.Action) error {
		if combo == "" {
			return nil
		}
		if err := l.Register(combo, func() { post(a) }); err != nil {
			return fmt.Errorf("hotkey for %s: %w", a, err)
		}
		return nil
	}
	if err := bind(hk.Monitor, coordinator.ToggleMonitor); err != nil {
		return err
	}
	if err := bind(hk.Clicker, coordinator.ToggleClicker); err != nil {
		return err
	}
	if withPosition {
		if err := bind(hk.Position, coordinator.TogglePosition); err != nil {
			return err
		}
	}
	return bind(hk.Quit, coordinator.Quit)
}

// watchReloads follows the config file, if one was read, and converts each
// valid reload into loop configurations.
func watchReloads(ctx context.Context, cfg *config.Config, opts config.LoadOptions) <-chan coordinator.Reload {
	if cfg.Path == "" {
		return nil
	}
	opts.ConfigPath = cfg.Path
	in, err := config.WatchReloads(ctx, opts)
	if err != nil {
		log.Printf("ERROR: Config: cannot watch %s: %v", cfg.Path, err)
		return nil
	}
	out := make(chan coordinator.Reload)
	go func() {
		defer close(out)
		for c := range in {
			select {
			case out <- toReload(c):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func toReload(c *config.Config) coordinator.Reload {
	m := c.MonitorConfig()
	k := c.ClickerConfig()
	r := coordinator.Reload{Monitor: &m, Clicker: &k}
	if c.Region != nil {
		region := *c.Region
		r.Region = &region
	}
	return r
}

func printStartup(w io.Writer, cfg *config.Config, monitoring, clicking, position bool) {
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintln(w, "screen-watch")
	if monitoring {
		fmt.Fprintf(w, "Keywords: %s\n", strings.Join(cfg.Keywords, ", "))
		fmt.Fprintf(w, "Image scale %.0f%%, check interval %.2fs, alert cooldown %.2fs, GPU: %v, OCR: %s\n",
			cfg.ImageScale*100, cfg.CheckInterval, cfg.AlertCooldown, cfg.UseGPU, cfg.OCRBackend)
	}
	if clicking {
		count := "unlimited"
		if cfg.ClickCount != nil {
			count = fmt.Sprint(*cfg.ClickCount)
		}
		fmt.Fprintf(w, "Auto-click: every %.2fs, hold %.2fs, %s button, %s clicks\n",
			cfg.ClickInterval, cfg.ClickDuration, cfg.ClickButton, count)
	}
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintln(w, "Hotkeys:")
	if monitoring {
		fmt.Fprintf(w, "  %-12s start/stop monitoring\n", cfg.Hotkeys.Monitor)
	}
	if clicking {
		fmt.Fprintf(w, "  %-12s start/stop auto-click\n", cfg.Hotkeys.Clicker)
	}
	if position {
		fmt.Fprintf(w, "  %-12s show/hide mouse position\n", cfg.Hotkeys.Position)
	}
	fmt.Fprintf(w, "  %-12s quit\n", cfg.Hotkeys.Quit)
	fmt.Fprintln(w, strings.Repeat("=", 60))
}
