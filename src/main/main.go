package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"screen-watch/src/config"
)

type mainOptions struct {
	configPath string
	envPath    string
	apiKeyPath string
	verbose    bool

	monitor  bool
	clicker  bool
	tray     bool
	region   string
	keywords []string
}

func init() {
	// The tray's event loop must own the main thread.
	runtime.LockOSThread()
}

func main() {
	if err := runWithArgs(normalizeLegacyArgs(os.Args)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runWithArgs(args []string) error {
	if len(args) == 0 {
		args = []string{"screen-watch"}
	}
	cmd := newRootCmd(&mainOptions{})
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *mainOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "screen-watch",
		Short: "Watch a screen region for keywords and optionally auto-click",
		Long: "screen-watch reads a screen region with OCR, sounds an alert when a keyword appears,\n" +
			"and can run an auto-clicker that stops on the first detection.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := flagOverrides(cmd, opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runApp(ctx, opts, explicitFeatures(cmd), overrides)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "Config file (.toml, .yaml, .json); defaults to $"+config.ConfigPathEnvVar)
	f.StringVar(&opts.envPath, "env", "", "Dotenv file; defaults to .env next to the executable")
	f.StringVar(&opts.apiKeyPath, "api-key-path", "", "Path to the OpenRouter API key file (vision backend)")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Write diagnostic logs to stderr")
	f.BoolVar(&opts.monitor, "monitor", false, "Enable keyword monitoring")
	f.BoolVar(&opts.clicker, "clicker", false, "Enable the auto-clicker")
	f.BoolVar(&opts.tray, "tray", false, "Show a system tray menu")
	f.StringVar(&opts.region, "region", "", "Monitored region as left,top,right,bottom")
	f.StringSliceVarP(&opts.keywords, "keyword", "k", nil, "Keyword to watch for (repeatable)")

	return cmd
}

// explicitFeatures reports whether the loops to run were chosen on the
// command line.
func explicitFeatures(cmd *cobra.Command) bool {
	return cmd.Flags().Changed("monitor") || cmd.Flags().Changed("clicker")
}

// flagOverrides turns the flags that were actually given into config
// overrides, so unset flags never mask file or environment values.
func flagOverrides(cmd *cobra.Command, opts *mainOptions) ([]func(*config.Config), error) {
	f := cmd.Flags()
	var out []func(*config.Config)
	if f.Changed("monitor") {
		v := opts.monitor
		out = append(out, func(c *config.Config) { c.EnableMonitor = v })
	}
	if f.Changed("clicker") {
		v := opts.clicker
		out = append(out, func(c *config.Config) { c.EnableClicker = v })
	}
	if f.Changed("tray") {
		v := opts.tray
		out = append(out, func(c *config.Config) { c.EnableTray = v })
	}
	if f.Changed("keyword") {
		kw := make([]string, 0, len(opts.keywords))
		for _, k := range opts.keywords {
			if k = strings.TrimSpace(k); k != "" {
				kw = append(kw, k)
			}
		}
		out = append(out, func(c *config.Config) { c.Keywords = kw })
	}
	if f.Changed("region") {
		r, err := config.ParseRegion(opts.region)
		if err != nil {
			return nil, fmt.Errorf("--region: %w", err)
		}
		out = append(out, func(c *config.Config) { reg := r; c.Region = &reg })
	}
	return out, nil
}

// normalizeLegacyArgs maps single-dash long flags such as -config to the
// double-dash form cobra expects.
func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}
	long := []string{"config", "env", "api-key-path", "verbose", "monitor", "clicker", "tray", "region", "keyword"}

	normalized := make([]string, len(args))
	copy(normalized, args)
	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		if !strings.HasPrefix(arg, "-") || strings.HasPrefix(arg, "--") {
			continue
		}
		name, _, _ := strings.Cut(arg[1:], "=")
		for _, l := range long {
			if name == l {
				normalized[i] = "-" + arg
				break
			}
		}
	}
	return normalized
}
