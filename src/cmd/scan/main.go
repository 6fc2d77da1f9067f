// Command scan runs the monitor's pipeline once over an image file:
// preprocessing, OCR and keyword matching. It is the quickest way to check
// that the OCR backend reads a captured region the way the monitor would.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"screen-watch/src/clipboard"
	"screen-watch/src/config"
	"screen-watch/src/keyword"
	"screen-watch/src/ocr"
	"screen-watch/src/preprocess"
	"screen-watch/src/runtimeinit"
)

const (
	maxFileSizeMB = 10
	maxFileSize   = maxFileSizeMB * 1024 * 1024
)

type scanOptions struct {
	filePath   string
	configPath string
	apiKeyPath string
	backend    string
	keywords   []string
	scale      float64
	raw        bool
	jsonOutput bool
	copyText   bool
	verbose    bool
}

func main() {
	if err := runWithArgs(os.Args, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runWithArgs(args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		args = []string{"scan"}
	}
	cmd := newRootCmd(&scanOptions{}, stdin, stdout)
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *scanOptions, stdin io.Reader, stdout io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "scan",
		Short:         "Run OCR and keyword matching on an image file",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithOptions(cmd.Context(), cmd, *opts, stdin, stdout)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.filePath, "file", "", "Image file: PNG, JPEG, BMP or WebP (use '-' for stdin)")
	f.StringVarP(&opts.configPath, "config", "c", "", "Config file supplying keywords and OCR options")
	f.StringVar(&opts.apiKeyPath, "api-key-path", "", "Path to API key file (vision backend)")
	f.StringVar(&opts.backend, "backend", "", "OCR backend: tesseract or vision")
	f.StringSliceVarP(&opts.keywords, "keyword", "k", nil, "Keyword to match (repeatable)")
	f.Float64Var(&opts.scale, "scale", 0, "Image scale before OCR (default from config)")
	f.BoolVar(&opts.raw, "raw", false, "Skip preprocessing and recognize the image as is")
	f.BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	f.BoolVar(&opts.copyText, "copy", false, "Copy the recognized text to the clipboard")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output to stderr")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runWithOptions(ctx context.Context, cmd *cobra.Command, opts scanOptions, stdin io.Reader, stdout io.Writer) error {
	if opts.verbose {
		fmt.Fprintf(os.Stderr, "[verbose] Starting scan\n")
	}

	var overrides []func(*config.Config)
	if opts.backend != "" {
		b := opts.backend
		overrides = append(overrides, func(c *config.Config) { c.OCRBackend = b })
	}
	if cmd.Flags().Changed("keyword") {
		kw := append([]string(nil), opts.keywords...)
		overrides = append(overrides, func(c *config.Config) { c.Keywords = kw })
	}
	if cmd.Flags().Changed("scale") {
		s := opts.scale
		overrides = append(overrides, func(c *config.Config) { c.ImageScale = s })
	}
	// A one-shot scan has no loop to protect, so the unchanged-frame cache
	// is never useful here.
	overrides = append(overrides, func(c *config.Config) {
		c.SkipUnchangedFrames = false
		c.EnableFileLogging = false
	})

	cfg, logs, err := runtimeinit.Bootstrap(runtimeinit.Options{
		LoadOptions: config.LoadOptions{
			ConfigPath:         opts.configPath,
			APIKeyPathOverride: opts.apiKeyPath,
			Overrides:          overrides,
		},
		Verbose: opts.verbose,
	})
	if err != nil {
		return err
	}
	defer logs.Close()
	if opts.verbose {
		fmt.Fprintf(os.Stderr, "[verbose] Config loaded: backend=%s scale=%.2f keywords=%q\n",
			cfg.OCRBackend, cfg.ImageScale, cfg.Keywords)
	}

	img, err := readImage(opts.filePath, stdin, opts.verbose)
	if err != nil {
		return err
	}

	rec, err := runtimeinit.InitOCR(cfg, os.Stderr, false)
	if err != nil {
		return fmt.Errorf("OCR unavailable: %w", err)
	}
	defer ocr.Close(rec)

	res, err := scan(ctx, rec, img, cfg.Keywords, cfg.ImageScale, opts.raw)
	if err != nil {
		return err
	}
	res.Source = opts.filePath
	if opts.verbose {
		fmt.Fprintf(os.Stderr, "[verbose] OCR completed in %.2fs, %d lines, %d matches\n",
			res.Duration, len(res.Lines), len(res.Matched))
	}

	if opts.copyText {
		if err := clipboard.Write(strings.Join(res.Lines, "\n")); err != nil {
			return fmt.Errorf("failed to write to clipboard: %w", err)
		}
	}
	return outputResult(stdout, res, opts.jsonOutput)
}

// ScanResult is the JSON form of one scan.
type ScanResult struct {
	Source    string   `json:"source"`
	Lines     []string `json:"lines"`
	Matched   []string `json:"matched"`
	Timestamp string   `json:"timestamp"`
	Duration  float64  `json:"duration_seconds"`
}

func scan(ctx context.Context, rec ocr.Recognizer, img image.Image, keywords []string, scale float64, raw bool) (ScanResult, error) {
	frame := img
	if !raw {
		frame = preprocess.Frame(img, scale)
	}
	start := time.Now()
	lines, err := rec.Recognize(ctx, frame)
	elapsed := time.Since(start)
	if err != nil {
		return ScanResult{}, fmt.Errorf("OCR failed: %w", err)
	}
	matched := keyword.Match(lines, keywords)
	if lines == nil {
		lines = []string{}
	}
	if matched == nil {
		matched = []string{}
	}
	return ScanResult{
		Lines:     lines,
		Matched:   matched,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Duration:  elapsed.Seconds(),
	}, nil
}

func readImage(path string, stdin io.Reader, verbose bool) (image.Image, error) {
	var data []byte
	var err error
	if path == "-" {
		if verbose {
			fmt.Fprintf(os.Stderr, "[verbose] Reading image from stdin\n")
		}
		data, err = io.ReadAll(io.LimitReader(stdin, maxFileSize+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		if verbose {
			fmt.Fprintf(os.Stderr, "[verbose] Reading image from file: %s\n", path)
		}
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", path, err)
		}
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("input file is empty")
	}
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("input file exceeds maximum size of %d MB", maxFileSizeMB)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("input is not a supported image: %w", err)
	}
	if verbose {
		b := img.Bounds()
		fmt.Fprintf(os.Stderr, "[verbose] Decoded %s image %dx%d\n", format, b.Dx(), b.Dy())
	}
	return img, nil
}

func outputResult(w io.Writer, res ScanResult, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("failed to encode JSON output: %w", err)
		}
		return nil
	}
	for _, line := range res.Lines {
		fmt.Fprintln(w, line)
	}
	if len(res.Matched) > 0 {
		fmt.Fprintf(w, "\nmatched: %s\n", strings.Join(res.Matched, ", "))
	} else {
		fmt.Fprintln(w, "\nmatched: none")
	}
	return nil
}
