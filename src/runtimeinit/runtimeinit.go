// Package runtimeinit holds the startup steps shared by screen-watch and
// the scan tool.
package runtimeinit

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"screen-watch/src/config"
	"screen-watch/src/logutil"
	"screen-watch/src/notification"
	"screen-watch/src/ocr"
)

type Options struct {
	LoadOptions config.LoadOptions
	// Verbose sends logs to stderr when file logging is off.
	Verbose bool
	// LogDir holds the log file; empty means next to the executable.
	LogDir string
}

// Bootstrap loads the configuration and routes logging. The returned closer
// releases the log file.
func Bootstrap(opts Options) (*config.Config, io.Closer, error) {
	cfg, err := config.LoadWithOptions(opts.LoadOptions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	dir := opts.LogDir
	if dir == "" {
		dir = exeDir()
	}
	logs, err := logutil.Setup(cfg.EnableFileLogging, opts.Verbose, dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	key := "unset"
	if cfg.APIKey != "" {
		key = logutil.RedactKey(cfg.APIKey)
	}
	log.Printf("Config: loaded (file %q, backend %s, api key %s)", cfg.Path, cfg.OCRBackend, key)
	return cfg, logs, nil
}

// InitOCR starts the configured OCR backend. On failure it writes setup
// guidance to out and, when showDialog is set, raises a blocking message.
func InitOCR(cfg *config.Config, out io.Writer, showDialog bool) (ocr.Recognizer, error) {
	rec, err := ocr.New(cfg.OCROptions())
	if err != nil {
		log.Printf("ERROR: OCR: %v", err)
		msg := Guidance(cfg.OCRBackend, err)
		if out != nil {
			fmt.Fprintln(out, msg)
		}
		if showDialog {
			notification.ShowBlockingError("OCR unavailable", msg)
		}
		return nil, err
	}
	log.Printf("OCR: %s backend ready", cfg.OCRBackend)
	return rec, nil
}

// Guidance tells the user how to get the backend working.
func Guidance(backend string, err error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "OCR engine could not start (%v).\n", err)
	switch backend {
	case ocr.BackendVision:
		b.WriteString("Set OPENROUTER_API_KEY (or its key file) and MODEL, or switch to OCR_BACKEND=tesseract.")
	default:
		b.WriteString("Install Tesseract with the chi_sim and eng language data,\n")
		b.WriteString("for example: apt install tesseract-ocr tesseract-ocr-chi-sim\n")
		b.WriteString("or set OCR_BACKEND=vision with an OpenRouter key.")
	}
	return b.String()
}

func exeDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}
