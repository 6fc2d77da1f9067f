// Package logutil configures the standard logger.
package logutil

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
)

const (
	LogFileName  = "screen_watch.log"
	maxSizeBytes = 10 * 1024 * 1024 // 10 MB
	maxArchives  = 3
)

// Setup routes the standard logger. With file logging on, output goes to
// LogFileName in dir with size rotation (10MB, 3 archives). Otherwise logs
// go to stderr when verbose and are discarded when not, keeping the console
// for status lines. The returned closer releases the log file.
func Setup(enableFileLogging, verbose bool, dir string) (io.Closer, error) {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if !enableFileLogging {
		if verbose {
			log.SetOutput(os.Stderr)
		} else {
			log.SetOutput(io.Discard)
		}
		return io.NopCloser(nil), nil
	}

	w, err := NewRotatingWriter(filepath.Join(dir, LogFileName), maxSizeBytes, maxArchives)
	if err != nil {
		log.SetOutput(os.Stderr)
		return io.NopCloser(nil), fmt.Errorf("failed to open log file: %w", err)
	}
	log.SetOutput(w)
	return w, nil
}

// RotatingWriter appends to a file and shifts it to .1, .2, ... once it
// would grow beyond maxSize. The oldest archive is discarded.
type RotatingWriter struct {
	mu       sync.Mutex
	path     string
	maxSize  int64
	archives int
	f        *os.File
}

func NewRotatingWriter(path string, maxSize int64, archives int) (*RotatingWriter, error) {
	w := &RotatingWriter{path: path, maxSize: maxSize, archives: archives}
	w.rotateIfNeeded(0)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, err
	}
	w.f = f
	return w, nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return 0, os.ErrClosed
	}
	if st, err := w.f.Stat(); err == nil && st.Size() > 0 && st.Size()+int64(len(p)) > w.maxSize {
		_ = w.f.Close()
		w.rotateIfNeeded(len(p))
		nf, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			w.f = nil
			return 0, err
		}
		w.f = nf
	}
	return w.f.Write(p)
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

func (w *RotatingWriter) rotateIfNeeded(incoming int) {
	st, err := os.Stat(w.path)
	if err != nil || st.Size() == 0 || st.Size()+int64(incoming) <= w.maxSize {
		return
	}
	_ = os.Remove(w.archiveName(w.archives))
	for i := w.archives - 1; i >= 1; i-- {
		_ = os.Rename(w.archiveName(i), w.archiveName(i+1))
	}
	_ = os.Rename(w.path, w.archiveName(1))
}

func (w *RotatingWriter) archiveName(n int) string { return fmt.Sprintf("%s.%d", w.path, n) }

// RedactKey masks an API key, leaving first/last 4 chars: xxxx...yyyy
func RedactKey(k string) string {
	if len(k) <= 8 {
		return "********"
	}
	return fmt.Sprintf("%s...%s", k[:4], k[len(k)-4:])
}
