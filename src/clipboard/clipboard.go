// Package clipboard copies recognized text to the system clipboard.
package clipboard

import (
	"errors"
	"fmt"
	"sync"

	"golang.design/x/clipboard"
)

var ErrUnavailable = errors.New("clipboard unavailable")

var (
	initOnce sync.Once
	initErr  error
	writeMu  sync.Mutex
)

// Init prepares the platform clipboard. It is safe to call repeatedly;
// only the first call touches the platform.
func Init() error {
	initOnce.Do(func() {
		if err := clipboard.Init(); err != nil {
			initErr = fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	})
	return initErr
}

// Write performs a mutex-guarded clipboard write to prevent corruption under parallel writes.
func Write(text string) error {
	if err := Init(); err != nil {
		return err
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	clipboard.Write(clipboard.FmtText, []byte(text))
	return nil
}
