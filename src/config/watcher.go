package config

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 500 * time.Millisecond

// Watch emits on the returned channel, debounced, whenever path is written
// or recreated. The channel is closed when ctx is done. The parent directory
// is watched so editors that replace the file on save are still seen.
func Watch(ctx context.Context, path string) (<-chan struct{}, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if dir, err := filepath.EvalSymlinks(filepath.Dir(absPath)); err == nil {
		absPath = filepath.Join(dir, filepath.Base(absPath))
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return nil, err
	}

	reloadCh := make(chan struct{}, 1)
	fire := make(chan struct{}, 1)
	go func() {
		defer watcher.Close()
		defer close(reloadCh)

		var timer *time.Timer
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != absPath {
					continue
				}
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(reloadDebounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			case <-fire:
				log.Printf("Config: change detected in %s", absPath)
				select {
				case reloadCh <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("ERROR: Config watcher: %v", err)
			}
		}
	}()
	return reloadCh, nil
}

// WatchReloads reloads the configuration whenever opts.ConfigPath changes
// and sends each valid result. Invalid edits are logged and skipped so the
// running configuration stays in effect.
func WatchReloads(ctx context.Context, opts LoadOptions) (<-chan *Config, error) {
	changes, err := Watch(ctx, opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	out := make(chan *Config, 1)
	go func() {
		defer close(out)
		for range changes {
			cfg, err := LoadWithOptions(opts)
			if err != nil {
				log.Printf("ERROR: Config: reload of %s rejected: %v", opts.ConfigPath, err)
				continue
			}
			select {
			case out <- cfg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
