// Package hotkey listens for global key combinations.
package hotkey

import (
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"

	gohook "github.com/robotn/gohook"
)

var (
	ErrEmptyCombo     = errors.New("empty hotkey")
	ErrUnknownKey     = errors.New("unknown key")
	ErrDuplicateCombo = errors.New("hotkey already registered")
	ErrStarted        = errors.New("hotkey listener already started")
)

type binding struct {
	combo string
	keys  []string // sorted, normalized
	fn    func()
}

// Listener dispatches registered combinations from one global keyboard hook.
// A combination fires when exactly its keys are held; Ctrl+S does not fire
// while Alt is also down.
type Listener struct {
	mu       sync.Mutex
	bindings []binding
	pressed  map[string]bool
	started  bool
}

func NewListener() *Listener {
	return &Listener{pressed: make(map[string]bool)}
}

// Register binds combo, written like "Ctrl+Alt+C", to fn. fn runs on the hook
// goroutine and must not block.
func (l *Listener) Register(combo string, fn func()) error {
	keys, err := parseCombo(combo)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, b := range l.bindings {
		if slices.Equal(b.keys, keys) {
			return fmt.Errorf("%w: %s (also %s)", ErrDuplicateCombo, combo, b.combo)
		}
	}
	l.bindings = append(l.bindings, binding{combo: combo, keys: keys, fn: fn})
	log.Printf("Hotkey registered: %s", combo)
	return nil
}

// Start installs the keyboard hook and processes events in the background.
func (l *Listener) Start() error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return ErrStarted
	}
	l.started = true
	l.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("PANIC in hotkey goroutine: %v", r)
			}
		}()

		evChan := gohook.Start()
		if evChan == nil {
			log.Printf("ERROR: gohook.Start() returned nil channel")
			return
		}
		log.Printf("Hotkey listener started")
		for ev := range evChan {
			switch ev.Kind {
			case gohook.KeyDown:
				l.keyDown(ev.Rawcode)
			case gohook.KeyUp:
				l.keyUp(ev.Rawcode)
			}
		}
		log.Printf("Hotkey event channel closed")
	}()
	return nil
}

// Stop removes the keyboard hook, which ends the event goroutine.
func (l *Listener) Stop() {
	l.mu.Lock()
	started := l.started
	l.started = false
	l.mu.Unlock()
	if started {
		gohook.End()
	}
}

func (l *Listener) keyDown(rawcode uint16) {
	name := rawcodeName(rawcode)
	if name == "" {
		return
	}

	l.mu.Lock()
	l.pressed[name] = true
	held := make([]string, 0, len(l.pressed))
	for k := range l.pressed {
		held = append(held, k)
	}
	slices.Sort(held)

	var fire func()
	for _, b := range l.bindings {
		if slices.Equal(b.keys, held) {
			log.Printf("Hotkey activated: %s", b.combo)
			fire = b.fn
			// Releasing the trigger key lets a held modifier repeat the combo.
			if !isModifier(name) {
				delete(l.pressed, name)
			}
			break
		}
	}
	l.mu.Unlock()

	if fire != nil {
		fire()
	}
}

func (l *Listener) keyUp(rawcode uint16) {
	name := rawcodeName(rawcode)
	if name == "" {
		return
	}
	l.mu.Lock()
	delete(l.pressed, name)
	l.mu.Unlock()
}

// parseCombo converts "Ctrl+Alt+q" into sorted, normalized key names.
func parseCombo(combo string) ([]string, error) {
	if strings.TrimSpace(combo) == "" {
		return nil, ErrEmptyCombo
	}
	var keys []string
	for _, part := range strings.Split(strings.ToLower(combo), "+") {
		name := normalizeKey(part)
		if name == "" || keyNameToRawcodes(name) == nil {
			return nil, fmt.Errorf("%w %q in hotkey %q", ErrUnknownKey, strings.TrimSpace(part), combo)
		}
		if !slices.Contains(keys, name) {
			keys = append(keys, name)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

func normalizeKey(part string) string {
	switch part = strings.TrimSpace(part); part {
	case "control":
		return "ctrl"
	case "option":
		return "alt"
	case "win", "super", "meta":
		return "cmd"
	case "return":
		return "enter"
	case "escape":
		return "esc"
	case "del":
		return "delete"
	case "ins":
		return "insert"
	case "pgup":
		return "pageup"
	case "pgdn":
		return "pagedown"
	default:
		return part
	}
}

func isModifier(name string) bool {
	switch name {
	case "ctrl", "alt", "shift", "cmd":
		return true
	}
	return false
}
