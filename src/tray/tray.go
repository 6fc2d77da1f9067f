// Package tray shows a system tray menu that mirrors the hotkeys.
package tray

import (
	"fmt"
	"log"
	"sync"

	"screen-watch/src/coordinator"

	"github.com/getlantern/systray"
)

const title = "screen-watch"

// Tray forwards menu clicks to the coordinator and reflects its status.
// Run must be called from the main goroutine.
type Tray struct {
	post    func(coordinator.Action) bool
	updates chan coordinator.Status

	ready    chan struct{}
	quitOnce sync.Once
}

func New(post func(coordinator.Action) bool) *Tray {
	return &Tray{
		post:    post,
		updates: make(chan coordinator.Status, 1),
		ready:   make(chan struct{}),
	}
}

// Run blocks until Quit. onReady runs once the menu exists.
func (t *Tray) Run(onReady func()) {
	systray.Run(func() {
		t.build()
		close(t.ready)
		if onReady != nil {
			onReady()
		}
	}, func() {
		log.Printf("Tray: exited")
	})
}

// Update records the latest status; older pending updates are replaced.
func (t *Tray) Update(s coordinator.Status) {
	for {
		select {
		case t.updates <- s:
			return
		default:
		}
		select {
		case <-t.updates:
		default:
		}
	}
}

func (t *Tray) Quit() {
	t.quitOnce.Do(systray.Quit)
}

func (t *Tray) build() {
	systray.SetIcon(Icon())
	systray.SetTitle(title)
	systray.SetTooltip(Tooltip(coordinator.Status{}))

	mMonitor := systray.AddMenuItem("Monitoring", "Start or stop keyword monitoring")
	mClicker := systray.AddMenuItem("Auto-click", "Start or stop the auto-clicker")
	mPosition := systray.AddMenuItem("Show mouse position", "Print the pointer position in the console")
	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Stop everything and exit")

	send := func(a coordinator.Action) {
		if !t.post(a) {
			log.Printf("Tray: %s dropped, coordinator busy", a)
		}
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("ERROR: Tray goroutine panic: %v", r)
			}
		}()
		for {
			select {
			case <-mMonitor.ClickedCh:
				send(coordinator.ToggleMonitor)
			case <-mClicker.ClickedCh:
				send(coordinator.ToggleClicker)
			case <-mPosition.ClickedCh:
				send(coordinator.TogglePosition)
			case <-mQuit.ClickedCh:
				send(coordinator.Quit)
			case s := <-t.updates:
				setChecked(mMonitor, s.Monitoring)
				setChecked(mClicker, s.Clicking)
				systray.SetTooltip(Tooltip(s))
			}
		}
	}()
}

func setChecked(m *systray.MenuItem, on bool) {
	if on {
		m.Check()
	} else {
		m.Uncheck()
	}
}

// Tooltip summarizes a status in one line.
func Tooltip(s coordinator.Status) string {
	state := func(on bool) string {
		if on {
			return "on"
		}
		return "off"
	}
	return fmt.Sprintf("%s: monitor %s, clicker %s, %d detections",
		title, state(s.Monitoring), state(s.Clicking), s.Detections)
}
