// Package notification shows desktop notifications for detections.
package notification

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gen2brain/beeep"
)

const (
	appName       = "screen-watch"
	maxBodyLength = 200
)

// Notifier announces a detection outside the terminal.
type Notifier interface {
	Notify(keywords []string, at time.Time)
}

// Desktop posts notifications through the platform notification center.
type Desktop struct {
	send func(title, message string) error
}

func NewDesktop() *Desktop {
	return &Desktop{send: func(title, message string) error {
		return beeep.Notify(title, message, "")
	}}
}

// Notify does not block the caller; failures are only logged.
func (d *Desktop) Notify(keywords []string, at time.Time) {
	title, body := Format(keywords, at)
	go func() {
		if err := d.send(title, body); err != nil {
			log.Printf("Failed to show notification: %v", err)
		}
	}()
}

// Format builds the title and body shown for a detection.
func Format(keywords []string, at time.Time) (string, string) {
	body := fmt.Sprintf("[%s] found: %s", at.Format("15:04:05"), strings.Join(keywords, ", "))
	if r := []rune(body); len(r) > maxBodyLength {
		body = string(r[:maxBodyLength]) + "..."
	}
	return appName + ": keyword detected", body
}

// ShowBlockingError raises a modal message for problems the user must act
// on, such as a missing OCR engine.
func ShowBlockingError(title, message string) {
	log.Printf("%s: %s", title, message)
	if err := showBlocking(title, message); err != nil {
		log.Printf("Failed to show notification: %v", err)
	}
}
