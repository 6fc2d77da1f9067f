//go:build !windows

package notification

import "github.com/gen2brain/beeep"

func showBlocking(title, message string) error {
	return beeep.Alert(title, message, "")
}
