package input

import (
	"fmt"
	"time"

	"github.com/go-vgo/robotgo"
)

// Robot drives the real pointer.
type Robot struct{}

func NewRobot() Robot { return Robot{} }

func (Robot) Location() Point {
	x, y := robotgo.Location()
	return Point{X: x, Y: y}
}

func (Robot) Click(p Point, button Button, hold time.Duration) error {
	name, err := robotButton(button)
	if err != nil {
		return err
	}

	robotgo.Move(p.X, p.Y)
	if err := robotgo.Toggle(name); err != nil {
		return fmt.Errorf("press %s: %w", button, err)
	}
	if hold > 0 {
		time.Sleep(hold)
	}
	if err := robotgo.Toggle(name, "up"); err != nil {
		return fmt.Errorf("release %s: %w", button, err)
	}
	return nil
}

func robotButton(b Button) (string, error) {
	switch b {
	case Left, "":
		return "left", nil
	case Right:
		return "right", nil
	case Middle:
		return "center", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownButton, string(b))
	}
}
