// Package input wraps pointer queries and synthetic mouse clicks.
package input

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrUnknownButton = errors.New("unknown mouse button")

// Point is a position in virtual-screen pixels.
type Point struct {
	X int `toml:"x" yaml:"x" json:"x"`
	Y int `toml:"y" yaml:"y" json:"y"`
}

func (p Point) String() string { return fmt.Sprintf("(%d, %d)", p.X, p.Y) }

type Button string

const (
	Left   Button = "left"
	Right  Button = "right"
	Middle Button = "middle"
)

// ParseButton accepts left, right and middle in any case. An empty string
// means Left.
func ParseButton(s string) (Button, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "left":
		return Left, nil
	case "right":
		return Right, nil
	case "middle", "center":
		return Middle, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownButton, s)
	}
}

// Mouse reads the pointer and clicks. Click moves to p, presses button,
// holds it for hold and releases it.
type Mouse interface {
	Location() Point
	Click(p Point, button Button, hold time.Duration) error
}
