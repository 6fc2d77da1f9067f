package screenshot

import (
	"errors"
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

var ErrInvalidRegion = errors.New("invalid region")

// Region is a screen rectangle given by its top-left and bottom-right corners
// in virtual-screen pixel coordinates. Right and Bottom are exclusive.
type Region struct {
	Left   int `toml:"left" yaml:"left" json:"left"`
	Top    int `toml:"top" yaml:"top" json:"top"`
	Right  int `toml:"right" yaml:"right" json:"right"`
	Bottom int `toml:"bottom" yaml:"bottom" json:"bottom"`
}

// RegionFromCorners normalizes two arbitrary corners into a Region.
func RegionFromCorners(x1, y1, x2, y2 int) Region {
	return Region{
		Left:   min(x1, x2),
		Top:    min(y1, y2),
		Right:  max(x1, x2),
		Bottom: max(y1, y2),
	}
}

func (r Region) Valid() bool { return r.Right > r.Left && r.Bottom > r.Top }

func (r Region) Width() int  { return r.Right - r.Left }
func (r Region) Height() int { return r.Bottom - r.Top }

func (r Region) Rect() image.Rectangle { return image.Rect(r.Left, r.Top, r.Right, r.Bottom) }

func (r Region) IsZero() bool { return r == Region{} }

func (r Region) String() string {
	return fmt.Sprintf("(%d, %d, %d, %d)", r.Left, r.Top, r.Right, r.Bottom)
}

// Validate reports why a region cannot be captured.
func (r Region) Validate() error {
	if !r.Valid() {
		return fmt.Errorf("%w: %s (need right>left and bottom>top)", ErrInvalidRegion, r)
	}
	return nil
}

// Capturer grabs the pixels of a screen region at the time of the call.
type Capturer interface {
	Capture(region Region) (image.Image, error)
}

// CapturerFunc adapts a function to the Capturer interface.
type CapturerFunc func(region Region) (image.Image, error)

func (f CapturerFunc) Capture(region Region) (image.Image, error) { return f(region) }

// ScreenCapturer captures from the live desktop.
type ScreenCapturer struct{}

func NewScreenCapturer() ScreenCapturer { return ScreenCapturer{} }

// Capture captures a specific region of the screen
func (ScreenCapturer) Capture(region Region) (image.Image, error) {
	if err := region.Validate(); err != nil {
		return nil, err
	}

	img, err := screenshot.CaptureRect(region.Rect())
	if err != nil {
		return nil, fmt.Errorf("failed to capture region: %w", err)
	}
	return img, nil
}

// GetDisplayBounds returns the union of all active display bounds
func GetDisplayBounds() (image.Rectangle, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return image.Rectangle{}, fmt.Errorf("no active displays found")
	}
	union := screenshot.GetDisplayBounds(0)
	for i := 1; i < n; i++ {
		union = union.Union(screenshot.GetDisplayBounds(i))
	}
	return union, nil
}
