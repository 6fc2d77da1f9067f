package tray

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync"
)

var (
	iconOnce sync.Once
	iconData []byte
)

// Icon returns a 32x32 PNG: a dashed capture frame with a dot in its
// center, drawn once and cached.
func Icon() []byte {
	iconOnce.Do(func() {
		const size = 32
		img := image.NewNRGBA(image.Rect(0, 0, size, size))
		frame := color.NRGBA{R: 0x00, G: 0x78, B: 0xd4, A: 0xff}
		dot := color.NRGBA{R: 0xe8, G: 0x11, B: 0x23, A: 0xff}
		for i := 3; i < size-3; i++ {
			if (i/3)%2 == 1 {
				continue
			}
			for _, w := range []int{3, 4} {
				img.Set(i, w, frame)
				img.Set(i, size-1-w, frame)
				img.Set(w, i, frame)
				img.Set(size-1-w, i, frame)
			}
		}
		c := size / 2
		for y := c - 4; y <= c+4; y++ {
			for x := c - 4; x <= c+4; x++ {
				if (x-c)*(x-c)+(y-c)*(y-c) <= 16 {
					img.Set(x, y, dot)
				}
			}
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err == nil {
			iconData = buf.Bytes()
		}
	})
	return iconData
}
