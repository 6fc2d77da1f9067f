// Package preprocess prepares captured frames for text recognition: it
// downscales, converts to grayscale and, for aggressive downscales, sharpens.
package preprocess

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

// SharpenBelow is the scale under which the unsharp kernel is applied.
const SharpenBelow = 0.9

// sharpenKernel recovers some edge contrast lost to area downscaling.
var sharpenKernel = [3][3]float64{
	{0, -0.25, 0},
	{-0.25, 2.0, -0.25},
	{0, -0.25, 0},
}

// areaKernel is a box filter. x/image/draw widens a kernel's support by the
// shrink factor, so a box of half-width 0.5 averages every source pixel that
// falls under the destination pixel.
var areaKernel = &draw.Kernel{
	Support: 0.5,
	At:      func(t float64) float64 { return 1 },
}

// Frame turns a raw capture into the single-channel image handed to OCR.
// A nil src produces a nil frame.
func Frame(src image.Image, scale float64) *image.Gray {
	if src == nil {
		return nil
	}
	if scale <= 0 || scale > 1 {
		scale = 1
	}

	scaled := Resize(src, scale)
	gray := Grayscale(scaled)
	if scale < SharpenBelow {
		gray = Sharpen(gray)
	}
	return gray
}

// Resize shrinks src by scale using area averaging. scale >= 1 returns src.
func Resize(src image.Image, scale float64) image.Image {
	if scale >= 1 {
		return src
	}
	b := src.Bounds()
	w := max(1, int(float64(b.Dx())*scale))
	h := max(1, int(float64(b.Dy())*scale))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	areaKernel.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// Grayscale converts src into a zero-origin luma image.
func Grayscale(src image.Image) *image.Gray {
	if g, ok := src.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			dst.SetGray(x, y, color.GrayModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.Gray))
		}
	}
	return dst
}

// Sharpen convolves src with the 3x3 unsharp kernel. Borders are reflected
// without repeating the edge pixel and results saturate to [0,255].
func Sharpen(src *image.Gray) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float64
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					k := sharpenKernel[ky+1][kx+1]
					if k == 0 {
						continue
					}
					sx := reflect101(x+kx, w)
					sy := reflect101(y+ky, h)
					acc += k * float64(src.GrayAt(b.Min.X+sx, b.Min.Y+sy).Y)
				}
			}
			dst.SetGray(x, y, color.Gray{Y: saturate(acc)})
		}
	}
	return dst
}

func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

func saturate(v float64) uint8 {
	v = math.RoundToEven(v)
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(v)
	}
}
