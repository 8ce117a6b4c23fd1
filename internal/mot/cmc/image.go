package cmc

import (
	"image"

	"golang.org/x/image/draw"
)

// Grayscale converts img to 8-bit luminance, shrunk by an integer factor.
// A factor below 2 keeps the original size.
func Grayscale(img image.Image, downscale int) *image.Gray {
	b := img.Bounds()
	if downscale < 2 {
		g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
		return g
	}
	w := max(b.Dx()/downscale, 1)
	h := max(b.Dy()/downscale, 1)
	g := image.NewGray(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(g, g.Bounds(), img, b, draw.Src, nil)
	return g
}
