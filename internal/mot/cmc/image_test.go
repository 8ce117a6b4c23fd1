package cmc

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGrayscale(t *testing.T) {
	t.Parallel()
	src := image.NewRGBA(image.Rect(10, 10, 50, 30))
	for y := 10; y < 30; y++ {
		for x := 10; x < 50; x++ {
			src.Set(x, y, color.RGBA{R: 200, G: 200, B: 200, A: 255})
		}
	}

	full := Grayscale(src, 1)
	assert.Equal(t, image.Rect(0, 0, 40, 20), full.Bounds())
	assert.Equal(t, uint8(200), full.GrayAt(5, 5).Y)

	half := Grayscale(src, 2)
	assert.Equal(t, image.Rect(0, 0, 20, 10), half.Bounds())
	assert.InDelta(t, 200, int(half.GrayAt(10, 5).Y), 1)

	tiny := Grayscale(image.NewGray(image.Rect(0, 0, 3, 3)), 8)
	assert.Equal(t, image.Rect(0, 0, 1, 1), tiny.Bounds())
}
