package cmc

import (
	"math"

	"github.com/banshee-data/motrack/internal/mot/bbox"
)

// Transform is a 2x3 affine camera motion, row-major:
//
//	[a b tx]
//	[c d ty]
//
// mapping a point in the previous frame to its position in the current one.
type Transform [6]float64

// Identity returns the no-motion transform.
func Identity() Transform {
	return Transform{1, 0, 0, 0, 1, 0}
}

// Translation returns a pure shift.
func Translation(tx, ty float64) Transform {
	return Transform{1, 0, tx, 0, 1, ty}
}

// Similarity returns scale·rotation(theta) followed by a shift.
func Similarity(scale, theta, tx, ty float64) Transform {
	s, c := math.Sincos(theta)
	return Transform{scale * c, -scale * s, tx, scale * s, scale * c, ty}
}

// IsIdentity reports whether t is exactly the identity.
func (t Transform) IsIdentity() bool {
	return t == Identity()
}

// Linear returns the 2x2 part [a b c d].
func (t Transform) Linear() [4]float64 {
	return [4]float64{t[0], t[1], t[3], t[4]}
}

// Offset returns the translation (tx, ty).
func (t Transform) Offset() [2]float64 {
	return [2]float64{t[2], t[5]}
}

// ScaleTranslation returns t with its translation multiplied by f. Used to
// bring a transform estimated on a downscaled image back to full resolution.
func (t Transform) ScaleTranslation(f float64) Transform {
	t[2] *= f
	t[5] *= f
	return t
}

// ApplyPoint maps (x, y) through the full affine.
func (t Transform) ApplyPoint(x, y float64) (float64, float64) {
	return t[0]*x + t[1]*y + t[2], t[3]*x + t[4]*y + t[5]
}

// Apply warps a box: its centre goes through the full affine and its extent
// through the absolute linear part, giving the axis-aligned bound of the
// transformed box. The identity returns b unchanged.
func (t Transform) Apply(b bbox.Box) bbox.Box {
	if t.IsIdentity() {
		return b
	}
	cx, cy := b.Center()
	nx, ny := t.ApplyPoint(cx, cy)
	w := math.Abs(t[0])*b.W + math.Abs(t[1])*b.H
	h := math.Abs(t[3])*b.W + math.Abs(t[4])*b.H
	return bbox.Box{X: nx - w/2, Y: ny - h/2, W: w, H: h}
}
