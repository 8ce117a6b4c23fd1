// Package bbox defines the axis-aligned image box shared by the tracking
// packages and the conversions between its three encodings: top-left/size
// (TLWH), corners (TLBR) and centre/aspect/height (XYAH).
package bbox

import "math"

// Box is an axis-aligned box in pixel coordinates, stored as top-left corner
// plus width and height.
type Box struct {
	X, Y float64 // top-left
	W, H float64
}

// FromTLBR builds a box from its top-left and bottom-right corners.
func FromTLBR(x1, y1, x2, y2 float64) Box {
	return Box{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}
}

// FromXYAH builds a box from centre x, centre y, aspect ratio (w/h) and height.
func FromXYAH(v [4]float64) Box {
	w := v[2] * v[3]
	return Box{X: v[0] - w/2, Y: v[1] - v[3]/2, W: w, H: v[3]}
}

// XYAH returns centre x, centre y, aspect ratio w/h and height.
func (b Box) XYAH() [4]float64 {
	return [4]float64{b.X + b.W/2, b.Y + b.H/2, b.W / b.H, b.H}
}

// TLBR returns the corner form x1, y1, x2, y2.
func (b Box) TLBR() [4]float64 {
	return [4]float64{b.X, b.Y, b.X + b.W, b.Y + b.H}
}

// Center returns the box centre.
func (b Box) Center() (float64, float64) {
	return b.X + b.W/2, b.Y + b.H/2
}

// Area returns W*H.
func (b Box) Area() float64 {
	return b.W * b.H
}

// Valid reports whether every coordinate is finite and the box has positive
// width and height.
func (b Box) Valid() bool {
	for _, v := range [4]float64{b.X, b.Y, b.W, b.H} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.W > 0 && b.H > 0
}

// IoU returns the intersection-over-union of a and b in [0,1]. Degenerate
// boxes have IoU 0 with everything.
func IoU(a, b Box) float64 {
	ix1 := math.Max(a.X, b.X)
	iy1 := math.Max(a.Y, b.Y)
	ix2 := math.Min(a.X+a.W, b.X+b.W)
	iy2 := math.Min(a.Y+a.H, b.Y+b.H)
	iw, ih := ix2-ix1, iy2-iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
