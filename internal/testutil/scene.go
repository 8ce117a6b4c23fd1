package testutil

import (
	"image"
	"image/color"
	"math/rand"

	"github.com/banshee-data/motrack/internal/mot/bbox"
)

// Object is a synthetic target moving at constant velocity.
type Object struct {
	ID         int
	Start      bbox.Box
	VX, VY     float64 // pixels per frame
	Score      float64
	FirstFrame int // 1-based, inclusive
	LastFrame  int // inclusive; 0 means forever
	// Hidden lists frames on which the object produces no detection.
	Hidden map[int]bool
}

// SceneDetection is one object observed on one frame.
type SceneDetection struct {
	ObjectID int
	Box      bbox.Box
	Score    float64
}

// Scene is a set of synthetic objects.
type Scene struct {
	Objects []Object
}

// Detections returns the objects visible on frame (1-based), in object order.
func (s Scene) Detections(frame int) []SceneDetection {
	var out []SceneDetection
	for _, o := range s.Objects {
		if frame < o.FirstFrame || (o.LastFrame > 0 && frame > o.LastFrame) || o.Hidden[frame] {
			continue
		}
		dt := float64(frame - o.FirstFrame)
		b := o.Start
		b.X += o.VX * dt
		b.Y += o.VY * dt
		score := o.Score
		if score == 0 {
			score = 0.9
		}
		out = append(out, SceneDetection{ObjectID: o.ID, Box: b, Score: score})
	}
	return out
}

// TexturedImage renders a deterministic field of random grey rectangles.
// The whole pattern is shifted by (dx, dy) pixels, so two calls differing
// only in shift simulate a panning camera.
func TexturedImage(w, h int, seed int64, dx, dy int) *image.Gray {
	type rect struct {
		r image.Rectangle
		v uint8
	}
	rng := rand.New(rand.NewSource(seed))
	rects := make([]rect, 0, 400)
	for i := 0; i < 400; i++ {
		x, y := rng.Intn(w+80)-40, rng.Intn(h+80)-40
		rw, rh := 6+rng.Intn(30), 6+rng.Intn(30)
		rects = append(rects, rect{image.Rect(x, y, x+rw, y+rh), uint8(rng.Intn(256))})
	}

	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := ((x-dx)*7 + (y-dy)*13) % 32
			if v < 0 {
				v += 32
			}
			img.SetGray(x, y, color.Gray{Y: uint8(v)})
		}
	}
	for _, r := range rects {
		sr := r.r.Add(image.Pt(dx, dy)).Intersect(img.Bounds())
		for y := sr.Min.Y; y < sr.Max.Y; y++ {
			for x := sr.Min.X; x < sr.Max.X; x++ {
				img.SetGray(x, y, color.Gray{Y: r.v})
			}
		}
	}
	return img
}
