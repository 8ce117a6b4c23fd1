package cmc

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Point is an image coordinate.
type Point struct{ X, Y float64 }

// Correspondence is one keypoint matched between frames, with the descriptor
// distances of its best and second-best candidates for the ratio test.
// SecondDistance is +Inf when only one candidate was found.
type Correspondence struct {
	Prev, Curr     Point
	Distance       float64
	SecondDistance float64
}

// MatchFilter prunes raw correspondences before robust fitting.
type MatchFilter struct {
	// Ratio is Lowe's ratio: keep a match only if Distance < Ratio·SecondDistance.
	Ratio float64
	// Border drops keypoints within this fraction of the frame edge.
	Border float64
	// MaxDisplacement drops matches that move further than this fraction of
	// the frame size along either axis.
	MaxDisplacement float64
	// Sigma drops matches whose displacement is more than Sigma standard
	// deviations from the mean displacement along either axis.
	Sigma float64
}

// DefaultMatchFilter holds the values used by the feature-based methods.
var DefaultMatchFilter = MatchFilter{Ratio: 0.9, Border: 0.02, MaxDisplacement: 0.25, Sigma: 2.5}

// Apply returns the correspondences that pass every test, in input order.
func (f MatchFilter) Apply(cs []Correspondence, width, height float64) []Correspondence {
	minX, maxX := f.Border*width, (1-f.Border)*width
	minY, maxY := f.Border*height, (1-f.Border)*height
	inside := func(p Point) bool {
		return p.X >= minX && p.X <= maxX && p.Y >= minY && p.Y <= maxY
	}
	maxDX, maxDY := f.MaxDisplacement*width, f.MaxDisplacement*height

	kept := make([]Correspondence, 0, len(cs))
	for _, c := range cs {
		if f.Ratio > 0 && !(c.Distance < f.Ratio*c.SecondDistance) {
			continue
		}
		if !inside(c.Prev) || !inside(c.Curr) {
			continue
		}
		dx, dy := c.Curr.X-c.Prev.X, c.Curr.Y-c.Prev.Y
		if math.Abs(dx) >= maxDX || math.Abs(dy) >= maxDY {
			continue
		}
		kept = append(kept, c)
	}
	if f.Sigma <= 0 || len(kept) < 3 {
		return kept
	}

	dxs := make([]float64, len(kept))
	dys := make([]float64, len(kept))
	for i, c := range kept {
		dxs[i] = c.Curr.X - c.Prev.X
		dys[i] = c.Curr.Y - c.Prev.Y
	}
	mx, sx := stat.MeanStdDev(dxs, nil)
	my, sy := stat.MeanStdDev(dys, nil)

	out := kept[:0]
	for i, c := range kept {
		if math.Abs(dxs[i]-mx) <= f.Sigma*sx && math.Abs(dys[i]-my) <= f.Sigma*sy {
			out = append(out, c)
		}
	}
	return out
}
