package cmc

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// RANSACOptions controls FitSimilarityRANSAC.
type RANSACOptions struct {
	ReprojThresh float64 // pixels
	MaxIters     int
	Confidence   float64
	MinInliers   int
	Seed         int64
}

// DefaultRANSACOptions mirrors the tracker defaults.
var DefaultRANSACOptions = RANSACOptions{ReprojThresh: 3, MaxIters: 500, Confidence: 0.99, MinInliers: 5, Seed: 1}

// FitSimilarityRANSAC robustly fits a 4-DOF similarity (rotation, uniform
// scale, translation) mapping prev[i] to curr[i]. It returns the transform
// refitted by least squares over the best consensus set, and that set's mask.
func FitSimilarityRANSAC(prev, curr []Point, opts RANSACOptions) (Transform, []bool, error) {
	n := len(prev)
	if n != len(curr) {
		return Identity(), nil, fmt.Errorf("point count mismatch: %d vs %d", n, len(curr))
	}
	minInliers := max(opts.MinInliers, 2)
	if n < minInliers {
		return Identity(), nil, fmt.Errorf("%w: %d points", ErrInsufficientMatches, n)
	}
	thresh2 := opts.ReprojThresh * opts.ReprojThresh
	rng := rand.New(rand.NewSource(opts.Seed))

	bestCount := 0
	var bestMask []bool
	mask := make([]bool, n)
	iters := opts.MaxIters
	for it := 0; it < iters; it++ {
		i := rng.Intn(n)
		j := rng.Intn(n - 1)
		if j >= i {
			j++
		}
		t, ok := similarityFrom2(prev[i], prev[j], curr[i], curr[j])
		if !ok {
			continue
		}
		count := 0
		for k := range prev {
			mask[k] = reprojErr2(t, prev[k], curr[k]) <= thresh2
			if mask[k] {
				count++
			}
		}
		if count > bestCount {
			bestCount = count
			bestMask = append(bestMask[:0], mask...)
			if need := adaptiveIters(float64(count)/float64(n), opts.Confidence); need < iters {
				iters = max(need, it+1)
			}
		}
	}
	if bestCount < minInliers {
		return Identity(), nil, fmt.Errorf("%w: %d inliers", ErrInsufficientMatches, bestCount)
	}

	var ip, ic []Point
	for k, in := range bestMask {
		if in {
			ip = append(ip, prev[k])
			ic = append(ic, curr[k])
		}
	}
	t, err := FitSimilarityLeastSquares(ip, ic)
	if err != nil {
		return Identity(), nil, err
	}
	return t, bestMask, nil
}

// adaptiveIters returns the iterations needed to draw an all-inlier 2-point
// sample with the given confidence.
func adaptiveIters(inlierRatio, confidence float64) int {
	w2 := inlierRatio * inlierRatio
	if w2 >= 1 {
		return 1
	}
	if w2 <= 0 {
		return math.MaxInt32
	}
	return int(math.Ceil(math.Log(1-confidence) / math.Log(1-w2)))
}

func reprojErr2(t Transform, p, c Point) float64 {
	x, y := t.ApplyPoint(p.X, p.Y)
	dx, dy := x-c.X, y-c.Y
	return dx*dx + dy*dy
}

// similarityFrom2 solves x' = p·x − q·y + tx, y' = q·x + p·y + ty exactly from
// two correspondences.
func similarityFrom2(p1, p2, c1, c2 Point) (Transform, bool) {
	dx, dy := p2.X-p1.X, p2.Y-p1.Y
	ux, uy := c2.X-c1.X, c2.Y-c1.Y
	d := dx*dx + dy*dy
	if d < 1e-12 {
		return Identity(), false
	}
	p := (ux*dx + uy*dy) / d
	q := (uy*dx - ux*dy) / d
	tx := c1.X - (p*p1.X - q*p1.Y)
	ty := c1.Y - (q*p1.X + p*p1.Y)
	return Transform{p, -q, tx, q, p, ty}, true
}

// FitSimilarityLeastSquares fits a similarity to all correspondences by
// solving the overdetermined linear system with a QR factorisation.
func FitSimilarityLeastSquares(prev, curr []Point) (Transform, error) {
	n := len(prev)
	if n < 2 || n != len(curr) {
		return Identity(), fmt.Errorf("%w: need at least 2 paired points, got %d", ErrInsufficientMatches, n)
	}
	a := mat.NewDense(2*n, 4, nil)
	b := mat.NewDense(2*n, 1, nil)
	for i := range prev {
		x, y := prev[i].X, prev[i].Y
		a.SetRow(2*i, []float64{x, -y, 1, 0})
		a.SetRow(2*i+1, []float64{y, x, 0, 1})
		b.Set(2*i, 0, curr[i].X)
		b.Set(2*i+1, 0, curr[i].Y)
	}
	var qr mat.QR
	qr.Factorize(a)
	var sol mat.Dense
	if err := qr.SolveTo(&sol, false, b); err != nil {
		return Identity(), fmt.Errorf("least squares refit: %w", err)
	}
	p, q := sol.At(0, 0), sol.At(1, 0)
	return Transform{p, -q, sol.At(2, 0), q, p, sol.At(3, 0)}, nil
}
