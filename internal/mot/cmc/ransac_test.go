package cmc

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func synthPoints(n int, truth Transform, rng *rand.Rand) ([]Point, []Point) {
	prev := make([]Point, n)
	curr := make([]Point, n)
	for i := range prev {
		prev[i] = Point{X: rng.Float64() * 640, Y: rng.Float64() * 480}
		x, y := truth.ApplyPoint(prev[i].X, prev[i].Y)
		curr[i] = Point{X: x, Y: y}
	}
	return prev, curr
}

func assertTransformNear(t *testing.T, want, got Transform, tol float64) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], tol, "element %d", i)
	}
}

func TestFitSimilarityLeastSquares_Exact(t *testing.T) {
	t.Parallel()
	truth := Similarity(1.02, 0.03, 12, -7)
	prev, curr := synthPoints(20, truth, rand.New(rand.NewSource(3)))
	got, err := FitSimilarityLeastSquares(prev, curr)
	require.NoError(t, err)
	assertTransformNear(t, truth, got, 1e-8)
}

func TestFitSimilarityLeastSquares_Degenerate(t *testing.T) {
	t.Parallel()
	_, err := FitSimilarityLeastSquares([]Point{{1, 1}}, []Point{{2, 2}})
	assert.ErrorIs(t, err, ErrInsufficientMatches)
}

func TestFitSimilarityRANSAC_RejectsOutliers(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(7))
	truth := Similarity(1.0, 0.01, 8, 3)
	prev, curr := synthPoints(80, truth, rng)
	// Corrupt a quarter of the matches (e.g. points on moving objects).
	for i := 0; i < 20; i++ {
		curr[i].X += 40 + rng.Float64()*50
		curr[i].Y -= 30 + rng.Float64()*50
	}

	got, mask, err := FitSimilarityRANSAC(prev, curr, DefaultRANSACOptions)
	require.NoError(t, err)
	assertTransformNear(t, truth, got, 1e-6)

	inliers := 0
	for i, in := range mask {
		if in {
			inliers++
		}
		if i < 20 {
			assert.False(t, in, "outlier %d accepted", i)
		}
	}
	assert.Equal(t, 60, inliers)
}

func TestFitSimilarityRANSAC_Deterministic(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(11))
	prev, curr := synthPoints(30, Translation(2, 2), rng)
	for i := 0; i < 10; i++ {
		curr[i].X += rng.Float64() * 100
	}
	a, _, errA := FitSimilarityRANSAC(prev, curr, DefaultRANSACOptions)
	b, _, errB := FitSimilarityRANSAC(prev, curr, DefaultRANSACOptions)
	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, a, b)
}

func TestFitSimilarityRANSAC_TooFew(t *testing.T) {
	t.Parallel()
	_, _, err := FitSimilarityRANSAC([]Point{{0, 0}, {1, 1}}, []Point{{0, 0}, {1, 1}}, DefaultRANSACOptions)
	assert.ErrorIs(t, err, ErrInsufficientMatches)

	_, _, err = FitSimilarityRANSAC([]Point{{0, 0}}, nil, DefaultRANSACOptions)
	assert.Error(t, err)
}

func TestAdaptiveIters(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 1, adaptiveIters(1, 0.99))
	assert.Equal(t, math.MaxInt32, adaptiveIters(0, 0.99))
	// w=0.5: log(0.01)/log(0.75) ≈ 16.0
	assert.Equal(t, 17, adaptiveIters(0.5, 0.99))
}
