package association

import (
	"math"

	"gonum.org/v1/gonum/blas/blas32"

	"github.com/banshee-data/motrack/internal/mot/bbox"
)

// Candidate is one side of a cost matrix: a track's predicted box or a
// detection. Embedding is nil when appearance is unavailable.
type Candidate struct {
	Box       bbox.Box
	Score     float64
	Embedding []float32
}

func newMatrix(rows, cols int, fill float64) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
		if fill != 0 {
			for j := range m[i] {
				m[i][j] = fill
			}
		}
	}
	return m
}

// IoUDistance returns 1−IoU for every track/detection pair.
func IoUDistance(tracks, dets []Candidate) [][]float64 {
	m := newMatrix(len(tracks), len(dets), 0)
	for i, t := range tracks {
		for j, d := range dets {
			m[i][j] = 1 - bbox.IoU(t.Box, d.Box)
		}
	}
	return m
}

// FuseScore folds detection confidence into a cost matrix in place:
// cost' = 1 − (1−cost)·score. Low-confidence detections look further away.
func FuseScore(cost [][]float64, dets []Candidate) [][]float64 {
	for i := range cost {
		for j := range cost[i] {
			cost[i][j] = 1 - (1-cost[i][j])*dets[j].Score
		}
	}
	return cost
}

// EmbeddingDistance returns the cosine distance halved into [0,1]. Pairs
// where either side lacks an embedding get 1.
func EmbeddingDistance(tracks, dets []Candidate) [][]float64 {
	m := newMatrix(len(tracks), len(dets), 1)
	for i, t := range tracks {
		if len(t.Embedding) == 0 {
			continue
		}
		for j, d := range dets {
			if len(d.Embedding) != len(t.Embedding) {
				continue
			}
			m[i][j] = clamp01((1 - cosine(t.Embedding, d.Embedding)) / 2)
		}
	}
	return m
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func vec(v []float32) blas32.Vector {
	return blas32.Vector{N: len(v), Inc: 1, Data: v}
}

func cosine(a, b []float32) float64 {
	na := blas32.Nrm2(vec(a))
	nb := blas32.Nrm2(vec(b))
	if na == 0 || nb == 0 {
		return 0
	}
	return float64(blas32.Dot(vec(a), vec(b))) / (float64(na) * float64(nb))
}

// Normalize returns a unit-length copy of v, or nil if v is empty, zero or
// contains non-finite values.
func Normalize(v []float32) []float32 {
	if len(v) == 0 {
		return nil
	}
	for _, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return nil
		}
	}
	n := blas32.Nrm2(vec(v))
	if n == 0 {
		return nil
	}
	out := append([]float32(nil), v...)
	blas32.Scal(1/n, vec(out))
	return out
}

// SmoothEmbedding blends a new observation into a running appearance
// feature: alpha·prev + (1−alpha)·next, renormalised. A nil prev adopts next.
func SmoothEmbedding(prev, next []float32, alpha float64) []float32 {
	next = Normalize(next)
	if next == nil {
		return prev
	}
	if len(prev) != len(next) {
		return next
	}
	out := append([]float32(nil), next...)
	blas32.Scal(float32(1-alpha), vec(out))
	blas32.Axpy(float32(alpha), vec(prev), vec(out))
	if s := Normalize(out); s != nil {
		return s
	}
	return next
}
