package association

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solvers() []Solver { return []Solver{JonkerVolgenant{}, Munkres{}} }

func TestNewSolver(t *testing.T) {
	t.Parallel()
	s, err := NewSolver("jv")
	require.NoError(t, err)
	assert.Equal(t, "jv", s.Name())

	s, err = NewSolver("munkres")
	require.NoError(t, err)
	assert.Equal(t, "munkres", s.Name())

	_, err = NewSolver("greedy")
	assert.Error(t, err)
}

func TestSolve(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cost    [][]float64
		cols    int
		maxCost float64
		want    Result
	}{
		{
			name:    "nothing at all",
			cost:    nil,
			maxCost: 0.8,
			want:    Result{},
		},
		{
			name:    "no tracks leaves every detection unmatched",
			cost:    nil,
			cols:    3,
			maxCost: 0.8,
			want:    Result{UnmatchedCols: []int{0, 1, 2}},
		},
		{
			name:    "no tracks, zero-row matrix",
			cost:    [][]float64{},
			cols:    1,
			maxCost: 0.8,
			want:    Result{UnmatchedCols: []int{0}},
		},
		{
			name:    "no detections",
			cost:    [][]float64{{}, {}},
			maxCost: 0.8,
			want:    Result{UnmatchedRows: []int{0, 1}},
		},
		{
			name:    "square optimal beats greedy",
			cols:    3,
			cost:    [][]float64{{0.1, 0.2, 0.3}, {0.4, 0.4, 0.6}, {0.9, 0.8, 0.5}},
			maxCost: 1,
			want:    Result{Matches: [][2]int{{0, 0}, {1, 1}, {2, 2}}},
		},
		{
			name:    "threshold leaves pair unmatched",
			cols:    2,
			cost:    [][]float64{{0.1, 0.95}, {0.95, 0.9}},
			maxCost: 0.8,
			want:    Result{Matches: [][2]int{{0, 0}}, UnmatchedRows: []int{1}, UnmatchedCols: []int{1}},
		},
		{
			name:    "threshold is inclusive",
			cols:    1,
			cost:    [][]float64{{0.8}},
			maxCost: 0.8,
			want:    Result{Matches: [][2]int{{0, 0}}},
		},
		{
			name: "not forced into an expensive pair to maximise matches",
			cols: 2,
			// Matching both rows would need (0,1)+(1,0) = 0.75+0.75; a single
			// cheap pair plus two unmatched is cheaper overall.
			cost:    [][]float64{{0.05, 0.75}, {0.75, 0.95}},
			maxCost: 0.8,
			want:    Result{Matches: [][2]int{{0, 0}}, UnmatchedRows: []int{1}, UnmatchedCols: []int{1}},
		},
		{
			name:    "more detections than tracks",
			cols:    3,
			cost:    [][]float64{{0.9, 0.2, 0.7}},
			maxCost: 0.8,
			want:    Result{Matches: [][2]int{{0, 1}}, UnmatchedCols: []int{0, 2}},
		},
		{
			name:    "more tracks than detections",
			cols:    1,
			cost:    [][]float64{{0.5}, {0.1}, {0.3}},
			maxCost: 0.8,
			want:    Result{Matches: [][2]int{{1, 0}}, UnmatchedRows: []int{0, 2}},
		},
		{
			name:    "tie goes to the earlier row",
			cols:    1,
			cost:    [][]float64{{0.3}, {0.3}},
			maxCost: 0.8,
			want:    Result{Matches: [][2]int{{0, 0}}, UnmatchedRows: []int{1}},
		},
	}

	for _, s := range solvers() {
		for _, tt := range tests {
			t.Run(s.Name()+"/"+tt.name, func(t *testing.T) {
				got := s.Solve(tt.cost, tt.cols, tt.maxCost)
				if diff := cmp.Diff(tt.want, got); diff != "" {
					t.Errorf("Solve() mismatch (-want +got):\n%s", diff)
				}
			})
		}
	}
}

func TestSolve_Panics(t *testing.T) {
	t.Parallel()
	for _, s := range solvers() {
		assert.Panics(t, func() { s.Solve([][]float64{{0.1, 0.2}, {0.3}}, 2, 1) }, s.Name())
		assert.Panics(t, func() { s.Solve([][]float64{{math.NaN()}}, 1, 1) }, s.Name())
		assert.Panics(t, func() { s.Solve([][]float64{{0.1}}, 2, 1) }, s.Name())
	}
}

func totalCost(cost [][]float64, r Result, maxCost float64) float64 {
	var sum float64
	for _, m := range r.Matches {
		sum += cost[m[0]][m[1]]
	}
	// Each unmatched side costs half the threshold.
	sum += float64(len(r.UnmatchedRows)+len(r.UnmatchedCols)) * maxCost / 2
	return sum
}

// Both solvers must agree on the optimal objective for random matrices.
func TestSolve_SolversAgree(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		n, m := 1+rng.Intn(7), 1+rng.Intn(7)
		cost := make([][]float64, n)
		for i := range cost {
			cost[i] = make([]float64, m)
			for j := range cost[i] {
				cost[i][j] = rng.Float64()
			}
		}
		jv := JonkerVolgenant{}.Solve(cost, m, 0.7)
		mk := Munkres{}.Solve(cost, m, 0.7)
		assert.InDelta(t, totalCost(cost, jv, 0.7), totalCost(cost, mk, 0.7), 1e-6, "trial %d", trial)

		seenCols := map[int]bool{}
		for _, p := range jv.Matches {
			assert.LessOrEqual(t, cost[p[0]][p[1]], 0.7)
			assert.False(t, seenCols[p[1]], "column assigned twice")
			seenCols[p[1]] = true
		}
		assert.Equal(t, n, len(jv.Matches)+len(jv.UnmatchedRows))
		assert.Equal(t, m, len(jv.Matches)+len(jv.UnmatchedCols))
	}
}
