package association

import (
	"fmt"
	"math"

	hg "github.com/charles-haynes/munkres"
)

// TieBreakEpsilon is added per row index to every real pair so that, among
// equally cheap assignments, earlier rows (older tracks) win.
const TieBreakEpsilon = 1e-9

// forbiddenCost marks augmented cells that must never be chosen. It only has
// to exceed any feasible total, and stays small enough that potentials keep
// full precision on real costs.
const forbiddenCost = 1e6

// Result is the outcome of an assignment. Matches holds (row, col) pairs in
// ascending row order; unmatched indices are ascending.
type Result struct {
	Matches       [][2]int
	UnmatchedRows []int
	UnmatchedCols []int
}

// Solver finds a minimum-cost assignment in which no matched pair costs more
// than maxCost. cols is the detection count and is passed separately because
// a matrix with no rows carries no width. A malformed matrix (a row that is
// not cols wide, or NaN) panics.
type Solver interface {
	Solve(cost [][]float64, cols int, maxCost float64) Result
	Name() string
}

// NewSolver returns the solver registered under name ("jv" or "munkres").
func NewSolver(name string) (Solver, error) {
	switch name {
	case "", "jv":
		return JonkerVolgenant{}, nil
	case "munkres":
		return Munkres{}, nil
	}
	return nil, fmt.Errorf("unknown assignment solver %q", name)
}

// validate panics unless every row of cost is m wide and NaN-free.
func validate(cost [][]float64, m int) {
	if m < 0 {
		panic(fmt.Sprintf("association: negative column count %d", m))
	}
	for i, row := range cost {
		if len(row) != m {
			panic(fmt.Sprintf("association: ragged cost matrix: row %d has %d columns, want %d", i, len(row), m))
		}
		for j, v := range row {
			if math.IsNaN(v) {
				panic(fmt.Sprintf("association: NaN cost at (%d,%d)", i, j))
			}
		}
	}
}

// augment builds the (n+m)² matrix in which row i < n may either take a real
// column j < m or its private "unmatched" column m+i, and each real column j
// may instead be absorbed by dummy row n+j. Leaving a pair unmatched costs
// maxCost in total, so a real pair is only chosen when it is cheaper.
func augment(cost [][]float64, n, m int, maxCost float64) [][]float64 {
	dim := n + m
	half := (maxCost + float64(n)*TieBreakEpsilon) / 2
	a := newMatrix(dim, dim, forbiddenCost)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			if cost[i][j] <= maxCost {
				a[i][j] = cost[i][j] + float64(i)*TieBreakEpsilon
			}
		}
		a[i][m+i] = half
	}
	for j := 0; j < m; j++ {
		a[n+j][j] = half
		for k := 0; k < n; k++ {
			a[n+j][m+k] = 0
		}
	}
	return a
}

// collect converts a row→column assignment over the augmented matrix back
// into a Result on the original n×m problem.
func collect(cost [][]float64, rowAssign []int, n, m int, maxCost float64) Result {
	var res Result
	colUsed := make([]bool, m)
	for i := 0; i < n; i++ {
		j := -1
		if i < len(rowAssign) {
			j = rowAssign[i]
		}
		if j >= 0 && j < m && cost[i][j] <= maxCost {
			res.Matches = append(res.Matches, [2]int{i, j})
			colUsed[j] = true
			continue
		}
		res.UnmatchedRows = append(res.UnmatchedRows, i)
	}
	for j := 0; j < m; j++ {
		if !colUsed[j] {
			res.UnmatchedCols = append(res.UnmatchedCols, j)
		}
	}
	return res
}

func trivial(n, m int) Result {
	var res Result
	for i := 0; i < n; i++ {
		res.UnmatchedRows = append(res.UnmatchedRows, i)
	}
	for j := 0; j < m; j++ {
		res.UnmatchedCols = append(res.UnmatchedCols, j)
	}
	return res
}

// JonkerVolgenant solves the assignment with the Kuhn–Munkres shortest
// augmenting path method using row and column potentials, O(n³).
type JonkerVolgenant struct{}

// Name implements Solver.
func (JonkerVolgenant) Name() string { return "jv" }

// Solve implements Solver.
func (JonkerVolgenant) Solve(cost [][]float64, m int, maxCost float64) Result {
	n := len(cost)
	validate(cost, m)
	if n == 0 || m == 0 {
		return trivial(n, m)
	}
	return collect(cost, solveSquare(augment(cost, n, m, maxCost)), n, m, maxCost)
}

// solveSquare returns rowAssign[i] = column for a square matrix.
func solveSquare(c [][]float64) []int {
	dim := len(c)
	const inf = math.MaxFloat64 / 2

	// 1-indexed; column 0 is the virtual start of each augmenting path.
	u := make([]float64, dim+1) // row potentials
	v := make([]float64, dim+1) // column potentials
	p := make([]int, dim+1)     // p[j] = row assigned to column j
	way := make([]int, dim+1)   // previous column on the path
	minv := make([]float64, dim+1)
	used := make([]bool, dim+1)

	for i := 1; i <= dim; i++ {
		p[0] = i
		j0 := 0
		for j := 1; j <= dim; j++ {
			minv[j] = inf
			used[j] = false
		}

		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1

			for j := 1; j <= dim; j++ {
				if used[j] {
					continue
				}
				cur := c[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			if j1 < 0 {
				break
			}

			for j := 0; j <= dim; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}

			j0 = j1
			if p[j0] == 0 {
				break
			}
		}

		for j0 != 0 {
			p[j0] = p[way[j0]]
			j0 = way[j0]
		}
	}

	rowAssign := make([]int, dim)
	for i := range rowAssign {
		rowAssign[i] = -1
	}
	for j := 1; j <= dim; j++ {
		if p[j] > 0 {
			rowAssign[p[j]-1] = j - 1
		}
	}
	return rowAssign
}

// Munkres delegates the augmented problem to github.com/charles-haynes/munkres.
type Munkres struct{}

// Name implements Solver.
func (Munkres) Name() string { return "munkres" }

// Solve implements Solver.
func (Munkres) Solve(cost [][]float64, m int, maxCost float64) Result {
	n := len(cost)
	validate(cost, m)
	if n == 0 || m == 0 {
		return trivial(n, m)
	}
	ha, err := hg.NewHungarianAlgorithm(augment(cost, n, m, maxCost))
	if err != nil {
		// Only reachable for a non-rectangular matrix, which augment never builds.
		panic(fmt.Sprintf("association: munkres: %v", err))
	}
	return collect(cost, ha.Execute(), n, m, maxCost)
}
