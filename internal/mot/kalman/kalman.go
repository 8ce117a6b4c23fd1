// Package kalman implements the constant-velocity Kalman filter used to
// predict where each track's box will appear in the next frame.
//
// The state is eight-dimensional: box centre (cx, cy), aspect ratio a = w/h,
// height h, and the velocity of each. Process and measurement noise scale
// with the box height so that large, near objects are allowed to move more
// pixels per frame than small, distant ones.
//
// All operations take a State by value and return a new State; a Filter holds
// only read-only matrices and is safe for concurrent use.
package kalman

import (
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/motrack/internal/mot/bbox"
)

const (
	ndim = 4
	sdim = 2 * ndim

	// DefaultStdWeightPosition is the position noise per unit of box height.
	DefaultStdWeightPosition = 1.0 / 20
	// DefaultStdWeightVelocity is the velocity noise per unit of box height.
	DefaultStdWeightVelocity = 1.0 / 160
)

// Measurement is an observed box in XYAH form.
type Measurement [ndim]float64

// State is a filter state: mean and row-major covariance.
type State struct {
	Mean [sdim]float64
	Cov  [sdim * sdim]float64
}

// Filter holds the model matrices and noise weights.
type Filter struct {
	stdWeightPosition float64
	stdWeightVelocity float64
	motion            *mat.Dense // F, 8x8
}

// NewFilter builds a filter. Non-positive weights select the defaults.
func NewFilter(stdWeightPosition, stdWeightVelocity float64) *Filter {
	if stdWeightPosition <= 0 {
		stdWeightPosition = DefaultStdWeightPosition
	}
	if stdWeightVelocity <= 0 {
		stdWeightVelocity = DefaultStdWeightVelocity
	}
	motion := mat.NewDense(sdim, sdim, nil)
	for i := 0; i < sdim; i++ {
		motion.Set(i, i, 1)
	}
	for i := 0; i < ndim; i++ {
		motion.Set(i, ndim+i, 1) // dt = 1 frame
	}
	return &Filter{
		stdWeightPosition: stdWeightPosition,
		stdWeightVelocity: stdWeightVelocity,
		motion:            motion,
	}
}

// Initiate creates a state from an unassociated measurement. Velocities start
// at zero with large uncertainty.
func (f *Filter) Initiate(z Measurement) State {
	var s State
	copy(s.Mean[:ndim], z[:])

	h := z[3]
	std := [sdim]float64{
		2 * f.stdWeightPosition * h,
		2 * f.stdWeightPosition * h,
		1e-2,
		2 * f.stdWeightPosition * h,
		10 * f.stdWeightVelocity * h,
		10 * f.stdWeightVelocity * h,
		1e-5,
		10 * f.stdWeightVelocity * h,
	}
	for i, v := range std {
		s.Cov[i*sdim+i] = v * v
	}
	return s
}

// Predict advances the state by one frame.
func (f *Filter) Predict(s State) State {
	h := s.Mean[3]
	std := [sdim]float64{
		f.stdWeightPosition * h,
		f.stdWeightPosition * h,
		1e-2,
		f.stdWeightPosition * h,
		f.stdWeightVelocity * h,
		f.stdWeightVelocity * h,
		1e-5,
		f.stdWeightVelocity * h,
	}

	var out State
	for i := 0; i < ndim; i++ {
		out.Mean[i] = s.Mean[i] + s.Mean[ndim+i]
		out.Mean[ndim+i] = s.Mean[ndim+i]
	}

	cov := denseCov(&s)
	var fp, fpft mat.Dense
	fp.Mul(f.motion, cov)
	fpft.Mul(&fp, f.motion.T())
	for i, v := range std {
		fpft.Set(i, i, fpft.At(i, i)+v*v)
	}
	storeCov(&out, &fpft)
	return out
}

// Project maps the state into measurement space, returning the projected
// mean and the innovation covariance (4x4, row-major).
func (f *Filter) Project(s State) (Measurement, [ndim * ndim]float64) {
	var mean Measurement
	copy(mean[:], s.Mean[:ndim])

	h := s.Mean[3]
	std := [ndim]float64{
		f.stdWeightPosition * h,
		f.stdWeightPosition * h,
		1e-1,
		f.stdWeightPosition * h,
	}
	var cov [ndim * ndim]float64
	for r := 0; r < ndim; r++ {
		for c := 0; c < ndim; c++ {
			cov[r*ndim+c] = s.Cov[r*sdim+c]
		}
		cov[r*ndim+r] += std[r] * std[r]
	}
	return mean, cov
}

// Update corrects the state with an associated measurement. If the projected
// covariance is not positive definite the prior is returned unchanged.
func (f *Filter) Update(s State, z Measurement) State {
	pmean, pcov := f.Project(s)

	sym := mat.NewSymDense(ndim, nil)
	for r := 0; r < ndim; r++ {
		for c := r; c < ndim; c++ {
			sym.SetSym(r, c, 0.5*(pcov[r*ndim+c]+pcov[c*ndim+r]))
		}
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return s
	}

	// P Hᵀ is the first four columns of P.
	cov := denseCov(&s)
	pht := cov.Slice(0, sdim, 0, ndim)

	// S Kᵀ = H P  =>  Kᵀ = S⁻¹ (P Hᵀ)ᵀ
	var kt mat.Dense
	if err := chol.SolveTo(&kt, pht.T()); err != nil {
		return s
	}

	var innovation [ndim]float64
	for i := range innovation {
		innovation[i] = z[i] - pmean[i]
	}
	y := mat.NewVecDense(ndim, innovation[:])

	var delta mat.VecDense
	delta.MulVec(kt.T(), y)

	var out State
	for i := 0; i < sdim; i++ {
		out.Mean[i] = s.Mean[i] + delta.AtVec(i)
	}

	// P' = P - K S Kᵀ
	var ks, ksk mat.Dense
	ks.Mul(kt.T(), sym)
	ksk.Mul(&ks, &kt)
	var post mat.Dense
	post.Sub(cov, &ksk)
	symmetrize(&post)
	storeCov(&out, &post)
	return out
}

// Warp applies a 2x3 camera transform to the state: the linear part
// m = [a b; c d] rotates and scales the centre and its velocity, and t
// translates the centre.
func (f *Filter) Warp(s State, m [4]float64, t [2]float64) State {
	rot := mat.NewDense(sdim, sdim, nil)
	for i := 0; i < sdim; i++ {
		rot.Set(i, i, 1)
	}
	for _, base := range []int{0, ndim} {
		rot.Set(base, base, m[0])
		rot.Set(base, base+1, m[1])
		rot.Set(base+1, base, m[2])
		rot.Set(base+1, base+1, m[3])
	}

	var out State
	mean := mat.NewVecDense(sdim, append([]float64(nil), s.Mean[:]...))
	var wm mat.VecDense
	wm.MulVec(rot, mean)
	for i := 0; i < sdim; i++ {
		out.Mean[i] = wm.AtVec(i)
	}
	out.Mean[0] += t[0]
	out.Mean[1] += t[1]

	var rp, rprt mat.Dense
	rp.Mul(rot, denseCov(&s))
	rprt.Mul(&rp, rot.T())
	storeCov(&out, &rprt)
	return out
}

// Box converts the state mean to a TLWH box.
func Box(s State) bbox.Box {
	return bbox.FromXYAH([4]float64{s.Mean[0], s.Mean[1], s.Mean[2], s.Mean[3]})
}

// MeasurementFromBox converts a box to XYAH measurement form.
func MeasurementFromBox(b bbox.Box) Measurement {
	return Measurement(b.XYAH())
}

func denseCov(s *State) *mat.Dense {
	data := make([]float64, sdim*sdim)
	copy(data, s.Cov[:])
	return mat.NewDense(sdim, sdim, data)
}

func storeCov(s *State, m mat.Matrix) {
	for r := 0; r < sdim; r++ {
		for c := 0; c < sdim; c++ {
			s.Cov[r*sdim+c] = m.At(r, c)
		}
	}
}

func symmetrize(m *mat.Dense) {
	for r := 0; r < sdim; r++ {
		for c := r + 1; c < sdim; c++ {
			v := 0.5 * (m.At(r, c) + m.At(c, r))
			m.Set(r, c, v)
			m.Set(c, r, v)
		}
	}
}
