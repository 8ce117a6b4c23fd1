// Package cvgmc provides OpenCV-backed camera motion estimators (sparse
// features, ECC and optical flow). Importing it registers the "orb", "sift",
// "ecc" and "sparse_flow" methods with package cmc.
package cvgmc

import (
	"fmt"
	"image"
	"math"
	"sync"

	"gocv.io/x/gocv"

	"github.com/banshee-data/motrack/internal/monitoring"
	"github.com/banshee-data/motrack/internal/mot/cmc"
)

var logf = monitoring.Prefixed("cmc")

func init() {
	cmc.Register("orb", func(o cmc.Options) (cmc.Estimator, error) { return NewFeatures(KindORB, o), nil })
	cmc.Register("sift", func(o cmc.Options) (cmc.Estimator, error) { return NewFeatures(KindSIFT, o), nil })
	cmc.Register("ecc", func(o cmc.Options) (cmc.Estimator, error) { return NewECC(o), nil })
	cmc.Register("sparse_flow", func(o cmc.Options) (cmc.Estimator, error) { return NewSparseFlow(o), nil })
}

// grayMat converts and downscales img into a single-channel 8-bit Mat.
func grayMat(img image.Image, downscale int) (gocv.Mat, error) {
	m, err := gocv.ImageGrayToMat(cmc.Grayscale(img, downscale))
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("convert frame: %w", err)
	}
	return m, nil
}

func ransacOptions(o cmc.Options) cmc.RANSACOptions {
	r := o.RANSAC
	if r.ReprojThresh <= 0 {
		r.ReprojThresh = cmc.DefaultRANSACOptions.ReprojThresh
	}
	if r.MaxIters <= 0 {
		r.MaxIters = cmc.DefaultRANSACOptions.MaxIters
	}
	if r.Confidence <= 0 || r.Confidence >= 1 {
		r.Confidence = cmc.DefaultRANSACOptions.Confidence
	}
	if r.Seed == 0 {
		r.Seed = cmc.DefaultRANSACOptions.Seed
	}
	r.MinInliers = max(o.MinMatches, 3)
	return r
}

func downscaleOf(o cmc.Options) int {
	return max(o.Downscale, 1)
}

// fit filters correspondences, runs RANSAC and brings the translation back
// to full resolution.
func fit(cs []cmc.Correspondence, filter cmc.MatchFilter, w, h float64, o cmc.Options) (cmc.Transform, error) {
	kept := filter.Apply(cs, w, h)
	if len(kept) < max(o.MinMatches, 3) {
		return cmc.Identity(), fmt.Errorf("%w: %d of %d matches kept", cmc.ErrInsufficientMatches, len(kept), len(cs))
	}
	prev := make([]cmc.Point, len(kept))
	curr := make([]cmc.Point, len(kept))
	for i, c := range kept {
		prev[i], curr[i] = c.Prev, c.Curr
	}
	t, _, err := cmc.FitSimilarityRANSAC(prev, curr, ransacOptions(o))
	if err != nil {
		return cmc.Identity(), err
	}
	return t.ScaleTranslation(float64(downscaleOf(o))), nil
}

// Kind selects the keypoint detector for NewFeatures.
type Kind int

const (
	KindORB Kind = iota
	KindSIFT
)

type detector interface {
	DetectAndCompute(src gocv.Mat, mask gocv.Mat) ([]gocv.KeyPoint, gocv.Mat)
	Close() error
}

// Features estimates motion from matched keypoint descriptors.
type Features struct {
	mu      sync.Mutex
	opts    cmc.Options
	det     detector
	matcher gocv.BFMatcher
	filter  cmc.MatchFilter
}

// NewFeatures builds an ORB or SIFT estimator. Call Close to release the
// OpenCV objects.
func NewFeatures(kind Kind, o cmc.Options) *Features {
	f := &Features{opts: o, filter: cmc.DefaultMatchFilter}
	switch kind {
	case KindSIFT:
		s := gocv.NewSIFT()
		f.det = &s
		f.matcher = gocv.NewBFMatcherWithParams(gocv.NormL2, false)
	default:
		orb := gocv.NewORB()
		f.det = &orb
		f.matcher = gocv.NewBFMatcherWithParams(gocv.NormHamming, false)
	}
	return f
}

// Close releases OpenCV resources.
func (f *Features) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matcher.Close()
	return f.det.Close()
}

// Estimate implements cmc.Estimator.
func (f *Features) Estimate(prev, curr image.Image) (cmc.Transform, error) {
	if prev == nil || curr == nil {
		return cmc.Identity(), cmc.ErrNoPreviousFrame
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	ds := downscaleOf(f.opts)
	pm, err := grayMat(prev, ds)
	if err != nil {
		return cmc.Identity(), err
	}
	defer pm.Close()
	cm, err := grayMat(curr, ds)
	if err != nil {
		return cmc.Identity(), err
	}
	defer cm.Close()

	mask := gocv.NewMat()
	defer mask.Close()
	kp1, d1 := f.det.DetectAndCompute(pm, mask)
	defer d1.Close()
	kp2, d2 := f.det.DetectAndCompute(cm, mask)
	defer d2.Close()
	if d1.Empty() || d2.Empty() {
		return cmc.Identity(), fmt.Errorf("%w: no descriptors", cmc.ErrInsufficientMatches)
	}

	knn := f.matcher.KnnMatch(d1, d2, 2)
	cs := make([]cmc.Correspondence, 0, len(knn))
	for _, ms := range knn {
		if len(ms) == 0 {
			continue
		}
		best := ms[0]
		second := math.Inf(1)
		if len(ms) > 1 {
			second = ms[1].Distance
		}
		if best.QueryIdx >= len(kp1) || best.TrainIdx >= len(kp2) {
			continue
		}
		p, c := kp1[best.QueryIdx], kp2[best.TrainIdx]
		cs = append(cs, cmc.Correspondence{
			Prev:           cmc.Point{X: p.X, Y: p.Y},
			Curr:           cmc.Point{X: c.X, Y: c.Y},
			Distance:       best.Distance,
			SecondDistance: second,
		})
	}
	return fit(cs, f.filter, float64(pm.Cols()), float64(pm.Rows()), f.opts)
}

// ECC estimates a Euclidean motion by enhanced correlation coefficient
// maximisation over the whole frame.
type ECC struct {
	mu   sync.Mutex
	opts cmc.Options
}

// NewECC builds an ECC estimator.
func NewECC(o cmc.Options) *ECC {
	if o.ECCMaxIters <= 0 {
		o.ECCMaxIters = 100
	}
	if o.ECCEps <= 0 {
		o.ECCEps = 1e-5
	}
	return &ECC{opts: o}
}

// Estimate implements cmc.Estimator.
func (e *ECC) Estimate(prev, curr image.Image) (cmc.Transform, error) {
	if prev == nil || curr == nil {
		return cmc.Identity(), cmc.ErrNoPreviousFrame
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	ds := downscaleOf(e.opts)
	pm, err := grayMat(prev, ds)
	if err != nil {
		return cmc.Identity(), err
	}
	defer pm.Close()
	cm, err := grayMat(curr, ds)
	if err != nil {
		return cmc.Identity(), err
	}
	defer cm.Close()

	pb, cb := gocv.NewMat(), gocv.NewMat()
	defer pb.Close()
	defer cb.Close()
	gocv.GaussianBlur(pm, &pb, image.Pt(3, 3), 1.5, 1.5, gocv.BorderDefault)
	gocv.GaussianBlur(cm, &cb, image.Pt(3, 3), 1.5, 1.5, gocv.BorderDefault)

	warp := gocv.Eye(2, 3, gocv.MatTypeCV32F)
	defer warp.Close()
	mask := gocv.NewMat()
	defer mask.Close()
	criteria := gocv.NewTermCriteria(gocv.Count|gocv.EPS, e.opts.ECCMaxIters, e.opts.ECCEps)

	cc := gocv.FindTransformECC(pb, cb, &warp, gocv.MotionEuclidean, criteria, mask, 1)
	if math.IsNaN(cc) || cc <= 0 {
		return cmc.Identity(), fmt.Errorf("%w: correlation %v", cmc.ErrNotConverged, cc)
	}

	var t cmc.Transform
	for r := 0; r < 2; r++ {
		for c := 0; c < 3; c++ {
			t[r*3+c] = float64(warp.GetFloatAt(r, c))
		}
	}
	return t.ScaleTranslation(float64(ds)), nil
}

// SparseFlow tracks corners with pyramidal Lucas-Kanade optical flow and fits
// a similarity to the flow vectors.
type SparseFlow struct {
	mu         sync.Mutex
	opts       cmc.Options
	maxCorners int
	filter     cmc.MatchFilter
}

// NewSparseFlow builds a sparse optical flow estimator.
func NewSparseFlow(o cmc.Options) *SparseFlow {
	return &SparseFlow{
		opts:       o,
		maxCorners: 1000,
		filter:     cmc.MatchFilter{Border: 0.02, MaxDisplacement: 0.25},
	}
}

// Estimate implements cmc.Estimator.
func (s *SparseFlow) Estimate(prev, curr image.Image) (cmc.Transform, error) {
	if prev == nil || curr == nil {
		return cmc.Identity(), cmc.ErrNoPreviousFrame
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ds := downscaleOf(s.opts)
	pm, err := grayMat(prev, ds)
	if err != nil {
		return cmc.Identity(), err
	}
	defer pm.Close()
	cm, err := grayMat(curr, ds)
	if err != nil {
		return cmc.Identity(), err
	}
	defer cm.Close()

	corners := gocv.NewMat()
	defer corners.Close()
	gocv.GoodFeaturesToTrack(pm, &corners, s.maxCorners, 0.01, 1)
	if corners.Empty() {
		return cmc.Identity(), fmt.Errorf("%w: no corners", cmc.ErrInsufficientMatches)
	}

	next := gocv.NewMat()
	defer next.Close()
	status := gocv.NewMat()
	defer status.Close()
	flowErr := gocv.NewMat()
	defer flowErr.Close()
	gocv.CalcOpticalFlowPyrLK(pm, cm, corners, next, &status, &flowErr)

	cs := make([]cmc.Correspondence, 0, corners.Rows())
	for i := 0; i < corners.Rows() && i < next.Rows(); i++ {
		if status.GetUCharAt(i, 0) != 1 {
			continue
		}
		p := corners.GetVecfAt(i, 0)
		c := next.GetVecfAt(i, 0)
		cs = append(cs, cmc.Correspondence{
			Prev: cmc.Point{X: float64(p[0]), Y: float64(p[1])},
			Curr: cmc.Point{X: float64(c[0]), Y: float64(c[1])},
		})
	}
	t, err := fit(cs, s.filter, float64(pm.Cols()), float64(pm.Rows()), s.opts)
	if err != nil {
		logf("sparse flow: %d tracked corners, %v", len(cs), err)
	}
	return t, err
}
