package tracker

import (
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/motrack/internal/monitoring"
	"github.com/banshee-data/motrack/internal/mot/association"
	"github.com/banshee-data/motrack/internal/mot/bbox"
	"github.com/banshee-data/motrack/internal/mot/cmc"
	"github.com/banshee-data/motrack/internal/mot/debug"
	"github.com/banshee-data/motrack/internal/mot/kalman"
)

var logf = monitoring.Prefixed("tracker")

// ErrFrameOrder is returned when a frame index does not advance.
var ErrFrameOrder = errors.New("tracker: frame index must increase")

// Tracker is a two-stage multi-object tracker. It is safe for concurrent use,
// but frames are processed one at a time in call order.
type Tracker struct {
	cfg          Config
	bufferFrames int

	filter    *kalman.Filter
	model     association.CostModel
	iou       association.CostModel
	solver    association.Solver
	estimator cmc.Estimator

	// ownsEstimator is set when the estimator came from the cmc registry
	// rather than Config.Estimator, so Close releases it.
	ownsEstimator bool

	mu        sync.RWMutex
	tracks    map[int64]*Track
	nextID    int64
	frame     int
	prevImage image.Image
	counters  counters

	debug *debug.DebugCollector
}

// NewTracker validates cfg and builds a tracker. No tracker is returned on
// error.
func NewTracker(cfg Config) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tracker config: %w", err)
	}
	solver, err := association.NewSolver(cfg.Solver)
	if err != nil {
		return nil, fmt.Errorf("invalid tracker config: %w", err)
	}
	est, owns := cfg.Estimator, false
	if est == nil {
		est, err = cmc.New(cfg.CMC)
		if err != nil {
			return nil, fmt.Errorf("invalid tracker config: %w", err)
		}
		owns = true
	}

	var model association.CostModel = association.GeometryOnly{FuseScore: cfg.FuseScore}
	if cfg.WithReID {
		model = association.FusedGeometryAppearance{
			FuseScore:        cfg.FuseScore,
			ProximityThresh:  cfg.ProximityThresh,
			AppearanceThresh: cfg.AppearanceThresh,
			AppearanceWeight: cfg.AppearanceWeight,
		}
	}

	t := &Tracker{
		cfg:           cfg,
		bufferFrames:  cfg.BufferFrames(),
		filter:        kalman.NewFilter(cfg.KalmanStdWeightPosition, cfg.KalmanStdWeightVelocity),
		model:         model,
		iou:           association.GeometryOnly{},
		solver:        solver,
		estimator:     est,
		ownsEstimator: owns,
		tracks:        make(map[int64]*Track),
		nextID:        1,
	}
	logf("created: cost=%s solver=%s buffer=%d frames", model.Name(), solver.Name(), t.bufferFrames)
	return t, nil
}

// SetDebugCollector attaches a collector; nil detaches it.
func (t *Tracker) SetDebugCollector(c *debug.DebugCollector) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.debug = c
}

// Close releases the camera motion estimator if the tracker built it and it
// holds resources (the OpenCV-backed methods do). An estimator passed in
// through Config.Estimator stays the caller's to close. The tracker must not
// be updated after Close.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.ownsEstimator {
		return nil
	}
	t.ownsEstimator = false
	if c, ok := t.estimator.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("close camera motion estimator: %w", err)
		}
	}
	return nil
}

// FrameIndex returns the index of the last processed frame.
func (t *Tracker) FrameIndex() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.frame
}

// Tracks returns copies of all live tracks in ascending ID order.
func (t *Tracker) Tracks() []Track {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Track, 0, len(t.tracks))
	for _, tr := range t.ordered() {
		out = append(out, tr.snapshot())
	}
	return out
}

// Reset drops all tracks and counters. IDs keep increasing across a reset.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracks = make(map[int64]*Track)
	t.frame = 0
	t.prevImage = nil
	t.counters = counters{}
}

func (t *Tracker) ordered() []*Track {
	out := make([]*Track, 0, len(t.tracks))
	for _, tr := range t.tracks {
		out = append(out, tr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Update advances the tracker by one frame and returns the reported tracks in
// ascending ID order.
func (t *Tracker) Update(f Frame) ([]Output, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := f.Index
	if idx == 0 {
		idx = t.frame + 1
	}
	if idx <= t.frame {
		return nil, fmt.Errorf("%w: got %d after %d", ErrFrameOrder, idx, t.frame)
	}
	first := t.counters.frames == 0
	t.frame = idx
	t.counters.frames++
	t.debug.BeginFrame(idx)

	high, low := t.splitDetections(f.Detections)

	live := t.ordered()
	t.predict(live, f.Image)
	t.prevImage = f.Image

	// Stage 1: every live track against confident detections.
	matches, unmatchedTracks, unmatchedDets := t.associate(debug.StageHigh, t.model, live, high, t.cfg.MatchThresh)
	for _, m := range matches {
		t.apply(live[m[0]], high[m[1]], true)
	}

	// Stage 2: confirmed leftovers against weak detections, geometry only.
	var remaining []*Track
	for _, i := range unmatchedTracks {
		if live[i].State == Confirmed {
			remaining = append(remaining, live[i])
		}
	}
	matched2 := make(map[int64]bool)
	if len(remaining) > 0 && len(low) > 0 {
		m2, _, _ := t.associate(debug.StageLow, t.iou, remaining, low, t.cfg.SecondMatchThresh)
		for _, m := range m2 {
			t.apply(remaining[m[0]], low[m[1]], false)
			matched2[remaining[m[0]].ID] = true
			t.counters.lowScoreMatches++
		}
	}

	for _, i := range unmatchedTracks {
		tr := live[i]
		if matched2[tr.ID] {
			continue
		}
		tr.TimeSinceUpdate++
		tr.HitStreak = 0
		if tr.State != Lost {
			tr.stateBeforeLost = tr.State
			tr.State = Lost
		}
		t.counters.coastingFrames++
	}
	t.counters.trackFrames += len(live)

	for _, j := range unmatchedDets {
		d := high[j]
		if d.Score < t.cfg.NewTrackThresh {
			continue
		}
		t.spawn(d, idx, first)
	}

	for _, tr := range live {
		if tr.TimeSinceUpdate > t.bufferFrames {
			tr.State = Removed
			delete(t.tracks, tr.ID)
			t.counters.removed++
		}
	}

	return t.outputs(), nil
}

// splitDetections drops malformed detections and partitions the rest by
// score. Detections below the low threshold are discarded.
func (t *Tracker) splitDetections(dets []Detection) (high, low []Detection) {
	for _, d := range dets {
		if !d.Box.Valid() || math.IsNaN(d.Score) || d.Score < 0 || d.Score > 1 {
			t.counters.droppedDetections++
			continue
		}
		if t.cfg.WithReID && len(d.Embedding) > 0 {
			e := association.Normalize(d.Embedding)
			if e == nil {
				t.counters.droppedEmbeddings++
			}
			d.Embedding = e
		} else {
			d.Embedding = nil
		}
		switch {
		case d.Score >= t.cfg.TrackHighThresh:
			high = append(high, d)
		case d.Score >= t.cfg.TrackLowThresh:
			low = append(low, d)
		}
	}
	return high, low
}

// predict advances every live track while the camera motion is estimated,
// then maps the predictions into the current frame.
func (t *Tracker) predict(live []*Track, img image.Image) {
	var (
		transform = cmc.Identity()
		cmcErr    error
	)
	var g errgroup.Group
	g.Go(func() error {
		transform, cmcErr = t.estimator.Estimate(t.prevImage, img)
		return nil
	})

	workers := t.cfg.MaxWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	chunk := (len(live) + workers - 1) / workers
	for start := 0; start < len(live); start += chunk {
		part := live[start:min(start+chunk, len(live))]
		g.Go(func() error {
			for _, tr := range part {
				s := tr.Kalman
				if tr.State == Lost {
					s.Mean[6], s.Mean[7] = 0, 0
				}
				tr.Kalman = t.filter.Predict(s)
				tr.Age++
			}
			return nil
		})
	}
	_ = g.Wait()

	if cmcErr != nil {
		transform = cmc.Identity()
		if !errors.Is(cmcErr, cmc.ErrNoPreviousFrame) {
			t.counters.cmcFailures++
			logf("frame %d: camera motion unavailable, using identity: %v", t.frame, cmcErr)
		}
	}
	t.debug.RecordCMC(transform, cmcErr)

	warpState := t.cfg.CMCWarpState && !transform.IsIdentity()
	for _, tr := range live {
		if warpState {
			tr.Kalman = t.filter.Warp(tr.Kalman, transform.Linear(), transform.Offset())
			tr.predicted = tr.Box()
		} else {
			tr.predicted = transform.Apply(tr.Box())
		}
		if t.debug.IsEnabled() {
			t.debug.RecordPrediction(tr.ID, tr.predicted, tr.Kalman.Mean[4], tr.Kalman.Mean[5])
		}
	}
}

// associate solves one matching stage. Row order follows tracks, so equal
// costs resolve toward the smaller track ID.
func (t *Tracker) associate(stage int, model association.CostModel, tracks []*Track, dets []Detection, thresh float64) ([][2]int, []int, []int) {
	tc := make([]association.Candidate, len(tracks))
	for i, tr := range tracks {
		tc[i] = association.Candidate{Box: tr.predicted, Score: tr.Score, Embedding: tr.SmoothedEmbedding}
	}
	dc := make([]association.Candidate, len(dets))
	for j, d := range dets {
		dc[j] = association.Candidate{Box: d.Box, Score: d.Score, Embedding: d.Embedding}
	}

	cost := model.Cost(tc, dc)
	res := t.solver.Solve(cost, len(dets), thresh)

	if t.debug.IsEnabled() {
		accepted := make(map[[2]int]bool, len(res.Matches))
		for _, m := range res.Matches {
			accepted[m] = true
		}
		for i := range cost {
			for j := range cost[i] {
				t.debug.RecordAssociation(stage, tracks[i].ID, j, cost[i][j], accepted[[2]int{i, j}])
			}
		}
	}
	return res.Matches, res.UnmatchedRows, res.UnmatchedCols
}

// apply folds a matched detection into a track.
func (t *Tracker) apply(tr *Track, d Detection, appearance bool) {
	z := kalman.MeasurementFromBox(d.Box)
	if t.debug.IsEnabled() {
		proj, _ := t.filter.Project(tr.Kalman)
		var r [4]float64
		for k := range r {
			r[k] = z[k] - proj[k]
		}
		t.debug.RecordInnovation(tr.ID, r)
	}
	tr.Kalman = t.filter.Update(tr.Kalman, z)
	if appearance && t.cfg.WithReID && d.Embedding != nil {
		tr.SmoothedEmbedding = association.SmoothEmbedding(tr.SmoothedEmbedding, d.Embedding, t.cfg.EmbeddingAlpha)
	}
	tr.Score = d.Score
	tr.Class = d.Class
	tr.TimeSinceUpdate = 0
	tr.HitStreak++
	tr.Hits++
	tr.LastFrame = t.frame

	if tr.State == Lost {
		tr.State = tr.stateBeforeLost
		if tr.State == Confirmed {
			t.counters.recoveries++
		}
	}
	if tr.State == Tentative && tr.HitStreak >= t.cfg.MinHits {
		tr.State = Confirmed
		t.counters.confirmed++
	}
}

func (t *Tracker) spawn(d Detection, frame int, first bool) {
	tr := &Track{
		ID:         t.nextID,
		State:      Tentative,
		Kalman:     t.filter.Initiate(kalman.MeasurementFromBox(d.Box)),
		Score:      d.Score,
		Class:      d.Class,
		HitStreak:  1,
		Hits:       1,
		StartFrame: frame,
		LastFrame:  frame,
	}
	if t.cfg.WithReID && d.Embedding != nil {
		tr.SmoothedEmbedding = d.Embedding
	}
	t.nextID++
	t.counters.created++
	// Nothing can confirm a track on the first frame, so births there count.
	if first || t.cfg.MinHits <= 1 {
		tr.State = Confirmed
		t.counters.confirmed++
	}
	tr.predicted = d.Box
	t.tracks[tr.ID] = tr
}

func (t *Tracker) outputs() []Output {
	out := []Output{}
	for _, tr := range t.ordered() {
		if tr.State != Confirmed {
			continue
		}
		b := tr.Box()
		if !t.eligible(b) {
			continue
		}
		out = append(out, Output{
			ID:        tr.ID,
			Box:       b,
			Score:     tr.Score,
			Class:     tr.Class,
			State:     tr.State,
			HitStreak: tr.HitStreak,
			Age:       tr.Age,
		})
	}
	return out
}

func (t *Tracker) eligible(b bbox.Box) bool {
	if b.Area() < t.cfg.MinBoxArea {
		return false
	}
	return b.H > 0 && b.W/b.H <= t.cfg.AspectRatioThresh
}
