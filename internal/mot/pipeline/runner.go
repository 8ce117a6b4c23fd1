package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/motrack/internal/monitoring"
	"github.com/banshee-data/motrack/internal/mot/bbox"
	"github.com/banshee-data/motrack/internal/mot/tracker"
	"github.com/banshee-data/motrack/internal/timeutil"
)

var logf = monitoring.Prefixed("pipeline")

// Config holds the dependencies of a Runner.
type Config struct {
	Source   FrameSource
	Detector Detector
	Tracker  *tracker.Tracker

	// Extractor, when set and WithReID is true, fills in embeddings the
	// detector did not supply.
	Extractor Extractor
	WithReID  bool

	Sinks []Sink
	// Clock times each frame. Defaults to timeutil.RealClock.
	Clock timeutil.Clock
	// LogEvery logs progress every n frames; 0 disables progress logs.
	LogEvery int
}

// Runner feeds frames through detection and tracking.
type Runner struct {
	cfg Config
}

// NewRunner validates cfg.
func NewRunner(cfg Config) (*Runner, error) {
	switch {
	case cfg.Source == nil:
		return nil, errors.New("pipeline: frame source is required")
	case cfg.Detector == nil:
		return nil, errors.New("pipeline: detector is required")
	case cfg.Tracker == nil:
		return nil, errors.New("pipeline: tracker is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Runner{cfg: cfg}, nil
}

// Stats summarises a run.
type Stats struct {
	Frames     int `json:"frames"`
	Detections int `json:"detections"`
	// Outputs counts reported track boxes summed over frames.
	Outputs   int `json:"outputs"`
	UniqueIDs int `json:"unique_ids"`

	MeanLatency time.Duration `json:"mean_latency"`
	StdLatency  time.Duration `json:"std_latency"`
	P95Latency  time.Duration `json:"p95_latency"`
	MaxLatency  time.Duration `json:"max_latency"`

	Tracking tracker.TrackingMetrics `json:"tracking"`
}

// Run processes frames until the source is exhausted or ctx is cancelled.
// Sinks are closed before Run returns. Stats cover the frames processed even
// when an error is returned.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	var (
		st        Stats
		latencies []float64
		seen      = make(map[int64]bool)
		runErr    error
	)

	for {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		idx, img, err := r.cfg.Source.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			runErr = fmt.Errorf("frame source: %w", err)
			break
		}

		start := r.cfg.Clock.Now()
		out, nDets, err := r.step(ctx, idx, img)
		if err != nil {
			runErr = fmt.Errorf("frame %d: %w", idx, err)
			break
		}
		latencies = append(latencies, float64(r.cfg.Clock.Since(start)))

		st.Frames++
		st.Detections += nDets
		st.Outputs += len(out)
		for _, o := range out {
			seen[o.ID] = true
		}

		if err := r.record(ctx, idx, out); err != nil {
			runErr = err
			break
		}
		if r.cfg.LogEvery > 0 && st.Frames%r.cfg.LogEvery == 0 {
			logf("frame %d: %d detections, %d tracks", idx, nDets, len(out))
		}
	}

	if err := r.closeSinks(); err != nil {
		runErr = errors.Join(runErr, err)
	}

	st.UniqueIDs = len(seen)
	st.Tracking = r.cfg.Tracker.GetTrackingMetrics()
	summariseLatency(&st, latencies)
	logf("processed %d frames, %d unique tracks, mean latency %v", st.Frames, st.UniqueIDs, st.MeanLatency)
	return st, runErr
}

func (r *Runner) step(ctx context.Context, idx int, img image.Image) ([]tracker.Output, int, error) {
	dets, err := r.cfg.Detector.Detect(ctx, idx, img)
	if err != nil {
		return nil, 0, fmt.Errorf("detector: %w", err)
	}
	if r.cfg.WithReID && r.cfg.Extractor != nil {
		if err := r.embed(ctx, img, dets); err != nil {
			return nil, 0, err
		}
	}
	out, err := r.cfg.Tracker.Update(tracker.Frame{Index: idx, Image: img, Detections: dets})
	if err != nil {
		return nil, 0, err
	}
	return out, len(dets), nil
}

// embed asks the extractor for the detections that arrived without an
// embedding.
func (r *Runner) embed(ctx context.Context, img image.Image, dets []tracker.Detection) error {
	var (
		boxes []bbox.Box
		which []int
	)
	for i, d := range dets {
		if len(d.Embedding) == 0 {
			boxes = append(boxes, d.Box)
			which = append(which, i)
		}
	}
	if len(boxes) == 0 {
		return nil
	}
	embs, err := r.cfg.Extractor.Extract(ctx, img, boxes)
	if err != nil {
		return fmt.Errorf("extractor: %w", err)
	}
	if len(embs) != len(boxes) {
		return fmt.Errorf("extractor: got %d embeddings for %d boxes", len(embs), len(boxes))
	}
	for k, i := range which {
		dets[i].Embedding = embs[k]
	}
	return nil
}

func (r *Runner) record(ctx context.Context, idx int, out []tracker.Output) error {
	for _, s := range r.cfg.Sinks {
		if err := s.RecordFrame(ctx, idx, out); err != nil {
			return fmt.Errorf("sink: frame %d: %w", idx, err)
		}
	}
	return nil
}

func (r *Runner) closeSinks() error {
	var errs []error
	for _, s := range r.cfg.Sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func summariseLatency(st *Stats, ns []float64) {
	if len(ns) == 0 {
		return
	}
	mean, std := stat.MeanStdDev(ns, nil)
	if len(ns) == 1 {
		std = 0
	}
	sorted := append([]float64(nil), ns...)
	sort.Float64s(sorted)
	st.MeanLatency = time.Duration(mean)
	st.StdLatency = time.Duration(std)
	st.P95Latency = time.Duration(stat.Quantile(0.95, stat.Empirical, sorted, nil))
	st.MaxLatency = time.Duration(sorted[len(sorted)-1])
}
