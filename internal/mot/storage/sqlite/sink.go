package sqlite

import (
	"context"

	"github.com/banshee-data/motrack/internal/mot/tracker"
)

// RunSink records every reported box of one run. It satisfies
// pipeline.Sink.
type RunSink struct {
	store *Store
	runID string

	frames int
	boxes  int
}

// RunSummary is stored as the run's stats when a RunSink closes.
type RunSummary struct {
	Frames int `json:"frames"`
	Boxes  int `json:"boxes"`
}

// NewRunSink starts a run for sequence and returns a sink writing into it.
func (s *Store) NewRunSink(ctx context.Context, sequence string, params any) (*RunSink, error) {
	id, err := s.StartRun(ctx, sequence, params)
	if err != nil {
		return nil, err
	}
	return &RunSink{store: s, runID: id}, nil
}

// RunID returns the run being written.
func (r *RunSink) RunID() string { return r.runID }

// RecordFrame implements pipeline.Sink.
func (r *RunSink) RecordFrame(ctx context.Context, frameIndex int, tracks []tracker.Output) error {
	obs := make([]Observation, len(tracks))
	for i, t := range tracks {
		obs[i] = Observation{
			Frame:   frameIndex,
			TrackID: t.ID,
			X:       t.Box.X,
			Y:       t.Box.Y,
			W:       t.Box.W,
			H:       t.Box.H,
			Score:   t.Score,
			Class:   t.Class,
		}
	}
	if err := r.store.InsertObservations(ctx, r.runID, obs); err != nil {
		return err
	}
	r.frames++
	r.boxes += len(obs)
	return nil
}

// Close marks the run finished. The store stays open.
func (r *RunSink) Close() error {
	return r.store.FinishRun(context.Background(), r.runID, RunSummary{Frames: r.frames, Boxes: r.boxes})
}
