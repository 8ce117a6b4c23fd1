package tracker

import (
	"image"

	"github.com/banshee-data/motrack/internal/mot/bbox"
	"github.com/banshee-data/motrack/internal/mot/kalman"
)

// TrackState represents the lifecycle state of a track.
type TrackState string

const (
	Tentative TrackState = "tentative" // created, not yet confirmed
	Confirmed TrackState = "confirmed" // matched enough to be reported
	Lost      TrackState = "lost"      // missed, kept for re-matching
	Removed   TrackState = "removed"   // terminal, evicted
)

// Detection is one object reported by a detector on one frame.
type Detection struct {
	Box   bbox.Box
	Score float64
	// Class is the detector's label, carried through untouched.
	Class int
	// Embedding is an optional appearance feature.
	Embedding []float32
}

// Frame is the per-call input to Update.
type Frame struct {
	// Index is the 1-based frame number. Zero means "one after the last".
	Index int
	// Image is the current frame, used for camera motion estimation. May be nil.
	Image      image.Image
	Detections []Detection
}

// Track is a tracked object. Tracks returned by Tracker.Tracks are copies.
type Track struct {
	ID    int64
	State TrackState

	Kalman            kalman.State
	SmoothedEmbedding []float32

	Score float64
	Class int

	Age             int // frames since creation
	TimeSinceUpdate int // consecutive frames without a match
	HitStreak       int // consecutive frames with a match
	Hits            int // total matches

	StartFrame int
	LastFrame  int // last frame with a match

	// stateBeforeLost is restored when a Lost track is re-matched.
	stateBeforeLost TrackState
	// predicted is the association box for the current frame: the Kalman
	// prediction, warped by camera motion.
	predicted bbox.Box
}

// Box returns the track's current box estimate from the filter mean.
func (t *Track) Box() bbox.Box {
	return kalman.Box(t.Kalman)
}

func (t *Track) snapshot() Track {
	c := *t
	if t.SmoothedEmbedding != nil {
		c.SmoothedEmbedding = append([]float32(nil), t.SmoothedEmbedding...)
	}
	return c
}

// Output is the per-frame result for one reported track.
type Output struct {
	ID        int64
	Box       bbox.Box
	Score     float64
	Class     int
	State     TrackState
	HitStreak int
	Age       int
}
