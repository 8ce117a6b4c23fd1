// Package debug provides instrumentation for the multi-object tracker.
// The DebugCollector captures algorithm internals (predicted boxes, the cost
// of every track/detection pair considered, Kalman residuals and the camera
// motion estimate) for visualisation and tuning.
package debug

import "github.com/banshee-data/motrack/internal/mot/bbox"

// Pre-allocation capacities for debug frame slices, sized for a crowded
// pedestrian scene (~30 live tracks, ~40 detections).
const (
	defaultAssociationCapacity = 64
	defaultInnovationCapacity  = 32
	defaultPredictionCapacity  = 32
)

// Association stages.
const (
	StageHigh = 1 // all tracks × high-confidence detections
	StageLow  = 2 // remaining confirmed tracks × low-confidence detections
)

// DebugCollector accumulates debug artifacts during a single frame's processing.
//
// The collector is stateful: call BeginFrame, then Record*() during
// processing, then Emit() at frame completion. When disabled every call is a
// no-op. A nil *DebugCollector is also valid and disabled.
type DebugCollector struct {
	enabled bool
	current *DebugFrame
}

// DebugFrame contains all debug artifacts for a single frame.
type DebugFrame struct {
	FrameIndex int

	CMC              CMCRecord
	StatePredictions []StatePrediction
	Associations     []AssociationRecord
	Innovations      []KalmanInnovation
}

// CMCRecord is the camera motion applied on this frame.
type CMCRecord struct {
	Transform [6]float64
	Err       string // empty on success
}

// StatePrediction is a track's box after predict (and warp) but before update.
type StatePrediction struct {
	TrackID int64
	Box     bbox.Box
	VX, VY  float64
}

// AssociationRecord captures one track/detection pair considered by a stage.
type AssociationRecord struct {
	Stage          int
	TrackID        int64
	DetectionIndex int
	Cost           float64
	Accepted       bool
}

// KalmanInnovation is the measurement residual of a matched update.
type KalmanInnovation struct {
	TrackID  int64
	Residual [4]float64 // measured − predicted, XYAH
}

// NewDebugCollector creates a collector that's initially disabled.
func NewDebugCollector() *DebugCollector {
	return &DebugCollector{}
}

// SetEnabled controls whether the collector records artifacts.
func (c *DebugCollector) SetEnabled(enabled bool) {
	c.enabled = enabled
}

// IsEnabled returns true if the collector is actively recording.
func (c *DebugCollector) IsEnabled() bool {
	return c != nil && c.enabled
}

func (c *DebugCollector) recording() bool {
	return c != nil && c.enabled && c.current != nil
}

// BeginFrame initialises collection for a new frame.
func (c *DebugCollector) BeginFrame(frameIndex int) {
	if !c.IsEnabled() {
		return
	}
	c.current = &DebugFrame{
		FrameIndex:       frameIndex,
		StatePredictions: make([]StatePrediction, 0, defaultPredictionCapacity),
		Associations:     make([]AssociationRecord, 0, defaultAssociationCapacity),
		Innovations:      make([]KalmanInnovation, 0, defaultInnovationCapacity),
	}
}

// RecordCMC captures the camera motion estimate and any estimation error.
func (c *DebugCollector) RecordCMC(t [6]float64, err error) {
	if !c.recording() {
		return
	}
	c.current.CMC = CMCRecord{Transform: t}
	if err != nil {
		c.current.CMC.Err = err.Error()
	}
}

// RecordPrediction captures a predicted track box.
func (c *DebugCollector) RecordPrediction(trackID int64, b bbox.Box, vx, vy float64) {
	if !c.recording() {
		return
	}
	c.current.StatePredictions = append(c.current.StatePredictions, StatePrediction{
		TrackID: trackID, Box: b, VX: vx, VY: vy,
	})
}

// RecordAssociation captures a candidate pair and whether it was matched.
func (c *DebugCollector) RecordAssociation(stage int, trackID int64, detIndex int, cost float64, accepted bool) {
	if !c.recording() {
		return
	}
	c.current.Associations = append(c.current.Associations, AssociationRecord{
		Stage: stage, TrackID: trackID, DetectionIndex: detIndex, Cost: cost, Accepted: accepted,
	})
}

// RecordInnovation captures a Kalman update residual.
func (c *DebugCollector) RecordInnovation(trackID int64, residual [4]float64) {
	if !c.recording() {
		return
	}
	c.current.Innovations = append(c.current.Innovations, KalmanInnovation{TrackID: trackID, Residual: residual})
}

// Emit returns the accumulated debug frame and prepares for the next frame.
// Returns nil if collection is disabled or no frame was begun.
func (c *DebugCollector) Emit() *DebugFrame {
	if !c.recording() {
		return nil
	}
	frame := c.current
	c.current = nil
	return frame
}

// Reset clears any pending artifacts without emitting them.
func (c *DebugCollector) Reset() {
	if c != nil {
		c.current = nil
	}
}
