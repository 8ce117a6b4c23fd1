package debug

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/motrack/internal/mot/bbox"
)

func TestNewDebugCollector_InitiallyDisabled(t *testing.T) {
	t.Parallel()
	c := NewDebugCollector()
	assert.False(t, c.IsEnabled())
	c.BeginFrame(1)
	c.RecordAssociation(StageHigh, 1, 0, 0.1, true)
	assert.Nil(t, c.Emit())
}

func TestDebugCollector_NilIsDisabled(t *testing.T) {
	t.Parallel()
	var c *DebugCollector
	assert.NotPanics(t, func() {
		c.BeginFrame(1)
		c.RecordCMC([6]float64{1, 0, 0, 0, 1, 0}, nil)
		c.RecordPrediction(1, bbox.Box{}, 0, 0)
		c.RecordInnovation(1, [4]float64{})
		c.Reset()
	})
	assert.Nil(t, c.Emit())
}

func TestDebugCollector_RecordAndEmit(t *testing.T) {
	t.Parallel()
	c := NewDebugCollector()
	c.SetEnabled(true)

	// Records before BeginFrame are dropped.
	c.RecordPrediction(9, bbox.Box{}, 0, 0)

	c.BeginFrame(42)
	c.RecordCMC([6]float64{1, 0, 3, 0, 1, 4}, errors.New("too few matches"))
	c.RecordPrediction(1, bbox.Box{X: 1, Y: 2, W: 3, H: 4}, 0.5, -0.5)
	c.RecordAssociation(StageHigh, 1, 0, 0.2, true)
	c.RecordAssociation(StageLow, 2, 1, 0.9, false)
	c.RecordInnovation(1, [4]float64{1, -1, 0, 0})

	f := c.Emit()
	require.NotNil(t, f)
	assert.Equal(t, 42, f.FrameIndex)
	assert.Equal(t, "too few matches", f.CMC.Err)
	assert.Equal(t, 3.0, f.CMC.Transform[2])
	require.Len(t, f.StatePredictions, 1)
	assert.Equal(t, int64(1), f.StatePredictions[0].TrackID)
	require.Len(t, f.Associations, 2)
	assert.Equal(t, StageLow, f.Associations[1].Stage)
	assert.False(t, f.Associations[1].Accepted)
	require.Len(t, f.Innovations, 1)

	assert.Nil(t, c.Emit(), "second emit without BeginFrame")
}

func TestDebugCollector_Reset(t *testing.T) {
	t.Parallel()
	c := NewDebugCollector()
	c.SetEnabled(true)
	c.BeginFrame(1)
	c.RecordInnovation(1, [4]float64{})
	c.Reset()
	assert.Nil(t, c.Emit())
}
