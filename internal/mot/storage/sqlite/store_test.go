package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/motrack/internal/mot/bbox"
	"github.com/banshee-data/motrack/internal/mot/tracker"
	"github.com/banshee-data/motrack/internal/timeutil"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "tracks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenAppliesMigrations(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	v, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
	assert.False(t, dirty)

	// Re-applying is a no-op.
	require.NoError(t, s.MigrateUp())
}

func TestReopenKeepsData(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "tracks.db")
	s, err := Open(path)
	require.NoError(t, err)
	id, err := s.StartRun(context.Background(), "MOT17-02", nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].RunID)
}

func TestRunSinkRecordsFrames(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	s.SetClock(timeutil.NewSteppingMockClock(time.Unix(100, 0), time.Second))
	ctx := context.Background()

	sink, err := s.NewRunSink(ctx, "MOT17-04", map[string]any{"track_buffer": 30})
	require.NoError(t, err)
	require.NotEmpty(t, sink.RunID())

	box := bbox.Box{X: 10, Y: 20, W: 30, H: 60}
	require.NoError(t, sink.RecordFrame(ctx, 1, []tracker.Output{
		{ID: 1, Box: box, Score: 0.9},
		{ID: 2, Box: box, Score: 0.7, Class: 3},
	}))
	require.NoError(t, sink.RecordFrame(ctx, 2, []tracker.Output{{ID: 1, Box: box, Score: 0.8}}))
	require.NoError(t, sink.RecordFrame(ctx, 3, nil))
	require.NoError(t, sink.Close())

	obs, err := s.Observations(ctx, sink.RunID())
	require.NoError(t, err)
	require.Len(t, obs, 3)
	assert.Equal(t, Observation{Frame: 1, TrackID: 1, X: 10, Y: 20, W: 30, H: 60, Score: 0.9}, obs[0])
	assert.Equal(t, 2, obs[1].Frame)
	assert.Equal(t, 3, obs[2].Class)

	sums, err := s.TrackSummaries(ctx, sink.RunID())
	require.NoError(t, err)
	require.Len(t, sums, 2)
	assert.Equal(t, TrackSummary{TrackID: 1, FirstFrame: 1, LastFrame: 2, Observations: 2, MeanScore: 0.85}, roundScore(sums[0]))

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "MOT17-04", runs[0].Sequence)
	assert.Equal(t, time.Unix(100, 0).UnixNano(), runs[0].StartedAt)
	assert.Equal(t, time.Unix(101, 0).UnixNano(), runs[0].FinishedAt)
	assert.JSONEq(t, `{"track_buffer":30}`, string(runs[0].ParamsJSON))

	var summary RunSummary
	require.NoError(t, json.Unmarshal(runs[0].StatsJSON, &summary))
	assert.Equal(t, RunSummary{Frames: 3, Boxes: 3}, summary)
}

func roundScore(t TrackSummary) TrackSummary {
	t.MeanScore = float64(int(t.MeanScore*1000+0.5)) / 1000
	return t
}

func TestFinishUnknownRun(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	err := s.FinishRun(context.Background(), "nope", RunSummary{})
	assert.ErrorContains(t, err, "not found")
}

func TestDuplicateObservationRejected(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	id, err := s.StartRun(ctx, "seq", nil)
	require.NoError(t, err)

	o := []Observation{{Frame: 1, TrackID: 1, W: 1, H: 1}}
	require.NoError(t, s.InsertObservations(ctx, id, o))
	assert.Error(t, s.InsertObservations(ctx, id, o))
}

func TestIsSQLiteBusy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"database is locked", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"SQLITE_BUSY", errors.New("SQLITE_BUSY"), true},
		{"other error", errors.New("some other error"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isSQLiteBusy(tt.err))
		})
	}
}

func TestRetryOnBusy(t *testing.T) {
	t.Parallel()
	busy := errors.New("database is locked (5) (SQLITE_BUSY)")

	t.Run("success after retry", func(t *testing.T) {
		calls := 0
		err := retryOnBusy(func() error {
			calls++
			if calls < 3 {
				return busy
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("non-busy error fails immediately", func(t *testing.T) {
		calls := 0
		other := errors.New("some other error")
		err := retryOnBusy(func() error {
			calls++
			return other
		})
		assert.Equal(t, other, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("max retries exceeded", func(t *testing.T) {
		calls := 0
		err := retryOnBusy(func() error {
			calls++
			return busy
		})
		assert.ErrorIs(t, err, busy)
		assert.Equal(t, 5, calls)
	})
}
