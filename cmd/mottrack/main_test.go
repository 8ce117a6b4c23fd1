package main

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/motrack/internal/fsutil"
	"github.com/banshee-data/motrack/internal/mot/bbox"
	"github.com/banshee-data/motrack/internal/mot/debug"
	"github.com/banshee-data/motrack/internal/mot/tracker"
)

func TestFlagDefaults(t *testing.T) {
	assert.Equal(t, 100, *logEvery)
	assert.Equal(t, 0, *frames)
	assert.Empty(t, *listen)
	assert.Empty(t, *detPath)
}

func TestDebugSinkWritesJSONLines(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	f, err := fs.Create("debug.jsonl")
	require.NoError(t, err)

	collector := debug.NewDebugCollector()
	collector.SetEnabled(true)
	cfg := tracker.DefaultConfig()
	tr, err := tracker.NewTracker(cfg)
	require.NoError(t, err)
	tr.SetDebugCollector(collector)

	sink := &debugSink{collector: collector, w: f, enc: json.NewEncoder(f)}
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		out, err := tr.Update(tracker.Frame{Detections: []tracker.Detection{
			{Box: bbox.Box{X: float64(10 + 2*i), Y: 10, W: 30, H: 60}, Score: 0.9},
		}})
		require.NoError(t, err)
		require.NoError(t, sink.RecordFrame(ctx, i, out))
	}
	require.NoError(t, sink.Close())

	data, err := fs.ReadFile("debug.jsonl")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)

	var last debug.DebugFrame
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &last))
	assert.Equal(t, 3, last.FrameIndex)
	assert.Len(t, last.StatePredictions, 1)
}

func TestCheckInputs(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	require.NoError(t, fs.WriteFile("MOT17-02/det/det.txt", []byte("1,-1,1,2,3,4,0.9\n"), 0o644))
	require.NoError(t, fs.WriteFile("MOT17-02/img1/000001.png", []byte{}, 0o644))

	assert.NoError(t, checkInputs(fs, "MOT17-02/det/det.txt", ""))
	assert.NoError(t, checkInputs(fs, "MOT17-02/det/det.txt", "MOT17-02/img1"))
	assert.ErrorContains(t, checkInputs(fs, "MOT17-04/det/det.txt", ""), "detections file")
	assert.ErrorContains(t, checkInputs(fs, "MOT17-02/det/det.txt", "MOT17-02/frames"), "frame directory")
}
