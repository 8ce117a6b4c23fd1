// Package motchallenge reads and writes the MOTChallenge text formats:
// det.txt detections in, tracking results out.
//
// Both are comma-separated with one box per line:
//
//	frame, id, left, top, width, height, score, x, y, z
//
// Detections carry id -1. Results carry the track id and -1 for x, y, z.
package motchallenge

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"image"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/banshee-data/motrack/internal/fsutil"
	"github.com/banshee-data/motrack/internal/monitoring"
	"github.com/banshee-data/motrack/internal/mot/bbox"
	"github.com/banshee-data/motrack/internal/mot/tracker"
)

var logf = monitoring.Prefixed("motchallenge")

// ParseDetections reads a det.txt stream into per-frame detections. Lines
// with fewer than 7 fields are rejected; extra trailing fields are ignored.
// Detections keep their file order within a frame.
func ParseDetections(r io.Reader) (map[int][]tracker.Detection, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	out := make(map[int][]tracker.Detection)
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(rec) < 7 {
			return nil, fmt.Errorf("line %d: want at least 7 fields, got %d", line, len(rec))
		}
		frame, err := strconv.Atoi(strings.TrimSpace(rec[0]))
		if err != nil {
			return nil, fmt.Errorf("line %d: bad frame: %w", line, err)
		}
		var v [5]float64
		for i := range v {
			v[i], err = strconv.ParseFloat(strings.TrimSpace(rec[i+2]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: field %d: %w", line, i+3, err)
			}
		}
		out[frame] = append(out[frame], tracker.Detection{
			Box:   bbox.Box{X: v[0], Y: v[1], W: v[2], H: v[3]},
			Score: v[4],
			Class: -1,
		})
	}
	return out, nil
}

// FileDetector replays detections loaded from a det.txt file.
type FileDetector struct {
	frames map[int][]tracker.Detection
	last   int
}

// LoadDetections reads path through fs.
func LoadDetections(fs fsutil.FileSystem, path string) (*FileDetector, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open detections: %w", err)
	}
	defer f.Close()
	frames, err := ParseDetections(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	d := &FileDetector{frames: frames}
	n := 0
	for fr, dets := range frames {
		d.last = max(d.last, fr)
		n += len(dets)
	}
	logf("loaded %d detections over %d frames from %s", n, len(frames), path)
	return d, nil
}

// LastFrame is the highest frame number with detections.
func (d *FileDetector) LastFrame() int { return d.last }

// Detect implements pipeline.Detector. Frames without entries yield none.
func (d *FileDetector) Detect(_ context.Context, frameIndex int, _ image.Image) ([]tracker.Detection, error) {
	src := d.frames[frameIndex]
	out := make([]tracker.Detection, len(src))
	copy(out, src)
	return out, nil
}

// ResultWriter writes tracker output in MOTChallenge result format.
type ResultWriter struct {
	wc io.WriteCloser
	w  *bufio.Writer
}

// NewResultWriter creates path through fs.
func NewResultWriter(fs fsutil.FileSystem, path string) (*ResultWriter, error) {
	wc, err := fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create results file: %w", err)
	}
	return &ResultWriter{wc: wc, w: bufio.NewWriter(wc)}, nil
}

// RecordFrame implements pipeline.Sink.
func (rw *ResultWriter) RecordFrame(_ context.Context, frameIndex int, tracks []tracker.Output) error {
	for _, t := range tracks {
		_, err := fmt.Fprintf(rw.w, "%d,%d,%.2f,%.2f,%.2f,%.2f,%.2f,-1,-1,-1\n",
			frameIndex, t.ID, t.Box.X, t.Box.Y, t.Box.W, t.Box.H, t.Score)
		if err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes the file.
func (rw *ResultWriter) Close() error {
	ferr := rw.w.Flush()
	cerr := rw.wc.Close()
	return errors.Join(ferr, cerr)
}

// Result is one parsed line of a results file.
type Result struct {
	Frame int
	ID    int64
	Box   bbox.Box
	Score float64
}

// ParseResults reads a results file back, sorted by frame then ID.
func ParseResults(r io.Reader) ([]Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var out []Result
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(rec) < 7 {
			return nil, fmt.Errorf("line %d: want at least 7 fields, got %d", line, len(rec))
		}
		var res Result
		if res.Frame, err = strconv.Atoi(rec[0]); err != nil {
			return nil, fmt.Errorf("line %d: bad frame: %w", line, err)
		}
		if res.ID, err = strconv.ParseInt(rec[1], 10, 64); err != nil {
			return nil, fmt.Errorf("line %d: bad id: %w", line, err)
		}
		var v [5]float64
		for i := range v {
			if v[i], err = strconv.ParseFloat(rec[i+2], 64); err != nil {
				return nil, fmt.Errorf("line %d: field %d: %w", line, i+3, err)
			}
		}
		res.Box = bbox.Box{X: v[0], Y: v[1], W: v[2], H: v[3]}
		res.Score = v[4]
		out = append(out, res)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Frame != out[j].Frame {
			return out[i].Frame < out[j].Frame
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
