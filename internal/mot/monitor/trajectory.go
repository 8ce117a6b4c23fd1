package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/motrack/internal/fsutil"
	"github.com/banshee-data/motrack/internal/mot/tracker"
)

// maxLegendEntries caps the legend; busier plots are drawn without one.
const maxLegendEntries = 20

// TrajectoryPlotter collects the centre of every reported box and draws one
// polyline per track in image coordinates (y grows downward). It is a
// pipeline sink: the PNG is written on Close.
type TrajectoryPlotter struct {
	fs    fsutil.FileSystem
	path  string
	title string

	Width, Height vg.Length

	mu     sync.Mutex
	tracks map[int64]plotter.XYs
}

// NewTrajectoryPlotter writes to path through fs on Close.
func NewTrajectoryPlotter(fs fsutil.FileSystem, path, title string) *TrajectoryPlotter {
	return &TrajectoryPlotter{
		fs:     fs,
		path:   path,
		title:  title,
		Width:  10 * vg.Inch,
		Height: 6 * vg.Inch,
		tracks: make(map[int64]plotter.XYs),
	}
}

// RecordFrame implements pipeline.Sink.
func (tp *TrajectoryPlotter) RecordFrame(_ context.Context, _ int, tracks []tracker.Output) error {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	for _, t := range tracks {
		cx, cy := t.Box.Center()
		tp.tracks[t.ID] = append(tp.tracks[t.ID], plotter.XY{X: cx, Y: cy})
	}
	return nil
}

// TrackCount returns the number of distinct tracks seen.
func (tp *TrajectoryPlotter) TrackCount() int {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return len(tp.tracks)
}

// Render writes the plot as PNG.
func (tp *TrajectoryPlotter) Render(w io.Writer) error {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	p := plot.New()
	p.Title.Text = tp.title
	p.X.Label.Text = "x (px)"
	p.Y.Label.Text = "y (px)"
	p.Y.Scale = plot.InvertedScale{Normalizer: plot.LinearScale{}}
	p.Add(plotter.NewGrid())

	ids := make([]int64, 0, len(tp.tracks))
	for id := range tp.tracks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	colors := generateColors(len(ids))

	for i, id := range ids {
		line, err := plotter.NewLine(tp.tracks[id])
		if err != nil {
			return fmt.Errorf("track %d: %w", id, err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1.5)
		p.Add(line)
		if len(ids) <= maxLegendEntries {
			p.Legend.Add(fmt.Sprintf("#%d", id), line)
		}
	}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	wt, err := p.WriterTo(tp.Width, tp.Height, "png")
	if err != nil {
		return fmt.Errorf("failed to create png writer: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// Close renders the PNG to the configured path.
func (tp *TrajectoryPlotter) Close() error {
	f, err := tp.fs.Create(tp.path)
	if err != nil {
		return fmt.Errorf("failed to create trajectory plot: %w", err)
	}
	rerr := tp.Render(f)
	return errors.Join(rerr, f.Close())
}
