package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/motrack/internal/fsutil"
	"github.com/banshee-data/motrack/internal/mot/tracker"
)

// echartsAssetsPrefix is where rendered pages load echarts.min.js from.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// TrackCountChart records how many tracks are reported on every frame and
// renders an HTML line chart on Close.
type TrackCountChart struct {
	fs    fsutil.FileSystem
	path  string
	title string

	mu     sync.Mutex
	frames []int
	counts []int
	// cumulative unique IDs seen so far
	unique []int
	seen   map[int64]struct{}
}

// NewTrackCountChart writes to path through fs on Close.
func NewTrackCountChart(fs fsutil.FileSystem, path, title string) *TrackCountChart {
	return &TrackCountChart{fs: fs, path: path, title: title, seen: make(map[int64]struct{})}
}

// RecordFrame implements pipeline.Sink.
func (c *TrackCountChart) RecordFrame(_ context.Context, frame int, tracks []tracker.Output) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range tracks {
		c.seen[t.ID] = struct{}{}
	}
	c.frames = append(c.frames, frame)
	c.counts = append(c.counts, len(tracks))
	c.unique = append(c.unique, len(c.seen))
	return nil
}

// Render writes the chart page as HTML.
func (c *TrackCountChart) Render(w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	x := make([]string, len(c.frames))
	active := make([]opts.LineData, len(c.frames))
	unique := make([]opts.LineData, len(c.frames))
	for i, f := range c.frames {
		x[i] = strconv.Itoa(f)
		active[i] = opts.LineData{Value: c.counts[i]}
		unique[i] = opts.LineData{Value: c.unique[i]}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: c.title, Width: "100%", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: c.title, Subtitle: fmt.Sprintf("frames=%d tracks=%d", len(c.frames), len(c.seen))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "frame", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "tracks", NameLocation: "middle", NameGap: 30}),
	)
	line.SetXAxis(x).
		AddSeries("active", active).
		AddSeries("unique IDs", unique)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(line)
	return page.Render(w)
}

// Close renders the chart to the configured path.
func (c *TrackCountChart) Close() error {
	f, err := c.fs.Create(c.path)
	if err != nil {
		return fmt.Errorf("failed to create track chart: %w", err)
	}
	rerr := c.Render(f)
	return errors.Join(rerr, f.Close())
}
