// Command mottrack runs the tracker over a MOTChallenge-style sequence:
// detections from det.txt, frames from an image directory, results written
// as MOT text, to the SQLite store and as plots.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/banshee-data/motrack/internal/config"
	"github.com/banshee-data/motrack/internal/fsutil"
	"github.com/banshee-data/motrack/internal/monitoring"
	_ "github.com/banshee-data/motrack/internal/mot/cmc/cvgmc"
	"github.com/banshee-data/motrack/internal/mot/debug"
	"github.com/banshee-data/motrack/internal/mot/monitor"
	"github.com/banshee-data/motrack/internal/mot/motchallenge"
	"github.com/banshee-data/motrack/internal/mot/pipeline"
	"github.com/banshee-data/motrack/internal/mot/storage/sqlite"
	"github.com/banshee-data/motrack/internal/mot/tracker"
	"github.com/banshee-data/motrack/internal/version"
)

var (
	showVersion = flag.Bool("version", false, "Print version and exit")
	configPath  = flag.String("config", "", "Tracker tuning JSON (defaults apply to omitted keys)")
	sequence    = flag.String("seq", "", "Sequence name recorded with the run (defaults to the det file's directory)")
	detPath     = flag.String("det", "", "MOTChallenge det.txt to replay")
	imgDir      = flag.String("img", "", "Directory of frames; without it frames carry no image and CMC is skipped")
	frames      = flag.Int("frames", 0, "Frame count when -img is not set (0 = last frame in -det)")
	outPath     = flag.String("out", "", "Write MOTChallenge results to this file")
	dbPath      = flag.String("db", "", "Record the run in this SQLite database")
	plotPath    = flag.String("plot", "", "Write a trajectory PNG")
	chartPath   = flag.String("chart", "", "Write a track-count HTML chart")
	debugPath   = flag.String("debug-out", "", "Write per-frame tracker internals as JSON lines")
	logEvery    = flag.Int("log-every", 100, "Log progress every n frames (0 disables)")
	listen      = flag.String("listen", "", "After the run, serve /debug/ routes over the database on this address until interrupted")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *detPath == "" {
		log.Fatal("-det is required")
	}
	if *listen != "" && *dbPath == "" {
		log.Fatal("-listen requires -db")
	}

	tuning := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		if tuning, err = config.LoadTuningConfig(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	cfg := tracker.ConfigFromTuning(tuning)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fs := fsutil.OSFileSystem{}
	if err := checkInputs(fs, *detPath, *imgDir); err != nil {
		log.Fatalf("%v", err)
	}
	det, err := motchallenge.LoadDetections(fs, *detPath)
	if err != nil {
		log.Fatalf("failed to load detections: %v", err)
	}

	var source pipeline.FrameSource
	if *imgDir != "" {
		src, err := pipeline.NewImageDirSource(fs, *imgDir)
		if err != nil {
			log.Fatalf("failed to open frames: %v", err)
		}
		source = src
	} else {
		n := *frames
		if n == 0 {
			n = det.LastFrame()
		}
		if cfg.CMC.Method != "none" && cfg.CMC.Method != "file" {
			monitoring.Logf("cmc_method %q needs frames; no -img given so every frame falls back to identity", cfg.CMC.Method)
		}
		source = pipeline.NewBlankSource(n)
	}

	tr, err := tracker.NewTracker(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer func() {
		if err := tr.Close(); err != nil {
			log.Printf("%v", err)
		}
	}()

	seq := *sequence
	if seq == "" {
		seq = filepath.Base(filepath.Dir(filepath.Dir(*detPath)))
	}

	var (
		sinks   []pipeline.Sink
		store   *sqlite.Store
		runSink *sqlite.RunSink
	)
	if *outPath != "" {
		if dir := filepath.Dir(*outPath); dir != "." {
			if err := fs.MkdirAll(dir, 0o755); err != nil {
				log.Fatalf("failed to create output directory: %v", err)
			}
		}
		w, err := motchallenge.NewResultWriter(fs, *outPath)
		if err != nil {
			log.Fatalf("%v", err)
		}
		sinks = append(sinks, w)
	}
	if *dbPath != "" {
		if store, err = sqlite.Open(*dbPath); err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer store.Close()
		if runSink, err = store.NewRunSink(ctx, seq, tuning); err != nil {
			log.Fatalf("failed to start run: %v", err)
		}
		sinks = append(sinks, runSink)
	}
	if *plotPath != "" {
		sinks = append(sinks, monitor.NewTrajectoryPlotter(fs, *plotPath, seq))
	}
	if *chartPath != "" {
		sinks = append(sinks, monitor.NewTrackCountChart(fs, *chartPath, seq))
	}
	if *debugPath != "" {
		f, err := fs.Create(*debugPath)
		if err != nil {
			log.Fatalf("failed to create debug output: %v", err)
		}
		collector := debug.NewDebugCollector()
		collector.SetEnabled(true)
		tr.SetDebugCollector(collector)
		sinks = append(sinks, &debugSink{collector: collector, w: f, enc: json.NewEncoder(f)})
	}

	runner, err := pipeline.NewRunner(pipeline.Config{
		Source:   source,
		Detector: det,
		Tracker:  tr,
		WithReID: cfg.WithReID,
		Sinks:    sinks,
		LogEvery: *logEvery,
	})
	if err != nil {
		log.Fatalf("%v", err)
	}

	stats, runErr := runner.Run(ctx)
	if runSink != nil {
		if err := store.FinishRun(context.Background(), runSink.RunID(), stats); err != nil {
			log.Printf("failed to record run stats: %v", err)
		}
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Fatalf("run failed: %v", runErr)
	}

	m := stats.Tracking
	log.Printf("%s: %d frames, %d tracks (%d confirmed, %d recovered), fragmentation %.3f, mean latency %v",
		seq, stats.Frames, m.TracksCreated, m.TracksConfirmed, m.Recoveries, m.FragmentationRatio, stats.MeanLatency)

	if *listen != "" && ctx.Err() == nil {
		serve(ctx, store)
	}
}

// checkInputs reports missing input paths before any output is created.
func checkInputs(fs fsutil.FileSystem, det, img string) error {
	if !fs.Exists(det) {
		return fmt.Errorf("detections file %s does not exist", det)
	}
	if img != "" && !fs.Exists(img) {
		return fmt.Errorf("frame directory %s does not exist", img)
	}
	return nil
}

// serve exposes the admin routes until ctx is cancelled.
func serve(ctx context.Context, store *sqlite.Store) {
	mux := http.NewServeMux()
	if err := monitor.AttachAdminRoutes(mux, store); err != nil {
		log.Fatalf("%v", err)
	}
	server := &http.Server{Addr: *listen, Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()
	log.Printf("serving debug routes on %s/debug/", *listen)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		server.Close()
	}
}

// debugSink drains the tracker's debug collector once per frame.
type debugSink struct {
	collector *debug.DebugCollector
	w         io.WriteCloser
	enc       *json.Encoder
}

func (d *debugSink) RecordFrame(context.Context, int, []tracker.Output) error {
	f := d.collector.Emit()
	if f == nil {
		return nil
	}
	return d.enc.Encode(f)
}

func (d *debugSink) Close() error { return d.w.Close() }

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s -det det/det.txt [-img img1] [flags]\n", os.Args[0])
		flag.PrintDefaults()
	}
}
