package tracker

import (
	"fmt"
	"math"

	"github.com/banshee-data/motrack/internal/config"
	"github.com/banshee-data/motrack/internal/mot/cmc"
)

// Config holds all tracker tuning. Build it with DefaultConfig or
// ConfigFromTuning; NewTracker validates it.
type Config struct {
	FrameRate float64
	// TrackBuffer is the tolerated absence at 30 fps; see BufferFrames.
	TrackBuffer int

	TrackHighThresh float64
	TrackLowThresh  float64
	NewTrackThresh  float64

	MatchThresh       float64
	SecondMatchThresh float64
	ProximityThresh   float64
	AppearanceThresh  float64
	AppearanceWeight  float64
	EmbeddingAlpha    float64
	FuseScore         bool
	WithReID          bool
	Solver            string

	AspectRatioThresh float64
	MinBoxArea        float64
	MinHits           int

	KalmanStdWeightPosition float64
	KalmanStdWeightVelocity float64

	// CMC selects the camera motion estimator. Estimator, when set, is used
	// instead and CMC.Method is ignored.
	CMC          cmc.Options
	Estimator    cmc.Estimator
	CMCWarpState bool

	// MaxWorkers bounds predict-phase parallelism; 0 means GOMAXPROCS.
	MaxWorkers int
}

// DefaultConfig returns the compiled-in defaults.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning maps a tuning file onto a tracker Config.
func ConfigFromTuning(tc *config.TuningConfig) Config {
	return Config{
		FrameRate:               tc.GetFrameRate(),
		TrackBuffer:             tc.GetTrackBuffer(),
		TrackHighThresh:         tc.GetTrackHighThresh(),
		TrackLowThresh:          tc.GetTrackLowThresh(),
		NewTrackThresh:          tc.GetNewTrackThresh(),
		MatchThresh:             tc.GetMatchThresh(),
		SecondMatchThresh:       tc.GetSecondMatchThresh(),
		ProximityThresh:         tc.GetProximityThresh(),
		AppearanceThresh:        tc.GetAppearanceThresh(),
		AppearanceWeight:        tc.GetAppearanceWeight(),
		EmbeddingAlpha:          tc.GetEmbeddingAlpha(),
		FuseScore:               tc.GetFuseScore(),
		WithReID:                tc.GetWithReID(),
		Solver:                  tc.GetAssignmentSolver(),
		AspectRatioThresh:       tc.GetAspectRatioThresh(),
		MinBoxArea:              tc.GetMinBoxArea(),
		MinHits:                 tc.GetMinHits(),
		KalmanStdWeightPosition: tc.GetKalmanStdWeightPosition(),
		KalmanStdWeightVelocity: tc.GetKalmanStdWeightVelocity(),
		CMC: cmc.Options{
			Method:     tc.GetCMCMethod(),
			Downscale:  tc.GetCMCDownscale(),
			MinMatches: tc.GetCMCMinMatches(),
			RANSAC: cmc.RANSACOptions{
				ReprojThresh: tc.GetCMCRansacReprojThresh(),
				MaxIters:     tc.GetCMCRansacMaxIters(),
				Confidence:   tc.GetCMCRansacConfidence(),
				MinInliers:   tc.GetCMCMinMatches(),
				Seed:         1,
			},
			ECCMaxIters: tc.GetCMCECCMaxIters(),
			ECCEps:      tc.GetCMCECCEps(),
			File:        tc.GetCMCFile(),
		},
		CMCWarpState: tc.GetCMCWarpState(),
		MaxWorkers:   tc.GetMaxWorkers(),
	}
}

// BufferFrames is TrackBuffer scaled to the frame rate, at least 1.
func (c Config) BufferFrames() int {
	n := int(c.FrameRate / 30.0 * float64(c.TrackBuffer))
	if n < 1 {
		return 1
	}
	return n
}

func inUnit(v float64, openLow bool) bool {
	if math.IsNaN(v) || v > 1 || v < 0 {
		return false
	}
	return !openLow || v > 0
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case !(c.FrameRate > 0):
		return fmt.Errorf("frame_rate must be positive, got %v", c.FrameRate)
	case c.TrackBuffer <= 0:
		return fmt.Errorf("track_buffer must be positive, got %d", c.TrackBuffer)
	case !inUnit(c.TrackHighThresh, true):
		return fmt.Errorf("track_high_thresh must be in (0, 1], got %v", c.TrackHighThresh)
	case !inUnit(c.TrackLowThresh, true):
		return fmt.Errorf("track_low_thresh must be in (0, 1], got %v", c.TrackLowThresh)
	case !inUnit(c.NewTrackThresh, true):
		return fmt.Errorf("new_track_thresh must be in (0, 1], got %v", c.NewTrackThresh)
	case c.TrackLowThresh >= c.TrackHighThresh:
		return fmt.Errorf("track_low_thresh (%v) must be below track_high_thresh (%v)", c.TrackLowThresh, c.TrackHighThresh)
	case c.NewTrackThresh < c.TrackHighThresh:
		return fmt.Errorf("new_track_thresh (%v) must not be below track_high_thresh (%v)", c.NewTrackThresh, c.TrackHighThresh)
	case !inUnit(c.MatchThresh, false):
		return fmt.Errorf("match_thresh must be in [0, 1], got %v", c.MatchThresh)
	case !inUnit(c.SecondMatchThresh, false):
		return fmt.Errorf("second_match_thresh must be in [0, 1], got %v", c.SecondMatchThresh)
	case !inUnit(c.ProximityThresh, false):
		return fmt.Errorf("proximity_thresh must be in [0, 1], got %v", c.ProximityThresh)
	case !inUnit(c.AppearanceThresh, false):
		return fmt.Errorf("appearance_thresh must be in [0, 1], got %v", c.AppearanceThresh)
	case !inUnit(c.AppearanceWeight, false):
		return fmt.Errorf("appearance_weight must be in [0, 1], got %v", c.AppearanceWeight)
	case !(c.EmbeddingAlpha >= 0 && c.EmbeddingAlpha < 1):
		return fmt.Errorf("embedding_alpha must be in [0, 1), got %v", c.EmbeddingAlpha)
	case !(c.AspectRatioThresh > 0):
		return fmt.Errorf("aspect_ratio_thresh must be positive, got %v", c.AspectRatioThresh)
	case !(c.MinBoxArea >= 0):
		return fmt.Errorf("min_box_area must be non-negative, got %v", c.MinBoxArea)
	case c.MinHits < 1:
		return fmt.Errorf("min_hits must be at least 1, got %d", c.MinHits)
	case c.MaxWorkers < 0:
		return fmt.Errorf("max_workers must be non-negative, got %d", c.MaxWorkers)
	case c.Estimator == nil && c.CMC.Downscale < 1:
		return fmt.Errorf("cmc_downscale must be at least 1, got %d", c.CMC.Downscale)
	}
	return nil
}
