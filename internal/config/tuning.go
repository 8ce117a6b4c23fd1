package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tracker defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tracker.defaults.json"

// CMC method names accepted by cmc_method.
const (
	CMCNone       = "none"
	CMCORB        = "orb"
	CMCSIFT       = "sift"
	CMCECC        = "ecc"
	CMCSparseFlow = "sparse_flow"
	CMCFile       = "file"
)

// Assignment solver names accepted by assignment_solver.
const (
	SolverJV      = "jv"
	SolverMunkres = "munkres"
)

// TuningConfig represents the root configuration for the tracker.
// Every field is optional: nil means "use the default", which the Get*
// methods supply.
type TuningConfig struct {
	// Detection thresholds
	FrameRate       *float64 `json:"frame_rate,omitempty"`
	TrackHighThresh *float64 `json:"track_high_thresh,omitempty"`
	TrackLowThresh  *float64 `json:"track_low_thresh,omitempty"`
	NewTrackThresh  *float64 `json:"new_track_thresh,omitempty"`
	TrackBuffer     *int     `json:"track_buffer,omitempty"`

	// Association
	MatchThresh       *float64 `json:"match_thresh,omitempty"`
	SecondMatchThresh *float64 `json:"second_match_thresh,omitempty"`
	ProximityThresh   *float64 `json:"proximity_thresh,omitempty"`
	AppearanceThresh  *float64 `json:"appearance_thresh,omitempty"`
	AppearanceWeight  *float64 `json:"appearance_weight,omitempty"`
	EmbeddingAlpha    *float64 `json:"embedding_alpha,omitempty"`
	FuseScore         *bool    `json:"fuse_score,omitempty"`
	WithReID          *bool    `json:"with_reid,omitempty"`
	AssignmentSolver  *string  `json:"assignment_solver,omitempty"`

	// Output filtering and lifecycle
	AspectRatioThresh *float64 `json:"aspect_ratio_thresh,omitempty"`
	MinBoxArea        *float64 `json:"min_box_area,omitempty"`
	MinHits           *int     `json:"min_hits,omitempty"`

	// Camera motion compensation
	CMCMethod             *string  `json:"cmc_method,omitempty"`
	CMCDownscale          *int     `json:"cmc_downscale,omitempty"`
	CMCFile               *string  `json:"cmc_file,omitempty"`
	CMCMinMatches         *int     `json:"cmc_min_matches,omitempty"`
	CMCRansacReprojThresh *float64 `json:"cmc_ransac_reproj_thresh,omitempty"`
	CMCRansacMaxIters     *int     `json:"cmc_ransac_max_iters,omitempty"`
	CMCRansacConfidence   *float64 `json:"cmc_ransac_confidence,omitempty"`
	CMCECCMaxIters        *int     `json:"cmc_ecc_max_iters,omitempty"`
	CMCECCEps             *float64 `json:"cmc_ecc_eps,omitempty"`
	CMCWarpState          *bool    `json:"cmc_warp_state,omitempty"`

	// Kalman filter
	KalmanStdWeightPosition *float64 `json:"kalman_std_weight_position,omitempty"`
	KalmanStdWeightVelocity *float64 `json:"kalman_std_weight_velocity,omitempty"`

	// Concurrency; 0 means GOMAXPROCS.
	MaxWorkers *int `json:"max_workers,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated from
// the compiled-in defaults. It mirrors config/tracker.defaults.json.
func DefaultTuningConfig() *TuningConfig {
	e := EmptyTuningConfig()
	return &TuningConfig{
		FrameRate:               ptrFloat64(e.GetFrameRate()),
		TrackHighThresh:         ptrFloat64(e.GetTrackHighThresh()),
		TrackLowThresh:          ptrFloat64(e.GetTrackLowThresh()),
		NewTrackThresh:          ptrFloat64(e.GetNewTrackThresh()),
		TrackBuffer:             ptrInt(e.GetTrackBuffer()),
		MatchThresh:             ptrFloat64(e.GetMatchThresh()),
		SecondMatchThresh:       ptrFloat64(e.GetSecondMatchThresh()),
		ProximityThresh:         ptrFloat64(e.GetProximityThresh()),
		AppearanceThresh:        ptrFloat64(e.GetAppearanceThresh()),
		AppearanceWeight:        ptrFloat64(e.GetAppearanceWeight()),
		EmbeddingAlpha:          ptrFloat64(e.GetEmbeddingAlpha()),
		FuseScore:               ptrBool(e.GetFuseScore()),
		WithReID:                ptrBool(e.GetWithReID()),
		AssignmentSolver:        ptrString(e.GetAssignmentSolver()),
		AspectRatioThresh:       ptrFloat64(e.GetAspectRatioThresh()),
		MinBoxArea:              ptrFloat64(e.GetMinBoxArea()),
		MinHits:                 ptrInt(e.GetMinHits()),
		CMCMethod:               ptrString(e.GetCMCMethod()),
		CMCDownscale:            ptrInt(e.GetCMCDownscale()),
		CMCFile:                 ptrString(e.GetCMCFile()),
		CMCMinMatches:           ptrInt(e.GetCMCMinMatches()),
		CMCRansacReprojThresh:   ptrFloat64(e.GetCMCRansacReprojThresh()),
		CMCRansacMaxIters:       ptrInt(e.GetCMCRansacMaxIters()),
		CMCRansacConfidence:     ptrFloat64(e.GetCMCRansacConfidence()),
		CMCECCMaxIters:          ptrInt(e.GetCMCECCMaxIters()),
		CMCECCEps:               ptrFloat64(e.GetCMCECCEps()),
		CMCWarpState:            ptrBool(e.GetCMCWarpState()),
		KalmanStdWeightPosition: ptrFloat64(e.GetKalmanStdWeightPosition()),
		KalmanStdWeightVelocity: ptrFloat64(e.GetKalmanStdWeightVelocity()),
		MaxWorkers:              ptrInt(e.GetMaxWorkers()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file fall back to the Get* defaults, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/mot/tracker/
		"../../../../" + DefaultConfigPath, // from internal/mot/storage/sqlite/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

func unitInterval(name string, v *float64, openLow bool) error {
	if v == nil {
		return nil
	}
	if *v > 1 || *v < 0 || (openLow && *v == 0) || *v != *v {
		if openLow {
			return fmt.Errorf("%s must be in (0, 1], got %v", name, *v)
		}
		return fmt.Errorf("%s must be between 0 and 1, got %v", name, *v)
	}
	return nil
}

func positiveFloat(name string, v *float64) error {
	if v != nil && !(*v > 0) {
		return fmt.Errorf("%s must be positive, got %v", name, *v)
	}
	return nil
}

func positiveInt(name string, v *int) error {
	if v != nil && *v <= 0 {
		return fmt.Errorf("%s must be positive, got %d", name, *v)
	}
	return nil
}

// Validate checks that the configuration values are valid. Cross-field rules
// are checked against the effective (defaulted) values.
func (c *TuningConfig) Validate() error {
	checks := []error{
		positiveFloat("frame_rate", c.FrameRate),
		unitInterval("track_high_thresh", c.TrackHighThresh, true),
		unitInterval("track_low_thresh", c.TrackLowThresh, true),
		unitInterval("new_track_thresh", c.NewTrackThresh, true),
		positiveInt("track_buffer", c.TrackBuffer),
		unitInterval("match_thresh", c.MatchThresh, false),
		unitInterval("second_match_thresh", c.SecondMatchThresh, false),
		unitInterval("proximity_thresh", c.ProximityThresh, false),
		unitInterval("appearance_thresh", c.AppearanceThresh, false),
		unitInterval("appearance_weight", c.AppearanceWeight, false),
		positiveFloat("aspect_ratio_thresh", c.AspectRatioThresh),
		positiveFloat("cmc_ransac_reproj_thresh", c.CMCRansacReprojThresh),
		positiveInt("cmc_ransac_max_iters", c.CMCRansacMaxIters),
		positiveInt("cmc_ecc_max_iters", c.CMCECCMaxIters),
		positiveFloat("cmc_ecc_eps", c.CMCECCEps),
		positiveFloat("kalman_std_weight_position", c.KalmanStdWeightPosition),
		positiveFloat("kalman_std_weight_velocity", c.KalmanStdWeightVelocity),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}

	if c.EmbeddingAlpha != nil && (*c.EmbeddingAlpha < 0 || *c.EmbeddingAlpha >= 1) {
		return fmt.Errorf("embedding_alpha must be in [0, 1), got %v", *c.EmbeddingAlpha)
	}
	if c.MinBoxArea != nil && *c.MinBoxArea < 0 {
		return fmt.Errorf("min_box_area must be non-negative, got %v", *c.MinBoxArea)
	}
	if c.MinHits != nil && *c.MinHits < 1 {
		return fmt.Errorf("min_hits must be at least 1, got %d", *c.MinHits)
	}
	if c.CMCDownscale != nil && *c.CMCDownscale < 1 {
		return fmt.Errorf("cmc_downscale must be at least 1, got %d", *c.CMCDownscale)
	}
	if c.CMCMinMatches != nil && *c.CMCMinMatches < 3 {
		return fmt.Errorf("cmc_min_matches must be at least 3, got %d", *c.CMCMinMatches)
	}
	if c.CMCRansacConfidence != nil && (*c.CMCRansacConfidence <= 0 || *c.CMCRansacConfidence >= 1) {
		return fmt.Errorf("cmc_ransac_confidence must be in (0, 1), got %v", *c.CMCRansacConfidence)
	}
	if c.MaxWorkers != nil && *c.MaxWorkers < 0 {
		return fmt.Errorf("max_workers must be non-negative, got %d", *c.MaxWorkers)
	}

	if low, high := c.GetTrackLowThresh(), c.GetTrackHighThresh(); low >= high {
		return fmt.Errorf("track_low_thresh (%v) must be below track_high_thresh (%v)", low, high)
	}
	if high, nt := c.GetTrackHighThresh(), c.GetNewTrackThresh(); nt < high {
		return fmt.Errorf("new_track_thresh (%v) must not be below track_high_thresh (%v)", nt, high)
	}

	switch m := c.GetCMCMethod(); m {
	case CMCNone, CMCORB, CMCSIFT, CMCECC, CMCSparseFlow:
	case CMCFile:
		if c.GetCMCFile() == "" {
			return fmt.Errorf("cmc_file is required when cmc_method is %q", CMCFile)
		}
	default:
		return fmt.Errorf("unknown cmc_method %q", m)
	}

	switch s := c.GetAssignmentSolver(); s {
	case SolverJV, SolverMunkres:
	default:
		return fmt.Errorf("unknown assignment_solver %q", s)
	}

	return nil
}

// GetFrameRate returns the frame_rate value or the default.
func (c *TuningConfig) GetFrameRate() float64 {
	if c.FrameRate == nil {
		return 30
	}
	return *c.FrameRate
}

// GetTrackHighThresh returns the track_high_thresh value or the default.
func (c *TuningConfig) GetTrackHighThresh() float64 {
	if c.TrackHighThresh == nil {
		return 0.6
	}
	return *c.TrackHighThresh
}

// GetTrackLowThresh returns the track_low_thresh value or the default.
func (c *TuningConfig) GetTrackLowThresh() float64 {
	if c.TrackLowThresh == nil {
		return 0.1
	}
	return *c.TrackLowThresh
}

// GetNewTrackThresh returns the new_track_thresh value or the default.
func (c *TuningConfig) GetNewTrackThresh() float64 {
	if c.NewTrackThresh == nil {
		return 0.7
	}
	return *c.NewTrackThresh
}

// GetTrackBuffer returns the track_buffer value or the default.
func (c *TuningConfig) GetTrackBuffer() int {
	if c.TrackBuffer == nil {
		return 30
	}
	return *c.TrackBuffer
}

// GetTrackBufferFrames scales track_buffer by frame_rate/30 so the buffer
// covers the same wall-clock time at any frame rate. Never less than 1.
func (c *TuningConfig) GetTrackBufferFrames() int {
	n := int(c.GetFrameRate() / 30.0 * float64(c.GetTrackBuffer()))
	if n < 1 {
		return 1
	}
	return n
}

// GetMatchThresh returns the match_thresh value or the default.
func (c *TuningConfig) GetMatchThresh() float64 {
	if c.MatchThresh == nil {
		return 0.8
	}
	return *c.MatchThresh
}

// GetSecondMatchThresh returns the second_match_thresh value or the default.
func (c *TuningConfig) GetSecondMatchThresh() float64 {
	if c.SecondMatchThresh == nil {
		return 0.5
	}
	return *c.SecondMatchThresh
}

// GetProximityThresh returns the proximity_thresh value or the default.
func (c *TuningConfig) GetProximityThresh() float64 {
	if c.ProximityThresh == nil {
		return 0.5
	}
	return *c.ProximityThresh
}

// GetAppearanceThresh returns the appearance_thresh value or the default.
func (c *TuningConfig) GetAppearanceThresh() float64 {
	if c.AppearanceThresh == nil {
		return 0.25
	}
	return *c.AppearanceThresh
}

// GetAppearanceWeight returns the appearance_weight value or the default.
func (c *TuningConfig) GetAppearanceWeight() float64 {
	if c.AppearanceWeight == nil {
		return 1.0
	}
	return *c.AppearanceWeight
}

// GetEmbeddingAlpha returns the embedding_alpha value or the default.
func (c *TuningConfig) GetEmbeddingAlpha() float64 {
	if c.EmbeddingAlpha == nil {
		return 0.9
	}
	return *c.EmbeddingAlpha
}

// GetFuseScore returns the fuse_score value or the default.
func (c *TuningConfig) GetFuseScore() bool {
	if c.FuseScore == nil {
		return true
	}
	return *c.FuseScore
}

// GetWithReID returns the with_reid value or the default.
func (c *TuningConfig) GetWithReID() bool {
	if c.WithReID == nil {
		return false
	}
	return *c.WithReID
}

// GetAssignmentSolver returns the assignment_solver value or the default.
func (c *TuningConfig) GetAssignmentSolver() string {
	if c.AssignmentSolver == nil || *c.AssignmentSolver == "" {
		return SolverJV
	}
	return *c.AssignmentSolver
}

// GetAspectRatioThresh returns the aspect_ratio_thresh value or the default.
func (c *TuningConfig) GetAspectRatioThresh() float64 {
	if c.AspectRatioThresh == nil {
		return 1.6
	}
	return *c.AspectRatioThresh
}

// GetMinBoxArea returns the min_box_area value or the default.
func (c *TuningConfig) GetMinBoxArea() float64 {
	if c.MinBoxArea == nil {
		return 10
	}
	return *c.MinBoxArea
}

// GetMinHits returns the min_hits value or the default.
func (c *TuningConfig) GetMinHits() int {
	if c.MinHits == nil {
		return 2
	}
	return *c.MinHits
}

// GetCMCMethod returns the cmc_method value or the default.
func (c *TuningConfig) GetCMCMethod() string {
	if c.CMCMethod == nil || *c.CMCMethod == "" {
		return CMCNone
	}
	return *c.CMCMethod
}

// GetCMCDownscale returns the cmc_downscale value or the default.
func (c *TuningConfig) GetCMCDownscale() int {
	if c.CMCDownscale == nil {
		return 2
	}
	return *c.CMCDownscale
}

// GetCMCFile returns the cmc_file value or the default.
func (c *TuningConfig) GetCMCFile() string {
	if c.CMCFile == nil {
		return ""
	}
	return *c.CMCFile
}

// GetCMCMinMatches returns the cmc_min_matches value or the default.
func (c *TuningConfig) GetCMCMinMatches() int {
	if c.CMCMinMatches == nil {
		return 5
	}
	return *c.CMCMinMatches
}

// GetCMCRansacReprojThresh returns the cmc_ransac_reproj_thresh value or the default.
func (c *TuningConfig) GetCMCRansacReprojThresh() float64 {
	if c.CMCRansacReprojThresh == nil {
		return 3.0
	}
	return *c.CMCRansacReprojThresh
}

// GetCMCRansacMaxIters returns the cmc_ransac_max_iters value or the default.
func (c *TuningConfig) GetCMCRansacMaxIters() int {
	if c.CMCRansacMaxIters == nil {
		return 500
	}
	return *c.CMCRansacMaxIters
}

// GetCMCRansacConfidence returns the cmc_ransac_confidence value or the default.
func (c *TuningConfig) GetCMCRansacConfidence() float64 {
	if c.CMCRansacConfidence == nil {
		return 0.99
	}
	return *c.CMCRansacConfidence
}

// GetCMCECCMaxIters returns the cmc_ecc_max_iters value or the default.
func (c *TuningConfig) GetCMCECCMaxIters() int {
	if c.CMCECCMaxIters == nil {
		return 100
	}
	return *c.CMCECCMaxIters
}

// GetCMCECCEps returns the cmc_ecc_eps value or the default.
func (c *TuningConfig) GetCMCECCEps() float64 {
	if c.CMCECCEps == nil {
		return 1e-5
	}
	return *c.CMCECCEps
}

// GetCMCWarpState returns the cmc_warp_state value or the default.
func (c *TuningConfig) GetCMCWarpState() bool {
	if c.CMCWarpState == nil {
		return false
	}
	return *c.CMCWarpState
}

// GetKalmanStdWeightPosition returns the kalman_std_weight_position value or the default.
func (c *TuningConfig) GetKalmanStdWeightPosition() float64 {
	if c.KalmanStdWeightPosition == nil {
		return 1.0 / 20
	}
	return *c.KalmanStdWeightPosition
}

// GetKalmanStdWeightVelocity returns the kalman_std_weight_velocity value or the default.
func (c *TuningConfig) GetKalmanStdWeightVelocity() float64 {
	if c.KalmanStdWeightVelocity == nil {
		return 1.0 / 160
	}
	return *c.KalmanStdWeightVelocity
}

// GetMaxWorkers returns the max_workers value or the default.
func (c *TuningConfig) GetMaxWorkers() int {
	if c.MaxWorkers == nil {
		return 0
	}
	return *c.MaxWorkers
}
