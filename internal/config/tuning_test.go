package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTuningConfig(t *testing.T) {
	cfg := DefaultTuningConfig()

	require.NotNil(t, cfg.TrackHighThresh)
	assert.Equal(t, 0.6, *cfg.TrackHighThresh)
	assert.Equal(t, 0.1, cfg.GetTrackLowThresh())
	assert.Equal(t, 0.7, cfg.GetNewTrackThresh())
	assert.Equal(t, 30, cfg.GetTrackBuffer())
	assert.Equal(t, 0.8, cfg.GetMatchThresh())
	assert.Equal(t, 0.5, cfg.GetSecondMatchThresh())
	assert.Equal(t, 2, cfg.GetMinHits())
	assert.True(t, cfg.GetFuseScore())
	assert.False(t, cfg.GetWithReID())
	assert.Equal(t, CMCNone, cfg.GetCMCMethod())
	assert.Equal(t, SolverJV, cfg.GetAssignmentSolver())
	assert.InDelta(t, 0.05, cfg.GetKalmanStdWeightPosition(), 1e-12)
	assert.InDelta(t, 0.00625, cfg.GetKalmanStdWeightVelocity(), 1e-12)
	assert.NoError(t, cfg.Validate())
}

// The repo defaults file and the compiled-in defaults must agree.
func TestDefaultsFileMatchesCompiledDefaults(t *testing.T) {
	fromFile := MustLoadDefaultConfig()
	if diff := cmp.Diff(DefaultTuningConfig(), fromFile); diff != "" {
		t.Errorf("config/tracker.defaults.json drifted from DefaultTuningConfig (-want +got):\n%s", diff)
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "track_high_thresh": 0.5,
  "track_buffer": 60,
  "cmc_method": "ecc",
  "with_reid": true
}`
	require.NoError(t, os.WriteFile(configPath, []byte(testJSON), 0644))

	cfg, err := LoadTuningConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.GetTrackHighThresh())
	assert.Equal(t, 60, cfg.GetTrackBuffer())
	assert.Equal(t, CMCECC, cfg.GetCMCMethod())
	assert.True(t, cfg.GetWithReID())
	// Omitted fields fall back to defaults.
	assert.Equal(t, 0.1, cfg.GetTrackLowThresh())
	assert.Nil(t, cfg.MatchThresh)
	assert.Equal(t, 0.8, cfg.GetMatchThresh())
}

func TestLoadTuningConfig_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadTuningConfig("/nonexistent/path/to/config.json")
		assert.Error(t, err)
	})

	t.Run("wrong extension", func(t *testing.T) {
		_, err := LoadTuningConfig(filepath.Join(tmpDir, "config.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), ".json")
	})

	t.Run("invalid json", func(t *testing.T) {
		p := filepath.Join(tmpDir, "invalid.json")
		require.NoError(t, os.WriteFile(p, []byte(`{"track_high_thresh": "x"`), 0644))
		_, err := LoadTuningConfig(p)
		assert.Error(t, err)
	})

	t.Run("fails validation", func(t *testing.T) {
		p := filepath.Join(tmpDir, "bad.json")
		require.NoError(t, os.WriteFile(p, []byte(`{"track_low_thresh": 0.9}`), 0644))
		_, err := LoadTuningConfig(p)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})

	t.Run("too large", func(t *testing.T) {
		p := filepath.Join(tmpDir, "big.json")
		big := make([]byte, 1024*1024+1)
		for i := range big {
			big[i] = ' '
		}
		require.NoError(t, os.WriteFile(p, big, 0644))
		_, err := LoadTuningConfig(p)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too large")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *TuningConfig
		wantErr string
	}{
		{name: "defaults", cfg: DefaultTuningConfig()},
		{name: "empty config is valid", cfg: &TuningConfig{}},
		{name: "zero frame rate", cfg: &TuningConfig{FrameRate: ptrFloat64(0)}, wantErr: "frame_rate"},
		{name: "high thresh above one", cfg: &TuningConfig{TrackHighThresh: ptrFloat64(1.2)}, wantErr: "track_high_thresh"},
		{name: "zero low thresh", cfg: &TuningConfig{TrackLowThresh: ptrFloat64(0)}, wantErr: "track_low_thresh"},
		{name: "low equals high", cfg: &TuningConfig{TrackLowThresh: ptrFloat64(0.6)}, wantErr: "below track_high_thresh"},
		{name: "new below high", cfg: &TuningConfig{NewTrackThresh: ptrFloat64(0.5)}, wantErr: "new_track_thresh"},
		{name: "zero track buffer", cfg: &TuningConfig{TrackBuffer: ptrInt(0)}, wantErr: "track_buffer"},
		{name: "negative match thresh", cfg: &TuningConfig{MatchThresh: ptrFloat64(-0.1)}, wantErr: "match_thresh"},
		{name: "embedding alpha one", cfg: &TuningConfig{EmbeddingAlpha: ptrFloat64(1)}, wantErr: "embedding_alpha"},
		{name: "min hits zero", cfg: &TuningConfig{MinHits: ptrInt(0)}, wantErr: "min_hits"},
		{name: "unknown cmc", cfg: &TuningConfig{CMCMethod: ptrString("optical")}, wantErr: "cmc_method"},
		{name: "file cmc without path", cfg: &TuningConfig{CMCMethod: ptrString(CMCFile)}, wantErr: "cmc_file"},
		{name: "file cmc with path", cfg: &TuningConfig{CMCMethod: ptrString(CMCFile), CMCFile: ptrString("gmc.txt")}},
		{name: "downscale zero", cfg: &TuningConfig{CMCDownscale: ptrInt(0)}, wantErr: "cmc_downscale"},
		{name: "min matches two", cfg: &TuningConfig{CMCMinMatches: ptrInt(2)}, wantErr: "cmc_min_matches"},
		{name: "confidence one", cfg: &TuningConfig{CMCRansacConfidence: ptrFloat64(1)}, wantErr: "cmc_ransac_confidence"},
		{name: "unknown solver", cfg: &TuningConfig{AssignmentSolver: ptrString("greedy")}, wantErr: "assignment_solver"},
		{name: "negative workers", cfg: &TuningConfig{MaxWorkers: ptrInt(-1)}, wantErr: "max_workers"},
		{name: "negative kalman weight", cfg: &TuningConfig{KalmanStdWeightPosition: ptrFloat64(-1)}, wantErr: "kalman_std_weight_position"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetTrackBufferFrames(t *testing.T) {
	tests := []struct {
		name string
		cfg  *TuningConfig
		want int
	}{
		{name: "defaults", cfg: &TuningConfig{}, want: 30},
		{name: "double frame rate", cfg: &TuningConfig{FrameRate: ptrFloat64(60)}, want: 60},
		{name: "fractional truncates", cfg: &TuningConfig{FrameRate: ptrFloat64(25)}, want: 25},
		{name: "never below one", cfg: &TuningConfig{FrameRate: ptrFloat64(1), TrackBuffer: ptrInt(1)}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.GetTrackBufferFrames())
		})
	}
}
