package tracker

// TrackingMetrics holds aggregate tracker counters since construction or the
// last Reset. Used by the pipeline stats and the run store.
type TrackingMetrics struct {
	Frames int `json:"frames"`

	// Live tracks by state
	LiveTracks      int `json:"live_tracks"`
	TentativeTracks int `json:"tentative_tracks"`
	ConfirmedTracks int `json:"confirmed_tracks"`
	LostTracks      int `json:"lost_tracks"`

	// Totals since last reset
	TracksCreated   int `json:"tracks_created"`
	TracksConfirmed int `json:"tracks_confirmed"`
	TracksRemoved   int `json:"tracks_removed"`
	// Lost tracks re-matched back to Confirmed
	Recoveries int `json:"recoveries"`
	// Stage-2 matches against low-confidence detections
	LowScoreMatches int `json:"low_score_matches"`

	DroppedDetections int `json:"dropped_detections"`
	DroppedEmbeddings int `json:"dropped_embeddings"`
	CMCFailures       int `json:"cmc_failures"`

	// Track fragmentation: fraction of created tracks that never confirmed [0, 1]
	FragmentationRatio float32 `json:"fragmentation_ratio"`
	// CoastingRatio is the fraction of live-track-frames without a match. [0, 1]
	CoastingRatio float32 `json:"coasting_ratio"`
}

type counters struct {
	frames            int
	created           int
	confirmed         int
	removed           int
	recoveries        int
	lowScoreMatches   int
	droppedDetections int
	droppedEmbeddings int
	cmcFailures       int
	trackFrames       int
	coastingFrames    int
}

// GetTrackingMetrics returns a snapshot of the tracker counters.
func (t *Tracker) GetTrackingMetrics() TrackingMetrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	c := t.counters
	m := TrackingMetrics{
		Frames:            c.frames,
		TracksCreated:     c.created,
		TracksConfirmed:   c.confirmed,
		TracksRemoved:     c.removed,
		Recoveries:        c.recoveries,
		LowScoreMatches:   c.lowScoreMatches,
		DroppedDetections: c.droppedDetections,
		DroppedEmbeddings: c.droppedEmbeddings,
		CMCFailures:       c.cmcFailures,
	}
	for _, tr := range t.tracks {
		m.LiveTracks++
		switch tr.State {
		case Tentative:
			m.TentativeTracks++
		case Confirmed:
			m.ConfirmedTracks++
		case Lost:
			m.LostTracks++
		}
	}
	if c.created > 0 {
		m.FragmentationRatio = 1 - float32(c.confirmed)/float32(c.created)
	}
	if c.trackFrames > 0 {
		m.CoastingRatio = float32(c.coastingFrames) / float32(c.trackFrames)
	}
	return m
}
