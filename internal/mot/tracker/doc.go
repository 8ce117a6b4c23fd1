// Package tracker assigns stable identities to detections across video frames.
//
// A Tracker owns every track it creates. Each call to Update processes one
// frame: detections are split by confidence, live tracks are predicted
// forward (while camera motion is estimated concurrently), matched in two
// stages (all tracks against confident detections with the configured cost
// model, then still-unmatched confirmed tracks against weak detections by IoU
// alone), and the lifecycle is advanced:
//
//	Tentative ──hits≥min_hits──▶ Confirmed
//	    │                          │  ▲
//	    └──────── missed ──────────┼──┘ re-matched
//	                               ▼
//	                              Lost ──missed > track_buffer──▶ Removed
//
// Callers receive value snapshots (Output, Track) and never hold references
// into the tracker's state.
package tracker
