// Package pipeline drives a tracker from a frame source.
//
// This package is the composition root for a tracking run: it pulls frames
// from a FrameSource, asks a Detector (and optionally an Extractor) for
// detections, feeds them to a tracker.Tracker and fans the reported tracks
// out to Sinks. The tracker package never imports pipeline.
package pipeline
