package pipeline

import (
	"context"
	"image"

	"github.com/banshee-data/motrack/internal/mot/bbox"
	"github.com/banshee-data/motrack/internal/mot/tracker"
)

// FrameSource yields consecutive frames. Next returns io.EOF after the last
// frame. Index is 1-based; img may be nil when no pixels are available.
type FrameSource interface {
	Next(ctx context.Context) (index int, img image.Image, err error)
}

// Detector produces the detections for one frame.
type Detector interface {
	Detect(ctx context.Context, frameIndex int, img image.Image) ([]tracker.Detection, error)
}

// Extractor computes one appearance embedding per box. A nil entry means no
// embedding could be computed for that box.
type Extractor interface {
	Extract(ctx context.Context, img image.Image, boxes []bbox.Box) ([][]float32, error)
}

// Sink consumes the tracks reported on each frame.
type Sink interface {
	RecordFrame(ctx context.Context, frameIndex int, tracks []tracker.Output) error
	Close() error
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(ctx context.Context, frameIndex int, img image.Image) ([]tracker.Detection, error)

// Detect implements Detector.
func (f DetectorFunc) Detect(ctx context.Context, frameIndex int, img image.Image) ([]tracker.Detection, error) {
	return f(ctx, frameIndex, img)
}
