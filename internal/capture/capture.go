package capture

import (
	"context"
	"image"
	"time"
)

// Frame is one captured image. Sources that deliver compressed frames fill
// JPEG and leave Image nil.
type Frame struct {
	Seq       uint64
	Image     *image.RGBA
	JPEG      []byte
	Timestamp time.Time
}

// Grabber produces a single frame per call.
type Grabber interface {
	Grab(ctx context.Context) (*Frame, error)
	Close() error
}

// Source delivers frames on a channel until stopped.
type Source interface {
	Start() error
	Stop()
	Frames() <-chan *Frame
}
