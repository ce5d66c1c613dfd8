// Package screen grabs frames from a local display.
package screen

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/kbinani/screenshot"

	"github.com/junsooki/camstream/internal/capture"
)

// ErrPermission is returned by Open when the OS denies screen recording.
var ErrPermission = errors.New("screen: recording permission not granted; grant it in System Settings and restart")

// Grabber captures one display.
type Grabber struct {
	bounds image.Rectangle
}

// Open selects display index (0 is the primary display).
func Open(index int) (*Grabber, error) {
	if err := checkPermission(); err != nil {
		return nil, err
	}
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return nil, fmt.Errorf("no active displays")
	}
	if index < 0 || index >= n {
		return nil, fmt.Errorf("display index %d out of range (have %d displays)", index, n)
	}
	return &Grabber{bounds: screenshot.GetDisplayBounds(index)}, nil
}

func (g *Grabber) Grab(ctx context.Context) (*capture.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := screenshot.CaptureRect(g.bounds)
	if err != nil {
		return nil, fmt.Errorf("capture display: %w", err)
	}
	return &capture.Frame{Image: img, Timestamp: time.Now()}, nil
}

func (g *Grabber) Close() error {
	return nil
}
