// Package stream runs the frame pipeline on both ends of a connection: the
// writer that puts encoded frames on the wire and the reader that decodes them
// into the latest-frame slot and an optional recording tap.
package stream

import (
	"image"
	"time"
)

// Frame is one decoded frame on the consumer side.
type Frame struct {
	Seq        uint64
	Payload    []byte
	Image      *image.RGBA
	ReceivedAt time.Time
}

// Tap receives every decoded frame in order. Offer must not block.
type Tap interface {
	Offer(img *image.RGBA)
}
