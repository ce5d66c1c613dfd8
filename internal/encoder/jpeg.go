package encoder

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync/atomic"
)

// DefaultQuality is used when no quality is configured.
const DefaultQuality = 80

// JPEGEncoder encodes frames as baseline JPEG.
type JPEGEncoder struct {
	quality atomic.Int32
	// sizeHint grows to the largest frame seen so the buffer is allocated once.
	sizeHint atomic.Int64
}

// NewJPEGEncoder creates a JPEG encoder with the given quality, clamped to 1-100.
func NewJPEGEncoder(quality int) *JPEGEncoder {
	e := &JPEGEncoder{}
	e.SetQuality(quality)
	e.sizeHint.Store(256 * 1024)
	return e
}

// SetQuality changes the quality used by later calls to Encode.
func (e *JPEGEncoder) SetQuality(quality int) {
	e.quality.Store(int32(min(max(quality, 1), 100)))
}

// Quality returns the current quality setting.
func (e *JPEGEncoder) Quality() int {
	return int(e.quality.Load())
}

func (e *JPEGEncoder) Encode(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, errors.New("encode jpeg: nil image")
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("encode jpeg: empty image %v", img.Bounds())
	}
	var buf bytes.Buffer
	buf.Grow(int(e.sizeHint.Load()))
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.Quality()}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	if n := int64(buf.Len()); n > e.sizeHint.Load() {
		e.sizeHint.Store(n)
	}
	return buf.Bytes(), nil
}
