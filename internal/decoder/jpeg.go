package decoder

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
)

// DefaultMaxPixels rejects anything above 8K UHD.
const DefaultMaxPixels = 7680 * 4320

// ErrImageTooLarge is returned when a JPEG header declares more pixels than allowed.
var ErrImageTooLarge = errors.New("decoder: image too large")

// JPEGDecoder decodes JPEG bytes into *image.RGBA.
type JPEGDecoder struct {
	maxPixels int
}

// NewJPEGDecoder creates a decoder. A maxPixels of zero selects DefaultMaxPixels.
func NewJPEGDecoder(maxPixels int) *JPEGDecoder {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &JPEGDecoder{maxPixels: maxPixels}
}

func (d *JPEGDecoder) Decode(data []byte) (*image.RGBA, error) {
	// The header is checked first so a hostile size never reaches the allocator.
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode jpeg header: %w", err)
	}
	if cfg.Width*cfg.Height > d.maxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode jpeg: %w", err)
	}
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba, nil
}
