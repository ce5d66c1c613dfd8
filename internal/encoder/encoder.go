package encoder

import "image"

// Encoder compresses an image into a frame payload.
type Encoder interface {
	Encode(img image.Image) ([]byte, error)
}
