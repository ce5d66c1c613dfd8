package decoder

import "image"

// Decoder turns a frame payload back into pixels.
type Decoder interface {
	Decode(data []byte) (*image.RGBA, error)
}
