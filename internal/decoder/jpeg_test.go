package decoder

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func encodeTestJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{uint8(x * 8), uint8(y * 8), 0x40, 0xff})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("jpeg.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestJPEGDecoderDecodesToRGBA(t *testing.T) {
	data := encodeTestJPEG(t, 20, 10)

	img, err := NewJPEGDecoder(0).Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if img.Bounds() != image.Rect(0, 0, 20, 10) {
		t.Fatalf("bounds = %v, want 20x10 at origin", img.Bounds())
	}
	if a := img.RGBAAt(5, 5).A; a != 0xff {
		t.Fatalf("alpha = %d, want opaque", a)
	}
}

func TestJPEGDecoderRejectsOversized(t *testing.T) {
	data := encodeTestJPEG(t, 40, 40)

	_, err := NewJPEGDecoder(100).Decode(data)
	if !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("Decode() error = %v, want ErrImageTooLarge", err)
	}
}

func TestJPEGDecoderRejectsGarbage(t *testing.T) {
	if _, err := NewJPEGDecoder(0).Decode([]byte("ten bytes!")); err == nil {
		t.Fatal("Decode(garbage) succeeded")
	}
}
