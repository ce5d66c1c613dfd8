package capture

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"time"
)

// PatternGrabber renders a moving colour-bar test pattern. It stands in for
// a camera when none is attached.
type PatternGrabber struct {
	width  int
	height int
	tick   int
}

var patternBars = []color.RGBA{
	{0xC0, 0xC0, 0xC0, 0xFF},
	{0xC0, 0xC0, 0x00, 0xFF},
	{0x00, 0xC0, 0xC0, 0xFF},
	{0x00, 0xC0, 0x00, 0xFF},
	{0xC0, 0x00, 0xC0, 0xFF},
	{0xC0, 0x00, 0x00, 0xFF},
	{0x00, 0x00, 0xC0, 0xFF},
}

// NewPatternGrabber creates a pattern of the given size.
func NewPatternGrabber(width, height int) (*PatternGrabber, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid pattern size %dx%d", width, height)
	}
	return &PatternGrabber{width: width, height: height}, nil
}

func (p *PatternGrabber) Grab(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, p.width, p.height))
	barW := (p.width + len(patternBars) - 1) / len(patternBars)
	for y := 0; y < p.height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+p.width*4]
		for x := 0; x < p.width; x++ {
			c := patternBars[((x+p.tick)/barW)%len(patternBars)]
			row[x*4+0] = c.R
			row[x*4+1] = c.G
			row[x*4+2] = c.B
			row[x*4+3] = c.A
		}
	}
	// White marker line sweeping downward so motion is visible.
	line := p.tick % p.height
	for x := 0; x < p.width; x++ {
		img.SetRGBA(x, line, color.RGBA{0xFF, 0xFF, 0xFF, 0xFF})
	}
	p.tick += 4
	return &Frame{Image: img, Timestamp: time.Now()}, nil
}

func (p *PatternGrabber) Close() error {
	return nil
}
