// Package camera grabs frames from a local webcam through pion/mediadevices.
package camera

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"log/slog"
	"time"

	"github.com/pion/mediadevices"
	_ "github.com/pion/mediadevices/pkg/driver/camera" // registers the camera driver
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"

	"github.com/junsooki/camstream/internal/capture"
)

// Device describes a capture device.
type Device struct {
	ID    string
	Label string
}

// Devices lists the video input devices mediadevices can see.
func Devices() []Device {
	var out []Device
	for _, d := range mediadevices.EnumerateDevices() {
		if d.Kind != mediadevices.VideoInput {
			continue
		}
		out = append(out, Device{ID: d.DeviceID, Label: d.Label})
	}
	return out
}

// Grabber reads raw frames from a camera track.
type Grabber struct {
	track  *mediadevices.VideoTrack
	reader video.Reader
	logger *slog.Logger
}

// Open opens the camera deviceID (empty selects the first one) asking for
// width x height. The size is a preference; drivers may pick the nearest mode.
func Open(deviceID string, width, height int, logger *slog.Logger) (*Grabber, error) {
	if logger == nil {
		logger = slog.Default()
	}
	constraints := mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			c.Width = prop.Int(width)
			c.Height = prop.Int(height)
			if deviceID != "" {
				c.DeviceID = prop.String(deviceID)
			}
		},
	}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		logger.Warn("camera: preferred size rejected, retrying without size constraints", "error", err)
		constraints = mediadevices.MediaStreamConstraints{
			Video: func(c *mediadevices.MediaTrackConstraints) {
				if deviceID != "" {
					c.DeviceID = prop.String(deviceID)
				}
			},
		}
		stream, err = mediadevices.GetUserMedia(constraints)
		if err != nil {
			return nil, fmt.Errorf("open camera: %w", err)
		}
	}

	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		return nil, fmt.Errorf("open camera: no video track")
	}
	vt, ok := tracks[0].(*mediadevices.VideoTrack)
	if !ok {
		tracks[0].Close()
		return nil, fmt.Errorf("open camera: unexpected track type %T", tracks[0])
	}

	logger.Info("camera: opened", "track", vt.ID())
	return &Grabber{
		track:  vt,
		reader: vt.NewReader(false),
		logger: logger,
	}, nil
}

// Grab blocks until the driver hands over the next frame.
func (g *Grabber) Grab(ctx context.Context) (*capture.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, release, err := g.reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read camera frame: %w", err)
	}
	defer release()

	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return &capture.Frame{Image: rgba, Timestamp: time.Now()}, nil
}

func (g *Grabber) Close() error {
	return g.track.Close()
}
