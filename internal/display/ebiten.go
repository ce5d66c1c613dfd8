// Package display is the viewer window: it polls the session for the newest
// frame every tick, draws it letterboxed and maps keys to session commands.
package display

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/junsooki/camstream/internal/record"
	"github.com/junsooki/camstream/internal/stream"
	"github.com/junsooki/camstream/internal/transport"
)

// Status texts shown while no frame is on screen.
const (
	TextConnecting = "Attempting to connect to the server..."
	TextConnected  = "Connection complete"
	TextFailed     = "Server is not running. Connection fail"
	TextConfirm    = "Are you sure you want to exit? (Y/N)"
	TextEnded      = "Stream ended"
)

const noticeDuration = 3 * time.Second

// Session is the viewing session the window drives.
type Session interface {
	State() transport.State
	PollLatestFrame() *stream.Frame
	TakeSnapshot(img image.Image) (string, error)
	StartRecording(fps int, size image.Point) (*record.Session, error)
	StopRecording(rec *record.Session) error
	Recording() *record.Session
	Done() <-chan struct{}
}

// Options configures a Window.
type Options struct {
	Session    Session
	Title      string
	PollHz     int
	RecordFPS  int
	RecordSize image.Point
	Logger     *slog.Logger
}

// Window renders the stream using Ebitengine.
type Window struct {
	opts   Options
	logger *slog.Logger
	ctx    context.Context

	frame       *image.RGBA
	ebitenImage *ebiten.Image
	shade       *ebiten.Image

	confirming  bool
	notice      string
	noticeUntil time.Time
}

// New creates a window for opts.Session.
func New(opts Options) (*Window, error) {
	if opts.Session == nil {
		return nil, errors.New("display: session is required")
	}
	if opts.Title == "" {
		opts.Title = "camstream"
	}
	if opts.PollHz <= 0 {
		opts.PollHz = 30
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Window{opts: opts, logger: logger}, nil
}

// Run opens the window and blocks until the user confirms exit or ctx is
// done. Must be called from the main goroutine.
func (w *Window) Run(ctx context.Context) error {
	w.ctx = ctx
	ebiten.SetWindowSize(1280, 720)
	ebiten.SetWindowTitle(w.opts.Title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowClosingHandled(true)
	ebiten.SetTPS(w.opts.PollHz)

	err := ebiten.RunGame(w)
	if errors.Is(err, ebiten.Termination) {
		return nil
	}
	return err
}

// --- ebiten.Game interface ---

func (w *Window) Update() error {
	select {
	case <-w.ctx.Done():
		return ebiten.Termination
	default:
	}

	if ebiten.IsWindowBeingClosed() {
		w.confirming = true
	}
	if w.confirming {
		switch {
		case inpututil.IsKeyJustPressed(ebiten.KeyY):
			w.logger.Info("display: exit confirmed")
			return ebiten.Termination
		case inpututil.IsKeyJustPressed(ebiten.KeyN), inpututil.IsKeyJustPressed(ebiten.KeyEscape):
			w.confirming = false
		}
		return nil
	}

	if f := w.opts.Session.PollLatestFrame(); f != nil {
		w.frame = f.Image
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyS) {
		w.snapshot()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		w.toggleRecording()
	}
	return nil
}

func (w *Window) Draw(screen *ebiten.Image) {
	if frame := w.frame; frame != nil {
		if w.ebitenImage == nil ||
			w.ebitenImage.Bounds().Dx() != frame.Bounds().Dx() ||
			w.ebitenImage.Bounds().Dy() != frame.Bounds().Dy() {
			w.ebitenImage = ebiten.NewImage(frame.Bounds().Dx(), frame.Bounds().Dy())
		}
		w.ebitenImage.WritePixels(frame.Pix)

		sw, sh := screen.Bounds().Dx(), screen.Bounds().Dy()
		fw, fh := float64(frame.Bounds().Dx()), float64(frame.Bounds().Dy())
		scale, offsetX, offsetY := aspectFitTransform(float64(sw), float64(sh), fw, fh)

		op := &ebiten.DrawImageOptions{}
		op.GeoM.Scale(scale, scale)
		op.GeoM.Translate(offsetX, offsetY)
		screen.DrawImage(w.ebitenImage, op)
	} else {
		ebitenutil.DebugPrintAt(screen, statusText(w.opts.Session.State()), 12, 12)
	}

	y := screen.Bounds().Dy() - 20
	if rec := w.opts.Session.Recording(); rec != nil {
		ebitenutil.DebugPrintAt(screen, fmt.Sprintf("REC %s", time.Since(rec.StartedAt).Truncate(time.Second)), 12, y)
		y -= 16
	}
	select {
	case <-w.opts.Session.Done():
		if w.opts.Session.State() == transport.StateConnected {
			ebitenutil.DebugPrintAt(screen, TextEnded, 12, y)
			y -= 16
		}
	default:
	}
	if w.notice != "" && time.Now().Before(w.noticeUntil) {
		ebitenutil.DebugPrintAt(screen, w.notice, 12, y)
	}

	if w.confirming {
		w.drawConfirm(screen)
	}
}

func (w *Window) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}

func (w *Window) drawConfirm(screen *ebiten.Image) {
	if w.shade == nil {
		w.shade = ebiten.NewImage(1, 1)
		w.shade.Fill(color.RGBA{A: 0xb0})
	}
	sw, sh := screen.Bounds().Dx(), screen.Bounds().Dy()
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(float64(sw), float64(sh))
	screen.DrawImage(w.shade, op)
	ebitenutil.DebugPrintAt(screen, TextConfirm, sw/2-len(TextConfirm)*3, sh/2-8)
}

// --- commands ---

func (w *Window) snapshot() {
	if w.frame == nil {
		w.setNotice("No frame to save yet")
		return
	}
	path, err := w.opts.Session.TakeSnapshot(w.frame)
	if err != nil {
		w.logger.Error("display: snapshot failed", "error", err)
		w.setNotice("Snapshot failed: " + err.Error())
		return
	}
	w.setNotice("Saved " + path)
}

func (w *Window) toggleRecording() {
	if rec := w.opts.Session.Recording(); rec != nil {
		if err := w.opts.Session.StopRecording(rec); err != nil {
			w.logger.Error("display: stop recording failed", "error", err)
			w.setNotice("Recording failed: " + err.Error())
			return
		}
		w.setNotice("Recording saved to " + rec.Path)
		return
	}
	rec, err := w.opts.Session.StartRecording(w.opts.RecordFPS, w.opts.RecordSize)
	if err != nil {
		w.logger.Error("display: start recording failed", "error", err)
		w.setNotice("Recording failed: " + err.Error())
		return
	}
	w.setNotice("Recording to " + rec.Path)
}

func (w *Window) setNotice(s string) {
	w.notice = s
	w.noticeUntil = time.Now().Add(noticeDuration)
}

func statusText(s transport.State) string {
	switch s {
	case transport.StateConnected:
		return TextConnected
	case transport.StateFailed:
		return TextFailed
	default:
		return TextConnecting
	}
}

// aspectFitTransform returns scale and offsets to fit frame into view with letterboxing.
func aspectFitTransform(viewW, viewH, frameW, frameH float64) (scale, offsetX, offsetY float64) {
	scale = math.Min(viewW/frameW, viewH/frameH)
	offsetX = (viewW - frameW*scale) / 2
	offsetY = (viewH - frameH*scale) / 2
	return
}
