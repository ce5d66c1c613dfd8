package record

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/icza/mjpeg"
	xdraw "golang.org/x/image/draw"

	"github.com/junsooki/camstream/internal/encoder"
)

const (
	// DefaultRecordingDir is where recordings go when no directory is configured.
	DefaultRecordingDir = "Recordings"
	// DefaultBacklog is how many frames may wait for the recording writer.
	DefaultBacklog = 32
)

var (
	// ErrRecordingActive is returned by Start while another session is open.
	ErrRecordingActive = errors.New("record: recording already in progress")
	// ErrNoRecording is returned by Stop when nothing is being recorded.
	ErrNoRecording = errors.New("record: no recording in progress")
	// ErrSessionMismatch is returned by Stop with a handle that is not the active session.
	ErrSessionMismatch = errors.New("record: session is not the active recording")
)

// Sink is a video container accepting JPEG frames.
type Sink interface {
	AddFrame(jpegData []byte) error
	Close() error
}

// OpenFunc creates a Sink at path for frames of the given size and rate.
type OpenFunc func(path string, width, height, fps int) (Sink, error)

// OpenAVI writes an MJPEG AVI file.
func OpenAVI(path string, width, height, fps int) (Sink, error) {
	aw, err := mjpeg.New(path, int32(width), int32(height), int32(fps))
	if err != nil {
		return nil, fmt.Errorf("open avi %s: %w", path, err)
	}
	return aw, nil
}

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	Dir     string
	Backlog int
	Quality int
	// Open defaults to OpenAVI.
	Open   OpenFunc
	Logger *slog.Logger
}

// Recorder owns at most one recording session at a time and feeds it the
// frames offered by the stream reader.
type Recorder struct {
	opts   RecorderOptions
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	active *Session
}

// NewRecorder creates an idle recorder.
func NewRecorder(opts RecorderOptions) *Recorder {
	if opts.Dir == "" {
		opts.Dir = DefaultRecordingDir
	}
	if opts.Backlog <= 0 {
		opts.Backlog = DefaultBacklog
	}
	if opts.Quality == 0 {
		opts.Quality = encoder.DefaultQuality
	}
	if opts.Open == nil {
		opts.Open = OpenAVI
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{opts: opts, logger: logger, now: time.Now}
}

// SessionStats reports what a session has done so far.
type SessionStats struct {
	Written uint64
	Dropped uint64
	Failed  uint64
}

// Session is one open recording.
type Session struct {
	ID        uuid.UUID
	Path      string
	FPS       int
	Size      image.Point
	StartedAt time.Time

	queue  chan *image.RGBA
	sink   Sink
	enc    *encoder.JPEGEncoder
	logger *slog.Logger
	done   chan struct{}
	err    error

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// Stats returns the session counters.
func (s *Session) Stats() SessionStats {
	return SessionStats{
		Written: s.written.Load(),
		Dropped: s.dropped.Load(),
		Failed:  s.failed.Load(),
	}
}

// Start opens a new recording of size at fps. Only one session may be open;
// a second Start fails with ErrRecordingActive.
func (r *Recorder) Start(fps int, size image.Point) (*Session, error) {
	if fps <= 0 || fps > 60 {
		return nil, fmt.Errorf("record: fps must be 1-60, got %d", fps)
	}
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("record: invalid resolution %dx%d", size.X, size.Y)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return nil, fmt.Errorf("%w: %s", ErrRecordingActive, r.active.Path)
	}

	startedAt := r.now()
	path, err := uniquePath(r.opts.Dir, startedAt, ".avi")
	if err != nil {
		return nil, fmt.Errorf("record: %w", err)
	}
	sink, err := r.opts.Open(path, size.X, size.Y, fps)
	if err != nil {
		return nil, fmt.Errorf("record: %w", err)
	}

	s := &Session{
		ID:        uuid.New(),
		Path:      path,
		FPS:       fps,
		Size:      size,
		StartedAt: startedAt,
		queue:     make(chan *image.RGBA, r.opts.Backlog),
		sink:      sink,
		enc:       encoder.NewJPEGEncoder(r.opts.Quality),
		done:      make(chan struct{}),
	}
	s.logger = r.logger.With("recording", s.ID.String())
	go s.drain()

	r.active = s
	s.logger.Info("recording started", "path", path, "fps", fps, "width", size.X, "height", size.Y)
	return s, nil
}

// Stop closes s after writing everything already queued.
func (r *Recorder) Stop(s *Session) error {
	r.mu.Lock()
	switch {
	case r.active == nil:
		r.mu.Unlock()
		return ErrNoRecording
	case s != r.active:
		r.mu.Unlock()
		return ErrSessionMismatch
	}
	r.active = nil
	close(s.queue)
	r.mu.Unlock()

	<-s.done
	st := s.Stats()
	s.logger.Info("recording stopped", "path", s.Path, "written", st.Written, "dropped", st.Dropped, "failed", st.Failed)
	return s.err
}

// Active returns the open session, or nil.
func (r *Recorder) Active() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Offer queues img for the active session. It never blocks: when the backlog
// is full the frame is dropped and counted.
func (r *Recorder) Offer(img *image.RGBA) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.active
	if s == nil {
		return
	}
	select {
	case s.queue <- img:
	default:
		s.dropped.Add(1)
	}
}

func (s *Session) drain() {
	defer close(s.done)
	for img := range s.queue {
		data, err := s.enc.Encode(fit(img, s.Size))
		if err == nil {
			err = s.sink.AddFrame(data)
		}
		if err != nil {
			s.failed.Add(1)
			if s.err == nil {
				s.err = fmt.Errorf("record %s: %w", s.Path, err)
				s.logger.Error("recording frame failed", "error", err)
			}
			continue
		}
		s.written.Add(1)
	}
	if err := s.sink.Close(); err != nil && s.err == nil {
		s.err = fmt.Errorf("close %s: %w", s.Path, err)
	}
}

// fit scales img into a size canvas, keeping its aspect ratio and centring it.
func fit(img *image.RGBA, size image.Point) *image.RGBA {
	b := img.Bounds()
	if b.Dx() == size.X && b.Dy() == size.Y {
		return img
	}
	dst := image.NewRGBA(image.Rectangle{Max: size})
	scale := min(float64(size.X)/float64(b.Dx()), float64(size.Y)/float64(b.Dy()))
	w, h := int(float64(b.Dx())*scale), int(float64(b.Dy())*scale)
	off := image.Pt((size.X-w)/2, (size.Y-h)/2)
	xdraw.ApproxBiLinear.Scale(dst, image.Rectangle{Min: off, Max: off.Add(image.Pt(w, h))}, img, b, xdraw.Src, nil)
	return dst
}
