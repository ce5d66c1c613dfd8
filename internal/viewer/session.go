// Package viewer is the consumer end of a camera stream. A Session owns the
// connection, the stream reader, the latest-frame slot and the snapshot and
// recording sinks, and is what a front end drives.
package viewer

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/junsooki/camstream/internal/decoder"
	"github.com/junsooki/camstream/internal/record"
	"github.com/junsooki/camstream/internal/stream"
	"github.com/junsooki/camstream/internal/transport"
)

// DefaultShutdownGrace is how long Shutdown waits for the reader to notice a
// stop request before closing the socket under it.
const DefaultShutdownGrace = 2 * time.Second

var (
	// ErrAlreadyConnected is returned by a second Connect.
	ErrAlreadyConnected = errors.New("viewer: connect already attempted")
	// ErrNoFrame is returned by TakeSnapshot before any frame has arrived.
	ErrNoFrame = errors.New("viewer: no frame received yet")
	// ErrShutdown is returned by operations on a session that has been shut down.
	ErrShutdown = errors.New("viewer: session shut down")
)

// Options configures a Session.
type Options struct {
	Addr           string
	ConnectTimeout time.Duration
	MaxFrameSize   uint32
	Decoder        decoder.Decoder
	Snapshots      *record.Snapshotter
	Recorder       *record.Recorder
	ShutdownGrace  time.Duration
	// OnState, if set, is called on every connection state transition.
	OnState func(transport.State)
	Logger  *slog.Logger
}

// Session is one viewing session against one server.
type Session struct {
	opts   Options
	logger *slog.Logger
	dialer *transport.Dialer
	latest *stream.LatestFrame

	mu         sync.Mutex
	attempted  bool
	closed     bool
	cancelDial context.CancelFunc
	conn       net.Conn
	reader     *stream.Reader
	done       chan struct{}
}

// New creates a session. Nothing happens on the network until Connect.
func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Decoder == nil {
		opts.Decoder = decoder.NewJPEGDecoder(0)
	}
	if opts.Snapshots == nil {
		opts.Snapshots = &record.Snapshotter{Logger: logger}
	}
	if opts.Recorder == nil {
		opts.Recorder = record.NewRecorder(record.RecorderOptions{Logger: logger})
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = DefaultShutdownGrace
	}
	return &Session{
		opts:   opts,
		logger: logger,
		dialer: &transport.Dialer{
			Addr:    opts.Addr,
			Timeout: opts.ConnectTimeout,
			Logger:  logger,
			OnState: opts.OnState,
		},
		latest: stream.NewLatestFrame(),
		done:   make(chan struct{}),
	}
}

// Connect makes the single connection attempt and, on success, starts the
// stream reader. It blocks for at most the connect timeout.
func (s *Session) Connect(ctx context.Context) (transport.State, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return s.dialer.State(), ErrShutdown
	}
	if s.attempted {
		s.mu.Unlock()
		return s.dialer.State(), ErrAlreadyConnected
	}
	s.attempted = true
	dialCtx, cancel := context.WithCancel(ctx)
	s.cancelDial = cancel
	s.mu.Unlock()
	defer cancel()

	conn, err := s.dialer.Dial(dialCtx)
	if err != nil {
		close(s.done)
		return transport.StateFailed, err
	}

	s.mu.Lock()
	if s.closed {
		// Shutdown raced the dial.
		s.mu.Unlock()
		conn.Close()
		close(s.done)
		return transport.StateConnected, ErrShutdown
	}
	s.conn = conn
	s.reader = stream.NewReader(conn, stream.ReaderOptions{
		Decoder:      s.opts.Decoder,
		Latest:       s.latest,
		Tap:          s.opts.Recorder,
		MaxFrameSize: s.opts.MaxFrameSize,
		Logger:       s.logger,
	})
	reader := s.reader
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		reader.Run(context.Background())
	}()
	return transport.StateConnected, nil
}

// State reports the connection state.
func (s *Session) State() transport.State {
	return s.dialer.State()
}

// Done is closed once the stream has ended, or immediately after a failed
// connection attempt.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns why the stream ended: nil for a clean end-of-stream or stop.
func (s *Session) Err() error {
	s.mu.Lock()
	r := s.reader
	s.mu.Unlock()
	if r == nil {
		return nil
	}
	return r.Err()
}

// ReaderStats returns the reader counters, or zero before connecting.
func (s *Session) ReaderStats() stream.ReaderStats {
	s.mu.Lock()
	r := s.reader
	s.mu.Unlock()
	if r == nil {
		return stream.ReaderStats{}
	}
	return r.Stats()
}

// PollLatestFrame returns the newest frame not yet polled, or nil.
func (s *Session) PollLatestFrame() *stream.Frame {
	return s.latest.Poll()
}

// WaitLatestFrame blocks until a new frame arrives, maxWait passes or ctx is done.
func (s *Session) WaitLatestFrame(ctx context.Context, maxWait time.Duration) *stream.Frame {
	return s.latest.Wait(ctx, maxWait)
}

// TakeSnapshot saves img, or the most recent frame when img is nil, and
// returns the written path.
func (s *Session) TakeSnapshot(img image.Image) (string, error) {
	if img == nil {
		f := s.latest.Peek()
		if f == nil {
			return "", ErrNoFrame
		}
		img = f.Image
	}
	return s.opts.Snapshots.Save(img)
}

// StartRecording opens a recording at fps and size. Every frame the reader
// decodes from now on is offered to it.
func (s *Session) StartRecording(fps int, size image.Point) (*record.Session, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrShutdown
	}
	return s.opts.Recorder.Start(fps, size)
}

// StopRecording flushes and closes rec.
func (s *Session) StopRecording(rec *record.Session) error {
	return s.opts.Recorder.Stop(rec)
}

// Recording returns the active recording, or nil.
func (s *Session) Recording() *record.Session {
	return s.opts.Recorder.Active()
}

// Shutdown stops the reader, waits for it, then closes the socket. If the
// reader is still blocked after the grace period the socket is closed to
// release it. An active recording is stopped last.
func (s *Session) Shutdown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.cancelDial != nil {
		s.cancelDial()
	}
	reader, conn := s.reader, s.conn
	s.mu.Unlock()

	var errs []error
	if reader != nil {
		reader.Stop()
		select {
		case <-reader.Done():
		case <-time.After(s.opts.ShutdownGrace):
			s.logger.Warn("viewer: reader still blocked, closing connection under it")
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if reader != nil {
		<-reader.Done()
	}
	if rec := s.opts.Recorder.Active(); rec != nil {
		if err := s.opts.Recorder.Stop(rec); err != nil {
			errs = append(errs, err)
		}
	}
	s.logger.Info("viewer: shut down")
	return errors.Join(errs...)
}
