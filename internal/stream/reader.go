package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/junsooki/camstream/internal/decoder"
	"github.com/junsooki/camstream/internal/transport"
)

// ReaderState tracks the reader lifecycle.
type ReaderState int32

const (
	ReaderIdle ReaderState = iota
	ReaderReading
	ReaderStopped
)

func (s ReaderState) String() string {
	switch s {
	case ReaderIdle:
		return "idle"
	case ReaderReading:
		return "reading"
	case ReaderStopped:
		return "stopped"
	default:
		return fmt.Sprintf("reader-state(%d)", int32(s))
	}
}

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	Decoder decoder.Decoder
	Latest  *LatestFrame
	// Tap, if set, is offered every decoded image after it reaches Latest.
	Tap          Tap
	MaxFrameSize uint32
	Logger       *slog.Logger
}

// ReaderStats summarises a reader's work.
type ReaderStats struct {
	Frames        uint64
	Bytes         uint64
	CodecFailures uint64
}

// Reader pulls frames off a connection, decodes them and publishes the result.
// Stop requests are honoured between frames; a read already in progress is
// allowed to finish.
type Reader struct {
	frames transport.FrameReceiver
	opts   ReaderOptions
	logger *slog.Logger

	state atomic.Int32
	stop  atomic.Bool
	done  chan struct{}
	err   error

	nframes       atomic.Uint64
	nbytes        atomic.Uint64
	codecFailures atomic.Uint64
}

// NewReader creates a reader over r.
func NewReader(r io.Reader, opts ReaderOptions) *Reader {
	return NewReaderFrom(transport.NewFrameReader(r, opts.MaxFrameSize), opts)
}

// NewReaderFrom creates a reader over an existing frame source.
func NewReaderFrom(frames transport.FrameReceiver, opts ReaderOptions) *Reader {
	if opts.Decoder == nil {
		opts.Decoder = decoder.NewJPEGDecoder(0)
	}
	if opts.Latest == nil {
		opts.Latest = NewLatestFrame()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		frames: frames,
		opts:   opts,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Latest returns the slot frames are published to.
func (r *Reader) Latest() *LatestFrame {
	return r.opts.Latest
}

// State reports where the reader is in its lifecycle.
func (r *Reader) State() ReaderState {
	return ReaderState(r.state.Load())
}

// Stop asks the loop to exit before reading the next frame.
func (r *Reader) Stop() {
	r.stop.Store(true)
}

// Done is closed when Run has returned.
func (r *Reader) Done() <-chan struct{} {
	return r.done
}

// Err returns the error Run ended with. It is only meaningful after Done.
func (r *Reader) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Stats returns the counters so far.
func (r *Reader) Stats() ReaderStats {
	return ReaderStats{
		Frames:        r.nframes.Load(),
		Bytes:         r.nbytes.Load(),
		CodecFailures: r.codecFailures.Load(),
	}
}

// Run reads until the end-of-stream marker, a stop request, ctx
// cancellation or a transport error. The marker and stop requests end the
// run with a nil error; a peer that closes without the marker yields io.EOF.
func (r *Reader) Run(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(ReaderIdle), int32(ReaderReading)) {
		return errors.New("stream reader: already started")
	}
	err := r.loop(ctx)
	r.err = err
	r.state.Store(int32(ReaderStopped))
	st := r.Stats()
	r.logger.Info("stream reader: stopped",
		"frames", st.Frames, "bytes", st.Bytes, "codec_failures", st.CodecFailures, "error", err)
	close(r.done)
	return err
}

func (r *Reader) loop(ctx context.Context) error {
	for {
		if r.stop.Load() || ctx.Err() != nil {
			r.logger.Debug("stream reader: stop requested")
			return nil
		}

		payload, err := r.frames.ReadFrame()
		switch {
		case errors.Is(err, transport.ErrEndOfStream):
			r.logger.Info("stream reader: end of stream")
			return nil
		case err == io.EOF:
			r.logger.Warn("stream reader: peer closed without end-of-stream marker")
			return io.EOF
		case err != nil:
			if r.stop.Load() || ctx.Err() != nil {
				// Shutdown closed the socket under a blocked read.
				return nil
			}
			r.logger.Error("stream reader: read frame", "error", err)
			return err
		}

		r.nbytes.Add(uint64(transport.HeaderSize + len(payload)))
		img, err := r.opts.Decoder.Decode(payload)
		if err != nil {
			r.codecFailures.Add(1)
			r.logger.Warn("stream reader: skipping undecodable frame", "bytes", len(payload), "error", err)
			continue
		}

		seq := r.nframes.Add(1)
		r.opts.Latest.Put(&Frame{
			Seq:        seq,
			Payload:    payload,
			Image:      img,
			ReceivedAt: time.Now(),
		})
		if r.opts.Tap != nil {
			r.opts.Tap.Offer(img)
		}
		r.logger.Debug("stream reader: frame", "seq", seq, "bytes", len(payload))
	}
}
