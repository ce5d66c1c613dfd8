package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/junsooki/camstream/internal/capture"
	"github.com/junsooki/camstream/internal/encoder"
	"github.com/junsooki/camstream/internal/transport"
)

// WriterOptions configures a Writer.
type WriterOptions struct {
	Encoder encoder.Encoder
	Logger  *slog.Logger
}

// Writer encodes captured frames and puts them on the wire, one flushed frame
// at a time.
type Writer struct {
	fw      transport.FrameSender
	enc     encoder.Encoder
	logger  *slog.Logger
	skipped uint64
	written uint64
}

// NewWriter creates a writer over w.
func NewWriter(w io.Writer, opts WriterOptions) *Writer {
	return NewWriterTo(transport.NewFrameWriter(w), opts)
}

// NewWriterTo creates a writer over an existing frame sink.
func NewWriterTo(fw transport.FrameSender, opts WriterOptions) *Writer {
	if opts.Encoder == nil {
		opts.Encoder = encoder.NewJPEGEncoder(encoder.DefaultQuality)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		fw:     fw,
		enc:    opts.Encoder,
		logger: logger,
	}
}

// Frames reports how many frames reached the wire.
func (w *Writer) Frames() uint64 {
	return w.written
}

// Run writes every frame received on frames. When frames is closed or ctx is
// done it sends the end-of-stream marker and returns nil. A write that fails
// because the peer went away returns an error wrapping
// transport.ErrPeerDisconnected; other write errors are returned as is.
func (w *Writer) Run(ctx context.Context, frames <-chan *capture.Frame) error {
	for {
		var (
			f  *capture.Frame
			ok bool
		)
		select {
		case <-ctx.Done():
			w.finish()
			return nil
		case f, ok = <-frames:
		}
		if !ok {
			w.finish()
			return nil
		}

		payload, err := w.payload(f)
		if err != nil {
			w.skipped++
			w.logger.Warn("stream writer: skipping frame", "seq", f.Seq, "error", err)
			continue
		}

		if err := w.fw.WriteFrame(payload); err != nil {
			if transport.IsPeerDisconnect(err) {
				return fmt.Errorf("%w: %w", transport.ErrPeerDisconnected, err)
			}
			return fmt.Errorf("write frame %d: %w", f.Seq, err)
		}
		w.written++
		w.logger.Debug("stream writer: frame", "seq", f.Seq, "bytes", len(payload))
	}
}

func (w *Writer) payload(f *capture.Frame) ([]byte, error) {
	if len(f.JPEG) > 0 {
		return f.JPEG, nil
	}
	if f.Image == nil {
		return nil, errors.New("frame has no image")
	}
	return w.enc.Encode(f.Image)
}

func (w *Writer) finish() {
	if err := w.fw.WriteEndOfStream(); err != nil {
		w.logger.Debug("stream writer: end-of-stream marker not sent", "error", err)
		return
	}
	w.logger.Info("stream writer: end of stream sent", "frames", w.written, "skipped", w.skipped)
}
