package transport

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderSize is the length of the little-endian uint32 prefix of every frame.
const HeaderSize = 4

// DefaultMaxFrameSize caps the payload length a FrameReader accepts.
const DefaultMaxFrameSize = 16 << 20

var (
	// ErrEndOfStream is returned by ReadFrame when the peer sent the zero-length marker.
	ErrEndOfStream = errors.New("transport: end of stream")
	// ErrTruncatedFrame means the source ended inside a header or payload.
	ErrTruncatedFrame = errors.New("transport: truncated frame")
	// ErrFrameTooLarge means the declared length exceeds the reader's limit.
	ErrFrameTooLarge = errors.New("transport: frame too large")
	// ErrEmptyFrame is returned when asked to send a zero-length payload,
	// which would be read as the end-of-stream marker.
	ErrEmptyFrame = errors.New("transport: empty frame")
)

// EncodeFrame returns payload prefixed with its little-endian length.
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyFrame
	}
	if uint64(len(payload)) > uint64(^uint32(0)) {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	buf := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// EndOfStreamMarker returns the four zero bytes that terminate a stream.
func EndOfStreamMarker() []byte {
	return make([]byte, HeaderSize)
}

// FrameReader decodes length-prefixed frames from a byte stream.
type FrameReader struct {
	r       io.Reader
	maxSize uint32
	hdr     [HeaderSize]byte

	consumed int64
}

// NewFrameReader wraps r. A maxSize of zero selects DefaultMaxFrameSize.
func NewFrameReader(r io.Reader, maxSize uint32) *FrameReader {
	if maxSize == 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &FrameReader{r: r, maxSize: maxSize}
}

// ReadFrame reads the next frame and returns its payload.
//
// It returns ErrEndOfStream on the zero-length marker, io.EOF when the source
// closes cleanly on a frame boundary, ErrTruncatedFrame when it closes inside
// a frame and ErrFrameTooLarge when the declared length exceeds the limit.
// The payload is freshly allocated and owned by the caller.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	n, err := io.ReadFull(fr.r, fr.hdr[:])
	fr.consumed += int64(n)
	switch {
	case err == io.EOF:
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return nil, fmt.Errorf("%w: header %d of %d bytes", ErrTruncatedFrame, n, HeaderSize)
	case err != nil:
		return nil, fmt.Errorf("read frame header: %w", err)
	}

	length := binary.LittleEndian.Uint32(fr.hdr[:])
	if length == 0 {
		return nil, ErrEndOfStream
	}
	if length > fr.maxSize {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrFrameTooLarge, length, fr.maxSize)
	}

	payload := make([]byte, length)
	n, err = io.ReadFull(fr.r, payload)
	fr.consumed += int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: payload %d of %d bytes", ErrTruncatedFrame, n, length)
		}
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return payload, nil
}

// Consumed reports how many bytes have been taken from the source.
func (fr *FrameReader) Consumed() int64 {
	return fr.consumed
}

// FrameWriter encodes frames onto a byte stream. Each frame is flushed as soon
// as it is written so nothing is held back between frames.
type FrameWriter struct {
	w   *bufio.Writer
	hdr [HeaderSize]byte

	frames  uint64
	written int64
}

// NewFrameWriter wraps w.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: bufio.NewWriterSize(w, 64*1024)}
}

// WriteFrame writes one frame and flushes it.
func (fw *FrameWriter) WriteFrame(payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyFrame
	}
	if uint64(len(payload)) > uint64(^uint32(0)) {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	binary.LittleEndian.PutUint32(fw.hdr[:], uint32(len(payload)))
	if _, err := fw.w.Write(fw.hdr[:]); err != nil {
		return err
	}
	if _, err := fw.w.Write(payload); err != nil {
		return err
	}
	if err := fw.w.Flush(); err != nil {
		return err
	}
	fw.frames++
	fw.written += int64(HeaderSize + len(payload))
	return nil
}

// WriteEndOfStream writes the zero-length marker and flushes it.
func (fw *FrameWriter) WriteEndOfStream() error {
	if _, err := fw.w.Write(EndOfStreamMarker()); err != nil {
		return err
	}
	if err := fw.w.Flush(); err != nil {
		return err
	}
	fw.written += HeaderSize
	return nil
}

// Frames reports how many frames have been written.
func (fw *FrameWriter) Frames() uint64 {
	return fw.frames
}

// Written reports how many bytes have been flushed, markers included.
func (fw *FrameWriter) Written() int64 {
	return fw.written
}
