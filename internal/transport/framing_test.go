package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func TestEncodeReadRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{0x42},
		[]byte("ten bytes!"),
		bytes.Repeat([]byte{0xff, 0xd8}, 40000),
	}
	for _, p := range payloads {
		enc, err := EncodeFrame(p)
		if err != nil {
			t.Fatalf("EncodeFrame(%d bytes): %v", len(p), err)
		}
		if got := binary.LittleEndian.Uint32(enc); got != uint32(len(p)) {
			t.Fatalf("header = %d, want %d", got, len(p))
		}

		// Trailing bytes belong to the next frame and must stay unread.
		src := bytes.NewReader(append(enc, 0xAA, 0xBB))
		fr := NewFrameReader(src, 0)
		got, err := fr.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if !bytes.Equal(got, p) {
			t.Fatalf("payload mismatch for %d-byte frame", len(p))
		}
		if fr.Consumed() != int64(HeaderSize+len(p)) {
			t.Fatalf("consumed %d bytes, want %d", fr.Consumed(), HeaderSize+len(p))
		}
		if src.Len() != 2 {
			t.Fatalf("%d bytes left in source, want 2", src.Len())
		}
	}
}

func TestReadEndOfStream(t *testing.T) {
	src := bytes.NewReader([]byte{0, 0, 0, 0, 9, 9})
	fr := NewFrameReader(src, 0)

	_, err := fr.ReadFrame()
	if !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("ReadFrame() error = %v, want ErrEndOfStream", err)
	}
	if fr.Consumed() != HeaderSize {
		t.Fatalf("consumed %d bytes, want %d", fr.Consumed(), HeaderSize)
	}
	if src.Len() != 2 {
		t.Fatalf("marker read past its 4 bytes")
	}
}

func TestReadTruncated(t *testing.T) {
	short := make([]byte, HeaderSize+50)
	binary.LittleEndian.PutUint32(short, 100)

	tests := []struct {
		name string
		data []byte
	}{
		{"header cut after 2 bytes", []byte{0x10, 0x00}},
		{"payload 50 of 100 bytes", short},
		{"header only", []byte{0x05, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fr := NewFrameReader(bytes.NewReader(tt.data), 0)
			_, err := fr.ReadFrame()
			if !errors.Is(err, ErrTruncatedFrame) {
				t.Fatalf("ReadFrame() error = %v, want ErrTruncatedFrame", err)
			}
		})
	}
}

func TestReadCleanClose(t *testing.T) {
	fr := NewFrameReader(bytes.NewReader(nil), 0)
	if _, err := fr.ReadFrame(); err != io.EOF {
		t.Fatalf("ReadFrame() error = %v, want io.EOF", err)
	}
}

func TestReadFrameTooLarge(t *testing.T) {
	hdr := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(hdr, 1<<31)

	fr := NewFrameReader(bytes.NewReader(hdr), 1024)
	_, err := fr.ReadFrame()
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("ReadFrame() error = %v, want ErrFrameTooLarge", err)
	}
}

func TestSequenceThenEndOfStream(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)
	frames := [][]byte{[]byte("F1"), []byte("F2-longer"), []byte("F3")}
	for _, f := range frames {
		if err := fw.WriteFrame(f); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}
	if err := fw.WriteEndOfStream(); err != nil {
		t.Fatalf("WriteEndOfStream: %v", err)
	}
	if fw.Frames() != 3 {
		t.Fatalf("Frames() = %d, want 3", fw.Frames())
	}
	if fw.Written() != int64(buf.Len()) {
		t.Fatalf("Written() = %d, buffer holds %d", fw.Written(), buf.Len())
	}

	fr := NewFrameReader(&buf, 0)
	for i, want := range frames {
		got, err := fr.ReadFrame()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("frame %d = %q, want %q", i, got, want)
		}
	}
	if _, err := fr.ReadFrame(); !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("after frames: error = %v, want ErrEndOfStream", err)
	}
}

func TestEmptyPayloadRejected(t *testing.T) {
	if _, err := EncodeFrame(nil); !errors.Is(err, ErrEmptyFrame) {
		t.Fatalf("EncodeFrame(nil) error = %v, want ErrEmptyFrame", err)
	}
	var buf bytes.Buffer
	if err := NewFrameWriter(&buf).WriteFrame([]byte{}); !errors.Is(err, ErrEmptyFrame) {
		t.Fatalf("WriteFrame(empty) error = %v, want ErrEmptyFrame", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("empty frame wrote %d bytes", buf.Len())
	}
}
