package transport

// FrameSender writes encoded frames to a peer.
type FrameSender interface {
	WriteFrame(payload []byte) error
	WriteEndOfStream() error
}

// FrameReceiver reads encoded frames from a peer.
type FrameReceiver interface {
	ReadFrame() ([]byte, error)
}

var (
	_ FrameSender   = (*FrameWriter)(nil)
	_ FrameReceiver = (*FrameReader)(nil)
)
