package control

// Message types for the control protocol.
const (
	TypeStatus           = "status"
	TypeSnapshot         = "snapshot"
	TypeSnapshotSaved    = "snapshot-saved"
	TypeStartRecording   = "start-recording"
	TypeRecordingStarted = "recording-started"
	TypeStopRecording    = "stop-recording"
	TypeRecordingStopped = "recording-stopped"
	TypeShutdown         = "shutdown"
	TypeShuttingDown     = "shutting-down"
	TypePing             = "ping"
	TypePong             = "pong"
	TypeError            = "error"
)

// Message is the envelope for all control messages.
type Message struct {
	Type      string `json:"type"`
	State     string `json:"state,omitempty"`
	Recording bool   `json:"recording,omitempty"`
	ID        string `json:"id,omitempty"`
	Path      string `json:"path,omitempty"`
	FPS       int    `json:"fps,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Written   uint64 `json:"written,omitempty"`
	Dropped   uint64 `json:"dropped,omitempty"`
	Msg       string `json:"message,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}
