package record

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// memSink keeps frames in memory and can block AddFrame until released.
type memSink struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	gate   chan struct{}
}

func (m *memSink) AddFrame(data []byte) error {
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, data)
	return nil
}

func (m *memSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func newTestRecorder(t *testing.T, sink *memSink, backlog int) (*Recorder, *[]string) {
	t.Helper()
	var opened []string
	r := NewRecorder(RecorderOptions{
		Dir:     t.TempDir(),
		Backlog: backlog,
		Open: func(path string, w, h, fps int) (Sink, error) {
			opened = append(opened, path)
			return sink, nil
		},
	})
	r.now = func() time.Time { return time.Date(2024, 5, 1, 12, 30, 45, 0, time.UTC) }
	return r, &opened
}

func solid(w, h int, v uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = v, v, v, 0xff
	}
	return img
}

func TestRecorderWritesOfferedFramesInOrder(t *testing.T) {
	sink := &memSink{}
	r, opened := newTestRecorder(t, sink, 8)

	r.Offer(solid(8, 8, 1)) // no session yet: ignored
	s, err := r.Start(20, image.Pt(16, 12))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if filepath.Base(s.Path) != "2024-05-01_12-30-45.avi" {
		t.Fatalf("path = %s", s.Path)
	}
	if len(*opened) != 1 {
		t.Fatalf("sink opened %d times", len(*opened))
	}

	shades := []uint8{0x20, 0x80, 0xE0}
	for _, v := range shades {
		r.Offer(solid(32, 24, v))
	}
	if err := r.Stop(s); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if !sink.closed {
		t.Fatal("sink not closed on Stop")
	}
	if len(sink.frames) != len(shades) {
		t.Fatalf("sink got %d frames, want %d", len(sink.frames), len(shades))
	}
	for i, data := range sink.frames {
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if img.Bounds().Dx() != 16 || img.Bounds().Dy() != 12 {
			t.Fatalf("frame %d size %v, want 16x12", i, img.Bounds())
		}
		red, _, _, _ := img.At(8, 6).RGBA()
		got := uint8(red >> 8)
		if diff := int(got) - int(shades[i]); diff < -12 || diff > 12 {
			t.Fatalf("frame %d shade %#x, want about %#x (order broken?)", i, got, shades[i])
		}
	}
	if st := s.Stats(); st.Written != 3 || st.Dropped != 0 {
		t.Fatalf("Stats() = %+v", st)
	}
}

func TestRecorderRejectsSecondStart(t *testing.T) {
	r, _ := newTestRecorder(t, &memSink{}, 4)
	s, err := r.Start(20, image.Pt(8, 8))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := r.Start(20, image.Pt(8, 8)); !errors.Is(err, ErrRecordingActive) {
		t.Fatalf("second Start() error = %v, want ErrRecordingActive", err)
	}
	if r.Active() != s {
		t.Fatal("first session replaced by rejected Start")
	}

	if err := r.Stop(&Session{}); !errors.Is(err, ErrSessionMismatch) {
		t.Fatalf("Stop(other) error = %v, want ErrSessionMismatch", err)
	}
	if err := r.Stop(s); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := r.Stop(s); !errors.Is(err, ErrNoRecording) {
		t.Fatalf("second Stop() error = %v, want ErrNoRecording", err)
	}
	if r.Active() != nil {
		t.Fatal("session still active after Stop")
	}
}

func TestRecorderOfferNeverBlocks(t *testing.T) {
	sink := &memSink{gate: make(chan struct{})}
	r, _ := newTestRecorder(t, sink, 2)
	s, err := r.Start(10, image.Pt(4, 4))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// The sink is stuck, so at most backlog+1 frames can be in flight.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			r.Offer(solid(4, 4, uint8(i)))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Offer blocked on a full backlog")
	}

	close(sink.gate)
	if err := r.Stop(s); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	st := s.Stats()
	if st.Dropped == 0 || st.Written+st.Dropped != 20 {
		t.Fatalf("Stats() = %+v, want drops and written+dropped = 20", st)
	}
}

func TestRecorderValidatesParameters(t *testing.T) {
	r, _ := newTestRecorder(t, &memSink{}, 1)
	if _, err := r.Start(0, image.Pt(10, 10)); err == nil {
		t.Fatal("Start(fps=0) succeeded")
	}
	if _, err := r.Start(20, image.Pt(0, 10)); err == nil {
		t.Fatal("Start(width=0) succeeded")
	}
}

func TestRecorderWritesAVI(t *testing.T) {
	r := NewRecorder(RecorderOptions{Dir: t.TempDir()})
	s, err := r.Start(10, image.Pt(32, 24))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 5; i++ {
		r.Offer(solid(64, 48, uint8(i*40)))
	}
	if err := r.Stop(s); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		t.Fatalf("read recording: %v", err)
	}
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "AVI " {
		t.Fatalf("%s is not a RIFF/AVI file", s.Path)
	}
}

func TestSnapshotterNamesByTimestamp(t *testing.T) {
	dir := t.TempDir()
	s := &Snapshotter{Dir: filepath.Join(dir, "Snapshots")}
	s.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	img := solid(10, 10, 0x77)
	first, err := s.Save(img)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	second, err := s.Save(img)
	if err != nil {
		t.Fatalf("second Save: %v", err)
	}

	if filepath.Base(first) != "2024-01-02_03-04-05.jpg" {
		t.Fatalf("first snapshot = %s", first)
	}
	if filepath.Base(second) != "2024-01-02_03-04-05_1.jpg" {
		t.Fatalf("second snapshot = %s, want a suffixed name", second)
	}
	f, err := os.Open(first)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if _, err := jpeg.Decode(f); err != nil {
		t.Fatalf("snapshot is not a JPEG: %v", err)
	}

	if _, err := s.Save(nil); err == nil {
		t.Fatal("Save(nil) succeeded")
	}
}
