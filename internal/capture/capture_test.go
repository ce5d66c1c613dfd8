package capture

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingGrabber struct {
	grabs  atomic.Int64
	closed atomic.Bool
}

func (g *countingGrabber) Grab(ctx context.Context) (*Frame, error) {
	g.grabs.Add(1)
	return &Frame{JPEG: []byte{0xff, 0xd8}}, nil
}

func (g *countingGrabber) Close() error {
	g.closed.Store(true)
	return nil
}

func TestLoopDeliversSequencedFrames(t *testing.T) {
	g := &countingGrabber{}
	l, err := NewLoop(g, 60, nil)
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := l.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start() error = %v, want ErrAlreadyRunning", err)
	}

	var last uint64
	for i := 0; i < 3; i++ {
		select {
		case f := <-l.Frames():
			if f.Seq <= last {
				t.Fatalf("seq %d after %d", f.Seq, last)
			}
			if f.Timestamp.IsZero() {
				t.Fatal("frame without timestamp")
			}
			last = f.Seq
		case <-time.After(2 * time.Second):
			t.Fatal("no frame delivered")
		}
	}

	l.Stop()
	if !g.closed.Load() {
		t.Fatal("Stop did not close the grabber")
	}
	for range l.Frames() {
		// drain until closed
	}
}

func TestLoopDropsWhenNobodyReads(t *testing.T) {
	g := &countingGrabber{}
	l, err := NewLoop(g, 60, nil)
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	l.Stop()

	if l.Dropped() == 0 {
		t.Fatalf("Dropped() = 0 after %d grabs into a capacity-2 channel", g.grabs.Load())
	}
}

func TestNewLoopRejectsBadFPS(t *testing.T) {
	for _, fps := range []int{0, -1, 61} {
		if _, err := NewLoop(&countingGrabber{}, fps, nil); err == nil {
			t.Errorf("NewLoop(fps=%d) succeeded", fps)
		}
	}
}

func TestPatternGrabber(t *testing.T) {
	p, err := NewPatternGrabber(64, 48)
	if err != nil {
		t.Fatalf("NewPatternGrabber: %v", err)
	}
	a, err := p.Grab(context.Background())
	if err != nil {
		t.Fatalf("Grab: %v", err)
	}
	b, _ := p.Grab(context.Background())
	if a.Image.Bounds().Dx() != 64 || a.Image.Bounds().Dy() != 48 {
		t.Fatalf("bounds = %v", a.Image.Bounds())
	}
	if string(a.Image.Pix) == string(b.Image.Pix) {
		t.Fatal("consecutive pattern frames are identical")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Grab(ctx); err == nil {
		t.Fatal("Grab on cancelled context succeeded")
	}
}
