package stream

import (
	"context"
	"testing"
	"time"
)

func TestLatestFrameKeepsOnlyNewest(t *testing.T) {
	l := NewLatestFrame()
	if f := l.Poll(); f != nil {
		t.Fatalf("Poll() on empty slot = %+v, want nil", f)
	}

	l.Put(&Frame{Seq: 1})
	l.Put(&Frame{Seq: 2})

	f := l.Poll()
	if f == nil || f.Seq != 2 {
		t.Fatalf("Poll() = %+v, want seq 2", f)
	}
	if f := l.Poll(); f != nil {
		t.Fatalf("second Poll() = %+v, want nil (F1 must not resurface)", f)
	}
	if p := l.Peek(); p == nil || p.Seq != 2 {
		t.Fatalf("Peek() = %+v, want seq 2", p)
	}

	st := l.Stats()
	if st.Puts != 2 || st.Dropped != 1 || st.Consumed != 1 {
		t.Fatalf("Stats() = %+v, want 2 puts, 1 dropped, 1 consumed", st)
	}
}

func TestLatestFrameWaitWakesOnPut(t *testing.T) {
	l := NewLatestFrame()
	go func() {
		time.Sleep(20 * time.Millisecond)
		l.Put(&Frame{Seq: 7})
	}()

	start := time.Now()
	f := l.Wait(context.Background(), 2*time.Second)
	if f == nil || f.Seq != 7 {
		t.Fatalf("Wait() = %+v, want seq 7", f)
	}
	if time.Since(start) > time.Second {
		t.Fatal("Wait did not wake on Put")
	}
}

func TestLatestFrameWaitCapped(t *testing.T) {
	l := NewLatestFrame()
	start := time.Now()
	if f := l.Wait(context.Background(), 30*time.Millisecond); f != nil {
		t.Fatalf("Wait() = %+v, want nil", f)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("Wait returned after %v, before its cap", elapsed)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if f := l.Wait(ctx, time.Hour); f != nil {
		t.Fatalf("Wait() on cancelled ctx = %+v, want nil", f)
	}
}

func TestLatestFrameStaleSignal(t *testing.T) {
	l := NewLatestFrame()
	l.Put(&Frame{Seq: 1})
	_ = l.Poll() // leaves a signal in the ready channel

	if f := l.Wait(context.Background(), 30*time.Millisecond); f != nil {
		t.Fatalf("Wait() after stale signal = %+v, want nil", f)
	}
}
