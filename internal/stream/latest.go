package stream

import (
	"context"
	"sync"
	"time"
)

// LatestFrame is a capacity-1 hand-off between the stream reader and the
// display. Put replaces whatever has not been taken yet.
type LatestFrame struct {
	mu       sync.Mutex
	frame    *Frame
	last     *Frame
	ready    chan struct{}
	puts     uint64
	dropped  uint64
	consumed uint64
}

// NewLatestFrame creates an empty slot.
func NewLatestFrame() *LatestFrame {
	return &LatestFrame{ready: make(chan struct{}, 1)}
}

// Put stores f, dropping an unconsumed predecessor. It never blocks.
func (l *LatestFrame) Put(f *Frame) {
	l.mu.Lock()
	if l.frame != nil {
		l.dropped++
	}
	l.frame = f
	l.last = f
	l.puts++
	l.mu.Unlock()

	select {
	case l.ready <- struct{}{}:
	default:
	}
}

// Poll takes the pending frame, or returns nil if nothing arrived since the
// previous Poll.
func (l *LatestFrame) Poll() *Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	f := l.frame
	if f != nil {
		l.frame = nil
		l.consumed++
	}
	return f
}

// Peek returns the most recent frame ever stored without consuming it.
// Snapshots use it so they work between display polls.
func (l *LatestFrame) Peek() *Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// Wait blocks until a frame is pending, maxWait elapses or ctx is done, then
// behaves like Poll.
func (l *LatestFrame) Wait(ctx context.Context, maxWait time.Duration) *Frame {
	if f := l.Poll(); f != nil {
		return f
	}
	timer := time.NewTimer(maxWait)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			return l.Poll()
		case <-l.ready:
			// The signal can be stale when Poll already took the frame.
			if f := l.Poll(); f != nil {
				return f
			}
		}
	}
}

// SlotStats reports slot activity.
type SlotStats struct {
	Puts     uint64
	Consumed uint64
	Dropped  uint64
}

// Stats returns a snapshot of the counters.
func (l *LatestFrame) Stats() SlotStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return SlotStats{Puts: l.puts, Consumed: l.consumed, Dropped: l.dropped}
}
