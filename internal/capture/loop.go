package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrAlreadyRunning is returned by Start on a running loop.
var ErrAlreadyRunning = errors.New("capture: already running")

// Loop turns a Grabber into a Source by polling it at a fixed rate. Frames
// the consumer has not picked up yet are dropped rather than queued.
type Loop struct {
	grabber Grabber
	fps     int
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
	frameCh chan *Frame
	cancel  context.CancelFunc
	done    chan struct{}

	seq     uint64
	dropped uint64
}

// NewLoop creates a capture loop for g at fps frames per second.
func NewLoop(g Grabber, fps int, logger *slog.Logger) (*Loop, error) {
	if fps <= 0 || fps > 60 {
		return nil, fmt.Errorf("fps must be 1-60, got %d", fps)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		grabber: g,
		fps:     fps,
		logger:  logger,
		frameCh: make(chan *Frame, 2),
	}, nil
}

// Start begins capturing in a new goroutine.
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return ErrAlreadyRunning
	}
	if l.done != nil {
		return errors.New("capture: loop cannot be restarted")
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.running = true
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.loop(ctx)
	return nil
}

// Stop ends capturing and waits for the loop to exit. The frame channel is
// closed once the loop is gone.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	l.cancel()
	done := l.done
	l.mu.Unlock()

	<-done
	if err := l.grabber.Close(); err != nil {
		l.logger.Warn("capture: close grabber", "error", err)
	}
}

// Frames returns the channel frames are delivered on.
func (l *Loop) Frames() <-chan *Frame {
	return l.frameCh
}

// Dropped reports how many frames were discarded because nobody was reading.
func (l *Loop) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

func (l *Loop) loop(ctx context.Context) {
	ticker := time.NewTicker(time.Second / time.Duration(l.fps))
	defer ticker.Stop()
	defer close(l.done)
	defer close(l.frameCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f, err := l.grabber.Grab(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				l.logger.Warn("capture: grab frame", "error", err)
				continue
			}
			if f == nil {
				continue
			}
			l.mu.Lock()
			l.seq++
			f.Seq = l.seq
			l.mu.Unlock()
			if f.Timestamp.IsZero() {
				f.Timestamp = time.Now()
			}

			select {
			case l.frameCh <- f:
			default:
				l.mu.Lock()
				l.dropped++
				l.mu.Unlock()
			}
		}
	}
}
