package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// DefaultConnectTimeout bounds a single dial attempt.
const DefaultConnectTimeout = 5 * time.Second

var (
	// ErrConnectTimeout is returned when the dial attempt exceeds its bound.
	ErrConnectTimeout = errors.New("transport: connection timed out")
	// ErrPeerDisconnected marks a write that failed because the peer went away.
	ErrPeerDisconnected = errors.New("transport: peer disconnected")
)

// State is the outcome of a connection attempt.
type State int32

const (
	StateConnecting State = iota
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Dialer makes exactly one outbound connection attempt.
type Dialer struct {
	Addr    string
	Timeout time.Duration
	Logger  *slog.Logger
	// OnState, if set, is called on every state transition.
	OnState func(State)

	state atomic.Int32
	once  sync.Once
}

// State reports the current connection state.
func (d *Dialer) State() State {
	return State(d.state.Load())
}

// Dial connects to Addr. A second call returns an error without dialing again.
func (d *Dialer) Dial(ctx context.Context) (net.Conn, error) {
	var (
		conn net.Conn
		err  = errors.New("transport: dialer already used")
	)
	d.once.Do(func() {
		conn, err = d.dial(ctx)
	})
	return conn, err
}

func (d *Dialer) dial(ctx context.Context) (net.Conn, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	d.setState(StateConnecting)
	logger.Info("transport: connecting", "addr", d.Addr, "timeout", timeout)

	nd := net.Dialer{Timeout: timeout}
	conn, err := nd.DialContext(ctx, "tcp", d.Addr)
	if err != nil {
		d.setState(StateFailed)
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			err = fmt.Errorf("%w: %s after %s", ErrConnectTimeout, d.Addr, timeout)
		} else {
			err = fmt.Errorf("dial %s: %w", d.Addr, err)
		}
		logger.Warn("transport: connection failed", "addr", d.Addr, "error", err)
		return nil, err
	}

	d.setState(StateConnected)
	logger.Info("transport: connected", "local", conn.LocalAddr().String(), "remote", conn.RemoteAddr().String())
	return conn, nil
}

func (d *Dialer) setState(s State) {
	d.state.Store(int32(s))
	if d.OnState != nil {
		d.OnState(s)
	}
}

// Listener accepts a single peer at a time.
type Listener struct {
	ln     net.Listener
	logger *slog.Logger
}

// Listen binds addr.
func Listen(ctx context.Context, addr string, logger *slog.Logger) (*Listener, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &Listener{ln: ln, logger: logger}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Accept blocks until one peer connects or ctx is done.
func (l *Listener) Accept(ctx context.Context) (net.Conn, error) {
	stop := context.AfterFunc(ctx, func() {
		l.ln.Close()
	})
	defer stop()

	conn, err := l.ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("accept: %w", err)
	}
	l.logger.Info("transport: peer connected", "remote", conn.RemoteAddr().String())
	return conn, nil
}

// Close stops listening.
func (l *Listener) Close() error {
	err := l.ln.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// IsPeerDisconnect reports whether err means the peer closed or reset the connection.
func IsPeerDisconnect(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrPeerDisconnected) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, io.EOF)
}
