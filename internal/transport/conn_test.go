package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall"
	"testing"
	"time"
)

func TestDialConnected(t *testing.T) {
	ctx := context.Background()
	ln, err := Listen(ctx, "127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept(ctx)
		if err == nil {
			accepted <- c
		}
	}()

	var (
		mu     sync.Mutex
		states []State
	)
	d := &Dialer{
		Addr:    ln.Addr().String(),
		Timeout: time.Second,
		OnState: func(s State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
	}
	conn, err := d.Dial(ctx)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	select {
	case c := <-accepted:
		c.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("listener never accepted")
	}

	if d.State() != StateConnected {
		t.Fatalf("State() = %v, want connected", d.State())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(states) != 2 || states[0] != StateConnecting || states[1] != StateConnected {
		t.Fatalf("transitions = %v, want [connecting connected]", states)
	}

	if _, err := d.Dial(ctx); err == nil {
		t.Fatal("second Dial succeeded, want error")
	}
}

func TestDialUnreachableFails(t *testing.T) {
	// Bind then release a port so nothing is listening on it.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	d := &Dialer{Addr: addr, Timeout: 500 * time.Millisecond}
	conn, err := d.Dial(context.Background())
	if err == nil {
		conn.Close()
		t.Fatal("Dial succeeded against a closed port")
	}
	if d.State() != StateFailed {
		t.Fatalf("State() = %v, want failed", d.State())
	}
}

func TestAcceptCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ln, err := Listen(ctx, "127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := ln.Accept(ctx)
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Accept() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Accept did not return after cancel")
	}
}

func TestIsPeerDisconnect(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{syscall.ECONNRESET, true},
		{&net.OpError{Op: "write", Err: syscall.EPIPE}, true},
		{fmt.Errorf("send: %w", io.ErrClosedPipe), true},
		{ErrPeerDisconnected, true},
		{errors.New("disk full"), false},
		{ErrTruncatedFrame, false},
	}
	for _, tt := range tests {
		if got := IsPeerDisconnect(tt.err); got != tt.want {
			t.Errorf("IsPeerDisconnect(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		StateConnecting: "connecting",
		StateConnected:  "connected",
		StateFailed:     "failed",
	} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}
