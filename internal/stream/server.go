package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/junsooki/camstream/internal/capture"
	"github.com/junsooki/camstream/internal/encoder"
	"github.com/junsooki/camstream/internal/transport"
)

// ServerOptions configures a Server.
type ServerOptions struct {
	Source  capture.Source
	Encoder encoder.Encoder
	// Sequential keeps serving: after a peer leaves the server listens again
	// for the next one. Peers are never served concurrently.
	Sequential bool
	// Warmup delays the first frame after the source starts.
	Warmup time.Duration
	// OnListen, if set, is called with the bound address each time the
	// server starts listening.
	OnListen func(net.Addr)
	Logger   *slog.Logger
}

// Server is the producer side: it accepts one peer and streams captured
// frames to it until the peer disconnects.
type Server struct {
	opts    ServerOptions
	logger  *slog.Logger
	started bool
}

// NewServer creates a server. opts.Source is required.
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Source == nil {
		return nil, errors.New("stream server: no frame source")
	}
	if opts.Encoder == nil {
		opts.Encoder = encoder.NewJPEGEncoder(encoder.DefaultQuality)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{opts: opts, logger: logger}, nil
}

// Serve listens on addr and streams to one peer at a time. It returns nil
// when ctx is cancelled, when the source runs dry, or (when not sequential)
// after the first peer disconnects. Other failures are returned.
func (s *Server) Serve(ctx context.Context, addr string) error {
	defer func() {
		if s.started {
			s.opts.Source.Stop()
		}
	}()

	for {
		more, err := s.serveOne(ctx, addr)
		if err != nil {
			if !s.opts.Sequential {
				return err
			}
			s.logger.Error("stream server: stream ended with error", "error", err)
		}
		if !more || !s.opts.Sequential {
			return nil
		}
		s.logger.Info("stream server: waiting for the next client")
	}
}

// serveOne runs one listen/accept/stream round. more is false when the
// server should not accept another peer.
func (s *Server) serveOne(ctx context.Context, addr string) (more bool, err error) {
	ln, err := transport.Listen(ctx, addr, s.logger)
	if err != nil {
		return false, err
	}
	if s.opts.OnListen != nil {
		s.opts.OnListen(ln.Addr())
	}
	s.logger.Info("stream server: waiting connection", "addr", ln.Addr().String())

	conn, err := ln.Accept(ctx)
	// Only one peer per round; later dialers are refused until the next round.
	if cerr := ln.Close(); cerr != nil {
		s.logger.Warn("stream server: close listener", "error", cerr)
	}
	if err != nil {
		if ctx.Err() != nil {
			return false, nil
		}
		return false, err
	}
	defer conn.Close()

	id := uuid.NewString()
	logger := s.logger.With("session", id, "remote", conn.RemoteAddr().String())
	logger.Info("stream server: connected")

	if err := s.startSource(ctx); err != nil {
		return false, err
	}

	w := NewWriter(conn, WriterOptions{Encoder: s.opts.Encoder, Logger: logger})
	err = w.Run(ctx, s.opts.Source.Frames())
	switch {
	case transport.IsPeerDisconnect(err):
		logger.Info("stream server: client disconnected", "frames", w.Frames())
		return ctx.Err() == nil, nil
	case err != nil:
		return ctx.Err() == nil, fmt.Errorf("stream to %s: %w", conn.RemoteAddr(), err)
	default:
		// ctx cancelled or the source closed its channel.
		logger.Info("stream server: stream finished", "frames", w.Frames())
		return false, nil
	}
}

func (s *Server) startSource(ctx context.Context) error {
	if s.started {
		return nil
	}
	if err := s.opts.Source.Start(); err != nil {
		return fmt.Errorf("start frame source: %w", err)
	}
	s.started = true
	if s.opts.Warmup > 0 {
		s.logger.Debug("stream server: warming up source", "delay", s.opts.Warmup)
		select {
		case <-time.After(s.opts.Warmup):
		case <-ctx.Done():
		}
	}
	return nil
}
