package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/junsooki/camstream/internal/capture"
	"github.com/junsooki/camstream/internal/capture/camera"
	"github.com/junsooki/camstream/internal/capture/screen"
	"github.com/junsooki/camstream/internal/config"
	"github.com/junsooki/camstream/internal/encoder"
	"github.com/junsooki/camstream/internal/stream"
)

func main() {
	cfg, err := config.ParseServer(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := newLogger(cfg.Debug)

	logger.Info("camstream server starting",
		"addr", cfg.Addr(),
		"source", cfg.Source,
		"width", cfg.Width,
		"height", cfg.Height,
		"fps", cfg.FPS,
		"quality", cfg.Quality,
		"sequential", cfg.Sequential,
	)

	grabber, err := openGrabber(cfg, logger)
	if err != nil {
		logger.Error("capture init failed", "error", err)
		os.Exit(1)
	}
	loop, err := capture.NewLoop(grabber, cfg.FPS, logger)
	if err != nil {
		grabber.Close()
		logger.Error("capture init failed", "error", err)
		os.Exit(1)
	}

	srv, err := stream.NewServer(stream.ServerOptions{
		Source:     loop,
		Encoder:    encoder.NewJPEGEncoder(cfg.Quality),
		Sequential: cfg.Sequential,
		Warmup:     cfg.Warmup,
		OnListen: func(a net.Addr) {
			logger.Info("waiting for a viewer", "addr", a.String())
		},
		Logger: logger,
	})
	if err != nil {
		logger.Error("server init failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Serve(ctx, cfg.Addr()); err != nil {
		logger.Error("server stopped", "error", err, "dropped", loop.Dropped())
		os.Exit(1)
	}
	logger.Info("server stopped", "dropped", loop.Dropped())
}

func openGrabber(cfg *config.ServerConfig, logger *slog.Logger) (capture.Grabber, error) {
	switch cfg.Source {
	case config.SourceScreen:
		return screen.Open(cfg.Display)
	case config.SourcePattern:
		return capture.NewPatternGrabber(cfg.Width, cfg.Height)
	default:
		for _, d := range camera.Devices() {
			logger.Debug("camera found", "id", d.ID, "label", d.Label)
		}
		return camera.Open(cfg.Device, cfg.Width, cfg.Height, logger)
	}
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
