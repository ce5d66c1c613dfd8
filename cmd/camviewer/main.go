package main

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/junsooki/camstream/internal/config"
	"github.com/junsooki/camstream/internal/control"
	"github.com/junsooki/camstream/internal/decoder"
	"github.com/junsooki/camstream/internal/display"
	"github.com/junsooki/camstream/internal/record"
	"github.com/junsooki/camstream/internal/transport"
	"github.com/junsooki/camstream/internal/viewer"
)

var (
	_ control.Controller = (*viewer.Session)(nil)
	_ display.Session    = (*viewer.Session)(nil)
)

func main() {
	cfg, err := config.ParseViewer(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := newLogger(cfg.Debug)

	logger.Info("camstream viewer starting",
		"server", cfg.Server,
		"timeout", cfg.ConnectTimeout,
		"snapshots", cfg.SnapshotDir,
		"recordings", cfg.RecordingDir,
		"control", cfg.ControlAddr,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	recordSize := image.Pt(cfg.RecordWidth, cfg.RecordHeight)

	// The control server is created after the session but must see every
	// state change, so transitions go through this hook.
	var (
		mu      sync.Mutex
		ctlSrv  *control.Server
		onState = func(s transport.State) {
			mu.Lock()
			srv := ctlSrv
			mu.Unlock()
			if srv != nil {
				srv.BroadcastStatus(s)
			}
		}
	)

	sess := viewer.New(viewer.Options{
		Addr:           cfg.Server,
		ConnectTimeout: cfg.ConnectTimeout,
		MaxFrameSize:   uint32(cfg.MaxFrameSize),
		Decoder:        decoder.NewJPEGDecoder(decoder.DefaultMaxPixels),
		Snapshots:      &record.Snapshotter{Dir: cfg.SnapshotDir, Logger: logger},
		Recorder: record.NewRecorder(record.RecorderOptions{
			Dir:     cfg.RecordingDir,
			Backlog: cfg.RecordBacklog,
			Logger:  logger,
		}),
		OnState: onState,
		Logger:  logger,
	})

	var wg sync.WaitGroup
	if cfg.ControlAddr != "" {
		srv, err := control.NewServer(control.Options{
			Controller: sess,
			RecordFPS:  cfg.RecordFPS,
			RecordSize: recordSize,
			OnShutdown: stop,
			Logger:     logger,
		})
		if err != nil {
			logger.Error("control init failed", "error", err)
			os.Exit(1)
		}
		mu.Lock()
		ctlSrv = srv
		mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.ListenAndServe(ctx, cfg.ControlAddr); err != nil {
				logger.Error("control server failed", "error", err)
				stop()
			}
		}()
	}

	// One connection attempt, in the background so the window shows progress.
	go func() {
		state, err := sess.Connect(ctx)
		if err != nil {
			logger.Warn("connect failed", "state", state.String(), "error", err)
			return
		}
		<-sess.Done()
		if err := sess.Err(); err != nil {
			logger.Warn("stream ended", "error", err)
		} else {
			logger.Info("stream ended")
		}
		if cfg.Headless {
			stop()
		}
	}()

	if cfg.Headless {
		<-ctx.Done()
	} else {
		win, err := display.New(display.Options{
			Session:    sess,
			Title:      "camstream - " + cfg.Server,
			PollHz:     cfg.PollHz,
			RecordFPS:  cfg.RecordFPS,
			RecordSize: recordSize,
			Logger:     logger,
		})
		if err != nil {
			logger.Error("display init failed", "error", err)
			os.Exit(1)
		}
		// Ebitengine RunGame must be on the main goroutine (macOS requirement).
		if err := win.Run(ctx); err != nil {
			logger.Error("display failed", "error", err)
		}
		stop()
	}

	if err := sess.Shutdown(); err != nil {
		logger.Error("shutdown", "error", err)
	}
	st := sess.ReaderStats()
	logger.Info("viewer stopped", "frames", st.Frames, "bytes", st.Bytes, "codec_failures", st.CodecFailures)
	wg.Wait()
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
