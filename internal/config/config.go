package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds configuration for the camera server binary.
type ServerConfig struct {
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port"`
	Source     string        `yaml:"source"` // camera, screen or pattern
	Device     string        `yaml:"device"` // camera device ID, empty for the first camera
	Display    int           `yaml:"display"`
	Width      int           `yaml:"width"`
	Height     int           `yaml:"height"`
	FPS        int           `yaml:"fps"`
	Quality    int           `yaml:"quality"`
	Warmup     time.Duration `yaml:"warmup"`
	Sequential bool          `yaml:"sequential"`
	Debug      bool          `yaml:"debug"`
}

// Sources accepted by ServerConfig.Source.
const (
	SourceCamera  = "camera"
	SourceScreen  = "screen"
	SourcePattern = "pattern"
)

// DefaultServer returns the server defaults.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:    9090,
		Source:  SourceCamera,
		Width:   720,
		Height:  576,
		FPS:     30,
		Quality: 80,
		Warmup:  2 * time.Second,
	}
}

// Addr is the listen address.
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate reports the first out-of-range setting.
func (c ServerConfig) Validate() error {
	switch {
	case c.Port < 0 || c.Port > 65535:
		return fmt.Errorf("port %d out of range", c.Port)
	case c.Source != SourceCamera && c.Source != SourceScreen && c.Source != SourcePattern:
		return fmt.Errorf("unknown source %q", c.Source)
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("invalid resolution %dx%d", c.Width, c.Height)
	case c.FPS < 1 || c.FPS > 60:
		return fmt.Errorf("fps must be 1-60, got %d", c.FPS)
	case c.Quality < 1 || c.Quality > 100:
		return fmt.Errorf("quality must be 1-100, got %d", c.Quality)
	case c.Warmup < 0:
		return errors.New("warmup must not be negative")
	}
	return nil
}

// ParseServer parses flags for the server binary. Values from -config are
// applied first and explicitly set flags win over them.
func ParseServer(args []string) (*ServerConfig, error) {
	cfg := DefaultServer()
	fs := flag.NewFlagSet("camserver", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file")
	fs.StringVar(&cfg.Host, "host", cfg.Host, "Interface to listen on (empty = all)")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "TCP port to serve frames on")
	fs.StringVar(&cfg.Source, "source", cfg.Source, "Frame source: camera, screen or pattern")
	fs.StringVar(&cfg.Device, "device", cfg.Device, "Camera device ID (empty = first camera)")
	fs.IntVar(&cfg.Display, "display", cfg.Display, "Display index for the screen source (0 = primary)")
	fs.IntVar(&cfg.Width, "width", cfg.Width, "Capture width")
	fs.IntVar(&cfg.Height, "height", cfg.Height, "Capture height")
	fs.IntVar(&cfg.FPS, "fps", cfg.FPS, "Target frames per second")
	fs.IntVar(&cfg.Quality, "quality", cfg.Quality, "JPEG quality (1-100)")
	fs.DurationVar(&cfg.Warmup, "warmup", cfg.Warmup, "Delay between opening the source and streaming")
	fs.BoolVar(&cfg.Sequential, "sequential", cfg.Sequential, "Keep serving new clients after one disconnects")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Debug logging")

	if err := parse(fs, args, configPath, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ViewerConfig holds configuration for the viewer binary.
type ViewerConfig struct {
	Server         string        `yaml:"server"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	MaxFrameSize   uint          `yaml:"max_frame_size"`
	SnapshotDir    string        `yaml:"snapshot_dir"`
	RecordingDir   string        `yaml:"recording_dir"`
	RecordFPS      int           `yaml:"record_fps"`
	RecordWidth    int           `yaml:"record_width"`
	RecordHeight   int           `yaml:"record_height"`
	RecordBacklog  int           `yaml:"record_backlog"`
	PollHz         int           `yaml:"poll_hz"`
	ControlAddr    string        `yaml:"control_addr"` // empty disables the control endpoint
	Headless       bool          `yaml:"headless"`
	Debug          bool          `yaml:"debug"`
}

// DefaultViewer returns the viewer defaults.
func DefaultViewer() ViewerConfig {
	return ViewerConfig{
		Server:         "192.168.1.4:9090",
		ConnectTimeout: 5 * time.Second,
		MaxFrameSize:   16 << 20,
		SnapshotDir:    "Snapshots",
		RecordingDir:   "Recordings",
		RecordFPS:      20,
		RecordWidth:    720,
		RecordHeight:   576,
		RecordBacklog:  32,
		PollHz:         30,
	}
}

// Validate reports the first out-of-range setting.
func (c ViewerConfig) Validate() error {
	if _, _, err := net.SplitHostPort(c.Server); err != nil {
		return fmt.Errorf("server address %q: %w", c.Server, err)
	}
	switch {
	case c.ConnectTimeout <= 0:
		return errors.New("connect timeout must be positive")
	case c.MaxFrameSize == 0 || c.MaxFrameSize > 1<<31:
		return fmt.Errorf("max frame size %d out of range", c.MaxFrameSize)
	case c.RecordFPS < 1 || c.RecordFPS > 60:
		return fmt.Errorf("record fps must be 1-60, got %d", c.RecordFPS)
	case c.RecordWidth <= 0 || c.RecordHeight <= 0:
		return fmt.Errorf("invalid record resolution %dx%d", c.RecordWidth, c.RecordHeight)
	case c.RecordBacklog <= 0:
		return errors.New("record backlog must be positive")
	case c.PollHz < 1 || c.PollHz > 240:
		return fmt.Errorf("poll rate must be 1-240 Hz, got %d", c.PollHz)
	case c.Headless && c.ControlAddr == "":
		return errors.New("headless mode needs a control address")
	}
	return nil
}

// ParseViewer parses flags for the viewer binary.
func ParseViewer(args []string) (*ViewerConfig, error) {
	cfg := DefaultViewer()
	fs := flag.NewFlagSet("camviewer", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file")
	fs.StringVar(&cfg.Server, "server", cfg.Server, "Camera server address host:port")
	fs.DurationVar(&cfg.ConnectTimeout, "timeout", cfg.ConnectTimeout, "Connect timeout")
	fs.UintVar(&cfg.MaxFrameSize, "max-frame", cfg.MaxFrameSize, "Largest accepted frame in bytes")
	fs.StringVar(&cfg.SnapshotDir, "snapshots", cfg.SnapshotDir, "Snapshot directory")
	fs.StringVar(&cfg.RecordingDir, "recordings", cfg.RecordingDir, "Recording directory")
	fs.IntVar(&cfg.RecordFPS, "record-fps", cfg.RecordFPS, "Recording frame rate")
	fs.IntVar(&cfg.RecordWidth, "record-width", cfg.RecordWidth, "Recording width")
	fs.IntVar(&cfg.RecordHeight, "record-height", cfg.RecordHeight, "Recording height")
	fs.IntVar(&cfg.RecordBacklog, "record-backlog", cfg.RecordBacklog, "Frames queued for the recording writer")
	fs.IntVar(&cfg.PollHz, "poll-hz", cfg.PollHz, "Display refresh rate")
	fs.StringVar(&cfg.ControlAddr, "control", cfg.ControlAddr, "WebSocket control address, e.g. 127.0.0.1:8081 (empty = off)")
	fs.BoolVar(&cfg.Headless, "headless", cfg.Headless, "Run without a window (control endpoint only)")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Debug logging")

	if err := parse(fs, args, configPath, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// parse runs fs over args, then loads *configPath into cfg if set and
// re-applies the flags given on the command line.
func parse(fs *flag.FlagSet, args []string, configPath *string, cfg any) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return nil
	}

	explicit := map[string]string{}
	fs.Visit(func(f *flag.Flag) {
		explicit[f.Name] = f.Value.String()
	})
	if err := Load(*configPath, cfg); err != nil {
		return err
	}
	for name, value := range explicit {
		if err := fs.Set(name, value); err != nil {
			return fmt.Errorf("flag -%s: %w", name, err)
		}
	}
	return nil
}

// Load reads a YAML file into cfg. Keys missing from the file keep their
// current values.
func Load(path string, cfg any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}
