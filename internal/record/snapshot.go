package record

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"time"

	"github.com/junsooki/camstream/internal/encoder"
)

// DefaultSnapshotDir is where snapshots go when no directory is configured.
const DefaultSnapshotDir = "Snapshots"

// Snapshotter writes single frames as JPEG files named by capture time.
type Snapshotter struct {
	Dir     string
	Quality int
	Logger  *slog.Logger

	now func() time.Time
}

// Save encodes img and writes it under Dir, returning the file path.
func (s *Snapshotter) Save(img image.Image) (string, error) {
	if img == nil {
		return "", errors.New("snapshot: no frame")
	}
	dir := s.Dir
	if dir == "" {
		dir = DefaultSnapshotDir
	}
	quality := s.Quality
	if quality == 0 {
		quality = 95
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}

	data, err := encoder.NewJPEGEncoder(quality).Encode(img)
	if err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}
	path, err := uniquePath(dir, now(), ".jpg")
	if err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}

	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("snapshot saved", "path", path, "bytes", len(data))
	return path, nil
}
