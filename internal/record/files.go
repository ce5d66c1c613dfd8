// Package record persists frames from the stream: single JPEG snapshots and
// MJPEG AVI recordings.
package record

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// TimestampLayout names snapshot and recording files.
const TimestampLayout = "2006-01-02_15-04-05"

// uniquePath returns dir/<timestamp><ext>, adding _1, _2, ... when a file
// with that name already exists.
func uniquePath(dir string, t time.Time, ext string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	base := t.Format(TimestampLayout)
	for i := 0; i < 1000; i++ {
		name := base + ext
		if i > 0 {
			name = fmt.Sprintf("%s_%d%s", base, i, ext)
		}
		path := filepath.Join(dir, name)
		_, err := os.Lstat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("no free file name for %s%s in %s", base, ext, dir)
}
