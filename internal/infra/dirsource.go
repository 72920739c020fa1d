package infra

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quietdesk/nudged/internal/domain"
)

// DirectorySource implements domain.FrameSource from a directory of
// images, cycling through them in name order. Used for development and
// integration tests where no camera is available.
type DirectorySource struct {
	dir    string
	logger *zap.Logger

	mu      sync.Mutex
	files   []string
	next    int
	seq     uint64
	started bool
}

// NewDirectorySource creates a source reading images from dir.
func NewDirectorySource(dir string, logger *zap.Logger) *DirectorySource {
	return &DirectorySource{dir: dir, logger: logger}
}

// Start scans the directory. It fails when no images are present so a
// misconfigured path surfaces immediately.
func (d *DirectorySource) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return fmt.Errorf("failed to read frame directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(d.dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("no images found in %s", d.dir)
	}
	sort.Strings(files)

	d.files = files
	d.next = 0
	d.started = true
	d.logger.Info("directory source started",
		zap.String("dir", d.dir),
		zap.Int("images", len(files)))
	return nil
}

// Grab returns the next image in the cycle.
func (d *DirectorySource) Grab(ctx context.Context) (domain.Frame, error) {
	if err := ctx.Err(); err != nil {
		return domain.Frame{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return domain.Frame{}, fmt.Errorf("directory source not started")
	}

	path := d.files[d.next]
	d.next = (d.next + 1) % len(d.files)

	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Frame{}, fmt.Errorf("failed to read frame %s: %w", path, err)
	}

	d.seq++
	return domain.Frame{
		Data:       data,
		Width:      captureWidth,
		Height:     captureHeight,
		Seq:        d.seq,
		CapturedAt: time.Now(),
	}, nil
}

// Stop marks the source stopped; Start rescans on reuse.
func (d *DirectorySource) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = false
	return nil
}

// Ensure DirectorySource implements domain.FrameSource.
var _ domain.FrameSource = (*DirectorySource)(nil)
