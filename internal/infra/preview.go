package infra

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/quietdesk/nudged/internal/domain"
)

// FilePreview implements domain.PreviewSink by atomically replacing a
// single JPEG on disk. Viewers that follow the file always see a
// complete image, never a half-written one.
type FilePreview struct {
	path      string
	framesDir string // non-empty enables archival copies
}

// NewFilePreview returns a sink writing the latest frame to path.
// When framesDir is non-empty every published frame is also archived
// there under a timestamped name.
func NewFilePreview(path, framesDir string) (*FilePreview, error) {
	if framesDir != "" {
		if err := os.MkdirAll(framesDir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create frames directory: %w", err)
		}
	}
	return &FilePreview{path: path, framesDir: framesDir}, nil
}

// Publish replaces the preview image with frame.
func (p *FilePreview) Publish(frame domain.Frame) error {
	if len(frame.Data) == 0 {
		return fmt.Errorf("refusing to publish empty frame")
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", p.path, os.Getpid())
	if err := os.WriteFile(tmpPath, frame.Data, 0600); err != nil {
		return fmt.Errorf("failed to write preview: %w", err)
	}
	if err := os.Rename(tmpPath, p.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace preview: %w", err)
	}

	if p.framesDir != "" {
		name := fmt.Sprintf("frame_%s_%06d.jpg",
			frame.CapturedAt.Format("20060102_150405"), frame.Seq)
		if err := os.WriteFile(filepath.Join(p.framesDir, name), frame.Data, 0600); err != nil {
			return fmt.Errorf("failed to archive frame: %w", err)
		}
	}
	return nil
}

// Ensure FilePreview implements domain.PreviewSink.
var _ domain.PreviewSink = (*FilePreview)(nil)
