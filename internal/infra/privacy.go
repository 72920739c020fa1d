package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/quietdesk/nudged/internal/domain"
)

// FilePrivacyFlag implements domain.PrivacyFlag as a flag file: the
// file existing means privacy mode is engaged. The file survives
// restarts and crashes, which is the point.
type FilePrivacyFlag struct {
	path string
}

// NewFilePrivacyFlag returns a flag backed by the file at path.
func NewFilePrivacyFlag(path string) *FilePrivacyFlag {
	return &FilePrivacyFlag{path: path}
}

// Engaged reports whether the flag file exists. A directory at the flag
// path (seen after interrupted runs) is repaired to absent.
func (f *FilePrivacyFlag) Engaged() bool {
	info, err := os.Stat(f.path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		_ = os.RemoveAll(f.path)
		return false
	}
	return true
}

// Engage creates the flag file. The content is only a timestamp for
// humans inspecting the data directory; existence is what matters.
func (f *FilePrivacyFlag) Engage() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("failed to create flag directory: %w", err)
	}
	content := []byte(time.Now().UTC().Format(time.RFC3339) + "\n")
	if err := os.WriteFile(f.path, content, 0600); err != nil {
		return fmt.Errorf("failed to write privacy flag: %w", err)
	}
	return nil
}

// Disengage removes the flag file. A missing file is not an error.
func (f *FilePrivacyFlag) Disengage() error {
	err := os.Remove(f.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove privacy flag: %w", err)
	}
	return nil
}

// Path returns the flag file location.
func (f *FilePrivacyFlag) Path() string {
	return f.path
}

// Ensure FilePrivacyFlag implements domain.PrivacyFlag.
var _ domain.PrivacyFlag = (*FilePrivacyFlag)(nil)
