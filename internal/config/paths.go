package config

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultDataDir is where the daemon keeps its state unless overridden
// by --data-dir or NUDGED_DATA_DIR.
const DefaultDataDir = "~/.nudged"

// Paths derives every on-disk location from one data directory.
type Paths struct {
	DataDir string
}

// ResolveDataDir picks the data directory: flag value, then environment,
// then the default, with ~ expanded. The directory is created if needed.
func ResolveDataDir(flagValue string) (Paths, error) {
	dir := flagValue
	if dir == "" {
		dir = os.Getenv("NUDGED_DATA_DIR")
	}
	if dir == "" {
		dir = DefaultDataDir
	}
	dir = ExpandHome(dir)

	if err := os.MkdirAll(dir, 0700); err != nil {
		return Paths{}, err
	}
	return Paths{DataDir: dir}, nil
}

// ExpandHome expands a leading ~ to the user's home directory.
func ExpandHome(path string) string {
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

func (p Paths) ConfigFile() string {
	return filepath.Join(p.DataDir, "config.json")
}

func (p Paths) LogFile() string {
	return filepath.Join(p.DataDir, "nudged.log")
}

// PrivacyFlagFile holds the durable privacy switch: existing means locked.
func (p Paths) PrivacyFlagFile() string {
	return filepath.Join(p.DataDir, ".privacy_mode")
}

func (p Paths) JournalFile() string {
	return filepath.Join(p.DataDir, "journal.db")
}

func (p Paths) KeyFile() string {
	return filepath.Join(p.DataDir, ".journal_key")
}

func (p Paths) PreviewFile() string {
	return filepath.Join(p.DataDir, "preview.jpg")
}

func (p Paths) FramesDir() string {
	return filepath.Join(p.DataDir, "frames")
}

func (p Paths) InstanceFile() string {
	return filepath.Join(p.DataDir, "instance.json")
}
