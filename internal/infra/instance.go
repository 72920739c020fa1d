package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/quietdesk/nudged/internal/domain"
)

// instanceFileVersion guards the JSON layout.
const instanceFileVersion = 1

// FileInstanceRegistry implements domain.InstanceRegistry with a JSON
// file in the data directory. One assistant per data directory:
// Register refuses while another live process holds the file.
type FileInstanceRegistry struct {
	path           string
	processManager domain.ProcessManager
}

// NewFileInstanceRegistry creates a registry backed by the file at path.
func NewFileInstanceRegistry(path string, pm domain.ProcessManager) *FileInstanceRegistry {
	return &FileInstanceRegistry{
		path:           path,
		processManager: pm,
	}
}

// Register claims the instance file for entry.PID. A stale entry left
// by a crashed process is overwritten; a live one makes Register fail
// with domain.ErrAlreadyRunning.
func (r *FileInstanceRegistry) Register(entry domain.InstanceEntry) error {
	// File lock serializes competing starts.
	lockPath := r.path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	defer lockFile.Close()

	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() { _ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN) }()

	existing, err := r.Current()
	if err != nil {
		return err
	}
	if existing != nil && existing.PID != entry.PID && r.processManager.IsRunning(existing.PID) {
		return fmt.Errorf("%w: pid %d holds %s", domain.ErrAlreadyRunning, existing.PID, r.path)
	}

	entry.Version = instanceFileVersion
	if entry.LastHeartbeat == 0 {
		entry.LastHeartbeat = time.Now().Unix()
	}
	return r.atomicWrite(&entry)
}

// Heartbeat refreshes the timestamp and publishes the current run
// state for the status command.
func (r *FileInstanceRegistry) Heartbeat(state domain.RunState) error {
	entry, err := r.Current()
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("instance not registered")
	}

	entry.State = string(state)
	entry.LastHeartbeat = time.Now().Unix()
	return r.atomicWrite(entry)
}

// Current returns the registered instance, or nil when no file exists.
func (r *FileInstanceRegistry) Current() (*domain.InstanceEntry, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entry domain.InstanceEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to parse instance file: %w", err)
	}
	return &entry, nil
}

// Clear removes the instance file. A missing file is not an error.
func (r *FileInstanceRegistry) Clear() error {
	err := os.Remove(r.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Path returns the instance file location.
func (r *FileInstanceRegistry) Path() string {
	return r.path
}

// atomicWrite writes the entry atomically (write + rename).
func (r *FileInstanceRegistry) atomicWrite(entry *domain.InstanceEntry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}

	// Write to temp file first (unique per process to avoid race)
	tmpPath := fmt.Sprintf("%s.%d.tmp", r.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath) // Clean up on failure
		return err
	}
	return nil
}

// Ensure FileInstanceRegistry implements domain.InstanceRegistry.
var _ domain.InstanceRegistry = (*FileInstanceRegistry)(nil)
