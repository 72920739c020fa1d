package domain

import "context"

// FrameSource produces frames from a camera or another image provider.
type FrameSource interface {
	// Start warms the source (opens the device, begins streaming).
	Start(ctx context.Context) error

	// Grab returns the freshest available frame, waiting until one
	// arrives or ctx expires. Returns ErrNoFrame on an empty source.
	Grab(ctx context.Context) (Frame, error)

	// Stop releases the device. Start may be called again later.
	Stop() error
}

// SceneDescriber turns a frame into a short scene description.
// Implementation: Ollama vision model over HTTP.
type SceneDescriber interface {
	Describe(ctx context.Context, frame Frame) (SceneObservation, error)
}

// IntentReasoner infers what the user is doing and whether to offer help.
// recent is ordered oldest first and includes the newest observation.
type IntentReasoner interface {
	Infer(ctx context.Context, recent []SceneObservation) (IntentResult, error)
}

// Notifier delivers a suggestion to the user.
// Implementation: console banner.
type Notifier interface {
	Deliver(ctx context.Context, rec InterventionRecord) error
}

// Speaker voices a suggestion when TTS is enabled.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// PreviewSink receives frames for on-disk preview and archival.
type PreviewSink interface {
	Publish(frame Frame) error
}

// PrivacyFlag is the durable privacy kill-switch.
// Implementation: flag file; existence means engaged.
type PrivacyFlag interface {
	// Engaged reports whether the flag is set.
	Engaged() bool

	// Engage sets the flag, durably.
	Engage() error

	// Disengage clears the flag, durably.
	Disengage() error

	// Path returns the flag file path (for status output).
	Path() string
}

// Journal is the persistent intervention log.
// Implementation: SQLCipher-encrypted database.
type Journal interface {
	// Record appends one delivered intervention.
	Record(ctx context.Context, rec InterventionRecord) error

	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]InterventionRecord, error)

	// Close releases the database connection.
	Close() error
}

// KeyProvider abstracts the source of the journal encryption key.
// Phase 1: file-based key generated on first run.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}

// InstanceRegistry records the running daemon for the status command
// and duplicate-instance detection.
// Implementation: JSON file in the data directory.
type InstanceRegistry interface {
	// Register saves the current process entry, replacing any stale one.
	Register(entry InstanceEntry) error

	// Heartbeat refreshes the timestamp and current state.
	Heartbeat(state RunState) error

	// Current returns the registered entry, or nil if none.
	Current() (*InstanceEntry, error)

	// Clear removes the registry file (clean shutdown).
	Clear() error

	// Path returns the registry file path (for tests and status).
	Path() string
}

// ProcessManager handles OS process queries.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// FindByName returns PIDs of processes matching the pattern.
	FindByName(pattern string) ([]int, error)
}
