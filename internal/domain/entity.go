// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "time"

// RunState is the daemon's coarse operating mode.
type RunState string

const (
	// StateActive: sensing and analysis run normally.
	StateActive RunState = "active"

	// StatePaused: capture is skipped but the device stays warm.
	StatePaused RunState = "paused"

	// StatePrivacyLocked: all sensing and analysis suppressed, device
	// released. Survives restarts via the privacy flag file.
	StatePrivacyLocked RunState = "privacy_locked"
)

// Command is a foreground control request, from a key press or a signal.
type Command int

const (
	CommandNone Command = iota
	CommandQuit
	CommandPauseResume
	CommandPrivacyToggle
)

func (c Command) String() string {
	switch c {
	case CommandQuit:
		return "quit"
	case CommandPauseResume:
		return "pause_resume"
	case CommandPrivacyToggle:
		return "privacy_toggle"
	default:
		return "none"
	}
}

// Frame is one captured image. Ownership transfers on hand-off: the
// producer never touches Data again once a Frame has been returned.
type Frame struct {
	Data       []byte // encoded JPEG
	Width      int
	Height     int
	Seq        uint64
	CapturedAt time.Time
}

// SceneObservation is a single perception result; the unit stored in
// the context window.
type SceneObservation struct {
	Description string
	Confidence  float64
	Model       string
	ObservedAt  time.Time
}

// IntentResult is the reasoning model's output for one analysis run.
// Field names mirror the JSON contract given to the model.
type IntentResult struct {
	ShouldAssist bool    `json:"should_assist"`
	Confidence   float64 `json:"confidence"`
	Intent       string  `json:"intent"`
	Suggestion   string  `json:"suggestion"`
}

// InterventionRecord captures one suggestion delivered to the user.
type InterventionRecord struct {
	RunID       string
	Intent      string
	Suggestion  string
	Confidence  float64
	Scene       string // description that triggered the suggestion
	DeliveredAt time.Time
}

// InstanceEntry stores the state of the running daemon for discovery
// by the status command. Persisted as a small JSON file.
type InstanceEntry struct {
	Version       int    `json:"version"`
	PID           int    `json:"pid"`
	State         string `json:"state"`
	StartedAt     int64  `json:"started_at"`
	LastHeartbeat int64  `json:"last_heartbeat"`
	AppVersion    string `json:"app_version,omitempty"`
}
