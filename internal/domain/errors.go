package domain

import "errors"

// Sentinel errors shared across layers. Wrap with fmt.Errorf("...: %w")
// and classify with errors.Is.
var (
	// ErrNoFrame: the source produced nothing before the deadline.
	ErrNoFrame = errors.New("no frame available")

	// ErrSensorFailure: one capture attempt failed. Recoverable.
	ErrSensorFailure = errors.New("sensor capture failed")

	// ErrSensorFatal: capture failed too many times in a row; the
	// daemon should shut down cleanly.
	ErrSensorFatal = errors.New("sensor failed repeatedly")

	// ErrPerceptionFailed: the vision model call failed.
	ErrPerceptionFailed = errors.New("scene description failed")

	// ErrReasoningFailed: the intent model call failed.
	ErrReasoningFailed = errors.New("intent inference failed")

	// ErrDeliveryFailed: the suggestion never reached the user.
	ErrDeliveryFailed = errors.New("suggestion delivery failed")

	// ErrPersistenceFailed: durable state could not be written.
	ErrPersistenceFailed = errors.New("state persistence failed")

	// ErrAlreadyRunning: another live instance holds the registry.
	ErrAlreadyRunning = errors.New("another instance is already running")
)
