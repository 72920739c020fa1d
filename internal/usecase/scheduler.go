package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/quietdesk/nudged/internal/domain"
)

// maxConsecutiveSensorFailures is how many capture attempts may fail in
// a row before the daemon gives up on the sensor.
const maxConsecutiveSensorFailures = 3

// Scheduler decides when to pull a frame for analysis. It is the sole
// owner of the frame source handle and is driven from a single
// goroutine (the daemon loop); it is not safe for concurrent use.
type Scheduler struct {
	source   domain.FrameSource
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	lastAttempt time.Time
	failures    int
	suspended   bool
}

// NewScheduler creates a scheduler capturing every interval, waiting at
// most timeout per grab.
func NewScheduler(source domain.FrameSource, interval, timeout time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		source:   source,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Start warms the frame source. The first interval boundary fires
// immediately, so the daemon takes a baseline snapshot right away.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.source.Start(ctx); err != nil {
		return fmt.Errorf("failed to start frame source: %w", err)
	}
	s.suspended = false
	return nil
}

// Stop releases the frame source for good.
func (s *Scheduler) Stop() error {
	return s.source.Stop()
}

// Tick is called on every poll. It returns a frame when a new analysis
// run should start, nil when this tick has nothing to do. A skipped
// boundary (paused, privacy locked, pipeline busy) is consumed, so the
// next capture waits for the next boundary instead of firing early.
func (s *Scheduler) Tick(ctx context.Context, now time.Time, state domain.RunState, busy bool) (*domain.Frame, error) {
	if now.Sub(s.lastAttempt) < s.interval {
		return nil, nil
	}
	s.lastAttempt = now

	if s.suspended || state != domain.StateActive {
		return nil, nil
	}
	if busy {
		// Drop, never queue: the in-flight run keeps the state it
		// started with, and this frame simply never exists.
		s.logger.Debug("capture skipped, analysis in flight")
		return nil, nil
	}

	grabCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	frame, err := s.source.Grab(grabCtx)
	if err != nil {
		s.failures++
		if s.failures >= maxConsecutiveSensorFailures {
			return nil, fmt.Errorf("%w: %d consecutive capture failures, last: %w",
				domain.ErrSensorFatal, s.failures, err)
		}
		return nil, fmt.Errorf("%w (%d/%d): %w",
			domain.ErrSensorFailure, s.failures, maxConsecutiveSensorFailures, err)
	}
	s.failures = 0
	return &frame, nil
}

// Suspend releases the frame source while the privacy lock holds. The
// failure count resets: a new device session starts clean.
func (s *Scheduler) Suspend() error {
	if s.suspended {
		return nil
	}
	s.suspended = true
	s.failures = 0
	if err := s.source.Stop(); err != nil {
		return fmt.Errorf("failed to release frame source: %w", err)
	}
	s.logger.Info("frame source released")
	return nil
}

// Resume reopens the frame source after the privacy lock lifts.
func (s *Scheduler) Resume(ctx context.Context) error {
	if !s.suspended {
		return nil
	}
	if err := s.source.Start(ctx); err != nil {
		return fmt.Errorf("failed to reopen frame source: %w", err)
	}
	s.suspended = false
	s.logger.Info("frame source reopened")
	return nil
}

// Suspended reports whether the source is currently released.
func (s *Scheduler) Suspended() bool {
	return s.suspended
}
