package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/quietdesk/nudged/internal/domain"
)

// InterventionRecorder is the dispatcher's write side of the controller.
type InterventionRecorder interface {
	RecordIntervention(t time.Time)
}

// Dispatcher delivers emitted suggestions: console first, then optional
// speech, then the journal. Only a successful console delivery counts
// against the minimum spacing; speech and journal failures are logged
// and never roll anything back.
type Dispatcher struct {
	notifier domain.Notifier
	speaker  domain.Speaker // nil when speech output is disabled
	journal  domain.Journal // nil when the journal is disabled
	recorder InterventionRecorder
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher. speaker and journal may be nil.
func NewDispatcher(
	notifier domain.Notifier,
	speaker domain.Speaker,
	journal domain.Journal,
	recorder InterventionRecorder,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		notifier: notifier,
		speaker:  speaker,
		journal:  journal,
		recorder: recorder,
		logger:   logger,
	}
}

// Dispatch sends one intervention to the user.
func (d *Dispatcher) Dispatch(ctx context.Context, rec domain.InterventionRecord) error {
	if err := d.notifier.Deliver(ctx, rec); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrDeliveryFailed, err)
	}

	// The user has seen the suggestion; it counts for spacing even if
	// the extras below fail.
	d.recorder.RecordIntervention(rec.DeliveredAt)

	if d.speaker != nil && rec.Suggestion != "" {
		if err := d.speaker.Speak(ctx, rec.Suggestion); err != nil {
			d.logger.Warn("speech output failed",
				zap.String("run_id", rec.RunID),
				zap.Error(err))
		}
	}

	if d.journal != nil {
		if err := d.journal.Record(ctx, rec); err != nil {
			d.logger.Warn("journal write failed",
				zap.String("run_id", rec.RunID),
				zap.Error(err))
		}
	}
	return nil
}

// Ensure Dispatcher satisfies the pipeline's delivery port.
var _ Deliverer = (*Dispatcher)(nil)
