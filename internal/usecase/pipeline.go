package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quietdesk/nudged/internal/domain"
)

// StateReader is the pipeline's view of the controller: the live run
// state for privacy checkpoints, and the spacing clock for the gate.
type StateReader interface {
	State() domain.RunState
	TimeSinceLastIntervention(now time.Time) time.Duration
}

// Deliverer dispatches an emitted suggestion. *Dispatcher implements it.
type Deliverer interface {
	Dispatch(ctx context.Context, rec domain.InterventionRecord) error
}

// Pipeline runs the staged analysis (perceive, remember, reason, gate,
// deliver) in a background goroutine, at most one run at a time.
type Pipeline struct {
	describer domain.SceneDescriber
	reasoner  domain.IntentReasoner
	window    *Window
	gate      Gate
	deliverer Deliverer
	state     StateReader
	logger    *zap.Logger

	perceptionTimeout time.Duration
	reasoningTimeout  time.Duration

	busy atomic.Bool
	wg   sync.WaitGroup
}

// NewPipeline wires the analysis stages together.
func NewPipeline(
	describer domain.SceneDescriber,
	reasoner domain.IntentReasoner,
	window *Window,
	gate Gate,
	deliverer Deliverer,
	state StateReader,
	perceptionTimeout time.Duration,
	reasoningTimeout time.Duration,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		describer:         describer,
		reasoner:          reasoner,
		window:            window,
		gate:              gate,
		deliverer:         deliverer,
		state:             state,
		perceptionTimeout: perceptionTimeout,
		reasoningTimeout:  reasoningTimeout,
		logger:            logger,
	}
}

// Launch starts one analysis run for the frame and returns immediately.
// It returns false when a run is already in flight: the frame is then
// dropped, never queued. The frame's ownership passes to the run.
func (p *Pipeline) Launch(ctx context.Context, frame domain.Frame) bool {
	if !p.busy.CompareAndSwap(false, true) {
		return false
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.busy.Store(false)
		p.run(ctx, frame)
	}()
	return true
}

// Busy reports whether a run is in flight.
func (p *Pipeline) Busy() bool {
	return p.busy.Load()
}

// Wait blocks until the in-flight run, if any, finishes. Shutdown calls
// this after cancelling the context, which unblocks any model call.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

func (p *Pipeline) run(ctx context.Context, frame domain.Frame) {
	runID := uuid.NewString()
	logger := p.logger.With(zap.String("run_id", runID))
	start := time.Now()

	// Stage 1: perceive. A failed or timed-out description abandons the
	// run before anything touches the history.
	pctx, cancel := context.WithTimeout(ctx, p.perceptionTimeout)
	obs, err := p.describer.Describe(pctx, frame)
	cancel()
	if err != nil {
		logger.Warn("scene description failed, run abandoned",
			zap.Uint64("frame_seq", frame.Seq),
			zap.Error(err))
		return
	}
	logger.Debug("scene described",
		zap.String("description", obs.Description),
		zap.Duration("elapsed", time.Since(start)))

	// Stage 2: remember. The observation joins the window even when the
	// privacy lock engaged during the model call; everything downstream
	// of the append is skipped in that case and the run ends silently.
	p.window.Append(obs)

	if p.state.State() == domain.StatePrivacyLocked {
		logger.Info("privacy engaged mid-run, stopped after context append")
		return
	}

	// Stage 3: reason over the recent window. Inference failure never
	// kills the run; it degrades to the safe default, which the gate
	// then suppresses.
	rctx, cancel := context.WithTimeout(ctx, p.reasoningTimeout)
	res, err := p.reasoner.Infer(rctx, p.window.Snapshot())
	cancel()
	if err != nil {
		logger.Warn("intent inference failed, using safe default", zap.Error(err))
		res = domain.IntentResult{}
	}

	// Stage 4: gate, then deliver. The gate reads the state at decision
	// time, so a pause or privacy lock that landed during reasoning
	// suppresses delivery here.
	now := time.Now()
	verdict := p.gate.Decide(res, p.state.State(), p.state.TimeSinceLastIntervention(now))
	if !verdict.Emit {
		logger.Debug("intervention suppressed",
			zap.String("reason", verdict.Reason),
			zap.Bool("should_assist", res.ShouldAssist),
			zap.Float64("confidence", res.Confidence))
		return
	}

	rec := domain.InterventionRecord{
		RunID:       runID,
		Intent:      res.Intent,
		Suggestion:  res.Suggestion,
		Confidence:  res.Confidence,
		Scene:       obs.Description,
		DeliveredAt: now,
	}
	if err := p.deliverer.Dispatch(ctx, rec); err != nil {
		logger.Warn("suggestion delivery failed", zap.Error(err))
		return
	}
	logger.Info("intervention delivered",
		zap.String("intent", res.Intent),
		zap.Float64("confidence", res.Confidence),
		zap.Duration("run_time", time.Since(start)))
}
