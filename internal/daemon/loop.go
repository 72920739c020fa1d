// Package daemon implements the foreground assistant loop, its input
// sources, and detached spawning.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/quietdesk/nudged/internal/domain"
	"github.com/quietdesk/nudged/internal/usecase"
)

// AssistantConfig holds foreground loop timing.
type AssistantConfig struct {
	PollInterval      time.Duration // command/capture poll cadence
	HeartbeatInterval time.Duration // instance file refresh
	Version           string
}

// DefaultAssistantConfig returns default loop configuration. The poll
// interval is deliberately much shorter than any capture interval so a
// keypress never waits behind the sensor cadence.
func DefaultAssistantConfig() AssistantConfig {
	return AssistantConfig{
		PollInterval:      50 * time.Millisecond,
		HeartbeatInterval: 30 * time.Second,
	}
}

// Assistant is the foreground daemon. It owns the control surface:
// every user command lands here, independent of whatever the analysis
// pipeline is doing in the background. At most one analysis run is in
// flight at any time; the loop itself never blocks on model calls.
type Assistant struct {
	config     AssistantConfig
	controller *usecase.Controller
	scheduler  *usecase.Scheduler
	pipeline   *usecase.Pipeline
	registry   domain.InstanceRegistry
	preview    domain.PreviewSink // nil disables preview
	commands   <-chan domain.Command
	console    io.Writer
	logger     *zap.Logger

	cancelRuns context.CancelFunc
}

// NewAssistant wires the foreground loop. preview may be nil.
func NewAssistant(
	config AssistantConfig,
	controller *usecase.Controller,
	scheduler *usecase.Scheduler,
	pipeline *usecase.Pipeline,
	registry domain.InstanceRegistry,
	preview domain.PreviewSink,
	commands <-chan domain.Command,
	console io.Writer,
	logger *zap.Logger,
) *Assistant {
	return &Assistant{
		config:     config,
		controller: controller,
		scheduler:  scheduler,
		pipeline:   pipeline,
		registry:   registry,
		preview:    preview,
		commands:   commands,
		console:    console,
		logger:     logger,
	}
}

// Run blocks until a quit command, a fatal sensor condition, or ctx
// cancellation. The returned error is nil on a user-requested exit.
func (a *Assistant) Run(ctx context.Context, pid int) error {
	entry := domain.InstanceEntry{
		PID:        pid,
		State:      string(a.controller.State()),
		StartedAt:  time.Now().Unix(),
		AppVersion: a.config.Version,
	}
	if err := a.registry.Register(entry); err != nil {
		return err
	}

	// Background runs get their own context so shutdown can abandon an
	// in-flight analysis without waiting out its model calls.
	runCtx, cancel := context.WithCancel(ctx)
	a.cancelRuns = cancel
	defer cancel()

	if a.controller.State() == domain.StatePrivacyLocked {
		if err := a.scheduler.Suspend(); err != nil {
			a.logger.Warn("failed to release frame source", zap.Error(err))
		}
		fmt.Fprintln(a.console, "🔒 Privacy mode is on (flag file present). Press 'x' to resume monitoring.")
	} else {
		if err := a.scheduler.Start(ctx); err != nil {
			_ = a.registry.Clear()
			return err
		}
	}

	a.logger.Info("assistant started",
		zap.Int("pid", pid),
		zap.String("state", string(a.controller.State())))
	fmt.Fprintln(a.console, "✅ Assistant is now running.")
	fmt.Fprintln(a.console, "Press 'q' to quit, 'p' to pause/resume, 'x' for privacy mode")

	poll := time.NewTicker(a.config.PollInterval)
	heartbeat := time.NewTicker(a.config.HeartbeatInterval)
	defer func() {
		poll.Stop()
		heartbeat.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("assistant stopping", zap.String("reason", "context canceled"))
			return a.shutdown(nil)

		case cmd := <-a.commands:
			if quit := a.handleCommand(ctx, cmd); quit {
				a.logger.Info("assistant stopping", zap.String("reason", "quit command"))
				return a.shutdown(nil)
			}

		case now := <-poll.C:
			if err := a.step(runCtx, now); err != nil {
				fmt.Fprintf(a.console, "\n❌ %v\n", err)
				fmt.Fprintln(a.console, "Shutting down.")
				return a.shutdown(err)
			}

		case <-heartbeat.C:
			if err := a.registry.Heartbeat(a.controller.State()); err != nil {
				a.logger.Warn("failed to update heartbeat", zap.Error(err))
			}
		}
	}
}

// step runs one foreground tick: ask the scheduler for a frame and, if
// one is due, hand it to the pipeline. Only a fatal sensor escalation
// is returned; everything else recovers by waiting for the next tick.
func (a *Assistant) step(runCtx context.Context, now time.Time) error {
	frame, err := a.scheduler.Tick(runCtx, now, a.controller.State(), a.pipeline.Busy())
	if err != nil {
		if errors.Is(err, domain.ErrSensorFatal) {
			return err
		}
		a.logger.Warn("capture failed", zap.Error(err))
		return nil
	}
	if frame == nil {
		return nil
	}

	if a.preview != nil {
		if perr := a.preview.Publish(*frame); perr != nil {
			a.logger.Debug("preview publish failed", zap.Error(perr))
		}
	}

	if !a.pipeline.Launch(runCtx, *frame) {
		a.logger.Debug("frame dropped, analysis in flight", zap.Uint64("frame_seq", frame.Seq))
	}
	return nil
}

// handleCommand applies one user command and reports whether it was a
// quit.
func (a *Assistant) handleCommand(ctx context.Context, cmd domain.Command) bool {
	switch cmd {
	case domain.CommandQuit:
		return true

	case domain.CommandPauseResume:
		switch a.controller.State() {
		case domain.StateActive:
			a.controller.RequestPause()
			fmt.Fprintln(a.console, "\n⏸️  Assistant paused. Press 'p' to resume.")
		case domain.StatePaused:
			a.controller.RequestResume()
			fmt.Fprintln(a.console, "\n▶️  Assistant resumed.")
		case domain.StatePrivacyLocked:
			fmt.Fprintln(a.console, "\n🔒 Privacy mode is on. Press 'x' to leave it first.")
		}

	case domain.CommandPrivacyToggle:
		before := a.controller.State()
		after := a.controller.RequestPrivacyToggle()
		switch {
		case after == domain.StatePrivacyLocked:
			if err := a.scheduler.Suspend(); err != nil {
				a.logger.Warn("failed to release frame source", zap.Error(err))
			}
			fmt.Fprintln(a.console, "\n🔒 Privacy mode ON - All monitoring stopped")
		case before == domain.StatePrivacyLocked:
			if err := a.scheduler.Resume(ctx); err != nil {
				a.logger.Error("failed to resume frame source", zap.Error(err))
				fmt.Fprintln(a.console, "\n⚠️  Privacy mode is off but the camera did not come back. Check the device and toggle again.")
			} else {
				fmt.Fprintln(a.console, "\n✅ Privacy mode OFF - Assistant monitoring enabled")
			}
		}
		if a.controller.Degraded() {
			fmt.Fprintln(a.console, "⚠️  The privacy flag could not be written to disk; the setting holds for this session only.")
		}
	}
	return false
}

// shutdown releases the sensor, lets the in-flight run drain, flushes
// durable state, and clears the instance file.
func (a *Assistant) shutdown(cause error) error {
	if a.cancelRuns != nil {
		a.cancelRuns()
	}

	if err := a.scheduler.Stop(); err != nil {
		a.logger.Warn("failed to stop frame source", zap.Error(err))
	}
	a.pipeline.Wait()

	if err := a.controller.Close(); err != nil {
		a.logger.Warn("state flush failed", zap.Error(err))
	}
	if err := a.registry.Clear(); err != nil {
		a.logger.Warn("failed to clear instance file", zap.Error(err))
	}

	fmt.Fprintln(a.console, "\n👋 Assistant stopped. Goodbye!")
	a.logger.Info("assistant stopped")
	return cause
}
