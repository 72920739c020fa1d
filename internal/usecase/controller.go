// Package usecase contains application business logic.
package usecase

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quietdesk/nudged/internal/domain"
)

// Controller owns the run state and the intervention clock. Transitions
// happen only through its methods; reads are safe from any goroutine.
type Controller struct {
	mu               sync.RWMutex
	state            domain.RunState
	lastIntervention time.Time
	degraded         bool

	flag      domain.PrivacyFlag
	logger    *zap.Logger
	closeOnce sync.Once
}

// NewController builds the controller, loading the initial state from
// the durable privacy flag: a flag left behind by a previous run means
// the daemon starts locked.
func NewController(flag domain.PrivacyFlag, logger *zap.Logger) *Controller {
	c := &Controller{
		state:  domain.StateActive,
		flag:   flag,
		logger: logger,
	}
	if flag.Engaged() {
		c.state = domain.StatePrivacyLocked
		logger.Info("privacy flag present at startup, starting locked",
			zap.String("flag", flag.Path()))
	}
	return c
}

// State returns the current run state.
func (c *Controller) State() domain.RunState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Degraded reports whether a privacy flag write has failed since start.
func (c *Controller) Degraded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.degraded
}

// RequestPause moves Active to Paused. A pause request in any other
// state is ignored; in particular the privacy lock is never weakened.
func (c *Controller) RequestPause() domain.RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == domain.StateActive {
		c.state = domain.StatePaused
		c.logger.Info("monitoring paused")
	}
	return c.state
}

// RequestResume moves Paused back to Active. Ignored while privacy
// locked: only a privacy toggle lifts the lock.
func (c *Controller) RequestResume() domain.RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == domain.StatePaused {
		c.state = domain.StateActive
		c.logger.Info("monitoring resumed")
	}
	return c.state
}

// RequestPrivacyToggle flips the privacy lock from any state. The flag
// file is written before the method returns so the lock survives a
// crash; if the write fails the toggle still takes effect in memory and
// the controller reports Degraded from then on.
func (c *Controller) RequestPrivacyToggle() domain.RunState {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == domain.StatePrivacyLocked {
		if err := c.flag.Disengage(); err != nil {
			c.degraded = true
			c.logger.Warn("privacy flag clear failed, state kept in memory only",
				zap.String("flag", c.flag.Path()),
				zap.Error(err))
		}
		c.state = domain.StateActive
		c.logger.Info("privacy mode disabled")
	} else {
		if err := c.flag.Engage(); err != nil {
			c.degraded = true
			c.logger.Warn("privacy flag write failed, state kept in memory only",
				zap.String("flag", c.flag.Path()),
				zap.Error(err))
		}
		c.state = domain.StatePrivacyLocked
		c.logger.Info("privacy mode enabled, all sensing stops")
	}
	return c.state
}

// RecordIntervention marks t as the most recent delivered intervention.
func (c *Controller) RecordIntervention(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastIntervention = t
}

// LastIntervention returns the most recent delivery time, zero if none.
func (c *Controller) LastIntervention() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastIntervention
}

// TimeSinceLastIntervention measures from the zero time when nothing
// has been delivered yet, so the first intervention is never blocked by
// spacing.
func (c *Controller) TimeSinceLastIntervention(now time.Time) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return now.Sub(c.lastIntervention)
}

// Close flushes the privacy flag one final time so the durable state
// matches memory even after a degraded write earlier. Safe to call more
// than once; only the first call flushes.
func (c *Controller) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.RLock()
		locked := c.state == domain.StatePrivacyLocked
		c.mu.RUnlock()

		var werr error
		if locked {
			werr = c.flag.Engage()
		} else {
			werr = c.flag.Disengage()
		}
		if werr != nil {
			err = fmt.Errorf("%w: %w", domain.ErrPersistenceFailed, werr)
		}
	})
	return err
}

// The controller serves as the pipeline's state view and the
// dispatcher's intervention clock.
var (
	_ StateReader          = (*Controller)(nil)
	_ InterventionRecorder = (*Controller)(nil)
)
