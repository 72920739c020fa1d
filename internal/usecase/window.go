package usecase

import (
	"sync"

	"github.com/quietdesk/nudged/internal/domain"
)

// Window is the bounded, recency-ordered observation history the
// reasoner sees. Appends come only from the analysis run; Snapshot is
// safe from any goroutine.
type Window struct {
	mu    sync.Mutex
	limit int
	obs   []domain.SceneObservation
}

// NewWindow creates a window keeping the most recent capacity
// observations. Capacity below 1 is raised to 1.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{
		limit: capacity,
		obs:   make([]domain.SceneObservation, 0, capacity),
	}
}

// Append adds the newest observation, evicting the oldest when full.
func (w *Window) Append(o domain.SceneObservation) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.obs) == w.limit {
		copy(w.obs, w.obs[1:])
		w.obs[len(w.obs)-1] = o
		return
	}
	w.obs = append(w.obs, o)
}

// Snapshot returns a copy of the history, oldest first.
func (w *Window) Snapshot() []domain.SceneObservation {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]domain.SceneObservation, len(w.obs))
	copy(out, w.obs)
	return out
}

// Len reports how many observations are held.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.obs)
}
