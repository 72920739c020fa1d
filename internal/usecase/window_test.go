package usecase

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietdesk/nudged/internal/domain"
)

func obsNamed(desc string) domain.SceneObservation {
	return domain.SceneObservation{Description: desc, Confidence: 0.9}
}

// TestWindow_AppendBelowCapacity verifies order before the bound bites.
func TestWindow_AppendBelowCapacity(t *testing.T) {
	w := NewWindow(5)

	w.Append(obsNamed("a"))
	w.Append(obsNamed("b"))

	snap := w.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].Description)
	assert.Equal(t, "b", snap[1].Description)
}

// TestWindow_EvictsOldest verifies the bound holds and eviction is FIFO.
func TestWindow_EvictsOldest(t *testing.T) {
	w := NewWindow(3)

	for i := 1; i <= 5; i++ {
		w.Append(obsNamed(fmt.Sprintf("obs-%d", i)))
	}

	snap := w.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "obs-3", snap[0].Description)
	assert.Equal(t, "obs-4", snap[1].Description)
	assert.Equal(t, "obs-5", snap[2].Description)
	assert.Equal(t, 3, w.Len())
}

// TestWindow_CapacityOne verifies the smallest legal window.
func TestWindow_CapacityOne(t *testing.T) {
	w := NewWindow(1)

	w.Append(obsNamed("first"))
	w.Append(obsNamed("second"))

	snap := w.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "second", snap[0].Description)
}

// TestWindow_RaisesCapacityBelowOne verifies the bound never drops to zero.
func TestWindow_RaisesCapacityBelowOne(t *testing.T) {
	w := NewWindow(0)

	w.Append(obsNamed("kept"))

	assert.Equal(t, 1, w.Len())
}

// TestWindow_SnapshotIsCopy verifies callers cannot mutate the history.
func TestWindow_SnapshotIsCopy(t *testing.T) {
	w := NewWindow(3)
	w.Append(obsNamed("original"))

	snap := w.Snapshot()
	snap[0].Description = "mutated"

	assert.Equal(t, "original", w.Snapshot()[0].Description)
}
