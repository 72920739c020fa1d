package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quietdesk/nudged/internal/domain"
)

// mockNotifier implements domain.Notifier for testing
type mockNotifier struct {
	err       error
	delivered []domain.InterventionRecord
}

func (m *mockNotifier) Deliver(ctx context.Context, rec domain.InterventionRecord) error {
	if m.err != nil {
		return m.err
	}
	m.delivered = append(m.delivered, rec)
	return nil
}

// mockSpeaker implements domain.Speaker for testing
type mockSpeaker struct {
	err    error
	spoken []string
}

func (m *mockSpeaker) Speak(ctx context.Context, text string) error {
	if m.err != nil {
		return m.err
	}
	m.spoken = append(m.spoken, text)
	return nil
}

// mockJournal implements domain.Journal for testing
type mockJournal struct {
	err     error
	records []domain.InterventionRecord
}

func (m *mockJournal) Record(ctx context.Context, rec domain.InterventionRecord) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *mockJournal) Recent(ctx context.Context, limit int) ([]domain.InterventionRecord, error) {
	return m.records, nil
}

func (m *mockJournal) Close() error { return nil }

// mockRecorder implements InterventionRecorder for testing
type mockRecorder struct {
	times []time.Time
}

func (m *mockRecorder) RecordIntervention(t time.Time) {
	m.times = append(m.times, t)
}

func sampleRecord() domain.InterventionRecord {
	return domain.InterventionRecord{
		RunID:       "run-1",
		Intent:      "debugging",
		Suggestion:  "try reading the error message aloud",
		Confidence:  0.8,
		Scene:       "person staring at a red terminal",
		DeliveredAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}
}

// TestDispatch_Success delivers, records the clock, speaks, journals.
func TestDispatch_Success(t *testing.T) {
	n := &mockNotifier{}
	sp := &mockSpeaker{}
	j := &mockJournal{}
	rec := &mockRecorder{}
	d := NewDispatcher(n, sp, j, rec, zap.NewNop())

	err := d.Dispatch(context.Background(), sampleRecord())

	require.NoError(t, err)
	require.Len(t, n.delivered, 1)
	require.Len(t, rec.times, 1)
	assert.Equal(t, sampleRecord().DeliveredAt, rec.times[0])
	assert.Equal(t, []string{sampleRecord().Suggestion}, sp.spoken)
	require.Len(t, j.records, 1)
}

// TestDispatch_NotifierFailure verifies nothing counts when the user
// never saw the suggestion.
func TestDispatch_NotifierFailure(t *testing.T) {
	n := &mockNotifier{err: errors.New("stdout closed")}
	sp := &mockSpeaker{}
	j := &mockJournal{}
	rec := &mockRecorder{}
	d := NewDispatcher(n, sp, j, rec, zap.NewNop())

	err := d.Dispatch(context.Background(), sampleRecord())

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDeliveryFailed))
	assert.Empty(t, rec.times, "failed delivery must not advance the spacing clock")
	assert.Empty(t, sp.spoken)
	assert.Empty(t, j.records)
}

// TestDispatch_SpeakerFailureStillCounts verifies speech is best-effort.
func TestDispatch_SpeakerFailureStillCounts(t *testing.T) {
	n := &mockNotifier{}
	sp := &mockSpeaker{err: errors.New("no audio device")}
	rec := &mockRecorder{}
	d := NewDispatcher(n, sp, nil, rec, zap.NewNop())

	err := d.Dispatch(context.Background(), sampleRecord())

	require.NoError(t, err)
	assert.Len(t, rec.times, 1)
}

// TestDispatch_JournalFailureStillCounts verifies the journal is
// best-effort too.
func TestDispatch_JournalFailureStillCounts(t *testing.T) {
	n := &mockNotifier{}
	j := &mockJournal{err: errors.New("database locked")}
	rec := &mockRecorder{}
	d := NewDispatcher(n, nil, j, rec, zap.NewNop())

	err := d.Dispatch(context.Background(), sampleRecord())

	require.NoError(t, err)
	assert.Len(t, rec.times, 1)
}

// TestDispatch_NilExtras verifies text-only configuration works.
func TestDispatch_NilExtras(t *testing.T) {
	n := &mockNotifier{}
	rec := &mockRecorder{}
	d := NewDispatcher(n, nil, nil, rec, zap.NewNop())

	err := d.Dispatch(context.Background(), sampleRecord())

	require.NoError(t, err)
	require.Len(t, n.delivered, 1)
	assert.Len(t, rec.times, 1)
}
