package infra

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietdesk/nudged/internal/domain"
)

func TestConsoleNotifier_Deliver(t *testing.T) {
	var buf bytes.Buffer
	notifier := NewConsoleNotifier(&buf)

	rec := domain.InterventionRecord{
		RunID:       "run-1",
		Intent:      "debugging a stack trace",
		Suggestion:  "read the frame at the top first",
		Confidence:  0.72,
		DeliveredAt: time.Date(2024, 5, 1, 14, 30, 5, 0, time.UTC),
	}
	require.NoError(t, notifier.Deliver(context.Background(), rec))

	out := buf.String()
	assert.Contains(t, out, strings.Repeat("=", 60))
	assert.Contains(t, out, "🤖 Assistant Suggestion [14:30:05]")
	assert.Contains(t, out, "Intent: debugging a stack trace")
	assert.Contains(t, out, "Confidence: 72%")
	assert.Contains(t, out, "💡 read the frame at the top first")
}

func TestConsoleNotifier_EmptySuggestion(t *testing.T) {
	var buf bytes.Buffer
	notifier := NewConsoleNotifier(&buf)

	rec := domain.InterventionRecord{
		Intent:      "unclear",
		Confidence:  0.65,
		DeliveredAt: time.Now(),
	}
	require.NoError(t, notifier.Deliver(context.Background(), rec))

	out := buf.String()
	assert.Contains(t, out, "Intent: unclear")
	assert.NotContains(t, out, "💡")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, assert.AnError
}

func TestConsoleNotifier_WriteFailure(t *testing.T) {
	notifier := NewConsoleNotifier(failingWriter{})
	err := notifier.Deliver(context.Background(), domain.InterventionRecord{DeliveredAt: time.Now()})
	assert.Error(t, err)
}
