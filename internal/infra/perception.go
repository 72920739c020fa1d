package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/quietdesk/nudged/internal/domain"
)

// describePrompt asks the vision model for a single flat caption so the
// context window stays compact.
const describePrompt = "Describe this webcam snapshot in one short sentence. " +
	"Focus on the person, what they are doing, and anything notable on their desk or screen."

// visionConfidence is the fixed confidence attached to descriptions.
// The generate API does not report one.
const visionConfidence = 0.85

// OllamaDescriber implements domain.SceneDescriber over an Ollama
// multimodal model such as llava.
type OllamaDescriber struct {
	client *OllamaClient
	model  string
}

// NewOllamaDescriber returns a describer that captions frames with the
// given vision model.
func NewOllamaDescriber(client *OllamaClient, model string) *OllamaDescriber {
	return &OllamaDescriber{client: client, model: model}
}

// Describe captions a single frame. Transport errors and empty model
// output both wrap domain.ErrPerceptionFailed.
func (d *OllamaDescriber) Describe(ctx context.Context, frame domain.Frame) (domain.SceneObservation, error) {
	raw, err := d.client.Generate(ctx, d.model, describePrompt, [][]byte{frame.Data}, 0.3)
	if err != nil {
		return domain.SceneObservation{}, fmt.Errorf("%w: %w", domain.ErrPerceptionFailed, err)
	}

	// Vision models sometimes pad captions with newlines and double
	// spaces; flatten to a single line.
	desc := strings.Join(strings.Fields(raw), " ")
	if desc == "" {
		return domain.SceneObservation{}, fmt.Errorf("%w: empty description from %s", domain.ErrPerceptionFailed, d.model)
	}

	return domain.SceneObservation{
		Description: desc,
		Confidence:  visionConfidence,
		Model:       d.model,
		ObservedAt:  time.Now(),
	}, nil
}

// Ensure OllamaDescriber implements domain.SceneDescriber.
var _ domain.SceneDescriber = (*OllamaDescriber)(nil)
