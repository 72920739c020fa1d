package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/quietdesk/nudged/internal/domain"
)

// reasoningTemperature keeps the intent model close to deterministic so
// the JSON contract holds.
const reasoningTemperature = 0.3

// contextBullets is how many recent observations are quoted in the
// prompt, newest last.
const contextBullets = 3

const intentPromptTemplate = `You are an AI assistant observing a user through their webcam to provide proactive help.

Current observation: %s
%s

Your task: Determine if the user needs assistance and what kind of help would be useful.

Rules:
1. Only suggest help if there's a clear, actionable need
2. Don't over-intervene - respect the user's autonomy
3. Be concise and practical
4. Focus on immediate, helpful actions

Respond ONLY with a JSON object in this exact format:
{
    "should_assist": true/false,
    "confidence": 0.0-1.0,
    "intent": "brief description of inferred intent",
    "suggestion": "specific, actionable suggestion if should_assist is true",
    "reasoning": "brief explanation of why you reached this conclusion"
}

Response:`

// OllamaReasoner implements domain.IntentReasoner over an Ollama text
// model.
type OllamaReasoner struct {
	client *OllamaClient
	model  string
	logger *zap.Logger
}

// NewOllamaReasoner returns a reasoner backed by the given model.
func NewOllamaReasoner(client *OllamaClient, model string, logger *zap.Logger) *OllamaReasoner {
	return &OllamaReasoner{client: client, model: model, logger: logger}
}

// Infer asks the model whether to assist given the recent observations,
// oldest first with the newest last. Transport errors wrap
// domain.ErrReasoningFailed; a reply that is not valid JSON is not an
// error, it degrades to the safe non-assist default.
func (r *OllamaReasoner) Infer(ctx context.Context, recent []domain.SceneObservation) (domain.IntentResult, error) {
	if len(recent) == 0 {
		return safeDefaultIntent(), nil
	}

	raw, err := r.client.Generate(ctx, r.model, buildIntentPrompt(recent), nil, reasoningTemperature)
	if err != nil {
		return domain.IntentResult{}, fmt.Errorf("%w: %w", domain.ErrReasoningFailed, err)
	}

	res, parsed := ParseIntentPayload(raw)
	if !parsed {
		r.logger.Warn("model reply unparseable, using safe default",
			zap.String("model", r.model),
			zap.String("reply", snippet(raw, 200)))
	}
	return res, nil
}

func buildIntentPrompt(recent []domain.SceneObservation) string {
	current := recent[len(recent)-1].Description

	start := len(recent) - contextBullets
	if start < 0 {
		start = 0
	}
	var b strings.Builder
	b.WriteString("Recent observations:\n")
	for _, obs := range recent[start:] {
		b.WriteString("- ")
		b.WriteString(obs.Description)
		b.WriteString("\n")
	}
	history := strings.TrimRight(b.String(), "\n")

	return fmt.Sprintf(intentPromptTemplate, current, history)
}

// ParseIntentPayload extracts the verdict from a raw model reply.
// Models wrap their JSON in prose, so everything between the first '{'
// and the last '}' is tried. Missing braces, invalid JSON, or a missing
// required field (should_assist, confidence, intent) returns the safe
// default and parsed=false. Confidence is clamped to [0, 1].
func ParseIntentPayload(raw string) (res domain.IntentResult, parsed bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return safeDefaultIntent(), false
	}

	var payload struct {
		ShouldAssist *bool    `json:"should_assist"`
		Confidence   *float64 `json:"confidence"`
		Intent       *string  `json:"intent"`
		Suggestion   string   `json:"suggestion"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &payload); err != nil {
		return safeDefaultIntent(), false
	}
	if payload.ShouldAssist == nil || payload.Confidence == nil || payload.Intent == nil {
		return safeDefaultIntent(), false
	}

	confidence := *payload.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return domain.IntentResult{
		ShouldAssist: *payload.ShouldAssist,
		Confidence:   confidence,
		Intent:       *payload.Intent,
		Suggestion:   payload.Suggestion,
	}, true
}

func safeDefaultIntent() domain.IntentResult {
	return domain.IntentResult{
		ShouldAssist: false,
		Confidence:   0,
		Intent:       "Unable to determine intent",
	}
}

// Ensure OllamaReasoner implements domain.IntentReasoner.
var _ domain.IntentReasoner = (*OllamaReasoner)(nil)
