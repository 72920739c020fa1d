package usecase

import (
	"fmt"
	"time"

	"github.com/quietdesk/nudged/internal/domain"
)

// Verdict is the gate's decision for one analysis run.
type Verdict struct {
	Emit   bool
	Reason string
}

// Gate decides whether an intent result becomes a delivered suggestion.
// Pure and deterministic: the same inputs always yield the same verdict.
type Gate struct {
	ConfidenceThreshold float64
	MinInterval         time.Duration
}

// Decide applies the conditions in order: run state, model opt-in,
// confidence, spacing. Both numeric comparisons admit equality, so a
// result exactly at the threshold or exactly at the minimum gap emits.
func (g Gate) Decide(res domain.IntentResult, state domain.RunState, sinceLast time.Duration) Verdict {
	if state != domain.StateActive {
		return Verdict{Reason: fmt.Sprintf("state is %s", state)}
	}
	if !res.ShouldAssist {
		return Verdict{Reason: "model declined to assist"}
	}
	if res.Confidence < g.ConfidenceThreshold {
		return Verdict{Reason: fmt.Sprintf("confidence %.2f below threshold %.2f",
			res.Confidence, g.ConfidenceThreshold)}
	}
	if sinceLast < g.MinInterval {
		return Verdict{Reason: fmt.Sprintf("only %s since last intervention, minimum %s",
			sinceLast.Round(time.Millisecond), g.MinInterval)}
	}
	return Verdict{Emit: true, Reason: "all conditions met"}
}
