package infra

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/quietdesk/nudged/internal/domain"
)

// bannerWidth is the separator rule width in console output.
const bannerWidth = 60

// ConsoleNotifier implements domain.Notifier by printing a framed
// suggestion banner. The writer is injectable so the daemon can route
// it through the terminal translator and tests can capture it.
type ConsoleNotifier struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsoleNotifier returns a notifier writing to out.
func NewConsoleNotifier(out io.Writer) *ConsoleNotifier {
	return &ConsoleNotifier{out: out}
}

// Deliver prints the suggestion banner. The suggestion line is omitted
// when the model produced none.
func (n *ConsoleNotifier) Deliver(_ context.Context, rec domain.InterventionRecord) error {
	rule := strings.Repeat("=", bannerWidth)

	var b strings.Builder
	b.WriteString("\n" + rule + "\n")
	fmt.Fprintf(&b, "🤖 Assistant Suggestion [%s]\n", rec.DeliveredAt.Format("15:04:05"))
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Intent: %s\n", rec.Intent)
	fmt.Fprintf(&b, "Confidence: %.0f%%\n", rec.Confidence*100)
	if rec.Suggestion != "" {
		fmt.Fprintf(&b, "\n💡 %s\n", rec.Suggestion)
	}
	b.WriteString(rule + "\n\n")

	n.mu.Lock()
	defer n.mu.Unlock()
	if _, err := io.WriteString(n.out, b.String()); err != nil {
		return fmt.Errorf("failed to write suggestion: %w", err)
	}
	return nil
}

// Ensure ConsoleNotifier implements domain.Notifier.
var _ domain.Notifier = (*ConsoleNotifier)(nil)
