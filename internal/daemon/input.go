package daemon

import (
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/quietdesk/nudged/internal/domain"
)

// InputMux merges terminal keys and process signals into one command
// stream for the foreground loop.
type InputMux struct {
	logger *zap.Logger
	out    chan domain.Command
}

// NewInputMux creates an empty mux; attach sources with ForwardKeys
// and ForwardSignals.
func NewInputMux(logger *zap.Logger) *InputMux {
	return &InputMux{
		logger: logger,
		out:    make(chan domain.Command, 8),
	}
}

// Commands returns the merged stream.
func (m *InputMux) Commands() <-chan domain.Command {
	return m.out
}

// ForwardKeys pumps commands from a key reader. keys may be nil when
// stdin is not a terminal (detached run); the mux then carries signals
// only.
func (m *InputMux) ForwardKeys(keys <-chan domain.Command) {
	if keys == nil {
		return
	}
	go func() {
		for cmd := range keys {
			m.push(cmd)
		}
	}()
}

// ForwardSignals maps process signals onto commands: SIGINT and
// SIGTERM quit, SIGUSR1 toggles pause, SIGUSR2 toggles privacy.
// Signals are the only control surface of a detached instance. The
// returned func detaches the handler.
func (m *InputMux) ForwardSignals() func() {
	sigChan := make(chan os.Signal, 4)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)

	go func() {
		for sig := range sigChan {
			switch sig {
			case syscall.SIGINT, syscall.SIGTERM:
				m.push(domain.CommandQuit)
			case syscall.SIGUSR1:
				m.push(domain.CommandPauseResume)
			case syscall.SIGUSR2:
				m.push(domain.CommandPrivacyToggle)
			}
		}
	}()

	return func() {
		signal.Stop(sigChan)
		close(sigChan)
	}
}

func (m *InputMux) push(cmd domain.Command) {
	select {
	case m.out <- cmd:
	default:
		m.logger.Debug("command dropped, channel full", zap.String("command", cmd.String()))
	}
}
