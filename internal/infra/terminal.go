package infra

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/quietdesk/nudged/internal/domain"
)

// TerminalInput reads single-key commands from a TTY in raw mode: q to
// quit, p to pause or resume, x to toggle privacy mode. Ctrl-C and
// Ctrl-D map to quit so raw mode never traps the user.
type TerminalInput struct {
	in       *os.File
	logger   *zap.Logger
	mu       sync.Mutex
	oldState *term.State
	commands chan domain.Command
}

// NewTerminalInput returns an input reader over in, typically
// os.Stdin.
func NewTerminalInput(in *os.File, logger *zap.Logger) *TerminalInput {
	return &TerminalInput{
		in:       in,
		logger:   logger,
		commands: make(chan domain.Command, 8),
	}
}

// Start switches the terminal to raw mode and begins reading keys.
// It fails when in is not a terminal (piped stdin, detached run).
func (t *TerminalInput) Start() (<-chan domain.Command, error) {
	fd := int(t.in.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("input is not a terminal")
	}

	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("failed to enter raw mode: %w", err)
	}

	t.mu.Lock()
	t.oldState = state
	t.mu.Unlock()

	go t.readLoop()
	return t.commands, nil
}

func (t *TerminalInput) readLoop() {
	buf := make([]byte, 1)
	for {
		n, err := t.in.Read(buf)
		if err != nil {
			t.logger.Debug("terminal input closed", zap.Error(err))
			return
		}
		if n == 0 {
			continue
		}

		var cmd domain.Command
		switch buf[0] {
		case 'q', 'Q', 0x03, 0x04: // q, Ctrl-C, Ctrl-D
			cmd = domain.CommandQuit
		case 'p', 'P':
			cmd = domain.CommandPauseResume
		case 'x', 'X':
			cmd = domain.CommandPrivacyToggle
		default:
			continue
		}

		// Drop rather than block when the loop is not draining.
		select {
		case t.commands <- cmd:
		default:
			t.logger.Debug("command dropped, channel full", zap.String("command", cmd.String()))
		}

		if cmd == domain.CommandQuit {
			return
		}
	}
}

// Stop restores the terminal state. Safe to call more than once.
func (t *TerminalInput) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.oldState != nil {
		_ = term.Restore(int(t.in.Fd()), t.oldState)
		t.oldState = nil
	}
}

// Writer wraps w so output stays readable while the terminal is raw.
// Raw mode disables output post-processing, so newlines need explicit
// carriage returns.
func (t *TerminalInput) Writer(w io.Writer) io.Writer {
	return &crlfWriter{w: w}
}

type crlfWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (c *crlfWriter) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	translated := bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))
	if _, err := c.w.Write(translated); err != nil {
		return 0, err
	}
	// Report p's length; callers count what they handed over.
	return len(p), nil
}
