package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// Detach re-executes the current binary with the given arguments,
// fully detached from the terminal, and returns the child PID. The
// caller is expected to strip its own detach flag from childArgs.
func Detach(childArgs []string) (int, error) {
	executable, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("failed to resolve executable: %w", err)
	}

	cmd := exec.Command(executable, childArgs...)

	// New session, no controlling terminal.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start detached process: %w", err)
	}
	return cmd.Process.Pid, nil
}
