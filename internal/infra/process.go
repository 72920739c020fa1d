package infra

import (
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/quietdesk/nudged/internal/domain"
)

// HostProcessManager implements domain.ProcessManager with gopsutil.
type HostProcessManager struct{}

// NewProcessManager returns a process manager for the local host.
func NewProcessManager() *HostProcessManager {
	return &HostProcessManager{}
}

// IsRunning reports whether a process with the given PID exists.
func (pm *HostProcessManager) IsRunning(pid int) bool {
	ok, err := process.PidExists(int32(pid))
	return err == nil && ok
}

// FindByName returns PIDs whose process name contains pattern,
// case-insensitive. Used to tell "ollama is down" from "ollama is up
// but bound elsewhere".
func (pm *HostProcessManager) FindByName(pattern string) ([]int, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}
	want := strings.ToLower(pattern)

	var pids []int
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			// Exited between listing and lookup.
			continue
		}
		if strings.Contains(strings.ToLower(name), want) {
			pids = append(pids, int(p.Pid))
		}
	}
	return pids, nil
}

// Ensure HostProcessManager implements domain.ProcessManager.
var _ domain.ProcessManager = (*HostProcessManager)(nil)
