package infra

import (
	"github.com/quietdesk/nudged/internal/domain"
)

// mockProcessManager is a test double for domain.ProcessManager.
type mockProcessManager struct {
	runningPIDs map[int]bool
	byName      map[string][]int
}

func newMockProcessManager() *mockProcessManager {
	return &mockProcessManager{
		runningPIDs: make(map[int]bool),
		byName:      make(map[string][]int),
	}
}

func (m *mockProcessManager) IsRunning(pid int) bool {
	return m.runningPIDs[pid]
}

func (m *mockProcessManager) FindByName(pattern string) ([]int, error) {
	return m.byName[pattern], nil
}

func (m *mockProcessManager) SetRunning(pid int, running bool) {
	m.runningPIDs[pid] = running
}

// Ensure mockProcessManager implements domain.ProcessManager.
var _ domain.ProcessManager = (*mockProcessManager)(nil)
