// Package statusmgr tracks per-agent-kind AgentStatus and per-task
// TaskStatus, maintaining a rolling average execution time per kind.
package statusmgr

import (
	"sync"
	"time"

	v1 "github.com/driftcode/orchestra/pkg/api/v1"
)

// emaAlpha is the exponential-moving-average smoothing factor applied
// to each agent kind's rolling execution time.
const emaAlpha = 0.2

// TaskStatus is the point-in-time state of one known task, as surfaced
// by get_status.
type TaskStatus struct {
	TaskID      string         `json:"task_id"`
	Status      v1.TaskStatus  `json:"status"`
	Kind        v1.TaskKind    `json:"kind"`
	SubmittedAt time.Time      `json:"submitted_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type agentEntry struct {
	status v1.AgentStatus
}

// Manager holds AgentStatus per registered kind and TaskStatus per
// known task id. All methods lock internally.
type Manager struct {
	mu     sync.RWMutex
	agents map[string]*agentEntry
	tasks  map[string]*TaskStatus
}

// New creates an empty status manager.
func New() *Manager {
	return &Manager{
		agents: make(map[string]*agentEntry),
		tasks:  make(map[string]*TaskStatus),
	}
}

// RegisterKind seeds an idle AgentStatus for a newly registered agent
// kind, so it appears in summaries before any task runs.
func (m *Manager) RegisterKind(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.agents[kind]; exists {
		return
	}
	m.agents[kind] = &agentEntry{status: v1.AgentStatus{
		Kind:         kind,
		LastActivity: time.Now(),
	}}
}

// RecordSubmit records a newly submitted Pending task.
func (m *Manager) RecordSubmit(taskID string, kind v1.TaskKind, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tasks[taskID] = &TaskStatus{
		TaskID:      taskID,
		Status:      v1.TaskStatusPending,
		Kind:        kind,
		SubmittedAt: at,
		UpdatedAt:   at,
	}
}

// MarkInProgress transitions a task to InProgress and marks its agent
// kind busy.
func (m *Manager) MarkInProgress(agentKind string, taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if t, ok := m.tasks[taskID]; ok {
		t.Status = v1.TaskStatusInProgress
		t.UpdatedAt = now
	}

	a := m.entryLocked(agentKind)
	a.status.IsBusy = true
	id := taskID
	a.status.CurrentTask = &id
	a.status.LastActivity = now
}

// MarkCompleted transitions a task to Completed or Failed, releases the
// agent kind's busy flag, updates completion counters, and folds
// duration into the kind's rolling average.
func (m *Manager) MarkCompleted(agentKind string, taskID string, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if t, ok := m.tasks[taskID]; ok {
		if success {
			t.Status = v1.TaskStatusCompleted
		} else {
			t.Status = v1.TaskStatusFailed
		}
		t.UpdatedAt = now
	}

	a := m.entryLocked(agentKind)
	a.status.IsBusy = false
	a.status.CurrentTask = nil
	a.status.LastActivity = now
	if success {
		a.status.TasksCompleted++
	} else {
		a.status.TasksFailed++
	}

	seconds := duration.Seconds()
	if a.status.TasksCompleted+a.status.TasksFailed == 1 {
		a.status.AvgExecutionSeconds = seconds
	} else {
		a.status.AvgExecutionSeconds = emaAlpha*seconds + (1-emaAlpha)*a.status.AvgExecutionSeconds
	}
}

// RecordFailure marks a task Failed without attributing the failure to
// any agent kind's counters.
func (m *Manager) RecordFailure(taskID string, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.tasks[taskID]; ok {
		t.Status = v1.TaskStatusFailed
		t.UpdatedAt = time.Now()
	}
}

// MarkCancelled transitions a task to Cancelled.
func (m *Manager) MarkCancelled(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.tasks[taskID]; ok {
		t.Status = v1.TaskStatusCancelled
		t.UpdatedAt = time.Now()
	}
}

// GetTaskStatus returns the current status of a known task.
func (m *Manager) GetTaskStatus(taskID string) (TaskStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[taskID]
	if !ok {
		return TaskStatus{}, false
	}
	return *t, true
}

// GetAgentStatus returns the current AgentStatus for a registered kind.
func (m *Manager) GetAgentStatus(kind string) (v1.AgentStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.agents[kind]
	if !ok {
		return v1.AgentStatus{}, false
	}
	return a.status, true
}

// ListAgentStatuses returns a snapshot of every registered kind's status.
func (m *Manager) ListAgentStatuses() []v1.AgentStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]v1.AgentStatus, 0, len(m.agents))
	for _, a := range m.agents {
		result = append(result, a.status)
	}
	return result
}

// CleanupTasks drops TaskStatus entries in a terminal state whose
// UpdatedAt is older than the cutoff.
func (m *Manager) CleanupTasks(olderThan time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, t := range m.tasks {
		if t.Status.IsTerminal() && t.UpdatedAt.Before(olderThan) {
			delete(m.tasks, id)
			removed++
		}
	}
	return removed
}

// InProgressOlderThan returns task ids still InProgress whose UpdatedAt
// predates the cutoff, for abandoned-task reclamation.
func (m *Manager) InProgressOlderThan(cutoff time.Time) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stale []string
	for id, t := range m.tasks {
		if t.Status == v1.TaskStatusInProgress && t.UpdatedAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	return stale
}

func (m *Manager) entryLocked(kind string) *agentEntry {
	a, ok := m.agents[kind]
	if !ok {
		a = &agentEntry{status: v1.AgentStatus{Kind: kind}}
		m.agents[kind] = a
	}
	return a
}
