package v1

import "time"

// TaskKind identifies which registered agent handles a task. The set is
// open: new kinds are added by registering a factory with the agent
// registry, not by extending this type.
type TaskKind string

const (
	TaskKindDeveloperCodeGen TaskKind = "developer"
	TaskKindProjectAnalysis  TaskKind = "analysis"
)

// Priority orders pending tasks. Higher values run first; ties are
// broken by submit order.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

// ParsePriority maps the wire string form used by the HTTP API onto a
// Priority. An empty string defaults to Medium.
func ParsePriority(s string) (Priority, bool) {
	switch s {
	case "", "Medium":
		return PriorityMedium, true
	case "Low":
		return PriorityLow, true
	case "High":
		return PriorityHigh, true
	default:
		return 0, false
	}
}

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityHigh:
		return "High"
	default:
		return "Medium"
	}
}

// TaskStatus is the lifecycle state of a Task. Transitions are monotone:
// Pending -> InProgress -> {Completed|Failed|Cancelled}.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "Pending"
	TaskStatusInProgress TaskStatus = "InProgress"
	TaskStatusCompleted  TaskStatus = "Completed"
	TaskStatusFailed     TaskStatus = "Failed"
	TaskStatusCancelled  TaskStatus = "Cancelled"
)

// IsTerminal reports whether no further status transition is possible.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Task is a unit of generation/analysis work submitted to the
// orchestrator. Once Status reaches a terminal value, Content is
// immutable.
type Task struct {
	ID          string            `json:"id"`
	Kind        TaskKind          `json:"kind"`
	Content     string            `json:"content"`
	Priority    Priority          `json:"priority"`
	Context     map[string]string `json:"context,omitempty"`
	Status      TaskStatus        `json:"status"`
	SubmittedAt time.Time         `json:"submitted_at"`
	UpdatedAt   time.Time         `json:"updated_at"`

	// SubmitSeq breaks priority ties in FIFO order. Not part of the
	// wire contract; used internally by the queue's heap ordering.
	SubmitSeq uint64 `json:"-"`
}

// ContentHash is the duplicate-suppression key: two Pending tasks of
// the same kind with identical content are treated as duplicates.
func (t *Task) ContentHash() string {
	return string(t.Kind) + "\x00" + t.Content
}

// TaskResult is the outcome of a completed or failed Task. Exactly one
// of Output (success) or Error (failure) is meaningful.
type TaskResult struct {
	TaskID      string                 `json:"task_id"`
	Success     bool                   `json:"success"`
	Output      string                 `json:"output,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CompletedAt time.Time              `json:"completed_at"`
}
