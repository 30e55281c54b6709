package v1

import "time"

// UpdateState is the lifecycle state of a self-update request. State
// transitions follow the graph driven by the update executor:
//
//	Queued -> Planning -> AwaitingApproval -> Executing
//	  -> Validating -> Restarting -> Succeeded
//	                \-> RolledBack (failure past Planning)
//	                \-> Failed    (preflight/planning failure, no snapshot)
type UpdateState string

const (
	UpdateStateQueued           UpdateState = "Queued"
	UpdateStatePlanning         UpdateState = "Planning"
	UpdateStateAwaitingApproval UpdateState = "AwaitingApproval"
	UpdateStateExecuting        UpdateState = "Executing"
	UpdateStateValidating       UpdateState = "Validating"
	UpdateStateRestarting       UpdateState = "Restarting"
	UpdateStateSucceeded        UpdateState = "Succeeded"
	UpdateStateFailed           UpdateState = "Failed"
	UpdateStateRolledBack       UpdateState = "RolledBack"
)

// IsTerminal reports whether no further state transition is possible.
func (s UpdateState) IsTerminal() bool {
	switch s {
	case UpdateStateSucceeded, UpdateStateFailed, UpdateStateRolledBack:
		return true
	default:
		return false
	}
}

// UpdateRequest is a self-modification request accepted from an
// authorized principal. Codename is generated server-side and unique
// within the queue.
type UpdateRequest struct {
	Codename    string      `json:"codename"`
	RequestedBy string      `json:"requested_by"`
	Description string      `json:"description"`
	SubmittedAt time.Time   `json:"submitted_at"`
	State       UpdateState `json:"state"`

	// SubmitSeq preserves strict FIFO processing order.
	SubmitSeq uint64 `json:"-"`
}

// Snapshot records the repository revision captured before an update
// begins modifying files. It is retained until the owning update
// reaches a terminal state.
type Snapshot struct {
	ID        string    `json:"id"`
	Codename  string    `json:"codename"`
	Revision  string    `json:"revision"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
}
