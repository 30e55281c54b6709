package httpapi

// CreateTaskRequest is the POST /tasks request body.
type CreateTaskRequest struct {
	AgentType string            `json:"agent_type" binding:"required"`
	Content   string            `json:"content" binding:"required"`
	Context   map[string]string `json:"context,omitempty"`
	Priority  string            `json:"priority,omitempty"`
}

// UpdateApprovalRequest is the POST /updates/{codename}/reject request
// body; approval needs no body.
type UpdateApprovalRequest struct {
	Reason string `json:"reason,omitempty"`
}

// CreateUpdateRequest is the POST /updates request body.
type CreateUpdateRequest struct {
	Principal   string `json:"principal" binding:"required"`
	Description string `json:"description" binding:"required"`
}

// updateSubmittedResponse is the POST /updates response body.
type updateSubmittedResponse struct {
	Codename string `json:"codename"`
	State    string `json:"state"`
}

// healthResponse is the GET /health response body.
type healthResponse struct {
	Status string `json:"status"`
}

// taskSubmittedResponse is the POST /tasks response body.
type taskSubmittedResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// systemStatusResponse is the GET /system/status response body.
type systemStatusResponse struct {
	QueueDepth   int               `json:"queue_depth"`
	UptimeSecs   float64           `json:"uptime_seconds"`
	AgentSummary []agentSummaryDTO `json:"agent_summary"`
}

type agentSummaryDTO struct {
	Kind                string  `json:"kind"`
	IsBusy              bool    `json:"is_busy"`
	CurrentTask         *string `json:"current_task,omitempty"`
	TasksCompleted      int64   `json:"tasks_completed"`
	TasksFailed         int64   `json:"tasks_failed"`
	AvgExecutionSeconds float64 `json:"avg_execution_seconds"`
}
