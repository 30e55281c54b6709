// Package httpapi implements the HTTP transport: a gin router exposing
// task submission/inspection, agent and system status, self-update
// visibility/approval, and the websocket streaming endpoint.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/driftcode/orchestra/internal/common/apperrors"
	"github.com/driftcode/orchestra/internal/common/logger"
	"github.com/driftcode/orchestra/internal/orchestrator/scheduler"
	"github.com/driftcode/orchestra/internal/update/executor"
	"github.com/driftcode/orchestra/internal/update/queue"
	v1 "github.com/driftcode/orchestra/pkg/api/v1"
)

// Handler holds the components the HTTP transport delegates to.
type Handler struct {
	orchestrator *scheduler.Orchestrator
	updates      *queue.Queue
	updateExec   *executor.Executor
	log          *logger.Logger
	startedAt    time.Time
}

// NewHandler constructs a Handler. updateExec may be nil if the
// self-update subsystem is not wired (cmd/orchestrator always wires
// it).
func NewHandler(orch *scheduler.Orchestrator, updates *queue.Queue, updateExec *executor.Executor, log *logger.Logger) *Handler {
	return &Handler{
		orchestrator: orch,
		updates:      updates,
		updateExec:   updateExec,
		log:          log,
		startedAt:    time.Now(),
	}
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{Status: "healthy"})
}

// CreateTask handles POST /tasks.
func (h *Handler) CreateTask(c *gin.Context) {
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.BadRequest("invalid request body: " + err.Error()))
		return
	}

	priority, ok := v1.ParsePriority(req.Priority)
	if !ok {
		c.Error(apperrors.BadRequest("invalid priority: " + req.Priority))
		return
	}

	task := &v1.Task{
		Kind:     v1.TaskKind(req.AgentType),
		Content:  req.Content,
		Priority: priority,
		Context:  req.Context,
	}

	id, err := h.orchestrator.SubmitTask(task)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusAccepted, taskSubmittedResponse{TaskID: id, Status: "submitted"})
}

// GetTaskStatus handles GET /tasks/{id}.
func (h *Handler) GetTaskStatus(c *gin.Context) {
	status, err := h.orchestrator.GetStatus(c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// GetTaskResult handles GET /tasks/{id}/result.
func (h *Handler) GetTaskResult(c *gin.Context) {
	result, err := h.orchestrator.GetResult(c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListTasks handles GET /tasks: a supplemented operational-visibility
// endpoint listing Pending tasks (in no particular order, matching the
// underlying queue's Snapshot semantics).
func (h *Handler) ListTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.orchestrator.PendingTasks()})
}

// CancelTask handles DELETE /tasks/{id}.
func (h *Handler) CancelTask(c *gin.Context) {
	if !h.orchestrator.CancelTask(c.Param("id")) {
		c.Error(apperrors.NotFound("task", c.Param("id")))
		return
	}
	c.Status(http.StatusNoContent)
}

// ListAgents handles GET /agents.
func (h *Handler) ListAgents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": toAgentSummaryDTOs(h.orchestrator.AgentSummary())})
}

// SystemStatus handles GET /system/status.
func (h *Handler) SystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, systemStatusResponse{
		QueueDepth:   h.orchestrator.QueueDepth(),
		UptimeSecs:   time.Since(h.startedAt).Seconds(),
		AgentSummary: toAgentSummaryDTOs(h.orchestrator.AgentSummary()),
	})
}

func toAgentSummaryDTOs(statuses []v1.AgentStatus) []agentSummaryDTO {
	out := make([]agentSummaryDTO, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, agentSummaryDTO{
			Kind:                s.Kind,
			IsBusy:              s.IsBusy,
			CurrentTask:         s.CurrentTask,
			TasksCompleted:      s.TasksCompleted,
			TasksFailed:         s.TasksFailed,
			AvgExecutionSeconds: s.AvgExecutionSeconds,
		})
	}
	return out
}

// CreateUpdate handles POST /updates.
func (h *Handler) CreateUpdate(c *gin.Context) {
	var req CreateUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.BadRequest("invalid request body: " + err.Error()))
		return
	}

	codename, err := h.updates.Submit(req.Principal, req.Description)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusAccepted, updateSubmittedResponse{Codename: codename, State: string(v1.UpdateStateQueued)})
}

// ListUpdates handles GET /updates.
func (h *Handler) ListUpdates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"updates": h.updates.List()})
}

// GetUpdate handles GET /updates/{codename}.
func (h *Handler) GetUpdate(c *gin.Context) {
	req, ok := h.updates.Get(c.Param("codename"))
	if !ok {
		c.Error(apperrors.NotFound("update request", c.Param("codename")))
		return
	}

	body := gin.H{"request": req}
	if h.updateExec != nil {
		if plan, pending := h.updateExec.PendingPlan(req.Codename); pending {
			body["plan"] = plan
		}
	}
	c.JSON(http.StatusOK, body)
}

// ApproveUpdate handles POST /updates/{codename}/approve.
func (h *Handler) ApproveUpdate(c *gin.Context) {
	if h.updateExec == nil {
		c.Error(apperrors.ServiceUnavailable("self-update subsystem"))
		return
	}
	if err := h.updateExec.Approve(c.Request.Context(), c.Param("codename")); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RejectUpdate handles POST /updates/{codename}/reject.
func (h *Handler) RejectUpdate(c *gin.Context) {
	if h.updateExec == nil {
		c.Error(apperrors.ServiceUnavailable("self-update subsystem"))
		return
	}

	var req UpdateApprovalRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.updateExec.Reject(c.Request.Context(), c.Param("codename"), req.Reason); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
