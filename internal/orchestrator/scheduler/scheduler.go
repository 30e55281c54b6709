// Package scheduler implements the Orchestrator: the component that
// accepts tasks, drives the dispatch and cleanup loops, and exposes
// status and result reads.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/driftcode/orchestra/internal/agent"
	"github.com/driftcode/orchestra/internal/common/apperrors"
	"github.com/driftcode/orchestra/internal/common/config"
	"github.com/driftcode/orchestra/internal/common/logger"
	"github.com/driftcode/orchestra/internal/orchestrator/queue"
	"github.com/driftcode/orchestra/internal/orchestrator/registry"
	"github.com/driftcode/orchestra/internal/orchestrator/resultstore"
	"github.com/driftcode/orchestra/internal/orchestrator/statusmgr"
	v1 "github.com/driftcode/orchestra/pkg/api/v1"
)

const idlePollInterval = 50 * time.Millisecond

// Orchestrator is the top-level scheduler: it owns no state of its own
// beyond the in-flight execution tracking needed for cooperative
// cancellation, delegating everything else to the TaskQueue,
// ResultStore, StatusManager, and AgentRegistry it is constructed with.
type Orchestrator struct {
	queue    *queue.TaskQueue
	results  *resultstore.Store
	status   *statusmgr.Manager
	registry *registry.Registry
	log      *logger.Logger

	cleanupInterval  time.Duration
	resultTTL        time.Duration
	developerTimeout time.Duration
	analysisTimeout  time.Duration
	shutdownGrace    time.Duration
	reclaimBudget    time.Duration

	mu      sync.Mutex
	running map[string]context.CancelFunc

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// New constructs an Orchestrator over the given components.
func New(cfg config.OrchestratorConfig, q *queue.TaskQueue, results *resultstore.Store, status *statusmgr.Manager, reg *registry.Registry, log *logger.Logger) *Orchestrator {
	developerTimeout := time.Duration(cfg.DeveloperTimeoutMinutes) * time.Minute
	if developerTimeout <= 0 {
		developerTimeout = 30 * time.Minute
	}
	analysisTimeout := time.Duration(cfg.AnalysisTimeoutMinutes) * time.Minute
	if analysisTimeout <= 0 {
		analysisTimeout = 10 * time.Minute
	}
	shutdownGrace := time.Duration(cfg.ShutdownGraceSeconds) * time.Second
	if shutdownGrace <= 0 {
		shutdownGrace = 30 * time.Second
	}

	reclaimBudget := developerTimeout
	if analysisTimeout > reclaimBudget {
		reclaimBudget = analysisTimeout
	}
	reclaimBudget += 5 * time.Minute

	return &Orchestrator{
		queue:            q,
		results:          results,
		status:           status,
		registry:         reg,
		log:              log,
		cleanupInterval:  cfg.CleanupInterval(),
		resultTTL:        cfg.ResultTTL(),
		developerTimeout: developerTimeout,
		analysisTimeout:  analysisTimeout,
		shutdownGrace:    shutdownGrace,
		reclaimBudget:    reclaimBudget,
		running:          make(map[string]context.CancelFunc),
		stopCh:           make(chan struct{}),
	}
}

// SubmitTask validates and accepts a new task, returning its assigned
// id.
func (o *Orchestrator) SubmitTask(task *v1.Task) (string, error) {
	content, err := sanitizeContent(task.Content)
	if err != nil {
		return "", err
	}
	if err := validateContext(task.Context); err != nil {
		return "", err
	}
	if !o.registry.Has(string(task.Kind)) {
		return "", apperrors.BadRequest("unregistered agent kind: " + string(task.Kind))
	}

	now := time.Now()
	task.ID = uuid.NewString()
	task.Content = content
	task.Status = v1.TaskStatusPending
	task.SubmittedAt = now
	task.UpdatedAt = now

	if err := o.queue.Submit(task); err != nil {
		switch {
		case errors.Is(err, queue.ErrQueueFull):
			return "", apperrors.Capacity("queue_full", 0)
		case errors.Is(err, queue.ErrDuplicateTask):
			return "", apperrors.Conflict("an identical task is already pending")
		default:
			return "", apperrors.Wrap(err, "failed to submit task")
		}
	}

	o.status.RecordSubmit(task.ID, task.Kind, now)
	return task.ID, nil
}

// GetStatus returns the current status of a task.
func (o *Orchestrator) GetStatus(id string) (statusmgr.TaskStatus, error) {
	status, ok := o.status.GetTaskStatus(id)
	if !ok {
		return statusmgr.TaskStatus{}, apperrors.NotFound("task", id)
	}
	return status, nil
}

// GetResult returns the recorded result of a task, or a Conflict error
// if the task has not yet reached a terminal state.
func (o *Orchestrator) GetResult(id string) (*v1.TaskResult, error) {
	status, ok := o.status.GetTaskStatus(id)
	if !ok {
		return nil, apperrors.NotFound("task", id)
	}
	if !status.Status.IsTerminal() {
		return nil, apperrors.Conflict("task has not reached a terminal state")
	}

	result, err := o.results.Get(id)
	if err != nil {
		return nil, apperrors.NotFound("result", id)
	}
	return result, nil
}

// QueueDepth returns the number of Pending tasks awaiting dispatch, for
// GET /system/status.
func (o *Orchestrator) QueueDepth() int {
	return o.queue.Len()
}

// PendingTasks returns a snapshot of all Pending tasks, for GET /tasks.
func (o *Orchestrator) PendingTasks() []*v1.Task {
	return o.queue.Snapshot()
}

// AgentSummary returns the current AgentStatus for every registered
// kind, for GET /agents and GET /system/status.
func (o *Orchestrator) AgentSummary() []v1.AgentStatus {
	return o.status.ListAgentStatuses()
}

// RegisteredKinds returns the agent kinds currently registered.
// SubmitTask checks a task's kind against the registry directly.
func (o *Orchestrator) RegisteredKinds() []string {
	return o.registry.Kinds()
}

// CancelTask cancels a Pending task outright, or requests cooperative
// abort of an InProgress one. Returns false if the task is unknown or
// already terminal.
func (o *Orchestrator) CancelTask(id string) bool {
	if o.queue.Cancel(id) {
		o.status.MarkCancelled(id)
		return true
	}

	o.mu.Lock()
	cancel, ok := o.running[id]
	o.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// Run drives the dispatch and cleanup loops until ctx is cancelled
// (each execution goroutine records its own result, and the cleanup
// loop also reclaims abandoned InProgress tasks), then waits up to the configured shutdown grace period
// for in-flight executions to finish before returning.
func (o *Orchestrator) Run(ctx context.Context) {
	o.wg.Add(2)
	go o.dispatchLoop(ctx)
	go o.cleanupLoop(ctx)

	<-ctx.Done()
	close(o.stopCh)

	drained := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(o.shutdownGrace):
		o.log.Warn("shutdown grace period elapsed with executions still in flight")
	}
}

func (o *Orchestrator) dispatchLoop(ctx context.Context) {
	defer o.wg.Done()

	for {
		select {
		case <-o.stopCh:
			return
		default:
		}

		task := o.queue.Next()
		if task == nil {
			select {
			case <-o.stopCh:
				return
			case <-time.After(idlePollInterval):
				continue
			}
		}

		kind := string(task.Kind)
		release, err := o.registry.Acquire(kind)
		if err != nil {
			o.log.Error("dispatch: no agent registered for kind", zap.String("kind", kind), zap.String("task_id", task.ID))
			o.failTask(task.ID, "unregistered agent kind")
			continue
		}

		a, err := o.registry.Get(kind)
		if err != nil {
			release()
			o.failTask(task.ID, "failed to construct agent")
			continue
		}

		o.wg.Add(1)
		go o.runTask(ctx, task, a, release)
	}
}

func (o *Orchestrator) runTask(ctx context.Context, task *v1.Task, a agent.Agent, release func()) {
	defer o.wg.Done()
	defer release()

	timeout := o.analysisTimeout
	if task.Kind == v1.TaskKindDeveloperCodeGen {
		timeout = o.developerTimeout
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	o.mu.Lock()
	o.running[task.ID] = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.running, task.ID)
		o.mu.Unlock()
	}()

	o.status.MarkInProgress(string(task.Kind), task.ID)

	start := time.Now()
	result, err := a.Execute(execCtx, task)
	duration := time.Since(start)

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		o.log.Warn("task execution timed out", zap.String("task_id", task.ID), zap.Duration("timeout", timeout))
		o.recordResult(task.ID, string(task.Kind), duration, &v1.TaskResult{
			TaskID:      task.ID,
			Success:     false,
			Error:       fmt.Sprintf("task execution timed out after %s", timeout),
			CompletedAt: time.Now(),
		})
		return
	}

	if execCtx.Err() != nil {
		o.status.MarkCancelled(task.ID)
		o.log.Info("task cancelled", zap.String("task_id", task.ID), zap.Error(execCtx.Err()))
		return
	}

	if err != nil {
		o.recordResult(task.ID, string(task.Kind), duration, &v1.TaskResult{
			TaskID:      task.ID,
			Success:     false,
			Error:       err.Error(),
			CompletedAt: time.Now(),
		})
		return
	}

	o.recordResult(task.ID, string(task.Kind), duration, result)
}

func (o *Orchestrator) recordResult(taskID, kind string, duration time.Duration, result *v1.TaskResult) {
	if err := o.results.Put(taskID, result); err != nil {
		o.log.Warn("discarding result for already-finalized task", zap.String("task_id", taskID), zap.Error(err))
		return
	}
	o.status.MarkCompleted(kind, taskID, duration, result.Success)
}

func (o *Orchestrator) failTask(taskID, reason string) {
	o.recordResult(taskID, "", 0, &v1.TaskResult{
		TaskID:      taskID,
		Success:     false,
		Error:       reason,
		CompletedAt: time.Now(),
	})
}

func (o *Orchestrator) cleanupLoop(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.performCleanup()
		}
	}
}

func (o *Orchestrator) performCleanup() {
	removed := o.results.Cleanup(time.Now().Add(-o.resultTTL))
	o.status.CleanupTasks(time.Now().Add(-o.resultTTL))
	if removed > 0 {
		o.log.Info("cleaned up expired results", zap.Int("count", removed))
	}

	stale := o.status.InProgressOlderThan(time.Now().Add(-o.reclaimBudget))
	for _, taskID := range stale {
		o.status.MarkCancelled(taskID)
		o.mu.Lock()
		if cancel, ok := o.running[taskID]; ok {
			cancel()
		}
		o.mu.Unlock()
		o.log.Warn("reclaimed abandoned in-progress task", zap.String("task_id", taskID))
	}
}
