package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

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

type instantAgent struct {
	kind v1.TaskKind
}

func (a instantAgent) Execute(ctx context.Context, task *v1.Task) (*v1.TaskResult, error) {
	return &v1.TaskResult{TaskID: task.ID, Success: true, Output: "done", CompletedAt: time.Now()}, nil
}
func (a instantAgent) Kind() v1.TaskKind { return a.kind }

type blockingAgent struct {
	kind    v1.TaskKind
	started chan struct{}
}

func (a blockingAgent) Execute(ctx context.Context, task *v1.Task) (*v1.TaskResult, error) {
	close(a.started)
	<-ctx.Done()
	return nil, ctx.Err()
}
func (a blockingAgent) Kind() v1.TaskKind { return a.kind }

func newTestOrchestrator(t *testing.T, factory agent.Factory) (*Orchestrator, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	reg.Register("developer", factory, 0)

	cfg := config.OrchestratorConfig{
		MaxQueue:                10,
		CleanupIntervalSeconds:  3600,
		ResultTTLSeconds:        3600,
		DeveloperTimeoutMinutes: 1,
		AnalysisTimeoutMinutes:  1,
		ShutdownGraceSeconds:    1,
	}
	o := New(cfg, queue.NewTaskQueue(10), resultstore.New(), statusmgr.New(), reg, logger.Default())
	return o, reg
}

func TestSubmitTaskAndDispatch(t *testing.T) {
	o, _ := newTestOrchestrator(t, func() agent.Agent { return instantAgent{kind: v1.TaskKindDeveloperCodeGen} })

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() { defer wg.Done(); o.Run(ctx) }()

	id, err := o.SubmitTask(&v1.Task{Kind: v1.TaskKindDeveloperCodeGen, Content: "write a go cli", Priority: v1.PriorityMedium})
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		status, err := o.GetStatus(id)
		if err == nil && status.Status.IsTerminal() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	result, err := o.GetResult(id)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if !result.Success || result.Output != "done" {
		t.Errorf("unexpected result: %+v", result)
	}

	cancel()
	wg.Wait()
}

func TestSubmitTaskUnregisteredKind(t *testing.T) {
	o, _ := newTestOrchestrator(t, func() agent.Agent { return instantAgent{kind: v1.TaskKindDeveloperCodeGen} })

	_, err := o.SubmitTask(&v1.Task{Kind: v1.TaskKindProjectAnalysis, Content: "analyze this"})
	if !apperrors.IsBadRequest(err) {
		t.Fatalf("expected bad request for unregistered kind, got %v", err)
	}
}

func TestSubmitTaskEmptyContentRejected(t *testing.T) {
	o, _ := newTestOrchestrator(t, func() agent.Agent { return instantAgent{kind: v1.TaskKindDeveloperCodeGen} })

	_, err := o.SubmitTask(&v1.Task{Kind: v1.TaskKindDeveloperCodeGen, Content: "   "})
	if !apperrors.IsBadRequest(err) {
		t.Fatalf("expected bad request for empty content, got %v", err)
	}
}

func TestGetResultNotYetTerminal(t *testing.T) {
	started := make(chan struct{})
	o, _ := newTestOrchestrator(t, func() agent.Agent { return blockingAgent{kind: v1.TaskKindDeveloperCodeGen, started: started} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	id, err := o.SubmitTask(&v1.Task{Kind: v1.TaskKindDeveloperCodeGen, Content: "write a go service"})
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("task never started")
	}

	_, err = o.GetResult(id)
	if !apperrors.IsConflict(err) {
		t.Fatalf("expected conflict for non-terminal task, got %v", err)
	}
}

func TestCancelPendingTask(t *testing.T) {
	reg := registry.New()
	reg.Register("developer", func() agent.Agent { return instantAgent{kind: v1.TaskKindDeveloperCodeGen} }, 1)
	// hold the only slot; Run is never started, so the submitted task stays Pending in the queue
	release, ok, err := reg.TryAcquire("developer")
	if err != nil || !ok {
		t.Fatalf("expected to acquire the only slot: ok=%v err=%v", ok, err)
	}
	defer release()

	cfg := config.OrchestratorConfig{MaxQueue: 10, CleanupIntervalSeconds: 3600, ResultTTLSeconds: 3600, DeveloperTimeoutMinutes: 1, AnalysisTimeoutMinutes: 1, ShutdownGraceSeconds: 1}
	o := New(cfg, queue.NewTaskQueue(10), resultstore.New(), statusmgr.New(), reg, logger.Default())

	id, err := o.SubmitTask(&v1.Task{Kind: v1.TaskKindDeveloperCodeGen, Content: "write a go cli"})
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}

	if !o.CancelTask(id) {
		t.Fatal("expected cancel to succeed for pending task")
	}
}

func TestGetStatusNotFound(t *testing.T) {
	o, _ := newTestOrchestrator(t, func() agent.Agent { return instantAgent{kind: v1.TaskKindDeveloperCodeGen} })
	if _, err := o.GetStatus("nonexistent"); !apperrors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}
