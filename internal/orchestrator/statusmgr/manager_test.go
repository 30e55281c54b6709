package statusmgr

import (
	"testing"
	"time"

	v1 "github.com/driftcode/orchestra/pkg/api/v1"
)

func TestMarkInProgressThenCompleted(t *testing.T) {
	m := New()
	m.RegisterKind("developer")
	m.RecordSubmit("t1", v1.TaskKindDeveloperCodeGen, time.Now())

	m.MarkInProgress("developer", "t1")
	status, ok := m.GetTaskStatus("t1")
	if !ok || status.Status != v1.TaskStatusInProgress {
		t.Fatalf("expected InProgress, got %+v ok=%v", status, ok)
	}

	agent, _ := m.GetAgentStatus("developer")
	if !agent.IsBusy || agent.CurrentTask == nil || *agent.CurrentTask != "t1" {
		t.Fatalf("expected agent busy on t1, got %+v", agent)
	}

	m.MarkCompleted("developer", "t1", 2*time.Second, true)
	status, _ = m.GetTaskStatus("t1")
	if status.Status != v1.TaskStatusCompleted {
		t.Errorf("expected Completed, got %v", status.Status)
	}

	agent, _ = m.GetAgentStatus("developer")
	if agent.IsBusy || agent.CurrentTask != nil {
		t.Errorf("expected agent idle after completion, got %+v", agent)
	}
	if agent.TasksCompleted != 1 {
		t.Errorf("expected 1 completed task, got %d", agent.TasksCompleted)
	}
	if agent.AvgExecutionSeconds != 2.0 {
		t.Errorf("expected first duration seeds the average, got %f", agent.AvgExecutionSeconds)
	}
}

func TestRollingAverageEMA(t *testing.T) {
	m := New()
	m.RegisterKind("developer")
	m.MarkInProgress("developer", "t1")
	m.MarkCompleted("developer", "t1", 10*time.Second, true)
	m.MarkInProgress("developer", "t2")
	m.MarkCompleted("developer", "t2", 20*time.Second, true)

	agent, _ := m.GetAgentStatus("developer")
	want := 0.2*20 + 0.8*10
	if agent.AvgExecutionSeconds != want {
		t.Errorf("expected EMA = %f, got %f", want, agent.AvgExecutionSeconds)
	}
}

func TestCleanupTasks(t *testing.T) {
	m := New()
	m.RecordSubmit("old", v1.TaskKindDeveloperCodeGen, time.Now())
	m.MarkCancelled("old")

	time.Sleep(5 * time.Millisecond)
	cutoff := time.Now()
	m.RecordSubmit("new", v1.TaskKindDeveloperCodeGen, time.Now())
	m.MarkCancelled("new")

	removed := m.CleanupTasks(cutoff)
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if _, ok := m.GetTaskStatus("old"); ok {
		t.Error("expected old terminal task to be cleaned up")
	}
	if _, ok := m.GetTaskStatus("new"); !ok {
		t.Error("expected new terminal task to remain")
	}
}

func TestInProgressOlderThan(t *testing.T) {
	m := New()
	m.RecordSubmit("stale", v1.TaskKindDeveloperCodeGen, time.Now())
	m.MarkInProgress("developer", "stale")

	time.Sleep(5 * time.Millisecond)
	cutoff := time.Now()

	m.RecordSubmit("fresh", v1.TaskKindDeveloperCodeGen, time.Now())
	m.MarkInProgress("developer", "fresh")

	stale := m.InProgressOlderThan(cutoff)
	if len(stale) != 1 || stale[0] != "stale" {
		t.Errorf("expected only 'stale' to be reclaimed, got %v", stale)
	}
}
