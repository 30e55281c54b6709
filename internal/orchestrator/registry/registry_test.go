package registry

import (
	"context"
	"testing"

	"github.com/driftcode/orchestra/internal/agent"
	v1 "github.com/driftcode/orchestra/pkg/api/v1"
)

type stubAgent struct{}

func (stubAgent) Execute(ctx context.Context, task *v1.Task) (*v1.TaskResult, error) {
	return &v1.TaskResult{TaskID: task.ID, Success: true}, nil
}
func (stubAgent) Kind() v1.TaskKind { return v1.TaskKindDeveloperCodeGen }

func TestRegisterAndGet(t *testing.T) {
	r := New()
	r.Register("developer", func() agent.Agent { return stubAgent{} }, 1)

	a, err := r.Get("developer")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	result, err := a.Execute(context.Background(), &v1.Task{ID: "t1"})
	if err != nil || !result.Success {
		t.Fatalf("unexpected execute result: %+v, %v", result, err)
	}
}

func TestGetUnknownKind(t *testing.T) {
	r := New()
	if _, err := r.Get("nonexistent"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestAcquireRespectsMaxInFlight(t *testing.T) {
	r := New()
	r.Register("developer", func() agent.Agent { return stubAgent{} }, 1)

	release1, ok, err := r.TryAcquire("developer")
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed: ok=%v err=%v", ok, err)
	}

	_, ok, err = r.TryAcquire("developer")
	if err != nil || ok {
		t.Fatalf("expected second acquire to fail while slot held: ok=%v err=%v", ok, err)
	}

	release1()

	release2, ok, err := r.TryAcquire("developer")
	if err != nil || !ok {
		t.Fatalf("expected acquire to succeed after release: ok=%v err=%v", ok, err)
	}
	release2()
}

func TestTryAcquireUnlimited(t *testing.T) {
	r := New()
	r.Register("analysis", func() agent.Agent { return stubAgent{} }, 0)

	r1, ok1, _ := r.TryAcquire("analysis")
	r2, ok2, _ := r.TryAcquire("analysis")
	if !ok1 || !ok2 {
		t.Fatal("expected unlimited kind to always acquire")
	}
	r1()
	r2()
}
