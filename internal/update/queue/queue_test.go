package queue

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/driftcode/orchestra/internal/common/apperrors"
	"github.com/driftcode/orchestra/internal/common/config"
	v1 "github.com/driftcode/orchestra/pkg/api/v1"
)

func newTestQueue(maxQueue, maxContent int) *Queue {
	return New(config.UpdateConfig{
		AuthorizedPrincipals: []string{"alice"},
		MaxQueue:             maxQueue,
		MaxContentBytes:      maxContent,
	})
}

func TestSubmitAuthorized(t *testing.T) {
	q := newTestQueue(10, 1024)
	codename, err := q.Submit("alice", "fix formatting in module X")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if codename == "" {
		t.Fatal("expected a non-empty codename")
	}
	req, ok := q.Get(codename)
	if !ok || req.State != v1.UpdateStateQueued {
		t.Fatalf("expected queued request, got %+v ok=%v", req, ok)
	}
}

func TestSubmitUnauthorized(t *testing.T) {
	q := newTestQueue(10, 1024)
	before := q.Len()

	_, err := q.Submit("bob", "fix typo in README")
	if apperrors.GetHTTPStatus(err) != 401 {
		t.Fatalf("expected 401 unauthorized, got status %d (err=%v)", apperrors.GetHTTPStatus(err), err)
	}
	if q.Len() != before {
		t.Errorf("expected queue length unchanged, got %d want %d", q.Len(), before)
	}
}

func TestSubmitDescriptionTooLarge(t *testing.T) {
	q := newTestQueue(10, 16)
	_, err := q.Submit("alice", strings.Repeat("x", 17))
	if !apperrors.IsBadRequest(err) {
		t.Fatalf("expected bad request for oversized description, got %v", err)
	}
}

func TestSubmitQueueFull(t *testing.T) {
	q := newTestQueue(1, 1024)
	if _, err := q.Submit("alice", "first update"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	_, err := q.Submit("alice", "second update")
	if !apperrors.IsCapacity(err) {
		t.Fatalf("expected capacity error, got %v", err)
	}
}

func TestFIFOOrdering(t *testing.T) {
	q := newTestQueue(10, 1024)
	first, _ := q.Submit("alice", "first")
	second, _ := q.Submit("alice", "second")

	got := q.Next()
	if got == nil || got.Codename != first {
		t.Fatalf("expected %q first, got %+v", first, got)
	}
	got = q.Next()
	if got == nil || got.Codename != second {
		t.Fatalf("expected %q second, got %+v", second, got)
	}
	if q.Next() != nil {
		t.Error("expected empty queue after draining")
	}
}

func TestExecutionLockIsSingleFlight(t *testing.T) {
	q := newTestQueue(10, 1024)

	release, err := q.AcquireExecutionLock(context.Background())
	if err != nil {
		t.Fatalf("AcquireExecutionLock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := q.AcquireExecutionLock(ctx); err == nil {
		t.Fatal("expected second acquire to block until released")
	}

	release()

	release2, err := q.AcquireExecutionLock(context.Background())
	if err != nil {
		t.Fatalf("expected acquire to succeed after release: %v", err)
	}
	release2()
}

func TestCleanupRemovesOldTerminalRequests(t *testing.T) {
	q := newTestQueue(10, 1024)
	codename, _ := q.Submit("alice", "old update")
	q.SetState(codename, v1.UpdateStateSucceeded)

	time.Sleep(5 * time.Millisecond)
	cutoff := time.Now()

	fresh, _ := q.Submit("alice", "fresh update")
	q.SetState(fresh, v1.UpdateStateSucceeded)

	removed := q.Cleanup(cutoff)
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if _, ok := q.Get(codename); ok {
		t.Error("expected old terminal request to be cleaned up")
	}
	if _, ok := q.Get(fresh); !ok {
		t.Error("expected fresh terminal request to remain")
	}
}

func TestIsAuthorized(t *testing.T) {
	q := newTestQueue(10, 1024)
	if !q.IsAuthorized("alice") {
		t.Error("expected alice to be authorized")
	}
	if q.IsAuthorized("bob") {
		t.Error("expected bob not to be authorized")
	}
}
