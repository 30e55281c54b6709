package resultstore

import (
	"testing"
	"time"

	v1 "github.com/driftcode/orchestra/pkg/api/v1"
)

func TestPutAndGet(t *testing.T) {
	s := New()
	result := &v1.TaskResult{TaskID: "t1", Success: true, Output: "ok", CompletedAt: time.Now()}

	if err := s.Put("t1", result); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := s.Get("t1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Output != "ok" {
		t.Errorf("expected output 'ok', got %q", got.Output)
	}
}

func TestPutAlreadyCompleted(t *testing.T) {
	s := New()
	result := &v1.TaskResult{TaskID: "t1", Success: true, CompletedAt: time.Now()}

	_ = s.Put("t1", result)
	if err := s.Put("t1", result); err != ErrAlreadyCompleted {
		t.Errorf("expected ErrAlreadyCompleted, got %v", err)
	}
}

func TestGetNotFound(t *testing.T) {
	s := New()
	if _, err := s.Get("missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCleanup(t *testing.T) {
	s := New()
	_ = s.Put("old", &v1.TaskResult{TaskID: "old", CompletedAt: time.Now()})

	time.Sleep(5 * time.Millisecond)
	cutoff := time.Now()
	_ = s.Put("new", &v1.TaskResult{TaskID: "new", CompletedAt: time.Now()})

	removed := s.Cleanup(cutoff)
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if _, err := s.Get("old"); err != ErrNotFound {
		t.Error("expected old result to be removed")
	}
	if _, err := s.Get("new"); err != nil {
		t.Error("expected new result to remain")
	}
}
