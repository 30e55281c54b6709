package generator

import (
	"os"
	"testing"
	"time"

	"github.com/driftcode/orchestra/internal/common/logger"
)

func TestWorkspaceManagerCreateAndRelease(t *testing.T) {
	root := t.TempDir()
	w, err := NewWorkspaceManager(root, time.Hour, logger.Default())
	if err != nil {
		t.Fatalf("NewWorkspaceManager: %v", err)
	}

	dir, err := w.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("expected scratch dir to exist: %v", err)
	}

	w.Release(dir)
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("expected scratch dir to be removed, stat err = %v", err)
	}
}

func TestWorkspaceManagerSweepReclaimsStaleDirs(t *testing.T) {
	root := t.TempDir()
	w, err := NewWorkspaceManager(root, 10*time.Millisecond, logger.Default())
	if err != nil {
		t.Fatalf("NewWorkspaceManager: %v", err)
	}

	stale, err := w.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	fresh, err := w.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	removed := w.Sweep()
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("expected stale dir removed, stat err = %v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("expected fresh dir to remain, stat err = %v", err)
	}
}
