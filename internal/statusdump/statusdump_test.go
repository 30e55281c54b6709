package statusdump

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/driftcode/orchestra/internal/common/config"
	"github.com/driftcode/orchestra/internal/common/logger"
	"github.com/driftcode/orchestra/internal/orchestrator/statusmgr"
)

func createTestDumper(t *testing.T) (*Dumper, *statusmgr.Manager) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "status.db")

	status := statusmgr.New()
	status.RegisterKind("reviewer")

	cfg := config.StatusDumpConfig{Enabled: true, Path: dbPath, IntervalSeconds: 1}
	d, err := New(cfg, status, logger.Default())
	if err != nil {
		t.Fatalf("failed to create dumper: %v", err)
	}
	if d == nil {
		t.Fatal("expected non-nil dumper when enabled")
	}
	return d, status
}

func TestNewReturnsNilWhenDisabled(t *testing.T) {
	cfg := config.StatusDumpConfig{Enabled: false}
	d, err := New(cfg, statusmgr.New(), logger.Default())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if d != nil {
		t.Fatal("expected nil dumper when disabled")
	}
}

func TestDumpOnceUpsertsAgentStatus(t *testing.T) {
	d, status := createTestDumper(t)
	defer d.Stop()
	ctx := context.Background()

	status.MarkInProgress("reviewer", "task-1")
	status.MarkCompleted("reviewer", "task-1", 2*time.Second, true)

	if err := d.dumpOnce(ctx); err != nil {
		t.Fatalf("dumpOnce: %v", err)
	}

	rows, err := d.ReadAgentStatuses(ctx)
	if err != nil {
		t.Fatalf("ReadAgentStatuses: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].Kind != "reviewer" {
		t.Errorf("expected kind reviewer, got %s", rows[0].Kind)
	}
	if rows[0].TasksCompleted != 1 {
		t.Errorf("expected 1 completed task, got %d", rows[0].TasksCompleted)
	}
}

func TestDumpOnceUpdatesExistingRow(t *testing.T) {
	d, status := createTestDumper(t)
	defer d.Stop()
	ctx := context.Background()

	status.MarkInProgress("reviewer", "task-1")
	status.MarkCompleted("reviewer", "task-1", time.Second, true)
	if err := d.dumpOnce(ctx); err != nil {
		t.Fatalf("dumpOnce: %v", err)
	}

	status.MarkInProgress("reviewer", "task-2")
	status.MarkCompleted("reviewer", "task-2", time.Second, true)
	if err := d.dumpOnce(ctx); err != nil {
		t.Fatalf("dumpOnce: %v", err)
	}

	rows, err := d.ReadAgentStatuses(ctx)
	if err != nil {
		t.Fatalf("ReadAgentStatuses: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected the row to be updated in place, got %d rows", len(rows))
	}
	if rows[0].TasksCompleted != 2 {
		t.Errorf("expected 2 completed tasks, got %d", rows[0].TasksCompleted)
	}
}

func TestRecordUpdateOutcomeAppendsHistory(t *testing.T) {
	d, _ := createTestDumper(t)
	defer d.Stop()
	ctx := context.Background()

	if err := d.RecordUpdateOutcome(ctx, "falcon-heron", "alice", "succeeded", ""); err != nil {
		t.Fatalf("RecordUpdateOutcome: %v", err)
	}
	if err := d.RecordUpdateOutcome(ctx, "falcon-heron", "alice", "rolled_back", "validation failed"); err != nil {
		t.Fatalf("RecordUpdateOutcome: %v", err)
	}

	var count int
	row := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM update_history WHERE codename = ?", "falcon-heron")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("query update_history: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 history rows, got %d", count)
	}
}

func TestRunPeriodicallyDumpsUntilStopped(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "status.db")
	status := statusmgr.New()
	status.RegisterKind("reviewer")
	status.MarkInProgress("reviewer", "task-1")
	status.MarkCompleted("reviewer", "task-1", time.Second, true)

	cfg := config.StatusDumpConfig{Enabled: true, Path: dbPath, IntervalSeconds: 1}
	d, err := New(cfg, status, logger.Default())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Run(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		rows, err := d.ReadAgentStatuses(ctx)
		if err != nil {
			t.Fatalf("ReadAgentStatuses: %v", err)
		}
		if len(rows) == 1 {
			d.Stop()
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	d.Stop()
	t.Fatal("timed out waiting for periodic dump")
}
