// Package statusdump periodically persists agent status snapshots and
// an append-only update history to a local SQLite database. It is
// pure observability: the orchestrator never reads this store back,
// and a disabled or unreachable dump never affects request handling.
package statusdump

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
	"go.uber.org/zap"

	"github.com/driftcode/orchestra/internal/common/config"
	"github.com/driftcode/orchestra/internal/common/logger"
	"github.com/driftcode/orchestra/internal/orchestrator/statusmgr"
	v1 "github.com/driftcode/orchestra/pkg/api/v1"
)

// Dumper periodically writes the Status Manager's AgentStatus entries
// to a SQLite database and appends a row to update_history whenever an
// update reaches a terminal state.
type Dumper struct {
	db       *sql.DB
	status   *statusmgr.Manager
	interval time.Duration
	log      *logger.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New opens (creating if necessary) the SQLite database at cfg.Path
// and prepares its schema. Returns (nil, nil) if cfg.Enabled is false,
// so callers can skip wiring a Dumper entirely without a nil check at
// every call site.
func New(cfg config.StatusDumpConfig, status *statusmgr.Manager, log *logger.Logger) (*Dumper, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	db, err := sql.Open("sqlite", cfg.Path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open status database: %w", err)
	}
	db.SetMaxOpenConns(1)

	d := &Dumper{
		db:       db,
		status:   status,
		interval: cfg.IntervalDuration(),
		log:      log.WithFields(zap.String("component", "statusdump")),
		stopCh:   make(chan struct{}),
	}

	if err := d.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize status database schema: %w", err)
	}
	return d, nil
}

func (d *Dumper) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agent_status (
		kind TEXT PRIMARY KEY,
		is_busy INTEGER NOT NULL,
		current_task TEXT,
		tasks_completed INTEGER NOT NULL,
		tasks_failed INTEGER NOT NULL,
		avg_execution_seconds REAL NOT NULL,
		last_activity DATETIME NOT NULL,
		dumped_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS update_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		codename TEXT NOT NULL,
		requested_by TEXT NOT NULL,
		final_state TEXT NOT NULL,
		detail TEXT DEFAULT '',
		recorded_at DATETIME NOT NULL
	);
	`
	_, err := d.db.Exec(schema)
	return err
}

// Run starts the periodic dump loop until ctx is cancelled.
func (d *Dumper) Run(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-d.stopCh:
				return
			case <-ticker.C:
				if err := d.dumpOnce(ctx); err != nil {
					d.log.Warn("status dump failed", zap.Error(err))
				}
			}
		}
	}()
}

// Stop halts the dump loop and closes the database.
func (d *Dumper) Stop() {
	close(d.stopCh)
	d.wg.Wait()
	d.db.Close()
}

func (d *Dumper) dumpOnce(ctx context.Context) error {
	statuses := d.status.ListAgentStatuses()
	now := time.Now().UTC()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, s := range statuses {
		if err := upsertAgentStatus(ctx, tx, s, now); err != nil {
			return err
		}
	}

	d.log.Debug("dumped agent statuses", zap.Int("count", len(statuses)))
	return tx.Commit()
}

func upsertAgentStatus(ctx context.Context, tx *sql.Tx, s v1.AgentStatus, dumpedAt time.Time) error {
	var currentTask interface{}
	if s.CurrentTask != nil {
		currentTask = *s.CurrentTask
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO agent_status (kind, is_busy, current_task, tasks_completed, tasks_failed, avg_execution_seconds, last_activity, dumped_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind) DO UPDATE SET
			is_busy = excluded.is_busy,
			current_task = excluded.current_task,
			tasks_completed = excluded.tasks_completed,
			tasks_failed = excluded.tasks_failed,
			avg_execution_seconds = excluded.avg_execution_seconds,
			last_activity = excluded.last_activity,
			dumped_at = excluded.dumped_at
	`, s.Kind, s.IsBusy, currentTask, s.TasksCompleted, s.TasksFailed, s.AvgExecutionSeconds, s.LastActivity, dumpedAt)
	return err
}

// RecordUpdateOutcome appends a row to update_history. Called by the
// Update Executor once a request reaches a terminal state.
func (d *Dumper) RecordUpdateOutcome(ctx context.Context, codename, requestedBy, finalState, detail string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO update_history (codename, requested_by, final_state, detail, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`, codename, requestedBy, finalState, detail, time.Now().UTC())
	return err
}

// AgentStatusRow mirrors one row of agent_status, for tests and
// diagnostics that need to read the dump back.
type AgentStatusRow struct {
	Kind                string
	IsBusy              bool
	CurrentTask         *string
	TasksCompleted      int64
	TasksFailed         int64
	AvgExecutionSeconds float64
}

// ReadAgentStatuses reads back every row currently in agent_status, for
// tests; production code never needs this (the dump is write-only).
func (d *Dumper) ReadAgentStatuses(ctx context.Context) ([]AgentStatusRow, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT kind, is_busy, current_task, tasks_completed, tasks_failed, avg_execution_seconds
		FROM agent_status ORDER BY kind
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AgentStatusRow
	for rows.Next() {
		var r AgentStatusRow
		var currentTask sql.NullString
		if err := rows.Scan(&r.Kind, &r.IsBusy, &currentTask, &r.TasksCompleted, &r.TasksFailed, &r.AvgExecutionSeconds); err != nil {
			return nil, err
		}
		if currentTask.Valid {
			r.CurrentTask = &currentTask.String
		}
		result = append(result, r)
	}
	return result, rows.Err()
}
