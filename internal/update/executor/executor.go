// Package executor implements the Update Executor: the state machine
// that drives one self-update request from Queued through Planning,
// approval, Executing, Validating, and on to a terminal state,
// coordinating the Snapshot Manager, Preflight Checker, Validation
// Pipeline, Generator, and Update Queue's system-wide execution lock.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/driftcode/orchestra/internal/common/apperrors"
	"github.com/driftcode/orchestra/internal/common/config"
	"github.com/driftcode/orchestra/internal/common/logger"
	"github.com/driftcode/orchestra/internal/eventbus"
	"github.com/driftcode/orchestra/internal/generator"
	"github.com/driftcode/orchestra/internal/notifier"
	"github.com/driftcode/orchestra/internal/update/preflight"
	"github.com/driftcode/orchestra/internal/update/queue"
	"github.com/driftcode/orchestra/internal/update/snapshot"
	"github.com/driftcode/orchestra/internal/update/validation"
	v1 "github.com/driftcode/orchestra/pkg/api/v1"
)

const idlePollInterval = 200 * time.Millisecond

// fileEdit is one file write the apply-plan persona requests.
type fileEdit struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type applyPlanOutput struct {
	Edits []fileEdit `json:"edits"`
}

// pendingApproval holds the state of a request parked in
// AwaitingApproval until Approve or Reject is called.
type pendingApproval struct {
	req  *v1.UpdateRequest
	plan string
}

// HistoryRecorder appends a terminal update outcome to durable storage.
// Satisfied by *statusdump.Dumper; kept as an interface here so this
// package never imports statusdump directly.
type HistoryRecorder interface {
	RecordUpdateOutcome(ctx context.Context, codename, requestedBy, finalState, detail string) error
}

// Executor drives update requests through the full self-update
// pipeline, one at a time, guarded by the Update Queue's system-wide
// execution lock.
type Executor struct {
	queue      *queue.Queue
	snapshots  *snapshot.Manager
	preflight  *preflight.Checker
	validation *validation.Pipeline
	gen        generator.Generator
	notif      notifier.Notifier
	bus        eventbus.Bus
	log        *logger.Logger

	repoPath     string
	allowedPaths []string
	pushBranch   string
	autoApprove  bool

	mu      sync.Mutex
	pending map[string]*pendingApproval

	history HistoryRecorder

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// SetHistoryRecorder wires a destination for terminal update outcomes.
// Optional: an Executor with no recorder simply skips the append.
func (e *Executor) SetHistoryRecorder(h HistoryRecorder) {
	e.history = h
}

// New constructs an Executor.
func New(
	cfg config.UpdateConfig,
	q *queue.Queue,
	snapshots *snapshot.Manager,
	pre *preflight.Checker,
	val *validation.Pipeline,
	gen generator.Generator,
	notif notifier.Notifier,
	bus eventbus.Bus,
	log *logger.Logger,
) *Executor {
	allowed := cfg.AllowedPaths
	if len(allowed) == 0 {
		allowed = []string{"."}
	}
	pushBranch := cfg.PushBranch
	if pushBranch == "" {
		pushBranch = "main"
	}

	return &Executor{
		queue:        q,
		snapshots:    snapshots,
		preflight:    pre,
		validation:   val,
		gen:          gen,
		notif:        notif,
		bus:          bus,
		log:          log,
		repoPath:     cfg.RepoPath,
		allowedPaths: allowed,
		pushBranch:   pushBranch,
		autoApprove:  cfg.AutoApprove,
		pending:      make(map[string]*pendingApproval),
		stopCh:       make(chan struct{}),
	}
}

// Run starts the dispatch loop that dequeues and drives update
// requests until ctx is cancelled.
func (e *Executor) Run(ctx context.Context) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(idlePollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-e.stopCh:
				return
			case <-ticker.C:
				req := e.queue.Next()
				if req == nil {
					continue
				}
				e.executeOne(ctx, req)
			}
		}
	}()
}

// Stop signals the dispatch loop to exit and waits for it.
func (e *Executor) Stop() {
	close(e.stopCh)
	e.wg.Wait()
}

// PendingPlan returns the generated plan text for a request currently
// parked in AwaitingApproval, for surfacing through the HTTP API.
func (e *Executor) PendingPlan(codename string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.pending[codename]
	if !ok {
		return "", false
	}
	return p.plan, true
}

// Approve resumes a request parked in AwaitingApproval.
func (e *Executor) Approve(ctx context.Context, codename string) error {
	e.mu.Lock()
	p, ok := e.pending[codename]
	e.mu.Unlock()
	if !ok {
		return apperrors.NotFound("update request awaiting approval", codename)
	}
	e.resume(ctx, p)
	return nil
}

// Reject terminates a request parked in AwaitingApproval without
// executing it.
func (e *Executor) Reject(ctx context.Context, codename, reason string) error {
	e.mu.Lock()
	p, ok := e.pending[codename]
	if ok {
		delete(e.pending, codename)
	}
	e.mu.Unlock()
	if !ok {
		return apperrors.NotFound("update request awaiting approval", codename)
	}
	e.terminal(ctx, p.req, v1.UpdateStateFailed, fmt.Sprintf("rejected: %s", reason))
	return nil
}

// executeOne drives a freshly dequeued request from Queued through
// Planning and, when auto-approval is enabled, straight on to a
// terminal state. Otherwise it parks the request in AwaitingApproval
// for an external Approve/Reject call.
func (e *Executor) executeOne(ctx context.Context, req *v1.UpdateRequest) {
	e.setState(req, v1.UpdateStatePlanning)
	e.publish(ctx, eventbus.EventUpdateStateChanged, req, nil)
	e.notify(ctx, req, "processing update %s", req.Codename)

	if !e.queue.IsAuthorized(req.RequestedBy) {
		e.terminal(ctx, req, v1.UpdateStateFailed, "principal no longer authorized")
		return
	}

	report, err := e.preflight.Run(ctx)
	if err != nil {
		e.log.Warn("preflight failed", zap.String("codename", req.Codename), zap.Error(err))
		e.terminal(ctx, req, v1.UpdateStateFailed, fmt.Sprintf("preflight failed: %v", err))
		return
	}
	e.log.Info("preflight passed", zap.String("codename", req.Codename), zap.Int("checks", len(report.Results)))

	planArtifact, err := e.gen.Execute(ctx, planningPrompt(req))
	if err != nil {
		e.terminal(ctx, req, v1.UpdateStateFailed, fmt.Sprintf("planning failed: %v", err))
		return
	}

	e.mu.Lock()
	e.pending[req.Codename] = &pendingApproval{req: req, plan: planArtifact.Content}
	e.mu.Unlock()

	e.setState(req, v1.UpdateStateAwaitingApproval)
	e.publish(ctx, eventbus.EventUpdateStateChanged, req, map[string]interface{}{"plan": planArtifact.Content})
	e.notify(ctx, req, "planning complete for %s, awaiting approval", req.Codename)

	if e.autoApprove {
		e.mu.Lock()
		p := e.pending[req.Codename]
		e.mu.Unlock()
		e.resume(ctx, p)
	}
}

// resume continues a request from AwaitingApproval through to a
// terminal state, holding the system-wide execution lock for the
// duration.
func (e *Executor) resume(ctx context.Context, p *pendingApproval) {
	release, err := e.queue.AcquireExecutionLock(ctx)
	if err != nil {
		e.terminal(ctx, p.req, v1.UpdateStateFailed, fmt.Sprintf("could not acquire execution lock: %v", err))
		return
	}
	defer release()

	e.mu.Lock()
	delete(e.pending, p.req.Codename)
	e.mu.Unlock()

	req := p.req
	e.setState(req, v1.UpdateStateExecuting)
	e.publish(ctx, eventbus.EventUpdateStateChanged, req, nil)
	e.notify(ctx, req, "starting update %s", req.Codename)

	snap, err := e.snapshots.Create(ctx, req.Codename)
	if err != nil {
		// No file has been modified yet, so there is nothing to roll
		// back: this is equivalent to a planning-stage failure.
		e.terminal(ctx, req, v1.UpdateStateFailed, fmt.Sprintf("snapshot creation failed: %v", err))
		return
	}

	e.notify(ctx, req, "working: applying update %s", req.Codename)
	changedFiles, err := e.applyPlan(ctx, req, p.plan)
	if err != nil {
		e.rollback(ctx, req, snap, fmt.Sprintf("apply-plan failed: %v", err))
		return
	}

	e.setState(req, v1.UpdateStateValidating)
	e.publish(ctx, eventbus.EventUpdateStateChanged, req, nil)
	e.notify(ctx, req, "working: validating update %s", req.Codename)

	valReport, err := e.validation.Run(ctx, req.Codename)
	if err != nil {
		detail := fmt.Sprintf("validation failed: %v", err)
		if valReport != nil {
			detail = fmt.Sprintf("%s (outcome=%s, iterations=%d)", detail, valReport.Outcome, len(valReport.Iterations))
		}
		e.rollback(ctx, req, snap, detail)
		return
	}

	message := fmt.Sprintf("self-update %s: %s", req.Codename, req.Description)
	if err := e.snapshots.Commit(ctx, req.Codename, message, changedFiles); err != nil {
		e.rollback(ctx, req, snap, fmt.Sprintf("commit failed: %v", err))
		return
	}
	if err := e.snapshots.Push(ctx, e.pushBranch); err != nil {
		e.rollback(ctx, req, snap, fmt.Sprintf("push failed: %v", err))
		return
	}

	e.setState(req, v1.UpdateStateRestarting)
	e.publish(ctx, eventbus.EventUpdateStateChanged, req, nil)
	e.notify(ctx, req, "restarting to apply update %s", req.Codename)

	e.terminal(ctx, req, v1.UpdateStateSucceeded, "update applied successfully")
}

// rollback restores the repository to snap's recorded revision and
// marks req RolledBack.
func (e *Executor) rollback(ctx context.Context, req *v1.UpdateRequest, snap *v1.Snapshot, reason string) {
	if err := e.snapshots.Restore(ctx, snap); err != nil {
		e.log.Error("snapshot restore failed during rollback", zap.String("codename", req.Codename), zap.Error(err))
	}
	e.terminal(ctx, req, v1.UpdateStateRolledBack, reason)
}

// terminal transitions req to a terminal state and notifies.
func (e *Executor) terminal(ctx context.Context, req *v1.UpdateRequest, state v1.UpdateState, reason string) {
	e.setState(req, state)
	e.publish(ctx, eventbus.EventUpdateStateChanged, req, map[string]interface{}{"reason": reason})

	marker := notifier.MarkerSuccess
	if state != v1.UpdateStateSucceeded {
		marker = notifier.MarkerFailure
	}
	e.notify(ctx, req, "%s: %s (%s)", req.Codename, reason, state)
	_ = e.notif.React(ctx, req.Codename, marker)

	if e.history != nil {
		if err := e.history.RecordUpdateOutcome(ctx, req.Codename, req.RequestedBy, string(state), reason); err != nil {
			e.log.Warn("failed to record update history", zap.String("codename", req.Codename), zap.Error(err))
		}
	}

	e.log.Info("update reached terminal state", zap.String("codename", req.Codename), zap.String("state", string(state)), zap.String("reason", reason))
}

func (e *Executor) setState(req *v1.UpdateRequest, state v1.UpdateState) {
	if err := e.queue.SetState(req.Codename, state); err != nil {
		e.log.Warn("failed to record update state", zap.String("codename", req.Codename), zap.Error(err))
	}
	req.State = state
}

func (e *Executor) notify(ctx context.Context, req *v1.UpdateRequest, format string, args ...interface{}) {
	if e.notif == nil {
		return
	}
	if err := e.notif.Send(ctx, "", fmt.Sprintf(format, args...)); err != nil {
		e.log.Warn("notifier send failed", zap.String("codename", req.Codename), zap.Error(err))
	}
}

func (e *Executor) publish(ctx context.Context, eventType string, req *v1.UpdateRequest, extra map[string]interface{}) {
	if e.bus == nil {
		return
	}
	data := map[string]interface{}{"codename": req.Codename, "state": string(req.State)}
	for k, v := range extra {
		data[k] = v
	}
	if err := e.bus.Publish(ctx, eventType, eventbus.NewEvent(eventType, "update-executor", data)); err != nil {
		e.log.Warn("event publish failed", zap.String("codename", req.Codename), zap.Error(err))
	}
}

// applyPlan invokes the apply-plan persona and writes its requested
// file edits into the repository, rejecting any path that falls
// outside the configured allowlist.
func (e *Executor) applyPlan(ctx context.Context, req *v1.UpdateRequest, plan string) ([]string, error) {
	artifact, err := e.gen.Execute(ctx, applyPlanPrompt(req, plan))
	if err != nil {
		return nil, err
	}

	var out applyPlanOutput
	if err := json.Unmarshal([]byte(artifact.Content), &out); err != nil {
		return nil, fmt.Errorf("apply-plan persona returned unparseable output: %w", err)
	}
	if len(out.Edits) == 0 {
		return nil, fmt.Errorf("apply-plan persona proposed no file edits")
	}

	changed := make([]string, 0, len(out.Edits))
	for _, edit := range out.Edits {
		relPath, err := e.validatePath(edit.Path)
		if err != nil {
			return nil, err
		}
		fullPath := filepath.Join(e.repoPath, relPath)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to prepare directory for %s: %w", relPath, err)
		}
		if err := os.WriteFile(fullPath, []byte(edit.Content), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", relPath, err)
		}
		changed = append(changed, relPath)
	}
	return changed, nil
}

// validatePath ensures a generator-proposed path is relative, cannot
// escape the repository root, and falls under one of the configured
// allowed path prefixes.
func (e *Executor) validatePath(path string) (string, error) {
	clean := filepath.Clean(path)
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("file edit path %q escapes the repository root", path)
	}

	for _, allowed := range e.allowedPaths {
		allowedClean := filepath.Clean(allowed)
		if allowedClean == "." || clean == allowedClean || strings.HasPrefix(clean, allowedClean+string(filepath.Separator)) {
			return clean, nil
		}
	}
	return "", fmt.Errorf("file edit path %q is outside the allowed paths %v", path, e.allowedPaths)
}

func planningPrompt(req *v1.UpdateRequest) string {
	return fmt.Sprintf("You are the planning persona for self-update %q, requested by %s. Description: %s\nProduce a concrete, reviewable plan of file changes.", req.Codename, req.RequestedBy, req.Description)
}

func applyPlanPrompt(req *v1.UpdateRequest, plan string) string {
	return fmt.Sprintf("You are the apply-plan persona for self-update %q. Implement the following approved plan by responding with JSON {\"edits\":[{\"path\":...,\"content\":...}]} covering every file to add or modify.\nPlan:\n%s", req.Codename, plan)
}
