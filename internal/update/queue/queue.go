// Package queue implements the Update Queue & Authorization component:
// a bounded FIFO of self-update requests gated by a principal
// whitelist, plus the system-wide single-flight lock that ensures only
// one update executes at a time.
package queue

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/driftcode/orchestra/internal/common/apperrors"
	"github.com/driftcode/orchestra/internal/common/config"
	v1 "github.com/driftcode/orchestra/pkg/api/v1"
)

// Queue is the Update Queue & Authorization component.
type Queue struct {
	mu              sync.Mutex
	pending         []*v1.UpdateRequest
	byCodename      map[string]*v1.UpdateRequest
	authorized      map[string]bool
	maxQueue        int
	maxContentBytes int
	nextSeq         uint64
	rng             *rand.Rand

	executionLock chan struct{}
}

// New constructs a Queue from update configuration.
func New(cfg config.UpdateConfig) *Queue {
	maxQueue := cfg.MaxQueue
	if maxQueue <= 0 {
		maxQueue = 10
	}
	maxContent := cfg.MaxContentBytes
	if maxContent <= 0 {
		maxContent = 64 * 1024
	}

	authorized := make(map[string]bool, len(cfg.AuthorizedPrincipals))
	for _, p := range cfg.AuthorizedPrincipals {
		authorized[p] = true
	}

	lock := make(chan struct{}, 1)
	lock <- struct{}{}

	return &Queue{
		byCodename:      make(map[string]*v1.UpdateRequest),
		authorized:      authorized,
		maxQueue:        maxQueue,
		maxContentBytes: maxContent,
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
		executionLock:   lock,
	}
}

// IsAuthorized reports whether principal may submit updates.
func (q *Queue) IsAuthorized(principal string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.authorized[principal]
}

// Submit validates and enqueues a new update request, returning its
// server-generated codename.
func (q *Queue) Submit(principal, description string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.authorized[principal] {
		return "", apperrors.Unauthorized("principal is not authorized to submit updates")
	}
	if len(description) > q.maxContentBytes {
		return "", apperrors.BadRequest("update description exceeds maximum size")
	}
	if len(q.pending) >= q.maxQueue {
		return "", apperrors.Capacity("update_queue_full", 0)
	}

	codename := q.uniqueCodenameLocked()
	q.nextSeq++

	req := &v1.UpdateRequest{
		Codename:    codename,
		RequestedBy: principal,
		Description: description,
		SubmittedAt: time.Now(),
		State:       v1.UpdateStateQueued,
		SubmitSeq:   q.nextSeq,
	}

	q.pending = append(q.pending, req)
	q.byCodename[codename] = req
	return codename, nil
}

func (q *Queue) uniqueCodenameLocked() string {
	for {
		candidate := generateCodename(q.rng)
		if _, exists := q.byCodename[candidate]; !exists {
			return candidate
		}
	}
}

// Next dequeues the oldest still-Queued request, or nil if the queue is
// empty. It does not itself acquire the execution lock.
func (q *Queue) Next() *v1.UpdateRequest {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}
	req := q.pending[0]
	q.pending = q.pending[1:]
	return req
}

// Get looks up a request by codename, regardless of queue position or
// state.
func (q *Queue) Get(codename string) (*v1.UpdateRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	req, ok := q.byCodename[codename]
	return req, ok
}

// SetState transitions a known request to a new state.
func (q *Queue) SetState(codename string, state v1.UpdateState) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	req, ok := q.byCodename[codename]
	if !ok {
		return apperrors.NotFound("update request", codename)
	}
	req.State = state
	return nil
}

// Len reports the number of requests still in the Queued position.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// List returns every known request regardless of state, for
// operational visibility (GET /updates).
func (q *Queue) List() []*v1.UpdateRequest {
	q.mu.Lock()
	defer q.mu.Unlock()

	result := make([]*v1.UpdateRequest, 0, len(q.byCodename))
	for _, req := range q.byCodename {
		result = append(result, req)
	}
	return result
}

// AcquireExecutionLock blocks until the system-wide single-update lock
// is available or ctx is cancelled. Only one holder at a time: the
// Executor takes it when a request leaves AwaitingApproval, so Planning
// and AwaitingApproval are not covered and several requests can be
// planned or parked while another executes.
func (q *Queue) AcquireExecutionLock(ctx context.Context) (release func(), err error) {
	select {
	case <-q.executionLock:
		return func() { q.executionLock <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cleanup removes terminal requests submitted before cutoff (default
// retention: 7 days), returning the count removed.
func (q *Queue) Cleanup(cutoff time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for codename, req := range q.byCodename {
		if req.State.IsTerminal() && req.SubmittedAt.Before(cutoff) {
			delete(q.byCodename, codename)
			removed++
		}
	}
	return removed
}
