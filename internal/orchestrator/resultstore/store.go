// Package resultstore holds completed and failed task results in
// memory, keyed by task id, with reader-writer locking and TTL-based
// cleanup.
package resultstore

import (
	"errors"
	"sync"
	"time"

	v1 "github.com/driftcode/orchestra/pkg/api/v1"
)

var (
	// ErrAlreadyCompleted is returned when Put is called again for a
	// task id that already holds a result.
	ErrAlreadyCompleted = errors.New("task already has a recorded result")
	// ErrNotFound is returned when Get finds no result for the task id.
	ErrNotFound = errors.New("no result recorded for task")
)

type entry struct {
	result    *v1.TaskResult
	storedAt  time.Time
}

// Store holds at most one TaskResult per task id.
type Store struct {
	mu      sync.RWMutex
	results map[string]*entry
}

// New creates an empty result store.
func New() *Store {
	return &Store{results: make(map[string]*entry)}
}

// Put records a result for a task. Re-recording a result for a task
// that already has one fails with ErrAlreadyCompleted — results are
// write-once.
func (s *Store) Put(taskID string, result *v1.TaskResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.results[taskID]; exists {
		return ErrAlreadyCompleted
	}
	s.results[taskID] = &entry{result: result, storedAt: time.Now()}
	return nil
}

// Get returns the recorded result for a task, or ErrNotFound.
func (s *Store) Get(taskID string) (*v1.TaskResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.results[taskID]
	if !exists {
		return nil, ErrNotFound
	}
	return e.result, nil
}

// Cleanup drops results stored before the cutoff, returning the number
// removed.
func (s *Store) Cleanup(olderThan time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.results {
		if e.storedAt.Before(olderThan) {
			delete(s.results, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored results, for diagnostics.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}
