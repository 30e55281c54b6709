// Package queue implements the priority task queue: a heap keyed by
// (-priority, submit_seq) with a secondary duplicate-suppression index
// over Pending tasks.
package queue

import (
	"container/heap"
	"errors"
	"sync"

	v1 "github.com/driftcode/orchestra/pkg/api/v1"
)

var (
	// ErrQueueFull is returned when the queue is at max capacity.
	ErrQueueFull = errors.New("queue is full")
	// ErrDuplicateTask is returned when an identical (kind, content) task
	// is already Pending.
	ErrDuplicateTask = errors.New("an identical task is already pending")
)

// taskHeap implements heap.Interface, ordering by (-priority, submit_seq):
// higher priority first, FIFO within a priority tier.
type taskHeap []*v1.Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].SubmitSeq < h[j].SubmitSeq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x interface{}) {
	*h = append(*h, x.(*v1.Task))
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// TaskQueue holds Pending tasks and hands them out in priority order.
// All methods lock internally; no external synchronization is required.
type TaskQueue struct {
	mu        sync.RWMutex
	heap      taskHeap
	byID      map[string]*v1.Task
	byHash  map[string]string // content hash -> task id, Pending only
	maxSize int
	nextSeq uint64
}

// NewTaskQueue creates a queue that rejects Submit once it holds maxSize
// Pending tasks. maxSize <= 0 means unbounded.
func NewTaskQueue(maxSize int) *TaskQueue {
	q := &TaskQueue{
		heap:    make(taskHeap, 0),
		byID:    make(map[string]*v1.Task),
		byHash:  make(map[string]string),
		maxSize: maxSize,
	}
	heap.Init(&q.heap)
	return q
}

// Submit inserts a Pending task, assigning its submit sequence. Fails
// with ErrQueueFull when full, ErrDuplicateTask when an identical
// (kind, content) task is already Pending.
func (q *TaskQueue) Submit(task *v1.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	hash := task.ContentHash()
	if _, exists := q.byHash[hash]; exists {
		return ErrDuplicateTask
	}
	if q.maxSize > 0 && len(q.heap) >= q.maxSize {
		return ErrQueueFull
	}

	q.nextSeq++
	task.SubmitSeq = q.nextSeq

	heap.Push(&q.heap, task)
	q.byID[task.ID] = task
	q.byHash[hash] = task.ID
	return nil
}

// Next atomically pops and returns the highest-priority Pending task,
// or nil if the queue is empty. The caller is responsible for
// transitioning the returned task to InProgress.
func (q *TaskQueue) Next() *v1.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.heap) == 0 {
		return nil
	}

	task := heap.Pop(&q.heap).(*v1.Task)
	delete(q.byID, task.ID)
	delete(q.byHash, task.ContentHash())
	return task
}

// Cancel removes a still-Pending task from the queue. Returns false if
// the task is not present (already dispatched, or unknown).
func (q *TaskQueue) Cancel(taskID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, exists := q.byID[taskID]
	if !exists {
		return false
	}

	for i, t := range q.heap {
		if t.ID == taskID {
			heap.Remove(&q.heap, i)
			break
		}
	}
	delete(q.byID, taskID)
	delete(q.byHash, task.ContentHash())
	return true
}

// Contains reports whether taskID is currently Pending in the queue.
func (q *TaskQueue) Contains(taskID string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	_, exists := q.byID[taskID]
	return exists
}

// Len returns the number of Pending tasks.
func (q *TaskQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return len(q.heap)
}

// IsFull reports whether the queue is at max capacity.
func (q *TaskQueue) IsFull() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.maxSize > 0 && len(q.heap) >= q.maxSize
}

// Snapshot returns a copy of all Pending tasks, in no particular order,
// for diagnostics.
func (q *TaskQueue) Snapshot() []*v1.Task {
	q.mu.RLock()
	defer q.mu.RUnlock()

	result := make([]*v1.Task, len(q.heap))
	copy(result, q.heap)
	return result
}
