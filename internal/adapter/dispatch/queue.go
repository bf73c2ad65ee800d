// Package dispatch schedules queued operations onto healthy accounts
// under a concurrency cap, retrying transient upstream failures.
package dispatch

import (
	"sync"

	"github.com/kestrelworks/aviary/internal/core/domain"
)

// PriorityQueue is a bounded three-level queue. Each level is FIFO and a
// dequeue drains higher levels first, so a request admitted earlier never
// starts after one admitted later at the same level. Admission fails
// synchronously once the combined depth reaches capacity.
type PriorityQueue struct {
	mu      sync.Mutex
	buckets [3][]*pendingRequest
	depth   int
	maxSize int
}

func NewPriorityQueue(maxSize int) *PriorityQueue {
	return &PriorityQueue{maxSize: maxSize}
}

// Enqueue admits a request at its priority, or fails with
// domain.ErrQueueFull when the queue is at capacity.
func (q *PriorityQueue) Enqueue(req *pendingRequest) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.depth >= q.maxSize {
		return domain.ErrQueueFull
	}
	q.buckets[req.priority] = append(q.buckets[req.priority], req)
	q.depth++
	return nil
}

// Dequeue pops the oldest request from the highest non-empty level, or
// nil when the queue is empty.
func (q *PriorityQueue) Dequeue() *pendingRequest {
	q.mu.Lock()
	defer q.mu.Unlock()

	for level := range q.buckets {
		bucket := q.buckets[level]
		if len(bucket) == 0 {
			continue
		}
		req := bucket[0]
		bucket[0] = nil
		q.buckets[level] = bucket[1:]
		q.depth--
		return req
	}
	return nil
}

// Len returns the combined depth across all levels.
func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.depth
}

// Cap returns the configured capacity.
func (q *PriorityQueue) Cap() int {
	return q.maxSize
}
