// Package queue provides the unbounded FIFO handoff used between pipeline
// stages. Producers never block; consumers suspend until an item arrives or
// their context is cancelled.
package queue

import (
	"context"
	"sync"
)

// Queue is a FIFO queue safe for concurrent producers and consumers.
// An item removed by Dequeue is the consumer's responsibility: the queue
// never re-queues it, recovery after a crash is the resumption routine's job.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	ready chan struct{}
}

func New[T any]() *Queue[T] {
	return &Queue[T]{ready: make(chan struct{}, 1)}
}

// Enqueue appends an item. It never blocks.
func (q *Queue[T]) Enqueue(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.signal()
}

// Dequeue removes and returns the oldest item, blocking until one is
// available or ctx is cancelled, in which case it returns the ctx error.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			remaining := len(q.items)
			q.mu.Unlock()
			if remaining > 0 {
				// Wake the next waiter, the ready token was consumed by us.
				q.signal()
			}
			return item, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-q.ready:
		}
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
