// Package queue provides the bounded FIFO of pending fan-out tasks shared by
// the dispatcher (producer) and the worker pool (consumers).
package queue

import "context"

// Queue is a bounded FIFO safe for concurrent producers and consumers.
type Queue struct {
	tasks chan Task
}

// New creates a queue with the given fixed capacity.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{tasks: make(chan Task, capacity)}
}

// TryEnqueue appends t if the queue has room. It never blocks; a full queue
// returns false so the dispatcher can apply admission control.
func (q *Queue) TryEnqueue(t Task) bool {
	select {
	case q.tasks <- t:
		return true
	default:
		return false
	}
}

// Dequeue blocks until a task is available or ctx is done. The second return
// value is false when the wait was cancelled.
func (q *Queue) Dequeue(ctx context.Context) (Task, bool) {
	select {
	case t := <-q.tasks:
		return t, true
	case <-ctx.Done():
		return Task{}, false
	}
}

// Depth returns the number of tasks currently queued.
func (q *Queue) Depth() int { return len(q.tasks) }

// Cap returns the queue's fixed capacity.
func (q *Queue) Cap() int { return cap(q.tasks) }
