package delivery

import (
	"context"

	"github.com/carnetapp/carnetd/internal/obs"
)

// DefaultQueueCapacity is the number of outstanding jobs the queue holds
// before producers block.
const DefaultQueueCapacity = 256

// Queue is a bounded FIFO of delivery jobs. Any number of producers may
// enqueue concurrently; a full queue blocks them instead of dropping jobs
// or growing without bound. A single consumer drains it in arrival order.
type Queue struct {
	jobs chan Job
}

// NewQueue creates a queue with the given capacity, or
// DefaultQueueCapacity when capacity is not positive.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{jobs: make(chan Job, capacity)}
}

// Enqueue adds a job, blocking while the queue is full. Returns the
// context's error if it is cancelled before space frees up.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	select {
	case q.jobs <- job:
		obs.QueueDepth.Set(float64(len(q.jobs)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Jobs exposes the receive side for the single consumer.
func (q *Queue) Jobs() <-chan Job {
	return q.jobs
}

// Len returns the number of jobs currently waiting.
func (q *Queue) Len() int {
	return len(q.jobs)
}
