// Package memory implements the in-process job queue. The queue is the only
// transport between dispatch and the background processor; jobs never leave
// the process.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fairyhunter13/agent-orchestrator/internal/domain"
)

// peekWindow bounds how far the prioritized dequeue looks into the backlog.
// Within the window the highest priority wins; ties keep arrival order.
const peekWindow = 10

// Queue is a mutex-guarded slice with channel signalling so that blocked
// producers and consumers honor context cancellation. A capacity of zero
// means unbounded; otherwise Enqueue blocks while the queue is full.
type Queue struct {
	mu          sync.Mutex
	items       []*domain.Job
	capacity    int
	prioritized bool
	closed      bool

	notEmpty chan struct{}
	notFull  chan struct{}
	done     chan struct{}
}

// New creates a queue. capacity <= 0 means unbounded.
func New(capacity int, prioritized bool) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		capacity:    capacity,
		prioritized: prioritized,
		notEmpty:    make(chan struct{}, 1),
		notFull:     make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
}

// Enqueue appends the job, stamping its EnqueuedAt so queue wait time is
// measured from this enqueue (a retry re-enqueue restarts the clock). Blocks
// while a bounded queue is full until space frees, the context ends, or the
// queue closes.
func (q *Queue) Enqueue(ctx context.Context, job *domain.Job) error {
	if job == nil {
		return fmt.Errorf("op=queue.Enqueue: nil job: %w", domain.ErrInvalidArgument)
	}
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return fmt.Errorf("op=queue.Enqueue: %w", domain.ErrQueueClosed)
		}
		if q.capacity == 0 || len(q.items) < q.capacity {
			job.EnqueuedAt = time.Now()
			q.items = append(q.items, job)
			q.signal(q.notEmpty)
			q.mu.Unlock()
			return nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return fmt.Errorf("op=queue.Enqueue: %w: %w", domain.ErrQueueFull, ctx.Err())
		case <-q.notFull:
		case <-q.done:
			return fmt.Errorf("op=queue.Enqueue: %w", domain.ErrQueueClosed)
		}
	}
}

// Dequeue removes and returns the next job. After Close the backlog keeps
// draining; ErrQueueClosed is returned once it is empty.
func (q *Queue) Dequeue(ctx context.Context) (*domain.Job, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			job := q.take()
			if len(q.items) > 0 {
				// more waiting consumers may exist than signals sent
				q.signal(q.notEmpty)
			}
			q.signal(q.notFull)
			q.mu.Unlock()
			return job, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, fmt.Errorf("op=queue.Dequeue: %w", domain.ErrQueueClosed)
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("op=queue.Dequeue: %w", ctx.Err())
		case <-q.notEmpty:
		case <-q.done:
			// re-check: drain any backlog before reporting closed
		}
	}
}

// take picks the next job under q.mu. FIFO unless prioritization is on, in
// which case the highest priority within the peek window wins and a strict
// comparison keeps arrival order among equals.
func (q *Queue) take() *domain.Job {
	idx := 0
	if q.prioritized {
		window := len(q.items)
		if window > peekWindow {
			window = peekWindow
		}
		for i := 1; i < window; i++ {
			if q.items[i].Priority > q.items[idx].Priority {
				idx = i
			}
		}
	}
	job := q.items[idx]
	q.items = append(q.items[:idx], q.items[idx+1:]...)
	return job
}

// Len reports the current backlog depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further enqueues and wakes all blocked callers. Idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func (q *Queue) signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
