package worker

import "sync"

// jobQueue is a thread-safe FIFO of pending jobs.
//
// HTTP handlers enqueue from many goroutines; the worker's Run loop is the
// only consumer. A buffered signal channel lets Run wait with a select on
// its context instead of blocking forever.
type jobQueue struct {
	mu     sync.Mutex
	jobs   []Job
	limit  int
	closed bool
	signal chan struct{} // Signals job availability (buffered, size 1)
}

// newJobQueue creates an empty queue. limit <= 0 means unbounded.
func newJobQueue(limit int) *jobQueue {
	return &jobQueue{
		jobs:   make([]Job, 0, 64),
		limit:  limit,
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a job to the back of the queue.
// Returns false if the queue is closed or full.
func (q *jobQueue) Enqueue(j Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if q.limit > 0 && len(q.jobs) >= q.limit {
		return false
	}

	q.jobs = append(q.jobs, j)

	// Non-blocking: a buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes and returns the front job without blocking.
// Returns (Job{}, false) if the queue is empty.
func (q *jobQueue) TryDequeue() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return Job{}, false
	}

	j := q.jobs[0]

	// Clear the slot so the event payload can be collected.
	q.jobs[0] = Job{}

	if len(q.jobs) == 1 {
		q.jobs = q.jobs[:0]
	} else {
		q.jobs = q.jobs[1:]
	}

	return j, true
}

// Wait returns a channel that signals when jobs may be available.
// The channel is closed when the queue is closed.
func (q *jobQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *jobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Drained reports whether the queue is closed and empty.
func (q *jobQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.jobs) == 0
}

// Close stops further enqueues and wakes any waiter. Jobs already queued
// stay queued.
func (q *jobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
