package engine

import "sync"

// outcome is the result of one submission.
type outcome struct {
	receipt Receipt
	err     error
}

// submission is one raw event waiting for an ingestion worker.
type submission struct {
	raw []byte

	// done receives exactly one outcome. nil for SubmitAsync.
	done chan outcome
}

// answer delivers the outcome to a waiting Submit, if any.
func (s *submission) answer(r Receipt, err error) {
	if s.done != nil {
		s.done <- outcome{receipt: r, err: err}
	}
}

// submitQueue is a thread-safe FIFO queue of submissions.
//
// The queue is unbounded so SubmitAsync never blocks the caller.
//
// Workers dequeue with TryDequeue and wait on Wait(). The signal channel
// has a buffer of one, so a dequeue that leaves items behind re-signals to
// wake the next idle worker.
type submitQueue struct {
	mu     sync.Mutex
	items  []*submission
	closed bool
	signal chan struct{} // Signals item availability (buffered, size 1)
}

// newSubmitQueue creates an empty queue.
func newSubmitQueue() *submitQueue {
	return &submitQueue{
		items:  make([]*submission, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a submission to the back of the queue.
// Returns false if the queue is closed.
func (q *submitQueue) Enqueue(s *submission) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, s)
	q.notify()
	return true
}

// notify signals availability without blocking. Caller holds q.mu.
func (q *submitQueue) notify() {
	if q.closed {
		return
	}
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// TryDequeue removes the front submission without blocking.
// Returns (nil, false) if the queue is empty.
func (q *submitQueue) TryDequeue() (*submission, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}

	s := q.items[0]

	// CRITICAL: Nil out the slot so the raw payload can be collected.
	q.items[0] = nil
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
		q.notify()
	}
	return s, true
}

// Wait returns a channel that signals when submissions may be available.
// The channel is closed once the queue is closed.
func (q *submitQueue) Wait() <-chan struct{} {
	return q.signal
}

// Drained reports whether the queue is closed and empty.
func (q *submitQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.items) == 0
}

// Len returns the current queue length.
func (q *submitQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops further enqueues and wakes every waiter. Items already queued
// are still handed out.
func (q *submitQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
