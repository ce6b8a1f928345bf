package engine

import (
	"sync"

	"github.com/ADITIII0201/kith/internal/replica"
)

// taskKind distinguishes between queued task kinds.
type taskKind int

const (
	// taskChange is a local mutation of the replicated document.
	taskChange taskKind = iota + 1
	// taskRemote is a batch of raw remote deltas to merge.
	taskRemote
)

// task is one unit of work for the engine loop.
type task struct {
	Kind taskKind

	// Op names the originating intent for logs.
	Op string

	// Change mutates the document. Set for taskChange.
	Change func(*replica.Change)

	// Remote holds encoded deltas in receipt order. Set for taskRemote.
	Remote [][]byte
}

// taskQueue is a thread-safe FIFO queue for engine tasks.
//
// The queue is unbounded so a burst of remote deltas never blocks the
// session's read loop. Enqueuing is safe from any goroutine; only the
// engine's Run loop dequeues.
//
// A buffered signal channel lets the Run loop wait for work and context
// cancellation in one select.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []task
	closed bool
	signal chan struct{}
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		tasks:  make([]task, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a task to the back of the queue. Returns false once the
// queue is closed.
func (q *taskQueue) Enqueue(t task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, t)

	// Coalesce signals; one pending signal is enough.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front task without blocking.
func (q *taskQueue) TryDequeue() (task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return task{}, false
	}
	t := q.tasks[0]

	// Clear the slot so the task's closures and buffers can be
	// collected while the backing array lives on.
	q.tasks[0] = task{}
	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
	}
	return t, true
}

// Wait returns a channel that fires when work may be available. The
// channel is closed when the queue closes, so waiters always wake.
func (q *taskQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Closed reports whether Close has been called.
func (q *taskQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close marks the queue finished and wakes all waiters. Tasks already
// queued still drain.
func (q *taskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
