package pipeline

import (
	"errors"
	"log/slog"
	"sync"
)

var (
	// ErrQueueClosed is returned when Enqueue is called after Close.
	ErrQueueClosed = errors.New("pipeline: queue closed")
)

// DefaultConcurrency is the number of worker loops used when none is given.
const DefaultConcurrency = 4

// Task is a unit of work run by a queue worker.
type Task func()

// Queue runs enqueued tasks on at most concurrency worker loops and calls
// onDrain once the queue has been closed and every task has finished.
//
// The pending tasks, the active worker count and the closed/fired flags are
// all guarded by mu. The drain check and the worker count decrement happen
// under the same lock, so exactly one worker (or Close) can observe the
// queue going idle and fire onDrain.
type Queue struct {
	concurrency int
	onDrain     func()

	mu      sync.Mutex
	pending []Task
	active  int
	closed  bool
	fired   bool

	done chan struct{}
}

// NewQueue builds a queue. A non-positive concurrency falls back to
// DefaultConcurrency; a nil onDrain is allowed.
func NewQueue(concurrency int, onDrain func()) *Queue {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Queue{
		concurrency: concurrency,
		onDrain:     onDrain,
		done:        make(chan struct{}),
	}
}

// Enqueue appends a task and starts a worker loop if fewer than the
// configured number are running.
func (q *Queue) Enqueue(task Task) error {
	if task == nil {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	q.pending = append(q.pending, task)
	if q.active < q.concurrency {
		q.active++
		go q.worker()
	}
	return nil
}

// Close stops accepting tasks. The drain callback fires once the remaining
// tasks finish, or right away if the queue is already idle.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	fire := q.drainedLocked()
	q.mu.Unlock()

	if fire {
		q.fire()
	}
}

// Done is closed after the drain callback has returned.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Wait blocks until the queue has drained.
func (q *Queue) Wait() {
	<-q.done
}

// Stats reports the number of pending tasks and active worker loops.
func (q *Queue) Stats() (pending, active int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending), q.active
}

func (q *Queue) worker() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.active--
			fire := q.drainedLocked()
			q.mu.Unlock()
			if fire {
				q.fire()
			}
			return
		}
		task := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.run(task)
	}
}

func (q *Queue) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("queue task panicked", slog.Any("panic", r))
		}
	}()
	task()
}

// drainedLocked reports whether this caller is the one that must fire the
// drain callback, and marks it fired if so. q.mu must be held.
func (q *Queue) drainedLocked() bool {
	if !q.closed || q.fired || q.active != 0 || len(q.pending) != 0 {
		return false
	}
	q.fired = true
	return true
}

func (q *Queue) fire() {
	defer close(q.done)
	if q.onDrain != nil {
		q.onDrain()
	}
}
