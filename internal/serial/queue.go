// Package serial provides an ordered task queue drained by whichever
// goroutine finds it idle. Tasks never run while the queue lock is held,
// so a task may enqueue more work without deadlocking.
package serial

import "sync"

type Queue struct {
	mu      sync.Mutex
	tasks   []func()
	running bool
}

// Enqueue appends fn and reports whether the caller must drain the queue.
// Callers that hold their own lock use Enqueue under it and Drain after
// releasing it, which keeps task order equal to lock order.
func (q *Queue) Enqueue(fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, fn)
	if q.running {
		return false
	}
	q.running = true
	return true
}

// Drain runs queued tasks until the queue is empty. A panicking task
// releases the queue before the panic propagates.
func (q *Queue) Drain() {
	idle := false
	defer func() {
		if !idle {
			q.mu.Lock()
			q.running = false
			q.mu.Unlock()
		}
	}()

	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.running = false
			q.tasks = nil
			q.mu.Unlock()
			idle = true
			return
		}
		fn := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		fn()
	}
}

// Submit enqueues fn and drains if no other goroutine is draining.
func (q *Queue) Submit(fn func()) {
	if q.Enqueue(fn) {
		q.Drain()
	}
}
