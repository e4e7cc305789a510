package stream

import (
	"sync"

	"github.com/goliatone/go-action/internal/serial"
)

// Sink is the sending side handed to a producer. It enforces the event
// grammar: after the first terminal event everything else is dropped.
// Events are delivered to the observer in send order, outside any lock.
type Sink[V any] struct {
	mu         sync.Mutex
	queue      serial.Queue
	observer   Observer[V]
	terminated bool
	hooks      []func()
}

func newSink[V any](observer Observer[V]) *Sink[V] {
	if observer == nil {
		observer = Discard[V]
	}
	return &Sink[V]{observer: observer}
}

func (s *Sink[V]) Send(v V) {
	s.Emit(Value(v))
}

func (s *Sink[V]) Fail(err error) {
	s.Emit(Failed[V](err))
}

func (s *Sink[V]) Complete() {
	s.Emit(Completed[V]())
}

func (s *Sink[V]) Interrupt() {
	s.Emit(Interrupted[V]())
}

// Emit forwards ev to the observer. Termination hooks run on the
// emitting goroutine before the terminal event is delivered.
func (s *Sink[V]) Emit(ev Event[V]) {
	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		return
	}

	var hooks []func()
	if ev.IsTerminal() {
		s.terminated = true
		hooks = s.hooks
		s.hooks = nil
	}
	observer := s.observer
	drain := s.queue.Enqueue(func() { observer(ev) })
	s.mu.Unlock()

	for _, hook := range hooks {
		hook()
	}
	if drain {
		s.queue.Drain()
	}
}

// OnTerminate registers fn to run once when the sink terminates. On an
// already terminated sink fn runs immediately.
func (s *Sink[V]) OnTerminate(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		fn()
		return
	}
	s.hooks = append(s.hooks, fn)
	s.mu.Unlock()
}

func (s *Sink[V]) IsTerminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}
