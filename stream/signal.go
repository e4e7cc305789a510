package stream

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/goliatone/go-action/internal/serial"
)

// Signal is a hot stream: observers see the events sent after they attach.
type Signal[V any] interface {
	Observe(observer Observer[V]) Disposable
}

type hubEntry[V any] struct {
	observer Observer[V]
	active   atomic.Bool
}

// Hub is a broadcast point. Any number of senders may emit into it and
// observers attach and detach freely. Delivery is serialized: observers
// are never called concurrently and always outside the hub lock.
type Hub[V any] struct {
	mu       sync.Mutex
	queue    serial.Queue
	entries  map[uint64]*hubEntry[V]
	nextID   uint64
	terminal *Event[V]
}

func NewHub[V any]() *Hub[V] {
	return &Hub[V]{
		entries: make(map[uint64]*hubEntry[V]),
	}
}

// Observe attaches observer. Observing a terminated hub delivers a single
// interrupted event.
func (h *Hub[V]) Observe(observer Observer[V]) Disposable {
	if observer == nil {
		observer = Discard[V]
	}

	h.mu.Lock()
	if h.terminal != nil {
		drain := h.queue.Enqueue(func() { observer(Interrupted[V]()) })
		h.mu.Unlock()
		if drain {
			h.queue.Drain()
		}
		return NewDisposable(nil)
	}

	h.nextID++
	id := h.nextID
	entry := &hubEntry[V]{observer: observer}
	entry.active.Store(true)
	drain := h.queue.Enqueue(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if entry.active.Load() {
			h.entries[id] = entry
		}
	})
	h.mu.Unlock()

	if drain {
		h.queue.Drain()
	}

	return NewDisposable(func() {
		entry.active.Store(false)
		h.mu.Lock()
		delete(h.entries, id)
		h.mu.Unlock()
	})
}

// Emit broadcasts ev. After a terminal event the hub drops everything.
func (h *Hub[V]) Emit(ev Event[V]) {
	h.mu.Lock()
	if h.terminal != nil {
		h.mu.Unlock()
		return
	}
	if ev.IsTerminal() {
		t := ev
		h.terminal = &t
	}
	drain := h.queue.Enqueue(func() { h.deliver(ev) })
	h.mu.Unlock()

	if drain {
		h.queue.Drain()
	}
}

func (h *Hub[V]) Send(v V) {
	h.Emit(Value(v))
}

// Close completes the hub and detaches every observer.
func (h *Hub[V]) Close() {
	h.Emit(Completed[V]())
}

func (h *Hub[V]) IsClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.terminal != nil
}

func (h *Hub[V]) deliver(ev Event[V]) {
	h.mu.Lock()
	entries := make([]*hubEntry[V], 0, len(h.entries))
	ids := make([]uint64, 0, len(h.entries))
	for id := range h.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		entries = append(entries, h.entries[id])
	}
	if ev.IsTerminal() {
		h.entries = make(map[uint64]*hubEntry[V])
	}
	h.mu.Unlock()

	for _, e := range entries {
		if e.active.Load() {
			e.observer(ev)
		}
	}
}

type filterMapSignal[A, B any] struct {
	source Signal[A]
	fn     func(A) (B, bool)
}

// FilterMap derives a signal carrying fn's output for every source value
// fn accepts. Terminal events pass through.
func FilterMap[A, B any](source Signal[A], fn func(A) (B, bool)) Signal[B] {
	return &filterMapSignal[A, B]{source: source, fn: fn}
}

func (s *filterMapSignal[A, B]) Observe(observer Observer[B]) Disposable {
	if observer == nil {
		observer = Discard[B]
	}
	return s.source.Observe(func(ev Event[A]) {
		if ev.Kind != KindValue {
			observer(MapEvent(ev, func(A) B {
				var zero B
				return zero
			}))
			return
		}
		if out, ok := s.fn(ev.Value); ok {
			observer(Value(out))
		}
	})
}

// ObserveValues attaches fn to the value events of s.
func ObserveValues[V any](s Signal[V], fn func(V)) Disposable {
	return s.Observe(func(ev Event[V]) {
		if ev.Kind == KindValue {
			fn(ev.Value)
		}
	})
}
