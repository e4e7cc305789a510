// Package property provides thread safe observable values.
package property

import (
	"sync"

	"github.com/goliatone/go-action/internal/serial"
)

// Subscription stops the delivery of values.
type Subscription interface {
	Unsubscribe()
}

// Property is a read only observable value.
type Property[V any] interface {
	// Value returns the current value.
	Value() V
	// Subscribe delivers every value set after the returned snapshot to fn.
	// Deliveries are serialized and happen outside any property lock.
	Subscribe(fn func(V)) (V, Subscription)
}

type subscriber[V any] struct {
	fn     func(V)
	active bool
}

// Mutable is a mutex guarded value that broadcasts every change. It is
// the atomic cell actions keep their state in.
type Mutable[V any] struct {
	mu     sync.Mutex
	value  V
	queue  serial.Queue
	subs   map[uint64]*subscriber[V]
	nextID uint64
}

func NewMutable[V any](initial V) *Mutable[V] {
	return &Mutable[V]{
		value: initial,
		subs:  make(map[uint64]*subscriber[V]),
	}
}

func (m *Mutable[V]) Value() V {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value
}

func (m *Mutable[V]) Set(v V) {
	m.Modify(func(cur *V) { *cur = v })
}

// Modify runs fn exactly once under the cell lock. The new value is
// visible to Value before Modify returns; subscribers are notified after
// the lock is released, in modify order. fn must not call back into m.
func (m *Mutable[V]) Modify(fn func(*V)) {
	ModifyResult(m, func(v *V) struct{} {
		fn(v)
		return struct{}{}
	})
}

// ModifyResult is Modify returning whatever fn returns.
func ModifyResult[V, R any](m *Mutable[V], fn func(*V) R) R {
	var (
		result R
		drain  bool
	)
	func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		result = fn(&m.value)
		next := m.value
		drain = m.queue.Enqueue(func() { m.broadcast(next) })
	}()

	if drain {
		m.queue.Drain()
	}
	return result
}

func (m *Mutable[V]) Subscribe(fn func(V)) (V, Subscription) {
	if fn == nil {
		fn = func(V) {}
	}

	m.mu.Lock()
	current := m.value
	m.nextID++
	id := m.nextID
	sub := &subscriber[V]{fn: fn, active: true}
	drain := m.queue.Enqueue(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub.active {
			m.subs[id] = sub
		}
	})
	m.mu.Unlock()

	if drain {
		m.queue.Drain()
	}

	return current, &subscription{unsubscribe: func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		sub.active = false
		delete(m.subs, id)
	}}
}

func (m *Mutable[V]) broadcast(v V) {
	m.mu.Lock()
	subs := make([]*subscriber[V], 0, len(m.subs))
	for _, s := range m.subs {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	for _, s := range subs {
		if m.isActive(s) {
			s.fn(v)
		}
	}
}

func (m *Mutable[V]) isActive(s *subscriber[V]) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return s.active
}

type subscription struct {
	once        sync.Once
	unsubscribe func()
}

func (s *subscription) Unsubscribe() {
	s.once.Do(s.unsubscribe)
}

type constant[V any] struct {
	value V
}

// Constant returns a property that never changes.
func Constant[V any](v V) Property[V] {
	return constant[V]{value: v}
}

func (c constant[V]) Value() V {
	return c.value
}

func (c constant[V]) Subscribe(func(V)) (V, Subscription) {
	return c.value, &subscription{unsubscribe: func() {}}
}
