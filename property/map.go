package property

import "sync"

type mapped[A any, B comparable] struct {
	source Property[A]
	fn     func(A) B
}

// Map derives a read only view of source. Subscribers only see values that
// differ from the previous one they were given.
func Map[A any, B comparable](source Property[A], fn func(A) B) Property[B] {
	return &mapped[A, B]{source: source, fn: fn}
}

func (m *mapped[A, B]) Value() B {
	return m.fn(m.source.Value())
}

func (m *mapped[A, B]) Subscribe(fn func(B)) (B, Subscription) {
	if fn == nil {
		fn = func(B) {}
	}

	var (
		mu     sync.Mutex
		last   B
		seeded bool
	)
	snapshot, sub := m.source.Subscribe(func(a A) {
		next := m.fn(a)
		mu.Lock()
		if seeded && next == last {
			mu.Unlock()
			return
		}
		last, seeded = next, true
		mu.Unlock()
		fn(next)
	})

	initial := m.fn(snapshot)
	mu.Lock()
	if !seeded {
		last, seeded = initial, true
	}
	mu.Unlock()

	return initial, sub
}
