package action

import (
	"github.com/goliatone/go-action/property"
	"github.com/goliatone/go-action/stream"
)

// state is the record kept in an action's cell.
type state[V any] struct {
	executing bool
	value     V
	closed    bool
	seeded    bool
}

// gate hides the state type of an action behind its claim protocol.
type gate[I, O any] interface {
	// claim atomically checks enablement and marks the action executing.
	// The returned func binds the captured state and input to the work
	// factory; it must be called after claim returns.
	claim(input I) (func() stream.Producer[O], bool)
	release()
	close()
	executing() property.Property[bool]
	enabled() property.Property[bool]
}

type cell[V, I, O any] struct {
	store     *property.Mutable[state[V]]
	enabledIf func(V) bool
	execute   func(V, I) stream.Producer[O]
	sub       property.Subscription
}

type claimResult[V any] struct {
	value V
	ok    bool
}

func newCell[V, I, O any](source property.Property[V], enabledIf func(V) bool, execute func(V, I) stream.Producer[O]) *cell[V, I, O] {
	if source == nil {
		var zero V
		source = property.Constant(zero)
	}
	if enabledIf == nil {
		enabledIf = func(V) bool { return true }
	}

	c := &cell[V, I, O]{
		store:     property.NewMutable(state[V]{}),
		enabledIf: enabledIf,
		execute:   execute,
	}

	initial, sub := source.Subscribe(func(v V) {
		c.store.Modify(func(s *state[V]) {
			s.value = v
			s.seeded = true
		})
	})
	c.sub = sub

	// a value delivered before this point is newer than initial
	c.store.Modify(func(s *state[V]) {
		if !s.seeded {
			s.value = initial
			s.seeded = true
		}
	})
	return c
}

func (c *cell[V, I, O]) isEnabled(s state[V]) bool {
	return !s.closed && !s.executing && c.enabledIf(s.value)
}

func (c *cell[V, I, O]) claim(input I) (func() stream.Producer[O], bool) {
	res := property.ModifyResult(c.store, func(s *state[V]) claimResult[V] {
		if !c.isEnabled(*s) {
			return claimResult[V]{}
		}
		s.executing = true
		return claimResult[V]{value: s.value, ok: true}
	})
	if !res.ok {
		return nil, false
	}

	return func() stream.Producer[O] {
		if c.execute == nil {
			return stream.Failure[O](ErrNoWork.Clone())
		}
		return c.execute(res.value, input)
	}, true
}

func (c *cell[V, I, O]) release() {
	c.store.Modify(func(s *state[V]) {
		s.executing = false
	})
}

func (c *cell[V, I, O]) close() {
	if c.sub != nil {
		c.sub.Unsubscribe()
	}
	c.store.Modify(func(s *state[V]) {
		s.closed = true
	})
}

func (c *cell[V, I, O]) executing() property.Property[bool] {
	return property.Map[state[V], bool](c.store, func(s state[V]) bool {
		return s.executing
	})
}

func (c *cell[V, I, O]) enabled() property.Property[bool] {
	return property.Map[state[V], bool](c.store, c.isEnabled)
}
