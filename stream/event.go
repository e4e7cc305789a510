// Package stream holds the push based primitives actions are built on:
// events, observers, deferred producers and long lived broadcast signals.
package stream

import "fmt"

// Kind identifies the payload carried by an Event.
type Kind int

const (
	KindValue Kind = iota
	KindFailed
	KindCompleted
	KindInterrupted
)

func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindFailed:
		return "failed"
	case KindCompleted:
		return "completed"
	case KindInterrupted:
		return "interrupted"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is a single notification. A stream sends zero or more value
// events followed by at most one terminal event.
type Event[V any] struct {
	Kind  Kind
	Value V
	Err   error
}

func Value[V any](v V) Event[V] {
	return Event[V]{Kind: KindValue, Value: v}
}

func Failed[V any](err error) Event[V] {
	return Event[V]{Kind: KindFailed, Err: err}
}

func Completed[V any]() Event[V] {
	return Event[V]{Kind: KindCompleted}
}

func Interrupted[V any]() Event[V] {
	return Event[V]{Kind: KindInterrupted}
}

// IsTerminal reports whether no event may follow e.
func (e Event[V]) IsTerminal() bool {
	return e.Kind != KindValue
}

func (e Event[V]) String() string {
	switch e.Kind {
	case KindValue:
		return fmt.Sprintf("value(%v)", e.Value)
	case KindFailed:
		return fmt.Sprintf("failed(%v)", e.Err)
	default:
		return e.Kind.String()
	}
}

// MapEvent converts the value payload of e, keeping terminal events as is.
func MapEvent[A, B any](e Event[A], fn func(A) B) Event[B] {
	switch e.Kind {
	case KindValue:
		return Value(fn(e.Value))
	case KindFailed:
		return Failed[B](e.Err)
	case KindCompleted:
		return Completed[B]()
	default:
		return Interrupted[B]()
	}
}

// Observer receives events. Observers attached to one Sink or Hub are
// never invoked concurrently.
type Observer[V any] func(Event[V])

// Discard is an observer that ignores everything.
func Discard[V any](Event[V]) {}
