package stream

import (
	"context"
	"errors"
	"sync"
)

// ErrInterrupted is returned by Collect when the stream was interrupted
// without its context being done.
var ErrInterrupted = errors.New("stream interrupted")

// StartFunc does the work of a producer. It may return before the work is
// finished, as long as it eventually sends a terminal event or observes
// ctx, which is cancelled once the stream terminates or is disposed.
type StartFunc[V any] func(ctx context.Context, sink *Sink[V])

// Producer is a deferred recipe for a stream. Nothing happens until Start
// is called and every Start runs the recipe again.
type Producer[V any] struct {
	start StartFunc[V]
}

func NewProducer[V any](start StartFunc[V]) Producer[V] {
	return Producer[V]{start: start}
}

// Start runs the recipe, delivering its events to observer. Disposing the
// result, or cancelling ctx, interrupts the stream and cancels the
// context passed to the recipe.
func (p Producer[V]) Start(ctx context.Context, observer Observer[V]) Disposable {
	if ctx == nil {
		ctx = context.Background()
	}

	runCtx, cancel := context.WithCancel(ctx)
	sink := newSink(observer)
	sink.OnTerminate(cancel)

	d := NewDisposable(sink.Interrupt)
	if ctx.Err() != nil {
		d.Dispose()
		return d
	}
	stop := context.AfterFunc(ctx, d.Dispose)
	sink.OnTerminate(func() { stop() })

	if p.start == nil {
		sink.Complete()
		return d
	}

	p.start(runCtx, sink)
	return d
}

// Values sends vs then completes, synchronously on Start.
func Values[V any](vs ...V) Producer[V] {
	return NewProducer(func(ctx context.Context, sink *Sink[V]) {
		for _, v := range vs {
			if ctx.Err() != nil {
				return
			}
			sink.Send(v)
		}
		sink.Complete()
	})
}

// Failure fails immediately with err.
func Failure[V any](err error) Producer[V] {
	return NewProducer(func(_ context.Context, sink *Sink[V]) {
		sink.Fail(err)
	})
}

// Empty completes immediately.
func Empty[V any]() Producer[V] {
	return NewProducer(func(_ context.Context, sink *Sink[V]) {
		sink.Complete()
	})
}

// Never sends nothing until disposed.
func Never[V any]() Producer[V] {
	return NewProducer(func(context.Context, *Sink[V]) {})
}

// Go runs start on its own goroutine.
func Go[V any](start StartFunc[V]) Producer[V] {
	return NewProducer(func(ctx context.Context, sink *Sink[V]) {
		go start(ctx, sink)
	})
}

// FromFunc runs fn on its own goroutine and sends its single result.
func FromFunc[V any](fn func(ctx context.Context) (V, error)) Producer[V] {
	return Go(func(ctx context.Context, sink *Sink[V]) {
		v, err := fn(ctx)
		if err != nil {
			sink.Fail(err)
			return
		}
		sink.Send(v)
		sink.Complete()
	})
}

// Collect starts p and blocks until it terminates, returning every value.
// A failed stream returns the values received so far and its error.
func Collect[V any](ctx context.Context, p Producer[V]) ([]V, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		mu     sync.Mutex
		values []V
		err    error
	)
	done := make(chan struct{})

	p.Start(ctx, func(ev Event[V]) {
		mu.Lock()
		defer mu.Unlock()
		switch ev.Kind {
		case KindValue:
			values = append(values, ev.Value)
			return
		case KindFailed:
			err = ev.Err
		case KindInterrupted:
			err = ErrInterrupted
			if ctx.Err() != nil {
				err = ctx.Err()
			}
		}
		close(done)
	})

	<-done
	mu.Lock()
	defer mu.Unlock()
	return values, err
}
