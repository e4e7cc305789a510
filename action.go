// Package action provides a serialized command primitive.
//
// An Action wraps a unit of asynchronous work, runs at most one execution
// at a time, derives whether it is enabled from external observable state
// and republishes the results of every execution on long lived signals.
//
//	count := property.NewMutable(5)
//	save := action.NewWithState(count,
//		func(n int) bool { return n > 0 },
//		func(n int, label string) stream.Producer[string] {
//			return stream.Values(fmt.Sprintf("%s:%d", label, n))
//		},
//	)
//	values, err := stream.Collect(ctx, save.Apply("draft"))
package action

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-action/property"
	"github.com/goliatone/go-action/stream"
)

// Action serializes executions of a work factory. The zero value is not
// usable; construct one with New, NewEnabledIf or NewWithState.
type Action[I, O any] struct {
	name        string
	logger      Logger
	panicLogger PanicLogger
	metrics     MetricsRecorder
	newID       func() string

	gate     gate[I, O]
	events   *stream.Hub[stream.Event[O]]
	disabled *stream.Hub[*ActionError]

	values      stream.Signal[O]
	errors      stream.Signal[error]
	completed   stream.Signal[struct{}]
	isExecuting property.Property[bool]
	isEnabled   property.Property[bool]

	closeOnce sync.Once
}

// NewWithState creates an action enabled while enabledIf holds for the
// latest value of state and no execution is running. execute receives the
// state value the predicate accepted for that attempt.
func NewWithState[V, I, O any](
	state property.Property[V],
	enabledIf func(V) bool,
	execute func(V, I) stream.Producer[O],
	opts ...Option,
) *Action[I, O] {
	return newAction[I, O](newCell(state, enabledIf, execute), opts)
}

// NewEnabledIf creates an action enabled while enabled is true and no
// execution is running.
func NewEnabledIf[I, O any](enabled property.Property[bool], execute func(I) stream.Producer[O], opts ...Option) *Action[I, O] {
	return NewWithState(enabled,
		func(ok bool) bool { return ok },
		bindInput[bool](execute),
		opts...,
	)
}

// New creates an action that is enabled whenever it is idle.
func New[I, O any](execute func(I) stream.Producer[O], opts ...Option) *Action[I, O] {
	return NewWithState(property.Constant(struct{}{}),
		func(struct{}) bool { return true },
		bindInput[struct{}](execute),
		opts...,
	)
}

func bindInput[V, I, O any](execute func(I) stream.Producer[O]) func(V, I) stream.Producer[O] {
	if execute == nil {
		return nil
	}
	return func(_ V, input I) stream.Producer[O] {
		return execute(input)
	}
}

func newAction[I, O any](g gate[I, O], opts []Option) *Action[I, O] {
	cfg := newConfig(opts)

	a := &Action[I, O]{
		name:        cfg.name,
		logger:      withLoggerFields(cfg.logger, map[string]any{"action": cfg.name}),
		panicLogger: cfg.panicLogger,
		metrics:     cfg.metrics,
		newID:       cfg.newID,
		gate:        g,
		events:      stream.NewHub[stream.Event[O]](),
		disabled:    stream.NewHub[*ActionError](),
		isExecuting: g.executing(),
		isEnabled:   g.enabled(),
	}

	a.values = stream.FilterMap(stream.Signal[stream.Event[O]](a.events), func(ev stream.Event[O]) (O, bool) {
		return ev.Value, ev.Kind == stream.KindValue
	})
	a.errors = stream.FilterMap(stream.Signal[stream.Event[O]](a.events), func(ev stream.Event[O]) (error, bool) {
		return ev.Err, ev.Kind == stream.KindFailed
	})
	a.completed = stream.FilterMap(stream.Signal[stream.Event[O]](a.events), func(ev stream.Event[O]) (struct{}, bool) {
		return struct{}{}, ev.Kind == stream.KindCompleted
	})

	return a
}

func (a *Action[I, O]) Name() string {
	return a.name
}

// Events carries every event of every execution, in per-execution order.
// Rejected attempts never show up here.
func (a *Action[I, O]) Events() stream.Signal[stream.Event[O]] {
	return a.events
}

// Values carries the values produced by every execution.
func (a *Action[I, O]) Values() stream.Signal[O] {
	return a.values
}

// Errors carries the unwrapped failure of every failed execution.
func (a *Action[I, O]) Errors() stream.Signal[error] {
	return a.errors
}

// Completed sends one signal per execution that completed normally.
func (a *Action[I, O]) Completed() stream.Signal[struct{}] {
	return a.completed
}

// DisabledErrors sends one error per attempt rejected while disabled.
func (a *Action[I, O]) DisabledErrors() stream.Signal[*ActionError] {
	return a.disabled
}

func (a *Action[I, O]) IsExecuting() property.Property[bool] {
	return a.isExecuting
}

func (a *Action[I, O]) IsEnabled() property.Property[bool] {
	return a.isEnabled
}

// Apply returns a producer that attempts one execution per Start.
//
// An attempt made while the action is disabled fails with an ActionError
// of kind ErrorKindDisabled. Otherwise the work runs and its events are
// relayed to the caller, with failures wrapped as ErrorKindWorkFailed, and
// to Events unwrapped. Disposing the started stream, or cancelling its
// context, interrupts the work and frees the action right away.
func (a *Action[I, O]) Apply(input I) stream.Producer[O] {
	return stream.NewProducer(func(ctx context.Context, sink *stream.Sink[O]) {
		work, ok := a.gate.claim(input)
		if !ok {
			a.reject(sink)
			return
		}
		a.run(ctx, sink, work)
	})
}

// Consume starts Apply(input) and ignores the outcome.
func (a *Action[I, O]) Consume(input I) {
	a.Apply(input).Start(context.Background(), nil)
}

// Close completes every signal of the action and stops following its
// state. Executions still running are left to finish, but their events
// are no longer published. Attempts after Close are rejected.
func (a *Action[I, O]) Close() {
	a.closeOnce.Do(func() {
		a.gate.close()
		a.events.Close()
		a.disabled.Close()
		a.logger.Debug("action closed")
	})
}

func (a *Action[I, O]) reject(sink *stream.Sink[O]) {
	err := newDisabledError(a.name)
	a.logger.Debug("attempt rejected: action disabled")
	a.metrics.RecordDisabled(a.name)
	a.disabled.Send(err)
	sink.Fail(err)
}

func (a *Action[I, O]) run(ctx context.Context, sink *stream.Sink[O], work func() stream.Producer[O]) {
	id := a.newID()
	logger := withLoggerFields(a.logger, map[string]any{"execution_id": id})
	logger.Debug("execution started")

	started := time.Now()
	var releaseOnce sync.Once
	release := func(kind stream.Kind) {
		releaseOnce.Do(func() {
			a.gate.release()
			a.record(kind, time.Since(started))
		})
	}

	fwd := &relay[O]{
		forward: func(ev stream.Event[O]) {
			if ev.IsTerminal() {
				release(ev.Kind)
				a.logOutcome(logger, ev)
			}
			a.events.Send(ev)
			sink.Emit(a.wrapEvent(ev))
		},
	}

	d, err := a.start(ctx, work, fwd.observe, map[string]any{"execution_id": id})
	if err != nil {
		fwd.observe(stream.Failed[O](err))
		return
	}

	sink.OnTerminate(func() {
		d.Dispose()
		release(stream.KindInterrupted)
	})
}

// start invokes the work factory and starts its stream, turning a panic
// in either step into an error.
func (a *Action[I, O]) start(ctx context.Context, work func() stream.Producer[O], observer stream.Observer[O], fields map[string]any) (d stream.Disposable, err error) {
	defer func() {
		if r := recover(); r != nil {
			d = nil
			err = panicError(a.panicLogger, a.name, r, fields)
		}
	}()
	return work().Start(ctx, observer), nil
}

func (a *Action[I, O]) wrapEvent(ev stream.Event[O]) stream.Event[O] {
	if ev.Kind == stream.KindFailed {
		return stream.Failed[O](newWorkFailedError(a.name, ev.Err))
	}
	return ev
}

func (a *Action[I, O]) record(kind stream.Kind, elapsed time.Duration) {
	a.metrics.RecordDuration(a.name, elapsed)
	switch kind {
	case stream.KindCompleted:
		a.metrics.RecordSuccess(a.name)
	case stream.KindFailed:
		a.metrics.RecordError(a.name)
	default:
		a.metrics.RecordInterrupted(a.name)
	}
}

func (a *Action[I, O]) logOutcome(logger Logger, ev stream.Event[O]) {
	switch ev.Kind {
	case stream.KindFailed:
		if code := errorCode(ev.Err); code != "" {
			logger = withLoggerFields(logger, map[string]any{"code": code})
		}
		logger.Warn("execution failed: %v", ev.Err)
	case stream.KindInterrupted:
		logger.Debug("execution interrupted")
	default:
		logger.Debug("execution completed")
	}
}

// relay forwards the events of one execution and drops anything after the
// first terminal event, which can only happen when starting the work
// panicked after it had begun sending.
type relay[O any] struct {
	mu      sync.Mutex
	done    bool
	forward func(stream.Event[O])
}

func (r *relay[O]) observe(ev stream.Event[O]) {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return
	}
	if ev.IsTerminal() {
		r.done = true
	}
	r.mu.Unlock()

	r.forward(ev)
}
