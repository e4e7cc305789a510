package action

import (
	"bytes"
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-action/property"
	"github.com/goliatone/go-action/stream"
)

type recorder[V any] struct {
	mu     sync.Mutex
	events []stream.Event[V]
}

func (r *recorder[V]) observe(ev stream.Event[V]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder[V]) snapshot() []stream.Event[V] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]stream.Event[V](nil), r.events...)
}

func (r *recorder[V]) count(kind stream.Kind) int {
	n := 0
	for _, ev := range r.snapshot() {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func quietLogger() Logger {
	return NewFmtLogger(&bytes.Buffer{})
}

func positive(n int) bool { return n > 0 }

func TestApplyRelaysWorkAndPublishesOnSignals(t *testing.T) {
	state := property.NewMutable(5)
	a := NewWithState(state, positive, func(n int, _ string) stream.Producer[int] {
		return stream.Values(n*2, n*4)
	}, WithLogger(quietLogger()))

	var (
		mu       sync.Mutex
		observed []bool
	)
	initial, sub := a.IsExecuting().Subscribe(func(v bool) {
		mu.Lock()
		observed = append(observed, v)
		mu.Unlock()
	})
	defer sub.Unsubscribe()

	values := &recorder[int]{}
	a.Values().Observe(values.observe)
	completed := &recorder[struct{}]{}
	a.Completed().Observe(completed.observe)

	caller := &recorder[int]{}
	a.Apply("input").Start(context.Background(), caller.observe)

	assert.Equal(t, []stream.Event[int]{
		stream.Value(10),
		stream.Value(20),
		stream.Completed[int](),
	}, caller.snapshot())

	assert.Equal(t, []stream.Event[int]{stream.Value(10), stream.Value(20)}, values.snapshot())
	assert.Equal(t, 1, completed.count(stream.KindValue))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{false, true, false}, append([]bool{initial}, observed...))
}

func TestApplyWhileDisabledRejects(t *testing.T) {
	state := property.NewMutable(5)
	var calls atomic.Int32
	a := NewWithState(state, positive, func(n int, _ string) stream.Producer[int] {
		calls.Add(1)
		return stream.Values(n)
	}, WithName("save"), WithLogger(quietLogger()))

	state.Set(-1)
	assert.False(t, a.IsEnabled().Value())

	var executing atomic.Int32
	_, sub := a.IsExecuting().Subscribe(func(bool) { executing.Add(1) })
	defer sub.Unsubscribe()

	events := &recorder[stream.Event[int]]{}
	a.Events().Observe(events.observe)
	disabled := &recorder[*ActionError]{}
	a.DisabledErrors().Observe(disabled.observe)

	caller := &recorder[int]{}
	a.Apply("anything").Start(context.Background(), caller.observe)

	got := caller.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, stream.KindFailed, got[0].Kind)
	assert.True(t, IsDisabled(got[0].Err))
	assert.ErrorIs(t, got[0].Err, ErrDisabled)

	var ae *ActionError
	require.True(t, stderrors.As(got[0].Err, &ae))
	assert.Equal(t, "save", ae.Action)

	assert.Equal(t, 1, disabled.count(stream.KindValue))
	assert.Empty(t, events.snapshot())
	assert.Zero(t, executing.Load())
	assert.False(t, a.IsExecuting().Value())
	assert.Zero(t, calls.Load())
}

func TestApplyFollowsStateChanges(t *testing.T) {
	state := property.NewMutable(-1)
	a := NewWithState(state, positive, func(n int, _ struct{}) stream.Producer[int] {
		return stream.Values(n)
	}, WithLogger(quietLogger()))

	var enabled []bool
	_, sub := a.IsEnabled().Subscribe(func(v bool) { enabled = append(enabled, v) })
	defer sub.Unsubscribe()

	_, err := stream.Collect(context.Background(), a.Apply(struct{}{}))
	assert.True(t, IsDisabled(err))

	state.Set(3)
	values, err := stream.Collect(context.Background(), a.Apply(struct{}{}))
	require.NoError(t, err)
	assert.Equal(t, []int{3}, values)

	state.Set(7)
	values, err = stream.Collect(context.Background(), a.Apply(struct{}{}))
	require.NoError(t, err)
	assert.Equal(t, []int{7}, values)

	// repeats are suppressed, so 3 -> 7 does not show up
	assert.Equal(t, []bool{true, false, true, false, true}, enabled)
}

func TestApplyAtMostOneExecution(t *testing.T) {
	const attempts = 64

	var inFlight, maxInFlight atomic.Int32
	a := New(func(i int) stream.Producer[int] {
		return stream.Go(func(_ context.Context, sink *stream.Sink[int]) {
			n := inFlight.Add(1)
			for {
				m := maxInFlight.Load()
				if n <= m || maxInFlight.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inFlight.Add(-1)
			sink.Send(i)
			sink.Complete()
		})
	}, WithLogger(quietLogger()))

	values := &recorder[int]{}
	a.Values().Observe(values.observe)
	completed := &recorder[struct{}]{}
	a.Completed().Observe(completed.observe)
	disabled := &recorder[*ActionError]{}
	a.DisabledErrors().Observe(disabled.observe)

	var succeeded, rejected atomic.Int32
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := stream.Collect(context.Background(), a.Apply(i))
			switch {
			case err == nil:
				succeeded.Add(1)
			case IsDisabled(err):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, maxInFlight.Load())
	assert.EqualValues(t, attempts, succeeded.Load()+rejected.Load())
	assert.GreaterOrEqual(t, succeeded.Load(), int32(1))

	ok := int(succeeded.Load())
	assert.Eventually(t, func() bool {
		return values.count(stream.KindValue) == ok &&
			completed.count(stream.KindValue) == ok &&
			disabled.count(stream.KindValue) == int(rejected.Load())
	}, time.Second, 5*time.Millisecond)
}

func TestApplyRejectsWhileExecuting(t *testing.T) {
	release := make(chan struct{})
	a := New(func(struct{}) stream.Producer[string] {
		return stream.Go(func(ctx context.Context, sink *stream.Sink[string]) {
			select {
			case <-release:
				sink.Send("done")
				sink.Complete()
			case <-ctx.Done():
			}
		})
	}, WithLogger(quietLogger()))

	first := &recorder[string]{}
	a.Apply(struct{}{}).Start(context.Background(), first.observe)
	assert.True(t, a.IsExecuting().Value())
	assert.False(t, a.IsEnabled().Value())

	_, err := stream.Collect(context.Background(), a.Apply(struct{}{}))
	assert.True(t, IsDisabled(err))

	close(release)
	assert.Eventually(t, func() bool {
		return first.count(stream.KindCompleted) == 1
	}, time.Second, 5*time.Millisecond)
	assert.False(t, a.IsExecuting().Value())
}

func TestApplyCapturesCheckedState(t *testing.T) {
	state := property.NewMutable(0)
	var torn, runs atomic.Int32
	a := NewWithState(state, func(n int) bool { return n%2 == 0 }, func(n int, _ struct{}) stream.Producer[int] {
		runs.Add(1)
		if n%2 != 0 {
			torn.Add(1)
		}
		return stream.Values(n)
	}, WithLogger(quietLogger()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i <= 5000; i++ {
			state.Set(i)
		}
	}()

loop:
	for {
		select {
		case <-done:
			break loop
		default:
			_, _ = stream.Collect(context.Background(), a.Apply(struct{}{}))
		}
	}

	state.Set(10)
	values, err := stream.Collect(context.Background(), a.Apply(struct{}{}))
	require.NoError(t, err)
	assert.Equal(t, []int{10}, values)
	assert.Zero(t, torn.Load())
	assert.Positive(t, runs.Load())
}

func TestDisposeReleasesAndInterrupts(t *testing.T) {
	var (
		calls   atomic.Int32
		workCtx context.Context
	)
	a := New(func(struct{}) stream.Producer[int] {
		if calls.Add(1) == 1 {
			return stream.NewProducer(func(ctx context.Context, _ *stream.Sink[int]) {
				workCtx = ctx
			})
		}
		return stream.Values(1)
	}, WithLogger(quietLogger()))

	events := &recorder[stream.Event[int]]{}
	a.Events().Observe(events.observe)

	caller := &recorder[int]{}
	d := a.Apply(struct{}{}).Start(context.Background(), caller.observe)
	require.True(t, a.IsExecuting().Value())

	d.Dispose()
	assert.True(t, d.IsDisposed())
	assert.False(t, a.IsExecuting().Value())
	require.NotNil(t, workCtx)
	assert.Error(t, workCtx.Err())

	assert.Equal(t, []stream.Event[int]{stream.Interrupted[int]()}, caller.snapshot())
	got := events.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, stream.KindValue, got[0].Kind)
	assert.Equal(t, stream.KindInterrupted, got[0].Value.Kind)

	values, err := stream.Collect(context.Background(), a.Apply(struct{}{}))
	require.NoError(t, err)
	assert.Equal(t, []int{1}, values)
}

func TestContextCancelReleases(t *testing.T) {
	a := New(func(struct{}) stream.Producer[int] {
		return stream.Never[int]()
	}, WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	caller := &recorder[int]{}
	a.Apply(struct{}{}).Start(ctx, caller.observe)
	require.True(t, a.IsExecuting().Value())

	cancel()
	assert.Eventually(t, func() bool {
		return !a.IsExecuting().Value() && caller.count(stream.KindInterrupted) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, caller.count(stream.KindCompleted))
}

func TestCancelKeepsEventsAlreadyEmitted(t *testing.T) {
	var sink *stream.Sink[int]
	a := New(func(struct{}) stream.Producer[int] {
		return stream.NewProducer(func(_ context.Context, s *stream.Sink[int]) {
			sink = s
			s.Send(1)
		})
	}, WithLogger(quietLogger()))

	values := &recorder[int]{}
	a.Values().Observe(values.observe)

	d := a.Apply(struct{}{}).Start(context.Background(), nil)
	d.Dispose()
	sink.Send(2)

	assert.Equal(t, []stream.Event[int]{stream.Value(1)}, values.snapshot())
}

func TestReleaseHappensBeforeTerminalDelivery(t *testing.T) {
	var calls atomic.Int32
	a := New(func(struct{}) stream.Producer[int] {
		return stream.Values(int(calls.Add(1)))
	}, WithLogger(quietLogger()))

	var (
		enabledOnComplete bool
		again             []int
	)
	a.Apply(struct{}{}).Start(context.Background(), func(ev stream.Event[int]) {
		if ev.Kind != stream.KindCompleted {
			return
		}
		enabledOnComplete = a.IsEnabled().Value()
		again, _ = stream.Collect(context.Background(), a.Apply(struct{}{}))
	})

	assert.True(t, enabledOnComplete)
	assert.Equal(t, []int{2}, again)
}

func TestWorkFailureIsWrappedForCallerOnly(t *testing.T) {
	boom := stderrors.New("boom")
	a := New(func(struct{}) stream.Producer[int] {
		return stream.Failure[int](boom)
	}, WithName("upload"), WithLogger(quietLogger()))

	errs := &recorder[error]{}
	a.Errors().Observe(errs.observe)

	_, err := stream.Collect(context.Background(), a.Apply(struct{}{}))
	require.Error(t, err)
	assert.True(t, IsWorkFailed(err))
	assert.ErrorIs(t, err, ErrWorkFailed)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, `action "upload" failed: boom`, err.Error())

	got := errs.snapshot()
	require.Len(t, got, 1)
	assert.Same(t, boom, got[0].Value)
	assert.False(t, a.IsExecuting().Value())
}

func TestWorkPanicBecomesFailure(t *testing.T) {
	var panics atomic.Int32
	a := New(func(struct{}) stream.Producer[int] {
		panic("kaboom")
	}, WithLogger(quietLogger()), WithPanicLogger(func(string, any, []byte, ...map[string]any) {
		panics.Add(1)
	}))

	_, err := stream.Collect(context.Background(), a.Apply(struct{}{}))
	require.True(t, IsWorkFailed(err))

	var ge *apperrors.Error
	require.True(t, stderrors.As(err, &ge))
	assert.Equal(t, ErrCodeWorkPanic, ge.TextCode)
	assert.Equal(t, "kaboom", ge.Metadata["panic"])
	assert.EqualValues(t, 1, panics.Load())
	assert.True(t, a.IsEnabled().Value())
}

func TestNilWorkFactoryFails(t *testing.T) {
	a := New[struct{}, int](nil, WithLogger(quietLogger()))

	_, err := stream.Collect(context.Background(), a.Apply(struct{}{}))
	require.True(t, IsWorkFailed(err))

	var ge *apperrors.Error
	require.True(t, stderrors.As(err, &ge))
	assert.Equal(t, ErrCodeNoWork, ge.TextCode)
}

func TestNewEnabledIf(t *testing.T) {
	enabled := property.NewMutable(false)
	a := NewEnabledIf(enabled, func(s string) stream.Producer[string] {
		return stream.Values(s + "!")
	}, WithLogger(quietLogger()))

	_, err := stream.Collect(context.Background(), a.Apply("hi"))
	assert.True(t, IsDisabled(err))

	enabled.Set(true)
	values, err := stream.Collect(context.Background(), a.Apply("hi"))
	require.NoError(t, err)
	assert.Equal(t, []string{"hi!"}, values)
}

func TestConsumeRunsWork(t *testing.T) {
	var calls atomic.Int32
	a := New(func(n int) stream.Producer[int] {
		calls.Add(int32(n))
		return stream.Empty[int]()
	}, WithLogger(quietLogger()))

	a.Consume(3)
	assert.EqualValues(t, 3, calls.Load())
	assert.False(t, a.IsExecuting().Value())
}

func TestCloseCompletesSignalsAndRejects(t *testing.T) {
	state := property.NewMutable(1)
	a := NewWithState(state, positive, func(n int, _ struct{}) stream.Producer[int] {
		return stream.Never[int]()
	}, WithLogger(quietLogger()))

	events := &recorder[stream.Event[int]]{}
	a.Events().Observe(events.observe)
	values := &recorder[int]{}
	a.Values().Observe(values.observe)
	disabled := &recorder[*ActionError]{}
	a.DisabledErrors().Observe(disabled.observe)

	d := a.Apply(struct{}{}).Start(context.Background(), nil)
	a.Close()
	a.Close()

	assert.Equal(t, []stream.Event[stream.Event[int]]{stream.Completed[stream.Event[int]]()}, events.snapshot())
	assert.Equal(t, []stream.Event[int]{stream.Completed[int]()}, values.snapshot())
	assert.Equal(t, 1, disabled.count(stream.KindCompleted))

	// in-flight work is detached, not cancelled
	assert.True(t, a.IsExecuting().Value())
	d.Dispose()
	assert.Len(t, events.snapshot(), 1)

	_, err := stream.Collect(context.Background(), a.Apply(struct{}{}))
	assert.True(t, IsDisabled(err))
	assert.False(t, a.IsEnabled().Value())

	late := &recorder[int]{}
	a.Values().Observe(late.observe)
	assert.Equal(t, []stream.Event[int]{stream.Interrupted[int]()}, late.snapshot())

	state.Set(2)
	assert.False(t, a.IsEnabled().Value())
}

type countingMetrics struct {
	mu       sync.Mutex
	counts   map[string]int
	duration int
}

func (m *countingMetrics) inc(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[key]++
}

func (m *countingMetrics) RecordDuration(string, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duration++
}
func (m *countingMetrics) RecordSuccess(action string)     { m.inc(action + ":success") }
func (m *countingMetrics) RecordError(action string)       { m.inc(action + ":error") }
func (m *countingMetrics) RecordInterrupted(action string) { m.inc(action + ":interrupted") }
func (m *countingMetrics) RecordDisabled(action string)    { m.inc(action + ":disabled") }

func TestMetricsRecordEveryOutcome(t *testing.T) {
	metrics := &countingMetrics{}
	state := property.NewMutable(0)
	a := NewWithState(state, func(int) bool { return true }, func(n int, _ struct{}) stream.Producer[int] {
		switch n {
		case 0:
			return stream.Values(1)
		case 1:
			return stream.Failure[int](stderrors.New("nope"))
		default:
			return stream.Never[int]()
		}
	}, WithName("job"), WithMetrics(metrics), WithLogger(quietLogger()))

	_, _ = stream.Collect(context.Background(), a.Apply(struct{}{}))
	state.Set(1)
	_, _ = stream.Collect(context.Background(), a.Apply(struct{}{}))
	state.Set(2)
	d := a.Apply(struct{}{}).Start(context.Background(), nil)
	_, _ = stream.Collect(context.Background(), a.Apply(struct{}{}))
	d.Dispose()

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Equal(t, map[string]int{
		"job:success":     1,
		"job:error":       1,
		"job:interrupted": 1,
		"job:disabled":    1,
	}, metrics.counts)
	assert.Equal(t, 3, metrics.duration)
}

func TestLogsCarryActionAndExecutionFields(t *testing.T) {
	buf := &bytes.Buffer{}
	a := New(func(struct{}) stream.Producer[int] {
		return stream.Failure[int](ErrNoWork.Clone())
	},
		WithName("sync"),
		WithLogger(NewFmtLogger(buf).WithLevel("debug")),
		WithExecutionIDs(func() string { return "exec-1" }),
	)

	_, _ = stream.Collect(context.Background(), a.Apply(struct{}{}))

	logged := buf.String()
	assert.Contains(t, logged, "execution started")
	assert.Contains(t, logged, "action=sync")
	assert.Contains(t, logged, "execution_id=exec-1")
	assert.Contains(t, logged, "code="+ErrCodeNoWork)
	assert.Contains(t, logged, "WARN")
}

func TestActionErrorAppError(t *testing.T) {
	boom := stderrors.New("boom")

	disabled := newDisabledError("save").AppError()
	assert.Equal(t, ErrCodeDisabled, disabled.TextCode)
	assert.Equal(t, apperrors.CategoryConflict, disabled.Category)
	assert.Equal(t, "save", disabled.Metadata["action"])

	failed := newWorkFailedError("save", boom).AppError()
	assert.Equal(t, ErrCodeWorkFailed, failed.TextCode)
	assert.Equal(t, "work_failed", failed.Metadata["kind"])
	assert.Same(t, boom, failed.Source)

	assert.False(t, stderrors.Is(newDisabledError("save"), ErrWorkFailed))
	assert.Equal(t, "action is disabled", (&ActionError{}).Error())
}
