// Package runner decorates work producers with retries and timeouts.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-action/stream"
)

const (
	ErrCodeTimeout          = "RUNNER_TIMEOUT"
	ErrCodeRetriesExhausted = "RUNNER_RETRIES_EXHAUSTED"
)

var ErrTimeout = apperrors.New("attempt timed out", apperrors.CategoryExternal).
	WithTextCode(ErrCodeTimeout)

type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Runner holds the retry and timeout policy applied by Decorate and Wrap.
type Runner struct {
	logger        Logger
	errorHandler  func(error)
	retryStrategy RetryStrategy

	maxRetries int
	timeout    time.Duration
}

func New(opts ...Option) *Runner {
	r := &Runner{
		errorHandler:  func(error) {},
		retryStrategy: NoDelayStrategy{},
	}
	for _, o := range opts {
		if o != nil {
			o(r)
		}
	}
	return r
}

// Decorate returns a producer that starts p, retrying failed or timed out
// attempts. Values from every attempt are forwarded as they arrive, so a
// retried stream may repeat values.
func Decorate[O any](r *Runner, p stream.Producer[O]) stream.Producer[O] {
	if r == nil {
		return p
	}
	return stream.NewProducer(func(ctx context.Context, sink *stream.Sink[O]) {
		runAttempt(ctx, r, p, sink, 0)
	})
}

// Wrap decorates every producer built by execute, matching the work
// factory signature of action.NewWithState.
func Wrap[V, I, O any](r *Runner, execute func(V, I) stream.Producer[O]) func(V, I) stream.Producer[O] {
	return func(state V, input I) stream.Producer[O] {
		return Decorate(r, execute(state, input))
	}
}

// WrapInput is Wrap for work factories that ignore state.
func WrapInput[I, O any](r *Runner, execute func(I) stream.Producer[O]) func(I) stream.Producer[O] {
	return func(input I) stream.Producer[O] {
		return Decorate(r, execute(input))
	}
}

func runAttempt[O any](ctx context.Context, r *Runner, p stream.Producer[O], sink *stream.Sink[O], attempt int) {
	attemptCtx, cancel := r.contextWithTimeout(ctx)

	p.Start(attemptCtx, func(ev stream.Event[O]) {
		switch ev.Kind {
		case stream.KindValue:
			sink.Send(ev.Value)
			return
		case stream.KindCompleted:
			cancel()
			sink.Complete()
			return
		case stream.KindInterrupted:
			timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
			cancel()
			if !timedOut {
				sink.Interrupt()
				return
			}
			retryOrFail(ctx, r, p, sink, attempt, r.timeoutError(attempt))
		case stream.KindFailed:
			cancel()
			retryOrFail(ctx, r, p, sink, attempt, ev.Err)
		}
	})
}

// retryOrFail schedules the next attempt or fails sink with err.
func retryOrFail[O any](ctx context.Context, r *Runner, p stream.Producer[O], sink *stream.Sink[O], attempt int, err error) {
	if ctx.Err() != nil {
		sink.Interrupt()
		return
	}

	if attempt >= r.maxRetries {
		if r.maxRetries > 0 {
			err = exhausted(err, attempt+1)
		}
		sink.Fail(err)
		return
	}

	decision := DecideRetry(r.retryStrategy, attempt, err)
	if !decision.ShouldRetry {
		sink.Fail(err)
		return
	}

	r.errorHandler(err)
	r.logError("attempt %d of %d failed: %v", attempt+1, r.maxRetries+1, err)

	if decision.Delay <= 0 {
		runAttempt(ctx, r, p, sink, attempt+1)
		return
	}

	r.logInfo("retrying in %s", decision.Delay)
	go func() {
		timer := time.NewTimer(decision.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
			runAttempt(ctx, r, p, sink, attempt+1)
		}
	}()
}

func (r *Runner) contextWithTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	if r.timeout > 0 {
		return context.WithTimeout(parent, r.timeout)
	}
	return context.WithCancel(parent)
}

func (r *Runner) timeoutError(attempt int) error {
	err := ErrTimeout.Clone()
	err.Source = context.DeadlineExceeded
	return err.WithMetadata(map[string]any{
		"attempt": attempt + 1,
		"timeout": r.timeout.String(),
	})
}

func (r *Runner) logError(format string, args ...any) {
	if r.logger != nil {
		r.logger.Error(format, args...)
	}
}

func (r *Runner) logInfo(format string, args ...any) {
	if r.logger != nil {
		r.logger.Info(format, args...)
	}
}

func exhausted(err error, attempts int) error {
	return apperrors.Wrap(err, apperrors.CategoryHandler, fmt.Sprintf("failed after %d attempts", attempts)).
		WithTextCode(ErrCodeRetriesExhausted).
		WithMetadata(map[string]any{"attempts": attempts})
}
