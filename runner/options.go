package runner

import "time"

type Option func(*Runner)

// WithTimeout bounds every attempt. A timed out attempt counts as a
// failure and may be retried.
func WithTimeout(t time.Duration) Option {
	return func(r *Runner) {
		r.timeout = t
	}
}

func WithMaxRetries(max int) Option {
	return func(r *Runner) {
		r.maxRetries = max
	}
}

// WithErrorHandler receives every failure that is followed by a retry.
func WithErrorHandler(h func(error)) Option {
	return func(r *Runner) {
		if h == nil {
			h = func(error) {}
		}
		r.errorHandler = h
	}
}

func WithLogger(l Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithRetryStrategy lets you define a custom retry/backoff approach.
func WithRetryStrategy(s RetryStrategy) Option {
	return func(r *Runner) {
		r.retryStrategy = s
	}
}
