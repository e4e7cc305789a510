package runner

import (
	"math"
	"time"
)

// RetryStrategy encapsulates the delay between retries.
type RetryStrategy interface {
	// SleepDuration returns how long to wait before the next attempt.
	// The attempt index starts at 0, incrementing after each failure.
	SleepDuration(attempt int, err error) time.Duration
}

// RetryDecision is the outcome of asking a strategy about one failure.
type RetryDecision struct {
	ShouldRetry bool
	Delay       time.Duration
	Metadata    map[string]any
}

// RetryDecider is a RetryStrategy that can also refuse to retry, for
// instance on errors it knows are permanent.
type RetryDecider interface {
	RetryStrategy
	DecideRetry(attempt int, err error) RetryDecision
}

// DecideRetry asks strategy about a failure, falling back to a plain
// retry after SleepDuration when it is not a RetryDecider.
func DecideRetry(strategy RetryStrategy, attempt int, err error) RetryDecision {
	if strategy == nil {
		return RetryDecision{ShouldRetry: true}
	}
	if decider, ok := strategy.(RetryDecider); ok {
		return decider.DecideRetry(attempt, err)
	}
	return RetryDecision{
		ShouldRetry: true,
		Delay:       strategy.SleepDuration(attempt, err),
	}
}

// NoDelayStrategy retries immediately.
type NoDelayStrategy struct{}

func (NoDelayStrategy) SleepDuration(int, error) time.Duration {
	return 0
}

// ExponentialBackoffStrategy waits Base * Factor^attempt, capped at Max.
//
//	WithRetryStrategy(ExponentialBackoffStrategy{
//	    Base:   100 * time.Millisecond,
//	    Factor: 2,
//	    Max:    5 * time.Second,
//	})
type ExponentialBackoffStrategy struct {
	Base   time.Duration
	Factor float64
	Max    time.Duration
}

func (e ExponentialBackoffStrategy) SleepDuration(attempt int, _ error) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	factor := e.Factor
	if factor <= 0 {
		factor = 1
	}
	delay := float64(e.Base) * math.Pow(factor, float64(attempt))
	if e.Max > 0 && (delay > float64(e.Max) || math.IsInf(delay, 1)) {
		return e.Max
	}
	return time.Duration(delay)
}

// PermanentErrorStrategy wraps a strategy and stops retrying when
// IsPermanent accepts the error.
type PermanentErrorStrategy struct {
	Strategy    RetryStrategy
	IsPermanent func(error) bool
}

func (p PermanentErrorStrategy) SleepDuration(attempt int, err error) time.Duration {
	if p.Strategy == nil {
		return 0
	}
	return p.Strategy.SleepDuration(attempt, err)
}

func (p PermanentErrorStrategy) DecideRetry(attempt int, err error) RetryDecision {
	if p.IsPermanent != nil && p.IsPermanent(err) {
		return RetryDecision{
			ShouldRetry: false,
			Metadata:    map[string]any{"permanent": true},
		}
	}
	return RetryDecision{ShouldRetry: true, Delay: p.SleepDuration(attempt, err)}
}
