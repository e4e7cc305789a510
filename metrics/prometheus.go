// Package metrics exports action outcomes to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess     = "success"
	OutcomeError       = "error"
	OutcomeInterrupted = "interrupted"
	OutcomeDisabled    = "disabled"
)

// Recorder implements action.MetricsRecorder on Prometheus collectors.
type Recorder struct {
	attempts *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

type Option func(*options)

type options struct {
	namespace string
	subsystem string
	buckets   []float64
}

func WithNamespace(namespace string) Option {
	return func(o *options) {
		o.namespace = namespace
	}
}

func WithSubsystem(subsystem string) Option {
	return func(o *options) {
		o.subsystem = subsystem
	}
}

// WithBuckets sets the execution duration histogram buckets, in seconds.
func WithBuckets(buckets []float64) Option {
	return func(o *options) {
		o.buckets = buckets
	}
}

// NewRecorder builds the collectors and registers them on reg. A nil reg
// skips registration.
func NewRecorder(reg prometheus.Registerer, opts ...Option) (*Recorder, error) {
	o := options{
		namespace: "action",
		buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	r := &Recorder{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: o.namespace,
				Subsystem: o.subsystem,
				Name:      "attempts_total",
				Help:      "Attempts to execute an action by outcome",
			},
			[]string{"action", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: o.namespace,
				Subsystem: o.subsystem,
				Name:      "execution_duration_seconds",
				Help:      "Time from claim to release of an action execution",
				Buckets:   o.buckets,
			},
			[]string{"action"},
		),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{r.attempts, r.duration} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

func (r *Recorder) RecordDuration(action string, duration time.Duration) {
	r.duration.WithLabelValues(action).Observe(duration.Seconds())
}

func (r *Recorder) RecordSuccess(action string) {
	r.attempts.WithLabelValues(action, OutcomeSuccess).Inc()
}

func (r *Recorder) RecordError(action string) {
	r.attempts.WithLabelValues(action, OutcomeError).Inc()
}

func (r *Recorder) RecordInterrupted(action string) {
	r.attempts.WithLabelValues(action, OutcomeInterrupted).Inc()
}

func (r *Recorder) RecordDisabled(action string) {
	r.attempts.WithLabelValues(action, OutcomeDisabled).Inc()
}

// Attempts exposes the attempt counter, mainly for tests and dashboards
// built in-process.
func (r *Recorder) Attempts() *prometheus.CounterVec {
	return r.attempts
}
