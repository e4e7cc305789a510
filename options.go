package action

import (
	"time"

	"github.com/google/uuid"
)

// MetricsRecorder receives one call per attempt outcome, labelled with
// the action name.
type MetricsRecorder interface {
	RecordDuration(action string, duration time.Duration)
	RecordSuccess(action string)
	RecordError(action string)
	RecordInterrupted(action string)
	RecordDisabled(action string)
}

type config struct {
	name        string
	logger      Logger
	panicLogger PanicLogger
	metrics     MetricsRecorder
	newID       func() string
}

// Option configures an Action.
type Option func(*config)

// WithName labels log entries, errors and metrics.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

func WithLogger(logger Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithPanicLogger overrides how panics recovered from work are reported.
// The default logs them on the action logger.
func WithPanicLogger(logger PanicLogger) Option {
	return func(c *config) {
		c.panicLogger = logger
	}
}

func WithMetrics(recorder MetricsRecorder) Option {
	return func(c *config) {
		c.metrics = recorder
	}
}

// WithExecutionIDs replaces the uuid generator used to tag executions.
func WithExecutionIDs(fn func() string) Option {
	return func(c *config) {
		c.newID = fn
	}
}

func newConfig(opts []Option) config {
	cfg := config{
		name:  "action",
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	cfg.logger = normalizeLogger(cfg.logger)
	if cfg.panicLogger == nil {
		cfg.panicLogger = LoggerPanicLogger(cfg.logger)
	}
	if cfg.metrics == nil {
		cfg.metrics = noopMetrics{}
	}
	if cfg.newID == nil {
		cfg.newID = uuid.NewString
	}
	return cfg
}

type noopMetrics struct{}

func (noopMetrics) RecordDuration(string, time.Duration) {}
func (noopMetrics) RecordSuccess(string)                 {}
func (noopMetrics) RecordError(string)                   {}
func (noopMetrics) RecordInterrupted(string)             {}
func (noopMetrics) RecordDisabled(string)                {}
