package cron

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// LogLevel controls how chatty the underlying cron engine is.
type LogLevel int

const (
	LogLevelSilent LogLevel = iota
	LogLevelError
	LogLevelInfo
	LogLevelDebug
)

// Parser selects the accepted cron expression format.
type Parser int

const (
	// DefaultParser accepts five fields and descriptors such as @every.
	DefaultParser Parser = iota
	StandardParser
	// SecondsParser expects a leading seconds field.
	SecondsParser
)

type Option func(*Scheduler)

func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		s.location = loc
	}
}

// WithLogger routes scheduler and engine logs to logger.
func WithLogger(logger Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithLogWriter writes engine logs to writer when no Logger is set.
func WithLogWriter(writer io.Writer) Option {
	return func(s *Scheduler) {
		s.logWriter = writer
	}
}

func WithLogLevel(level LogLevel) Option {
	return func(s *Scheduler) {
		s.logLevel = level
	}
}

// WithErrorHandler receives every failed run and every panic recovered
// by the engine.
func WithErrorHandler(handler func(error)) Option {
	return func(s *Scheduler) {
		s.errorHandler = handler
	}
}

func WithParser(p Parser) Option {
	return func(s *Scheduler) {
		s.parser = p
	}
}

// WithDefaultTimeout bounds runs whose JobConfig has no timeout.
func WithDefaultTimeout(timeout time.Duration) Option {
	return func(s *Scheduler) {
		s.defaultTimeout = timeout
	}
}

// loggerAdapter exposes a Logger as a robfig/cron logger.
type loggerAdapter struct {
	logger Logger
	level  LogLevel
}

func (l *loggerAdapter) Info(msg string, keysAndValues ...any) {
	if l.level >= LogLevelInfo {
		l.logger.Info("%s", withPairs(msg, keysAndValues))
	}
}

func (l *loggerAdapter) Error(err error, msg string, keysAndValues ...any) {
	if l.level < LogLevelError {
		return
	}
	line := withPairs(msg, keysAndValues)
	if err != nil {
		line = fmt.Sprintf("%s: %v", line, err)
	}
	l.logger.Error("%s", line)
}

// errorHandlerAdapter feeds engine errors, such as recovered panics, to
// the scheduler error handler.
type errorHandlerAdapter struct {
	handler func(error)
}

func (e *errorHandlerAdapter) Info(string, ...any) {}

func (e *errorHandlerAdapter) Error(err error, msg string, keysAndValues ...any) {
	if e.handler == nil {
		return
	}
	if err == nil {
		err = fmt.Errorf("%s", withPairs(msg, keysAndValues))
	}
	e.handler(err)
}

// withPairs renders robfig/cron key/value arguments after msg.
func withPairs(msg string, keysAndValues []any) string {
	if len(keysAndValues) == 0 {
		return msg
	}
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i < len(keysAndValues); i += 2 {
		sb.WriteByte(' ')
		if i+1 < len(keysAndValues) {
			fmt.Fprintf(&sb, "%v=%v", keysAndValues[i], keysAndValues[i+1])
		} else {
			fmt.Fprintf(&sb, "%v", keysAndValues[i])
		}
	}
	return sb.String()
}
