// Package cron fires actions on a schedule.
package cron

import (
	"context"
	stderrors "errors"
	"io"
	"log"
	"os"
	"sync"
	"time"

	apperrors "github.com/goliatone/go-errors"
	rcron "github.com/robfig/cron/v3"

	"github.com/goliatone/go-action"
	"github.com/goliatone/go-action/stream"
)

const (
	ErrCodeEmptyExpression = "CRON_EMPTY_EXPRESSION"
	ErrCodeInvalidJob      = "CRON_INVALID_JOB"
	ErrCodeAddJob          = "CRON_ADD_JOB_FAILED"
)

// Logger interface shared across packages
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Job is one scheduled run. Returning ErrSkipped marks the run as skipped
// instead of failed.
type Job func(ctx context.Context) error

// ErrSkipped reports a run that did not happen, such as an attempt on a
// disabled action.
var ErrSkipped = apperrors.New("scheduled run skipped", apperrors.CategoryConflict).
	WithTextCode("CRON_RUN_SKIPPED")

// JobConfig bounds every run of a job.
type JobConfig struct {
	Expression string        `json:"expression" yaml:"expression"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
}

// Scheduler wraps robfig/cron with status tracking handles.
type Scheduler struct {
	mu           sync.Mutex
	cron         *rcron.Cron
	location     *time.Location
	errorHandler func(error)

	logger    Logger
	parser    Parser
	logWriter io.Writer
	logLevel  LogLevel

	defaultTimeout time.Duration

	nextHandleID int64
	handles      map[int64]*handle
}

// NewScheduler creates a new scheduler instance with the provided options.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		location: time.Local,
		parser:   DefaultParser,
		logLevel: LogLevelError,
		errorHandler: func(err error) {
			log.Printf("error: %v\n", err)
		},
		handles: make(map[int64]*handle),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	s.cron = rcron.New(s.build()...)
	return s
}

// ScheduleCron runs job every time expression fires.
func (s *Scheduler) ScheduleCron(cfg JobConfig, job Job) (Handle, error) {
	if cfg.Expression == "" {
		return nil, apperrors.New("cron expression cannot be empty", apperrors.CategoryBadInput).
			WithTextCode(ErrCodeEmptyExpression)
	}
	if job == nil {
		return nil, apperrors.New("cron job cannot be nil", apperrors.CategoryBadInput).
			WithTextCode(ErrCodeInvalidJob)
	}

	h := s.newHandle()
	entry := rcron.FuncJob(func() {
		if !h.begin() {
			return
		}
		h.finish(s.runJob(cfg, job))
	})

	entryID, err := s.cron.AddJob(cfg.Expression, entry)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryBadInput, "failed to add cron job").
			WithTextCode(ErrCodeAddJob).
			WithMetadata(map[string]any{"expression": cfg.Expression})
	}
	h.entryID = int(entryID)
	s.storeHandle(h)
	return h, nil
}

// ScheduleAfter runs job once after delay.
func (s *Scheduler) ScheduleAfter(delay time.Duration, cfg JobConfig, job Job) (Handle, error) {
	if delay < 0 {
		delay = 0
	}
	return s.ScheduleAt(time.Now().Add(delay), cfg, job)
}

// ScheduleAt runs job once at a specific time.
func (s *Scheduler) ScheduleAt(at time.Time, cfg JobConfig, job Job) (Handle, error) {
	if job == nil {
		return nil, apperrors.New("cron job cannot be nil", apperrors.CategoryBadInput).
			WithTextCode(ErrCodeInvalidJob)
	}

	h := s.newHandle()
	s.storeHandle(h)

	go func() {
		wait := time.Until(at)
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-h.Done():
			return
		}

		if !h.begin() {
			return
		}
		status, err := s.runJob(cfg, job)
		if status == ScheduleStatusIdle {
			status = ScheduleStatusCompleted
		}
		h.finish(status, err)
		h.setTerminal(status, err)
		s.removeStoredHandle(h.id)
	}()

	return h, nil
}

// ScheduleAction consumes a on every tick of cfg.Expression, taking the
// input for each run from input. A run waits for the execution to end; a
// run that finds the action disabled is reported as skipped.
func ScheduleAction[I, O any](s *Scheduler, cfg JobConfig, a *action.Action[I, O], input func() I) (Handle, error) {
	if s == nil || a == nil {
		return nil, apperrors.New("scheduler and action are required", apperrors.CategoryBadInput).
			WithTextCode(ErrCodeInvalidJob)
	}
	return s.ScheduleCron(cfg, ActionJob(a, input))
}

// ActionJob adapts an action to a Job.
func ActionJob[I, O any](a *action.Action[I, O], input func() I) Job {
	return func(ctx context.Context) error {
		var in I
		if input != nil {
			in = input()
		}
		_, err := stream.Collect(ctx, a.Apply(in))
		if action.IsDisabled(err) {
			return ErrSkipped
		}
		return err
	}
}

// Start begins executing scheduled cron jobs.
func (s *Scheduler) Start(_ context.Context) error {
	s.cron.Start()
	return nil
}

// Stop stops executing scheduled jobs and marks active handles as stopped.
func (s *Scheduler) Stop(_ context.Context) error {
	<-s.cron.Stop().Done()

	var handles []*handle
	s.mu.Lock()
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.handles = make(map[int64]*handle)
	s.mu.Unlock()

	for _, h := range handles {
		if h.entryID > 0 {
			s.cron.Remove(rcron.EntryID(h.entryID))
		}
		h.setTerminal(ScheduleStatusStopped, nil)
	}
	return nil
}

func (s *Scheduler) runJob(cfg JobConfig, job Job) (ScheduleStatus, error) {
	ctx := context.Background()
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := job(ctx)
	switch {
	case err == nil:
		return ScheduleStatusIdle, nil
	case stderrors.Is(err, ErrSkipped):
		if s.logger != nil && s.logLevel >= LogLevelInfo {
			s.logger.Info("scheduled run skipped")
		}
		return ScheduleStatusSkipped, nil
	default:
		s.errorHandler(err)
		return ScheduleStatusFailed, err
	}
}

func (s *Scheduler) removeHandle(id int64) {
	h := s.removeStoredHandle(id)
	if h == nil {
		return
	}
	if h.entryID > 0 {
		s.cron.Remove(rcron.EntryID(h.entryID))
	}
}

func (s *Scheduler) removeStoredHandle(id int64) *handle {
	if s == nil || id == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.handles[id]
	delete(s.handles, id)
	return h
}

func (s *Scheduler) storeHandle(h *handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[h.id] = h
}

func (s *Scheduler) newHandle() *handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextHandleID++
	return &handle{
		scheduler: s,
		id:        s.nextHandleID,
		status:    ScheduleStatusScheduled,
		done:      make(chan struct{}),
	}
}

func makeLogger(out io.Writer, level LogLevel) rcron.Logger {
	stdLogger := log.New(out, "cron: ", log.LstdFlags)
	cronLogger := rcron.PrintfLogger(stdLogger)
	if level >= LogLevelDebug {
		cronLogger = rcron.VerbosePrintfLogger(stdLogger)
	}
	return cronLogger
}

// build converts implementation-agnostic options to rcron options.
func (s *Scheduler) build() []rcron.Option {
	opts := make([]rcron.Option, 0)

	if s.location != nil {
		opts = append(opts, rcron.WithLocation(s.location))
	}

	switch s.parser {
	case StandardParser:
		opts = append(opts, rcron.WithParser(rcron.NewParser(
			rcron.Minute|rcron.Hour|rcron.Dom|rcron.Month|rcron.Dow|rcron.Descriptor,
		)))
	case SecondsParser:
		opts = append(opts, rcron.WithParser(rcron.NewParser(
			rcron.Second|rcron.Minute|rcron.Hour|rcron.Dom|rcron.Month|rcron.Dow|rcron.Descriptor,
		)))
	}

	if s.errorHandler != nil {
		opts = append(opts, rcron.WithChain(
			rcron.Recover(&errorHandlerAdapter{handler: s.errorHandler}),
		))
	}

	var cronLogger rcron.Logger
	switch {
	case s.logger != nil:
		cronLogger = &loggerAdapter{logger: s.logger, level: s.logLevel}
	case s.logWriter != nil:
		cronLogger = makeLogger(s.logWriter, s.logLevel)
	default:
		if s.logLevel > LogLevelSilent {
			cronLogger = makeLogger(os.Stdout, s.logLevel)
		}
	}

	if cronLogger != nil {
		opts = append(opts, rcron.WithLogger(cronLogger))
	}

	return opts
}
