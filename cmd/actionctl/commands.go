package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"time"

	apperrors "github.com/goliatone/go-errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-action"
	"github.com/goliatone/go-action/cron"
	"github.com/goliatone/go-action/metrics"
	"github.com/goliatone/go-action/runner"
	"github.com/goliatone/go-action/stream"
)

const ErrCodeInvalidArgs = "ACTIONCTL_INVALID_ARGS"

type runCmd struct {
	Attempts int      `help:"Concurrent attempts to make; all but one are rejected while the first runs." default:"1"`
	Command  []string `arg:"" passthrough:"" help:"Command and arguments."`
}

func (c *runCmd) Run(a *app) error {
	if c.Attempts < 1 {
		return apperrors.New("attempts must be at least 1", apperrors.CategoryBadInput).
			WithTextCode(ErrCodeInvalidArgs).
			WithMetadata(map[string]any{"attempts": c.Attempts})
	}

	act, err := a.newAction(c.Command, nil)
	if err != nil {
		return err
	}
	defer act.Close()

	subs := a.observe(act)
	defer subs.Dispose()

	var rejected atomic.Int32
	g, ctx := errgroup.WithContext(a.ctx)
	for i := range c.Attempts {
		g.Go(func() error {
			_, err := stream.Collect(ctx, act.Apply(i))
			if action.IsDisabled(err) {
				rejected.Add(1)
				return nil
			}
			return err
		})
	}

	err = g.Wait()
	a.logger.Info("made %d attempts, %d rejected", c.Attempts, rejected.Load())
	return err
}

type scheduleCmd struct {
	Expression  string        `arg:"" help:"Cron expression or descriptor, such as '@every 1m'."`
	Command     []string      `arg:"" passthrough:"" help:"Command and arguments."`
	Timeout     time.Duration `help:"Bound every run."`
	Seconds     bool          `help:"Expect a leading seconds field in the expression."`
	MetricsAddr string        `help:"Serve Prometheus metrics on this address." placeholder:"HOST:PORT"`
}

func (c *scheduleCmd) Run(a *app) error {
	reg := prometheus.NewRegistry()
	rec, err := metrics.NewRecorder(reg)
	if err != nil {
		return err
	}

	act, err := a.newAction(c.Command, rec)
	if err != nil {
		return err
	}
	defer act.Close()

	subs := a.observe(act)
	defer subs.Dispose()

	parser := cron.DefaultParser
	if c.Seconds {
		parser = cron.SecondsParser
	}
	scheduler := cron.NewScheduler(
		cron.WithParser(parser),
		cron.WithLogger(a.logger),
		cron.WithLogLevel(cron.LogLevelInfo),
		cron.WithErrorHandler(func(err error) {
			a.logger.Error("scheduled run failed: %v", err)
		}),
	)

	handle, err := cron.ScheduleAction(scheduler, cron.JobConfig{
		Expression: c.Expression,
		Timeout:    c.Timeout,
	}, act, nil)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(a.ctx)
	if c.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              c.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("scheduled %s on %q (handle %d)", act.Name(), c.Expression, handle.ID())

	g.Go(func() error {
		<-ctx.Done()
		return scheduler.Stop(context.Background())
	})
	return g.Wait()
}

// newAction wraps argv in an action guarded by the configured runner
// policy. rec may be nil.
func (a *app) newAction(argv []string, rec *metrics.Recorder) (*action.Action[int, string], error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, apperrors.New("a command is required", apperrors.CategoryBadInput).
			WithTextCode(ErrCodeInvalidArgs)
	}

	r := runner.New(append(a.policy.Options(), runner.WithLogger(a.logger))...)
	opts := []action.Option{
		action.WithName(filepath.Base(argv[0])),
		action.WithLogger(glogLogger{logger: a.logger}),
	}
	if rec != nil {
		opts = append(opts, action.WithMetrics(rec))
	}
	return action.New(runner.WrapInput(r, shellWork(argv)), opts...), nil
}

// observe prints the output of every execution and logs rejected
// attempts.
func (a *app) observe(act *action.Action[int, string]) *stream.Composite {
	subs := &stream.Composite{}
	subs.Add(stream.ObserveValues(act.Values(), func(line string) {
		fmt.Fprintln(a.out, line)
	}))
	subs.Add(stream.ObserveValues(act.DisabledErrors(), func(err *action.ActionError) {
		a.logger.Debug("attempt rejected: %v", err)
	}))
	return subs
}

// shellWork runs argv once per attempt and sends every line it writes to
// stdout. Cancelling the attempt kills the process.
func shellWork(argv []string) func(int) stream.Producer[string] {
	return func(int) stream.Producer[string] {
		return stream.Go(func(ctx context.Context, sink *stream.Sink[string]) {
			cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
			cmd.Stderr = os.Stderr

			stdout, err := cmd.StdoutPipe()
			if err != nil {
				sink.Fail(err)
				return
			}
			if err := cmd.Start(); err != nil {
				sink.Fail(err)
				return
			}

			scanErr := sendLines(stdout, sink.Send)
			if err := cmd.Wait(); err != nil {
				sink.Fail(err)
				return
			}
			if scanErr != nil {
				sink.Fail(scanErr)
				return
			}
			sink.Complete()
		})
	}
}

func sendLines(r io.Reader, send func(string)) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		send(scanner.Text())
	}
	return scanner.Err()
}
