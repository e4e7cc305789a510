// Command actionctl runs shell commands through an action, so that
// overlapping attempts are rejected instead of running twice.
//
//	actionctl run --attempts 3 make build
//	actionctl schedule "@every 30s" --timeout 20s ./sync.sh
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-action/runner"
)

type cli struct {
	Config   string `help:"Runner policy file, YAML or JSON." type:"path" placeholder:"PATH"`
	LogLevel string `help:"Minimum log level." default:"info" enum:"trace,debug,info,warn,error"`
	LogJSON  bool   `help:"Write logs as JSON." name:"log-json"`

	Run      runCmd      `cmd:"" help:"Run a command, making one or more concurrent attempts."`
	Schedule scheduleCmd `cmd:"" help:"Run a command on a cron schedule, skipping ticks while it is still running."`
}

// app carries what every subcommand needs.
type app struct {
	ctx    context.Context
	out    io.Writer
	logger glog.Logger
	policy runner.Config
}

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("actionctl"),
		kong.Description("Serialize shell commands through an action."),
		kong.UsageOnError(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := c.newApp(ctx, os.Stdout, os.Stderr)
	kctx.FatalIfErrorf(err)
	kctx.FatalIfErrorf(kctx.Run(a))
}

func (c *cli) newApp(ctx context.Context, out, logOut io.Writer) (*app, error) {
	var logger glog.Logger
	if c.LogJSON {
		logger = glog.NewLogger(glog.WithWriter(logOut), glog.WithLevel(c.LogLevel), glog.WithLoggerTypeJSON())
	} else {
		logger = glog.NewLogger(glog.WithWriter(logOut), glog.WithLevel(c.LogLevel))
	}

	a := &app{
		ctx:    ctx,
		out:    out,
		logger: logger,
	}

	if c.Config != "" {
		data, err := os.ReadFile(c.Config)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		policy, err := runner.ParseConfig(data)
		if err != nil {
			return nil, err
		}
		a.policy = policy
	}
	return a, nil
}
