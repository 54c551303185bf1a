package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/saylorsolutions/eventdemo/cli"
	"github.com/saylorsolutions/eventdemo/config"
	"github.com/saylorsolutions/eventdemo/dispatch"
	"github.com/saylorsolutions/eventdemo/dispatch/schemafile"
	"github.com/saylorsolutions/eventdemo/logging"
	"github.com/saylorsolutions/eventdemo/signup"
)

type app struct {
	conf    config.Config
	logOut  io.Writer
	logger  *slog.Logger
	closers []io.Closer
}

func run(ctx context.Context, args []string) error {
	conf, err := config.Load()
	if err != nil {
		return err
	}
	a := &app{conf: conf, logOut: os.Stderr}
	defer a.close()
	return a.commands().Exec(ctx, args)
}

func (a *app) commands() *cli.CommandSet {
	set := cli.NewCommandSet("eventdemo", "An in-process event registry, with schema validated payloads")
	set.Before(a.setupLogging)

	serve := set.AddCommand("serve", "Runs the HTTP server", "s").
		Usage("[flags]").
		Does(a.serve)
	a.conf.BindFlags(serve.Flags())

	set.AddCommand("schemas", "Validates schema files and lists every registered event", "ls").
		Usage("[flags] [FILE_OR_DIR...]").
		Does(a.schemas)

	trigger := set.AddCommand("trigger", "Sends an event to a running server", "t").
		Usage("[flags] [EVENT [JSON_PAYLOAD]]\n\nWith no EVENT, the server's /trigger_event route is called to emit a new %s event.", signup.EventSignedUp).
		Does(a.trigger)
	trigger.Flags().StringP("url", "u", "http://localhost:8000", "Base URL of the eventdemo server")
	trigger.Flags().Int("attempts", 3, "Connection attempts before giving up")
	trigger.Flags().Duration("retry-delay", 250*time.Millisecond, "Delay before the first retry, doubled for each one after")
	return set
}

// setupLogging runs once flags are parsed, since they may override the log settings.
func (a *app) setupLogging(ctx context.Context) (context.Context, error) {
	if err := a.conf.Validate(); err != nil {
		return ctx, err
	}
	logConf := a.conf.Logging()
	var tees []slog.Handler
	if len(a.conf.LogFile) > 0 {
		tee, closer, err := logging.OpenFile(a.conf.LogFile, logConf.Level)
		if err != nil {
			return ctx, err
		}
		a.closers = append(a.closers, closer)
		tees = append(tees, tee)
	}
	a.logger = logging.New(a.logOut, logConf, tees...)
	slog.SetDefault(a.logger)
	return logging.WithLogger(ctx, a.logger), nil
}

func (a *app) close() {
	for _, c := range a.closers {
		_ = c.Close()
	}
}

// buildRegistry creates the application's registry, with the sign up events and any schema files.
func buildRegistry(ctx context.Context, conf config.Config, logger *slog.Logger, schemaFiles ...string) (*dispatch.Registry, error) {
	opts := []dispatch.ConfigFunc{dispatch.WithLogger(logger)}
	if conf.StrictEvents {
		opts = append(opts, dispatch.StrictEvents())
	}
	reg := dispatch.NewRegistry(opts...)
	if err := signup.Register(reg, logger); err != nil {
		return nil, err
	}
	if len(schemaFiles) == 0 {
		return reg, nil
	}
	defs, err := schemafile.Load(ctx, schemaFiles...)
	if err != nil {
		return nil, err
	}
	if err := schemafile.Apply(reg, defs); err != nil {
		return nil, err
	}
	logger.Info("Loaded event schemas", "events", len(defs), "paths", schemaFiles)
	return reg, nil
}
