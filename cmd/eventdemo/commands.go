package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/saylorsolutions/eventdemo/cli"
	"github.com/saylorsolutions/eventdemo/dispatch"
	"github.com/saylorsolutions/eventdemo/httpx"
	"github.com/saylorsolutions/eventdemo/logging"
	"github.com/saylorsolutions/eventdemo/retry"
	"github.com/saylorsolutions/eventdemo/server"
	"github.com/saylorsolutions/eventdemo/signalx"
	"github.com/saylorsolutions/eventdemo/signup"
	"github.com/saylorsolutions/eventdemo/tracing"
	flag "github.com/spf13/pflag"
)

func (a *app) serve(ctx context.Context, flags *flag.FlagSet, _ *cli.Printer) error {
	if flags.NArg() > 0 {
		return cli.NewUsageError("unexpected arguments: %s", strings.Join(flags.Args(), " "))
	}
	ctx, stop := signalx.ShutdownCtx(ctx, a.logger, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Endpoint:    a.conf.OTelEndpoint,
		ServiceName: a.conf.ServiceName,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.conf.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			a.logger.Error("Failed to flush traces", "error", err)
		}
	}()

	reg, err := buildRegistry(ctx, a.conf, a.logger, a.conf.SchemaFiles...)
	if err != nil {
		return err
	}
	srv := server.New(server.Config{
		Addr:            a.conf.Addr,
		ShutdownTimeout: a.conf.ShutdownTimeout,
		CORSOrigins:     a.conf.CORSOrigins,
	}, reg, a.logger, signup.Routes)
	return srv.Run(ctx)
}

func (a *app) schemas(ctx context.Context, flags *flag.FlagSet, printer *cli.Printer) error {
	paths := flags.Args()
	if len(paths) == 0 {
		paths = a.conf.SchemaFiles
	}
	reg, err := buildRegistry(ctx, a.conf, a.logger, paths...)
	if err != nil {
		return err
	}
	return printSchemas(printer, reg)
}

func printSchemas(printer *cli.Printer, reg *dispatch.Registry) error {
	tw := tabwriter.NewWriter(printer, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "EVENT\tHANDLERS\tFIELDS")
	for _, name := range reg.Events() {
		var fields []string
		if schema, ok := reg.Schema(name); ok {
			for _, f := range schema.Fields() {
				field := f.Name + ":" + f.Type.String()
				if f.Optional {
					field += "?"
				}
				fields = append(fields, field)
			}
		}
		if len(fields) == 0 {
			fields = append(fields, "-")
		}
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\n", name, reg.HandlerCount(name), strings.Join(fields, " "))
	}
	return tw.Flush()
}

func (a *app) trigger(ctx context.Context, flags *flag.FlagSet, printer *cli.Printer) error {
	base, err := flags.GetString("url")
	if err != nil {
		return err
	}
	base = strings.TrimSuffix(base, "/")
	var event, payloadArg string
	if err := cli.MapArgs(flags.Args(), 0, &event, &payloadArg); err != nil {
		return err
	}
	req := httpx.GetRequest(base + "/trigger_event")
	if len(event) > 0 {
		payload := map[string]any{}
		if len(payloadArg) > 0 {
			if err := json.Unmarshal([]byte(payloadArg), &payload); err != nil {
				return cli.NewUsageError("payload must be a JSON object: %v", err)
			}
		}
		req = httpx.PostRequest(base + "/events/" + url.PathEscape(event)).JSONBody(payload)
	}

	attempts, err := flags.GetInt("attempts")
	if err != nil {
		return err
	}
	delay, err := flags.GetDuration("retry-delay")
	if err != nil {
		return err
	}
	var resp *httpx.Response
	err = retry.Do(ctx, retry.Policy{Attempts: attempts, Delay: delay, Backoff: 2}, func(ctx context.Context) error {
		var err error
		resp, err = req.Send(ctx)
		if err != nil {
			logging.FromContext(ctx).Debug("Failed to reach server", "error", err)
		}
		return err
	})
	if err != nil {
		return err
	}
	body, err := httpx.ReadJSON[map[string]any](resp)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return err
	}
	printer.Println(string(out))
	if !resp.Success() {
		return fmt.Errorf("%w: server responded with status %d", errTriggerFailed, resp.StatusCode)
	}
	logging.FromContext(ctx).Debug("Event accepted", "status", resp.StatusCode)
	return nil
}

var errTriggerFailed = errors.New("trigger failed")
