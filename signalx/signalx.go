// Package signalx ties process signals to context cancellation for graceful shutdown.
package signalx

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
)

var exit = os.Exit

// ShutdownCtx returns a context that is cancelled when any of the given signals is received.
// A second signal exits the process with a non-zero code, for when a graceful shutdown is taking too long.
//
// The returned stop function stops listening for signals and cancels the context.
func ShutdownCtx(parent context.Context, logger *slog.Logger, signals ...os.Signal) (context.Context, context.CancelFunc) {
	if len(signals) == 0 {
		panic("no signals passed to ShutdownCtx")
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(parent)
	sigs := make(chan os.Signal, 2)
	done := make(chan struct{})
	signal.Notify(sigs, signals...)
	go func() {
		select {
		case sig := <-sigs:
			logger.Info("Received signal, shutting down", "signal", sig.String())
			cancel()
		case <-done:
			return
		}
		select {
		case sig := <-sigs:
			logger.Warn("Received second signal, exiting immediately", "signal", sig.String())
			exit(1)
		case <-done:
		}
	}()
	stopped := false
	return ctx, func() {
		if stopped {
			return
		}
		stopped = true
		signal.Stop(sigs)
		close(done)
		cancel()
	}
}
