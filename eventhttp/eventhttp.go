// Package eventhttp collects events emitted while handling an HTTP request, and dispatches them once the handler has returned.
//
// This keeps event handlers out of the request's critical path for the response, while still rejecting invalid payloads in time to report them to the client.
// The response is flushed to the client before any event is dispatched, so handlers that declare a Content-Length are fully received while events are still being handled.
//
//	r.Use(eventhttp.Middleware(reg, logger))
//	r.Get("/trigger_event", func(w http.ResponseWriter, r *http.Request) {
//		if err := eventhttp.Emit(r.Context(), signup.EventSignedUp, payload); err != nil {
//			// Report the validation error.
//		}
//	})
package eventhttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/saylorsolutions/eventdemo/dispatch"
)

var ErrNoCollector = errors.New("no event collector in context")

// maxFlushRounds limits how many times events emitted by event handlers are collected again, so a handler that keeps emitting can't hold a request forever.
const maxFlushRounds = 16

// Dispatcher validates and dispatches events, as [dispatch.Registry] does.
type Dispatcher interface {
	Validate(name dispatch.EventName, payload dispatch.Payload) error
	Dispatch(ctx context.Context, name dispatch.EventName, payload dispatch.Payload) error
}

type pendingEvent struct {
	name    dispatch.EventName
	payload dispatch.Payload
}

type collector struct {
	dispatcher Dispatcher
	mux        sync.Mutex
	events     []pendingEvent
}

type collectorKey struct{}

// Middleware installs an event collector in each request's context for use with [Emit].
//
// After the next handler returns, collected events are dispatched in the order they were emitted.
// Events emitted by event handlers during this phase are dispatched too, after the ones already collected.
// Events still pending after [maxFlushRounds] rounds are logged and dropped.
// Dispatch failures are logged, and never affect the response.
// If the handler panics, collected events are discarded.
func Middleware(dispatcher Dispatcher, logger *slog.Logger) func(http.Handler) http.Handler {
	if dispatcher == nil {
		panic("nil dispatcher")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		if next == nil {
			panic("nil handler")
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c := &collector{dispatcher: dispatcher}
			ctx := context.WithValue(r.Context(), collectorKey{}, c)
			next.ServeHTTP(w, r.WithContext(ctx))
			if err := http.NewResponseController(w).Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				logger.DebugContext(ctx, "Failed to flush response before dispatching events", "error", err)
			}
			// The client may have disconnected already, which shouldn't cancel event handling.
			c.flush(context.WithoutCancel(ctx), logger)
		})
	}
}

// Emit validates the payload for an event and queues it for dispatch after the current request is handled.
// A validation error is returned immediately, and the event is not queued.
// If the context doesn't come from a request wrapped by [Middleware], then [ErrNoCollector] is returned.
func Emit(ctx context.Context, name dispatch.EventName, payload dispatch.Payload) error {
	c, ok := ctx.Value(collectorKey{}).(*collector)
	if !ok {
		return ErrNoCollector
	}
	if err := c.dispatcher.Validate(name, payload); err != nil {
		return err
	}
	c.mux.Lock()
	defer c.mux.Unlock()
	c.events = append(c.events, pendingEvent{name: name, payload: payload})
	return nil
}

// Pending returns the number of events waiting to be dispatched for the request.
func Pending(ctx context.Context) int {
	c, ok := ctx.Value(collectorKey{}).(*collector)
	if !ok {
		return 0
	}
	c.mux.Lock()
	defer c.mux.Unlock()
	return len(c.events)
}

func (c *collector) take() []pendingEvent {
	c.mux.Lock()
	defer c.mux.Unlock()
	events := c.events
	c.events = nil
	return events
}

func (c *collector) flush(ctx context.Context, logger *slog.Logger) {
	for range maxFlushRounds {
		events := c.take()
		if len(events) == 0 {
			return
		}
		for _, event := range events {
			if err := c.dispatcher.Dispatch(ctx, event.name, event.payload); err != nil {
				logger.ErrorContext(ctx, "Failed to dispatch event", "event", event.name, "error", err)
				continue
			}
			logger.DebugContext(ctx, "Dispatched event", "event", event.name)
		}
	}
	dropped := c.take()
	if len(dropped) == 0 {
		return
	}
	names := make([]string, len(dropped))
	for i, event := range dropped {
		names[i] = string(event.name)
	}
	logger.WarnContext(ctx, "Dropped events emitted by event handlers", "rounds", maxFlushRounds, "count", len(dropped), "events", names)
}
