package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/saylorsolutions/eventdemo/dispatch"

// EventName uniquely identifies a kind of event.
type EventName string

// ErrorObserver is notified of every handler failure.
// This can be useful for consolidating reporting of errors that occur in a [Handler].
type ErrorObserver func(ctx context.Context, name EventName, err error)

type registryConf struct {
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	strict         bool
}

// ConfigFunc configures a [Registry] in [NewRegistry].
type ConfigFunc func(conf *registryConf) error

// WithLogger sets the logger used to report dispatch activity and handler failures.
// Defaults to [slog.Default].
func WithLogger(logger *slog.Logger) ConfigFunc {
	return func(conf *registryConf) error {
		if logger == nil {
			return errors.New("nil logger")
		}
		conf.logger = logger
		return nil
	}
}

// WithTracerProvider sets the provider used to create a span for each dispatch.
// Defaults to the global provider from [otel.GetTracerProvider].
func WithTracerProvider(provider trace.TracerProvider) ConfigFunc {
	return func(conf *registryConf) error {
		if provider == nil {
			return errors.New("nil tracer provider")
		}
		conf.tracerProvider = provider
		return nil
	}
}

// StrictEvents makes dispatching an event with no registered schema or handlers an error wrapping [ErrUnknownEvent].
// By default, this is a no-op.
func StrictEvents() ConfigFunc {
	return func(conf *registryConf) error {
		conf.strict = true
		return nil
	}
}

// Registry maps event names to a payload [Schema] and an ordered list of [Handler], and dispatches events to them.
// A Registry is safe for concurrent use, though registration is expected to happen during startup.
type Registry struct {
	logger *slog.Logger
	tracer trace.Tracer
	strict bool

	mux       sync.RWMutex
	schemas   map[EventName]Schema
	handlers  map[EventName][]Handler
	observers []ErrorObserver
}

// NewRegistry creates an empty [Registry].
// This will panic if any [ConfigFunc] rejects its input.
func NewRegistry(configFuncs ...ConfigFunc) *Registry {
	conf := registryConf{
		logger: slog.Default(),
	}
	for _, fn := range configFuncs {
		if err := fn(&conf); err != nil {
			panic(fmt.Sprintf("invalid registry configuration: %v", err))
		}
	}
	if conf.tracerProvider == nil {
		conf.tracerProvider = otel.GetTracerProvider()
	}
	return &Registry{
		logger:   conf.logger,
		tracer:   conf.tracerProvider.Tracer(tracerName),
		strict:   conf.strict,
		schemas:  map[EventName]Schema{},
		handlers: map[EventName][]Handler{},
	}
}

// RegisterSchema associates a payload [Schema] with an event.
// Only one schema may be registered per event. A second registration fails with [ErrDuplicateSchema] and the first schema stays in effect.
func (r *Registry) RegisterSchema(name EventName, schema Schema) error {
	if len(name) == 0 {
		return ErrInvalidEvent
	}
	r.mux.Lock()
	defer r.mux.Unlock()
	if _, ok := r.schemas[name]; ok {
		return fmt.Errorf("%w: event '%s'", ErrDuplicateSchema, name)
	}
	r.schemas[name] = schema
	r.logger.Debug("Registered event schema", "event", name, "fields", schema.Len())
	return nil
}

// RegisterHandler appends a [Handler] to the list for an event.
// Handlers are invoked in the order they're registered, and registering the same handler twice will invoke it twice.
// Passing an empty name or nil handler will panic.
func (r *Registry) RegisterHandler(name EventName, handler Handler) {
	if len(name) == 0 {
		panic(ErrInvalidEvent)
	}
	if handler == nil {
		panic("nil handler")
	}
	r.mux.Lock()
	defer r.mux.Unlock()
	r.handlers[name] = append(r.handlers[name], handler)
	r.logger.Debug("Registered event handler", "event", name, "position", len(r.handlers[name])-1)
}

// RegisterFunc is the same as [Registry.RegisterHandler], but for a [HandlerFunc].
func (r *Registry) RegisterFunc(name EventName, handler HandlerFunc) {
	if handler == nil {
		panic("nil handler")
	}
	r.RegisterHandler(name, handler)
}

// OnHandlerError registers an [ErrorObserver] that is called for each handler failure.
func (r *Registry) OnHandlerError(observer ErrorObserver) {
	if observer == nil {
		panic("nil error observer")
	}
	r.mux.Lock()
	defer r.mux.Unlock()
	r.observers = append(r.observers, observer)
}

// Schema returns the [Schema] registered for an event, if any.
func (r *Registry) Schema(name EventName) (Schema, bool) {
	r.mux.RLock()
	defer r.mux.RUnlock()
	schema, ok := r.schemas[name]
	return schema, ok
}

// HandlerCount returns the number of handlers registered for an event.
func (r *Registry) HandlerCount(name EventName) int {
	r.mux.RLock()
	defer r.mux.RUnlock()
	return len(r.handlers[name])
}

// Events returns the sorted names of all events with a registered schema or handler.
func (r *Registry) Events() []EventName {
	r.mux.RLock()
	defer r.mux.RUnlock()
	names := slices.Collect(maps.Keys(r.schemas))
	for name := range r.handlers {
		if _, ok := r.schemas[name]; !ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Validate checks a payload against the [Schema] registered for the event without invoking any handlers.
// Events without a schema accept any payload, unless the [Registry] uses [StrictEvents] and the event is unknown.
func (r *Registry) Validate(name EventName, payload Payload) error {
	schema, hasSchema, handlers, _ := r.lookup(name)
	if err := r.checkKnown(name, hasSchema, len(handlers)); err != nil {
		return err
	}
	if !hasSchema {
		return nil
	}
	return validateEvent(name, schema, payload)
}

// Dispatch sends an event to all handlers registered for it, in registration order.
//
// If a [Schema] is registered for the event and the payload doesn't satisfy it, then a [*ValidationError] is returned and no handlers are invoked.
// Dispatching an event without handlers does nothing.
//
// A handler that returns an error or panics doesn't stop the remaining handlers.
// Each failure is logged and passed to any registered [ErrorObserver], and once all handlers have run a [*HandlerError] is returned with every failure.
func (r *Registry) Dispatch(ctx context.Context, name EventName, payload Payload) error {
	ctx, span := r.tracer.Start(ctx, "dispatch "+string(name),
		trace.WithAttributes(attribute.String("event.name", string(name))),
	)
	defer span.End()

	schema, hasSchema, handlers, observers := r.lookup(name)
	if err := r.checkKnown(name, hasSchema, len(handlers)); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if hasSchema {
		if err := validateEvent(name, schema, payload); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "schema validation failed")
			r.logger.DebugContext(ctx, "Rejected event payload", "event", name, "error", err)
			return err
		}
	}
	span.SetAttributes(attribute.Int("event.handlers", len(handlers)))
	if len(handlers) == 0 {
		r.logger.DebugContext(ctx, "No handlers registered for event", "event", name)
		return nil
	}

	var failures []HandlerFailure
	for i, handler := range handlers {
		if err := invoke(ctx, handler, name, payload); err != nil {
			failures = append(failures, HandlerFailure{Index: i, Err: err})
			r.logger.ErrorContext(ctx, "Event handler failed", "event", name, "handler", i, "error", err)
			for _, observer := range observers {
				observer(ctx, name, err)
			}
		}
	}
	if len(failures) > 0 {
		span.SetAttributes(attribute.Int("event.handler_failures", len(failures)))
		span.SetStatus(codes.Error, "handler failed")
		return &HandlerError{Event: name, Failures: failures}
	}
	return nil
}

// lookup copies everything needed for a dispatch so handlers run without holding the lock.
// This also means handlers may dispatch or register further events.
func (r *Registry) lookup(name EventName) (Schema, bool, []Handler, []ErrorObserver) {
	r.mux.RLock()
	defer r.mux.RUnlock()
	schema, hasSchema := r.schemas[name]
	return schema, hasSchema, slices.Clone(r.handlers[name]), slices.Clone(r.observers)
}

func (r *Registry) checkKnown(name EventName, hasSchema bool, numHandlers int) error {
	if len(name) == 0 {
		return ErrInvalidEvent
	}
	if r.strict && !hasSchema && numHandlers == 0 {
		return fmt.Errorf("%w: '%s'", ErrUnknownEvent, name)
	}
	return nil
}

func validateEvent(name EventName, schema Schema, payload Payload) error {
	err := schema.Validate(payload)
	if err == nil {
		return nil
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		verr.Event = name
		return verr
	}
	return err
}

func invoke(ctx context.Context, handler Handler, name EventName, payload Payload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler.HandleEvent(ctx, name, payload)
}
