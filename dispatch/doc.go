/*
Package dispatch provides an in-process event registry that routes named events to handlers, validating payloads against a registered schema first.

# Design Priorities

  - It should be explicit. A [Registry] is created and populated by the application's composition root, and there is no global instance.
  - It should be predictable. Dispatch is synchronous, and handlers for an event run in the order they were registered.
  - It should be transparent in its results. Validation failures are returned before any handler runs, and handler failures are reported back to the dispatching code.
  - It should isolate failures. One failing handler never prevents the others from running.

# Registry Primitives

Every event is identified by an [EventName].
It's recommended to declare the names an application uses as constants in the package that owns the events.

An event may have a [Schema] that describes the expected payload.
A schema is a list of [Field], each with a [FieldType] such as [TypeUUID] or [TypeTimestamp].
The easiest way to create one is with [SchemaOf], which derives fields from a payload struct:

	type SignUpPayload struct {
		UserID    uuid.UUID `json:"user_id"`
		CreatedAt time.Time `json:"created_at"`
	}

	schema, err := dispatch.SchemaOf[SignUpPayload]()

Schemas may also be declared field by field with [NewSchema], or loaded from HCL files with the schemafile sub-package.
Payloads may be structs or maps with string keys, and fields are matched by their json tag name.

# Registration

Use [Registry.RegisterSchema] to attach a schema to an event.
Only one schema may be registered per event, and registering another fails with [ErrDuplicateSchema] while the first stays in effect.

Use [Registry.RegisterHandler] or [Registry.RegisterFunc] to append a [Handler] to an event.
[Typed] adapts a function accepting a concrete payload type, converting map payloads as needed.

	reg := dispatch.NewRegistry(dispatch.WithLogger(logger))
	if err := reg.RegisterSchema(EventSignedUp, schema); err != nil {
		return err
	}
	reg.RegisterHandler(EventSignedUp, dispatch.Typed(func(ctx context.Context, name dispatch.EventName, p SignUpPayload) error {
		logger.Info("Signed up", "user_id", p.UserID)
		return nil
	}))

# Event Flow

[Registry.Dispatch] validates the payload, then calls every handler for the event on the calling goroutine.

  - An invalid payload results in a [*ValidationError] (matching [ErrSchemaValidation]) and no handler is called.
  - An event with no handlers is a no-op. With [StrictEvents], an event with neither schema nor handlers fails with [ErrUnknownEvent].
  - A handler error or panic is logged, passed to each [ErrorObserver] registered with [Registry.OnHandlerError], and the next handler still runs.
    Once every handler has run, the failures are returned together as a [*HandlerError] (matching [ErrHandlerFailed]).

Each dispatch is recorded as an OpenTelemetry span using the global tracer provider, or the one given with [WithTracerProvider].
*/
package dispatch
