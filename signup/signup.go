// Package signup declares the user sign up events, and the demo handlers and route that use them.
package signup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/saylorsolutions/eventdemo/dispatch"
	"github.com/saylorsolutions/eventdemo/eventhttp"
	"github.com/saylorsolutions/eventdemo/httpx"
)

const (
	EventSignedUp  dispatch.EventName = "USER_SIGNED_UP"
	EventActivated dispatch.EventName = "USER_ACTIVATED"
)

type SignUpPayload struct {
	UserID    uuid.UUID `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

type ActivatedPayload struct {
	UserID      uuid.UUID `json:"user_id"`
	ActivatedAt time.Time `json:"activated_at"`
}

// Register adds the sign up event schemas to reg, along with handlers that log each event.
func Register(reg *dispatch.Registry, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if err := errors.Join(
		registerSchema[SignUpPayload](reg, EventSignedUp),
		registerSchema[ActivatedPayload](reg, EventActivated),
	); err != nil {
		return err
	}
	reg.RegisterHandler(EventSignedUp, dispatch.Typed(func(ctx context.Context, name dispatch.EventName, payload SignUpPayload) error {
		logPayload(ctx, logger, name, payload)
		return nil
	}))
	reg.RegisterHandler(EventActivated, dispatch.Typed(func(ctx context.Context, name dispatch.EventName, payload ActivatedPayload) error {
		logPayload(ctx, logger, name, payload)
		return nil
	}))
	return nil
}

// Routes mounts GET /trigger_event, which emits a new sign up event for the current request.
func Routes(r chi.Router) {
	r.Get("/trigger_event", httpx.ErrHandler(triggerEvent))
}

func triggerEvent(w http.ResponseWriter, r *http.Request) error {
	payload := SignUpPayload{
		UserID:    uuid.New(),
		CreatedAt: time.Now(),
	}
	if err := eventhttp.Emit(r.Context(), EventSignedUp, payload); err != nil {
		return fmt.Errorf("failed to emit %s: %w", EventSignedUp, err)
	}
	return httpx.WriteJSON(w, http.StatusOK, map[string]string{"msg": "Event triggered"})
}

func registerSchema[T any](reg *dispatch.Registry, name dispatch.EventName) error {
	schema, err := dispatch.SchemaOf[T]()
	if err != nil {
		return err
	}
	return reg.RegisterSchema(name, schema)
}

// logPayload reports the event along with the Go type of each payload field.
func logPayload(ctx context.Context, logger *slog.Logger, name dispatch.EventName, payload any) {
	logger.InfoContext(ctx, "Received event",
		"event", name,
		"payload_type", fmt.Sprintf("%T", payload),
		"payload", fmt.Sprintf("%+v", payload),
		slog.Group("field_types", fieldTypes(payload)...),
	)
}

func fieldTypes(payload any) []any {
	rv := reflect.Indirect(reflect.ValueOf(payload))
	if rv.Kind() != reflect.Struct {
		return nil
	}
	var attrs []any
	for _, f := range reflect.VisibleFields(rv.Type()) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		attrs = append(attrs, slog.String(f.Name, f.Type.String()))
	}
	return attrs
}
