package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"time"
)

// Payload is the data carried by an event.
// Payloads with a registered [Schema] must be a struct, a pointer to a struct, or a map with string keys.
type Payload = any

// Handler consumes events dispatched by a [Registry].
// Handlers run synchronously on the dispatching goroutine, so they should return quickly.
type Handler interface {
	// HandleEvent processes a single event.
	// A returned error is logged and reported by the [Registry], but doesn't prevent other handlers from running.
	HandleEvent(ctx context.Context, name EventName, payload Payload) error
}

// HandlerFunc is a function that implements the [Handler] interface.
type HandlerFunc func(ctx context.Context, name EventName, payload Payload) error

func (f HandlerFunc) HandleEvent(ctx context.Context, name EventName, payload Payload) error {
	return f(ctx, name, payload)
}

// Typed adapts a function accepting a specific payload type to a [Handler].
// The payload is converted with [Decode], and an error wrapping [ErrUnexpectedPayload] is returned if that fails.
func Typed[T any](fn func(ctx context.Context, name EventName, payload T) error) Handler {
	if fn == nil {
		panic("nil handler function")
	}
	return HandlerFunc(func(ctx context.Context, name EventName, payload Payload) error {
		val, err := Decode[T](payload)
		if err != nil {
			return err
		}
		return fn(ctx, name, val)
	})
}

// AssertPayload is the most basic way to get a typed payload, and only succeeds if the payload is a T or a non-nil *T.
func AssertPayload[T any](payload Payload) (T, bool) {
	switch v := payload.(type) {
	case T:
		return v, true
	case *T:
		if v != nil {
			return *v, true
		}
	}
	var zero T
	return zero, false
}

// Decode converts a payload to T.
// Payloads that are already a T (or *T) are returned as-is.
// Map payloads, such as those decoded from a JSON request, are converted through their JSON representation so field tags and types like [uuid.UUID] are respected.
func Decode[T any](payload Payload) (T, error) {
	if val, ok := AssertPayload[T](payload); ok {
		return val, nil
	}
	var target T
	if payload == nil {
		return target, fmt.Errorf("%w: expected %T, but got nil", ErrUnexpectedPayload, target)
	}
	if m, ok := payload.(map[string]any); ok {
		payload = normalizeTimestamps(reflect.TypeFor[T](), m)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return target, fmt.Errorf("%w: expected %T, but got %T: %v", ErrUnexpectedPayload, target, payload, err)
	}
	if err := json.Unmarshal(data, &target); err != nil {
		return target, fmt.Errorf("%w: expected %T, but got %T: %v", ErrUnexpectedPayload, target, payload, err)
	}
	return target, nil
}

// normalizeTimestamps rewrites timestamp strings accepted by [ParseTimestamp] as RFC 3339, for fields of typ that decode into a [time.Time].
// The original map is left unchanged.
func normalizeTimestamps(typ reflect.Type, m map[string]any) map[string]any {
	if !isStructType(typ) {
		return m
	}
	if typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	var out map[string]any
	for _, sf := range payloadStructFields(typ) {
		ft := sf.field.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if ft != timeType {
			continue
		}
		s, ok := m[sf.name].(string)
		if !ok {
			continue
		}
		ts, err := ParseTimestamp(s)
		if err != nil {
			continue
		}
		if out == nil {
			out = maps.Clone(m)
		}
		out[sf.name] = ts.Format(time.RFC3339Nano)
	}
	if out == nil {
		return m
	}
	return out
}
