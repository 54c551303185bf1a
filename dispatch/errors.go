package dispatch

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidEvent      = errors.New("event name cannot be empty")
	ErrInvalidSchema     = errors.New("invalid schema")
	ErrDuplicateSchema   = errors.New("schema already registered")
	ErrSchemaValidation  = errors.New("payload failed schema validation")
	ErrUnknownEvent      = errors.New("unknown event")
	ErrHandlerFailed     = errors.New("event handler failed")
	ErrUnexpectedPayload = errors.New("unexpected payload type")
)

// FieldError describes a single payload field that doesn't satisfy its [Field] definition.
// An empty Field means the payload as a whole was rejected.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	if len(e.Field) == 0 {
		return "payload: " + e.Reason
	}
	return fmt.Sprintf("field '%s': %s", e.Field, e.Reason)
}

// ValidationError is returned when a payload doesn't match the [Schema] registered for an event.
// It matches [ErrSchemaValidation] with [errors.Is], as well as each contained [FieldError].
type ValidationError struct {
	Event  EventName
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	var buf strings.Builder
	buf.WriteString(ErrSchemaValidation.Error())
	if len(e.Event) > 0 {
		buf.WriteString(fmt.Sprintf(" for event '%s'", e.Event))
	}
	for i, f := range e.Fields {
		if i == 0 {
			buf.WriteString(": ")
		} else {
			buf.WriteString("; ")
		}
		buf.WriteString(f.Error())
	}
	return buf.String()
}

func (e *ValidationError) Unwrap() []error {
	errs := make([]error, 0, len(e.Fields)+1)
	errs = append(errs, ErrSchemaValidation)
	for _, f := range e.Fields {
		errs = append(errs, f)
	}
	return errs
}

// FieldMap returns the failure reasons keyed by field name, which is convenient for reporting to clients.
// Payload level failures use the key "payload".
func (e *ValidationError) FieldMap() map[string]string {
	m := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		key := f.Field
		if len(key) == 0 {
			key = "payload"
		}
		m[key] = f.Reason
	}
	return m
}

// HandlerFailure is an error returned (or a panic raised) by the handler at position Index.
type HandlerFailure struct {
	Index int
	Err   error
}

// HandlerError is returned from [Registry.Dispatch] after all handlers have run, if any of them failed.
// It matches [ErrHandlerFailed] with [errors.Is], as well as each underlying handler error.
type HandlerError struct {
	Event    EventName
	Failures []HandlerFailure
}

func (e *HandlerError) Error() string {
	var buf strings.Builder
	buf.WriteString(fmt.Sprintf("%v for event '%s'", ErrHandlerFailed, e.Event))
	for i, f := range e.Failures {
		if i == 0 {
			buf.WriteString(": ")
		} else {
			buf.WriteString("; ")
		}
		buf.WriteString(fmt.Sprintf("handler %d: %v", f.Index, f.Err))
	}
	return buf.String()
}

func (e *HandlerError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	errs = append(errs, ErrHandlerFailed)
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}
