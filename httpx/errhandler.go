package httpx

import (
	"errors"
	"net/http"

	"github.com/saylorsolutions/eventdemo/logging"
)

var (
	ErrClientError = errors.New("client error")
	ErrNotFound    = errors.New("not found")
	ErrServerError = errors.New("server error")
)

// ErrHandlerFunc is a function much like a [http.HandlerFunc], except that it returns an error.
// This can be used to more intuitively handle error conditions in HTTP handlers.
type ErrHandlerFunc = func(w http.ResponseWriter, r *http.Request) error

// ErrHandler adapts a handler function that returns an error to a standard [http.HandlerFunc].
// A non-nil error is reported as a JSON [ErrorBody] with the status from [StatusOf].
// To customize error handling behavior, use [ErrPolicy].
func ErrHandler(handler ErrHandlerFunc) http.HandlerFunc {
	return ErrPolicy(DefaultErrPolicy)(handler)
}

// ErrPolicy creates a function that accepts an [ErrHandlerFunc], and runs errHandler with the returned error when it's non-nil.
// This can be used to wrap one or more ErrHandlerFunc with consistent, user defined error handling logic.
func ErrPolicy(errHandler func(w http.ResponseWriter, r *http.Request, err error)) func(ErrHandlerFunc) http.HandlerFunc {
	return func(handlerFunc ErrHandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if err := handlerFunc(w, r); err != nil {
				errHandler(w, r, err)
			}
		}
	}
}

// DefaultErrPolicy writes the error message for client errors, and logs server errors without exposing them.
func DefaultErrPolicy(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed", "error", err)
		_ = WriteError(w, status, http.StatusText(status), nil)
		return
	}
	_ = WriteError(w, status, err.Error(), nil)
}

// StatusOf maps the sentinel errors in this package to a status code, defaulting to 500.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, ErrClientError):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
