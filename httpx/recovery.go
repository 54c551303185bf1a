package httpx

import (
	"net/http"
	"runtime/debug"

	"github.com/saylorsolutions/eventdemo/logging"
)

// PanicHandler is called with the value recovered from a panicking handler.
type PanicHandler func(r *http.Request, recovered any)

// LogPanics reports recovered panics with the request's logger, including the stack trace.
func LogPanics() PanicHandler {
	return func(r *http.Request, recovered any) {
		logging.FromContext(r.Context()).ErrorContext(r.Context(), "Recovered from panic in HTTP handler",
			"panic", recovered,
			"method", r.Method,
			"path", r.URL.Path,
			"stack", string(debug.Stack()),
		)
	}
}

// RecoveryMiddleware recovers from panics in later handlers and passes them to handler.
// A 500 response is written if the panicking handler hadn't already started a response.
// [http.ErrAbortHandler] is re-panicked so the server can abort the connection.
func RecoveryMiddleware(handler PanicHandler) Middleware {
	if handler == nil {
		panic("nil panic handler")
	}
	return func(next http.Handler) http.Handler {
		if next == nil {
			panic("nil handler")
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := wrapWriter(w)
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				handler(r, rec)
				if !sw.wroteHeader {
					_ = WriteError(sw, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError), nil)
				}
			}()
			next.ServeHTTP(sw, r)
		})
	}
}
