package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/saylorsolutions/eventdemo/logging"
)

// RequestLogging will log each request, including status code, method, path, and duration.
// Server errors are logged at the error level, and everything else at info.
//
// A logger with the request ID (from chi's RequestID middleware, if present) is stored in the request context for use with [logging.FromContext].
func RequestLogging(logger *slog.Logger) Middleware {
	if logger == nil {
		panic("nil logger")
	}
	return func(next http.Handler) http.Handler {
		if next == nil {
			panic("nil handler")
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLogger := logger
			if id := middleware.GetReqID(r.Context()); len(id) > 0 {
				reqLogger = logger.With("request_id", id)
			}
			r = r.WithContext(logging.WithLogger(r.Context(), reqLogger))
			sw := wrapWriter(w)
			start := time.Now()
			defer func() {
				level := slog.LevelInfo
				if sw.status >= http.StatusInternalServerError {
					level = slog.LevelError
				}
				reqLogger.LogAttrs(r.Context(), level, "Handled request",
					slog.Int("status", sw.status),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Duration("duration", time.Since(start)),
					slog.Int64("bytes", sw.written),
				)
			}()
			next.ServeHTTP(sw, r)
		})
	}
}
