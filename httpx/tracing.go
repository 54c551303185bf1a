package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const serverOperation = "http.server"

// Tracing starts a server span for each request with [otelhttp], continuing any trace propagated by the client.
// When the request is routed by chi, the span is renamed for the matched route pattern once the handler returns.
func Tracing(provider trace.TracerProvider) Middleware {
	if provider == nil {
		panic("nil tracer provider")
	}
	instrument := otelhttp.NewMiddleware(serverOperation,
		otelhttp.WithTracerProvider(provider),
		otelhttp.WithPropagators(otel.GetTextMapPropagator()),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
	return func(next http.Handler) http.Handler {
		if next == nil {
			panic("nil handler")
		}
		return instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			rctx := chi.RouteContext(r.Context())
			if rctx == nil {
				return
			}
			if pattern := rctx.RoutePattern(); len(pattern) > 0 {
				span := trace.SpanFromContext(r.Context())
				span.SetName(r.Method + " " + pattern)
				span.SetAttributes(semconv.HTTPRoute(pattern))
			}
		}))
	}
}
