// Package server exposes a [dispatch.Registry] over HTTP.
//
// Routes:
//
//	GET  /healthz         Liveness check.
//	GET  /events          Lists registered events, their schema fields, and handler counts.
//	POST /events/{name}   Emits the JSON object body as the payload of event {name}.
//
// Additional routes, like the sign up demo's /trigger_event, are mounted by passing route functions to [New].
// Every route runs with security headers, request logging, panic recovery, tracing, and event collection from [eventhttp].
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/saylorsolutions/eventdemo/dispatch"
	"github.com/saylorsolutions/eventdemo/eventhttp"
	"github.com/saylorsolutions/eventdemo/httpsec"
	"github.com/saylorsolutions/eventdemo/httpx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const readHeaderTimeout = 10 * time.Second

type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	TracerProvider  trace.TracerProvider // Defaults to the global provider.
	CORSOrigins     []string             // Browser origins allowed to call the API. Cross-origin calls are denied when empty.
}

type Server struct {
	conf   Config
	reg    *dispatch.Registry
	logger *slog.Logger
	router chi.Router
}

// New creates a [Server] for reg. Each of routes is called to mount additional routes on the router.
// New panics if the configured CORS origins are invalid.
func New(conf Config, reg *dispatch.Registry, logger *slog.Logger, routes ...func(chi.Router)) *Server {
	if reg == nil {
		panic("nil registry")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if conf.TracerProvider == nil {
		conf.TracerProvider = otel.GetTracerProvider()
	}
	s := &Server{
		conf:   conf,
		reg:    reg,
		logger: logger,
		router: chi.NewRouter(),
	}
	sec, err := securityPolicies(conf.CORSOrigins)
	if err != nil {
		panic(err)
	}
	s.router.Use(
		middleware.RequestID,
		sec.Middleware,
		httpx.RequestLogging(logger),
		httpx.RecoveryMiddleware(httpx.LogPanics()),
		httpx.Tracing(conf.TracerProvider),
		eventhttp.Middleware(reg, logger),
	)
	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = httpx.WriteError(w, http.StatusNotFound, http.StatusText(http.StatusNotFound), nil)
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = httpx.WriteError(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed), nil)
	})

	handle := httpx.ErrPolicy(s.writeError)
	s.router.Get("/healthz", s.healthz)
	s.router.Get("/events", handle(s.listEvents))
	s.router.Post("/events/{name}", handle(s.postEvent))
	for _, route := range routes {
		route(s.router)
	}
	return s
}

func securityPolicies(origins []string) (*httpsec.Policies, error) {
	if len(origins) == 0 {
		return httpsec.New()
	}
	return httpsec.New(httpsec.EnableCORS(httpsec.NewCORSPolicy().
		AllowOrigin(origins...).
		AllowMethods(http.MethodGet, http.MethodPost).
		AllowHeaders(httpx.HeaderContentType, "Traceparent", "Tracestate"),
	))
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves HTTP requests until ctx is cancelled, then shuts down gracefully within the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.conf.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
	}
	s.logger.Info("Starting HTTP server", "addr", s.conf.Addr, "events", len(s.reg.Events()))
	if err := httpx.ListenAndServeCtx(ctx, srv, s.conf.ShutdownTimeout); err != nil {
		return err
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// writeError maps dispatch errors to responses, and defers to [httpx.DefaultErrPolicy] for everything else.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *dispatch.ValidationError
	switch {
	case errors.As(err, &verr):
		_ = httpx.WriteError(w, http.StatusBadRequest, verr.Error(), verr.FieldMap())
	case errors.Is(err, dispatch.ErrUnknownEvent):
		_ = httpx.WriteError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, dispatch.ErrInvalidEvent):
		_ = httpx.WriteError(w, http.StatusBadRequest, err.Error(), nil)
	default:
		httpx.DefaultErrPolicy(w, r, err)
	}
}
