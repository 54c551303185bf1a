package httpx

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const DefaultShutdownTimeout = 5 * time.Second

// ListenAndServeCtx listens on the server's address, and serves until ctx is cancelled.
// See [ServeCtx] for shutdown behavior.
func ListenAndServeCtx(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	addr := srv.Addr
	if len(addr) == 0 {
		addr = ":http"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ServeCtx(ctx, srv, ln, shutdownTimeout)
}

// ServeCtx will call [http.Server.Serve] with the listener, and respond to context cancellation by shutting down the server.
// In-flight requests are given shutdownTimeout to complete, which defaults to [DefaultShutdownTimeout] if not positive.
// If the server fails on its own, the error is returned without attempting a shutdown.
func ServeCtx(ctx context.Context, srv *http.Server, ln net.Listener, shutdownTimeout time.Duration) error {
	return listenCtx(ctx, func() error {
		return srv.Serve(ln)
	}, srv.Shutdown, shutdownTimeout)
}

func listenCtx(ctx context.Context, serveFn func() error, shutdownFn func(context.Context) error, shutdownTimeout time.Duration) error {
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	var (
		group   errgroup.Group
		stopped = make(chan struct{})
	)
	group.Go(func() error {
		defer close(stopped)
		if err := serveFn(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		select {
		case <-stopped:
			return nil
		case <-ctx.Done():
		}
		timeout, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return shutdownFn(timeout)
	})
	return group.Wait()
}
