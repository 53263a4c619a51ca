package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

const (
	defaultReadTimeout = 60 * time.Second
	// SSE prayer streams hold the response open, so writes are not time boxed
	defaultWriteTimeout  = 0
	defaultShutdownGrace = 30 * time.Second
)

// ShutdownHook runs after the HTTP server stopped accepting requests, e.g. to
// stop the reminder scheduler or flush the event publisher.
type ShutdownHook func(ctx context.Context)

// Server wraps http.Server with signal handling and ordered shutdown hooks.
type Server struct {
	*http.Server

	hooks    []ShutdownHook
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewServer creates a Server with timeouts and handler.
func NewServer(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration, hooks ...ShutdownHook) *Server {
	return &Server{
		Server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      writeTimeout,
		},
		hooks:   hooks,
		stopped: make(chan struct{}),
	}
}

// ListenAndServe serves until SIGINT/SIGTERM or Stop, then drains and runs the hooks.
func (srv *Server) ListenAndServe() error {
	addr := srv.Addr
	if addr == "" {
		addr = ":http"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("net.Listen error: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	select {
	case err := <-serveErr:
		// listener died on its own; still release background work
		srv.Stop()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		Sugar.Info("received shutdown signal, stopping HTTP server")
		srv.Stop()
	case <-srv.stopped:
	}

	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests, then runs the shutdown hooks. Safe to call more than once.
func (srv *Server) Stop() {
	srv.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownGrace)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			Sugar.Errorf("HTTP server shutdown error: %v", err)
		} else {
			Sugar.Info("HTTP server shutdown success")
		}
		for _, hook := range srv.hooks {
			hook(ctx)
		}
		close(srv.stopped)
	})
}

// GraceServer serves handler on addr until SIGINT/SIGTERM, then runs hooks.
func GraceServer(addr string, handler http.Handler, hooks ...ShutdownHook) error {
	return NewServer(addr, handler, defaultReadTimeout, defaultWriteTimeout, hooks...).ListenAndServe()
}
