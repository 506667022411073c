package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const (
	DefaultReadTimeout     = 60 * time.Second
	DefaultWriteTimeout    = DefaultReadTimeout
	DefaultShutdownTimeout = 30 * time.Second
)

// Server wraps http.Server and drains in-flight requests on SIGINT/SIGTERM.
type Server struct {
	*http.Server

	shutdownTimeout time.Duration
	signals         chan os.Signal
}

// NewServer creates a Server with timeouts and handler.
func NewServer(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration) *Server {
	return &Server{
		Server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: readTimeout,
			WriteTimeout:      writeTimeout,
		},
		shutdownTimeout: DefaultShutdownTimeout,
		signals:         make(chan os.Signal, 1),
	}
}

// Serve accepts connections on ln until a shutdown signal arrives, then waits for in-flight requests.
func (srv *Server) Serve(ln net.Listener) error {
	signal.Notify(srv.signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(srv.signals)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-srv.signals:
		Sugar.Infof("received %s, graceful shutting down HTTP server", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), srv.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	Sugar.Info("HTTP server shutdown success")
	return nil
}

// ListenAndServe binds the tcp address and calls Serve.
func (srv *Server) ListenAndServe() error {
	addr := srv.Addr
	if addr == "" {
		addr = ":http"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("net.Listen error: %w", err)
	}
	return srv.Serve(ln)
}

// GraceServer starts an HTTP server with graceful shutdown.
func GraceServer(addr string, handler http.Handler) error {
	return NewServer(addr, handler, DefaultReadTimeout, DefaultWriteTimeout).ListenAndServe()
}
