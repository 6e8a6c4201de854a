package responder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Server runs the bus responder and its HTTP API side by side.
type Server struct {
	responder       *Responder
	httpServer      *http.Server
	shutdownTimeout time.Duration
}

// NewServer serves r on the bus and the router on addr.
func NewServer(addr string, r *Responder, metricsHandler http.Handler) *Server {
	return &Server{
		responder: r,
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      NewRouter(r, metricsHandler),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		shutdownTimeout: 5 * time.Second,
	}
}

// Addr is the HTTP listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Run blocks until ctx is cancelled or either side stops, then shuts the HTTP
// server down. The first failure is returned.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 2)
	go func() {
		if err := s.responder.Run(ctx); err != nil {
			errc <- fmt.Errorf("responder: %w", err)
			return
		}
		errc <- nil
	}()
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http server: %w", err)
			return
		}
		errc <- nil
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errc:
	}
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancelShutdown()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("shutdown: %w", err)
	}
	return runErr
}
