// Package api exposes the cascade engine over HTTP. The wire surface is
// deliberately small: one JSON endpoint per engine operation, with business
// rejections mapped to conflict responses the caller can act on.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Server wraps the HTTP listener around the cascade handlers
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer builds the route table and returns a server ready to listen on
// addr
func NewServer(addr string, h *Handler, logger *zap.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /shifts/{id}", h.GetShift)
	mux.HandleFunc("POST /shifts/{id}/cascade", h.StartCascade)
	mux.HandleFunc("POST /shifts/{id}/accept", h.AcceptOffer)
	mux.HandleFunc("POST /shifts/{id}/decline", h.DeclineOffer)
	mux.HandleFunc("POST /shifts/{id}/expire", h.ExpireOffer)
	mux.HandleFunc("POST /shifts/{id}/decline-assignment", h.DeclineAssignment)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		logger: logger,
	}
}

// ListenAndServe blocks until the context is cancelled or the listener
// fails, then drains in-flight requests
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("HTTP server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
