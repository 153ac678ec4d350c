// Package api serves the operator-facing status HTTP endpoints.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/wonny/autoinvest/pkg/config"
	"github.com/wonny/autoinvest/pkg/logger"
)

// Server is the status HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *logger.Logger
}

// New creates the server on the configured port.
func New(cfg config.APIConfig, log *logger.Logger, router http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: log,
	}
}

// Start blocks serving requests until Shutdown.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting status API server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down status API server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
