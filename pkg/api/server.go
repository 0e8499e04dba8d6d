package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/onchainfs/ledgerfs/internal/logger"
	"github.com/onchainfs/ledgerfs/pkg/config"
	"github.com/onchainfs/ledgerfs/pkg/registry"
)

// Server is the HTTP front end over a Registry: the full file-storage API
// surface (upload, download, status, query, quota) plus health and metrics.
// It supports graceful shutdown bounded by a caller-supplied timeout.
type Server struct {
	server       *http.Server
	registry     *registry.Registry
	config       config.APIConfig
	shutdownOnce sync.Once
}

// NewServer builds a Server over reg, ready to Start. cfg is normally
// reg.Config.API, passed separately so callers can override (e.g. in tests).
func NewServer(cfg config.APIConfig, reg *registry.Registry) *Server {
	router := NewRouter(reg)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &Server{
		server:   httpServer,
		registry: reg,
		config:   cfg,
	}
}

// Start serves the API until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("API server listening", "port", s.config.Port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("API server shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("API server failed: %w", err)
	}
}

// Stop gracefully shuts down the server. Safe to call multiple times and
// concurrently with Start.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("API server shutdown error: %w", err)
			logger.Error("API server shutdown error", "error", err)
		} else {
			logger.Info("API server stopped gracefully")
		}
	})
	return shutdownErr
}

// Port returns the TCP port the server is configured to listen on.
func (s *Server) Port() int {
	return s.config.Port
}
