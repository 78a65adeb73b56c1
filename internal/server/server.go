// Package server provides the HTTP API for Grain.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/grain/internal/answer"
	"github.com/hyperjump/grain/internal/config"
	"github.com/hyperjump/grain/internal/index"
	"github.com/hyperjump/grain/internal/metrics"
	"go.uber.org/zap"
)

// Server is the HTTP server for the Grain API.
type Server struct {
	manager   *index.Manager
	assistant *answer.Assistant
	metrics   *metrics.Metrics
	config    *config.Config
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a server with the given dependencies. assistant and mt may be nil;
// /api/v1/ask then answers 503 and /metrics is not mounted.
func NewServer(
	manager *index.Manager,
	assistant *answer.Assistant,
	mt *metrics.Metrics,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		manager:   manager,
		assistant: assistant,
		metrics:   mt,
		config:    cfg,
		logger:    logger,
	}
}

// Handler returns the router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/ask", s.handleAsk)
		r.Get("/sessions/{id}/history", s.handleGetHistory)
		r.Delete("/sessions/{id}/history", s.handleClearHistory)
		r.Get("/threshold", s.handleGetThreshold)
		r.Put("/threshold", s.handleSetThreshold)
		r.Post("/reload", s.handleReload)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
