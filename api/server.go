// Package api provides the HTTP REST API for the knowledge service.
//
// This package exposes the retrieval facade via HTTP endpoints, enabling
// programmatic access from the SaaS backend and automation pipelines.
//
// Endpoints:
//
//	POST /api/query                       → single knowledge query
//	POST /api/batch                       → bounded-concurrency batch search
//	GET  /api/stats                       → corpus and cache statistics
//	POST /api/documents/{id}/invalidate   → drop cached results for a document
//	GET  /health                          → liveness probe
//	GET  /ready                           → readiness probe
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: HTTP middleware (recovery, logging, rate limiting)
//   - health.go: health check endpoints (/health, /ready)
//   - knowledge.go: retrieval endpoints
//   - response.go: JSON response helpers
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/quickAIautomation/quickvetpro/internal/knowledge"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:8080"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	// This prevents Slowloris attacks (CWE-400).
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	// Structural navigation can spend several model round trips.
	WriteTimeout = 120 * time.Second

	// IdleTimeout is the maximum time to wait for the next request on keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP server for the knowledge REST API.
type Server struct {
	mux     *http.ServeMux
	limiter *rate.Limiter

	// Handlers
	health    *HealthHandler
	knowledge *KnowledgeHandler
}

// NewServer creates a new HTTP server with all routes registered.
// rps and burst bound the request rate across all clients.
func NewServer(pool *pgxpool.Pool, svc *knowledge.Service, rps, burst int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if rps < 1 {
		rps = 20
	}
	if burst < rps {
		burst = rps
	}

	mux := http.NewServeMux()

	s := &Server{
		mux:       mux,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		health:    NewHealthHandler(pool, logger),
		knowledge: NewKnowledgeHandler(svc, logger),
	}

	s.health.RegisterRoutes(mux)
	s.knowledge.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → rate limit → handler
func (s *Server) Handler() http.Handler {
	return chain(s.mux, recoveryMiddleware, requestIDMiddleware, loggingMiddleware, rateLimitMiddleware(s.limiter))
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
