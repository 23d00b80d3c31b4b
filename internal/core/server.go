// Package core provides the API chassis for upkeep. It builds a chi router
// and enforces cross-cutting concerns (security headers, logging, metrics,
// authentication and rate limiting) before requests reach domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"upkeep/internal/config"
)

// MetricsCollector records API telemetry.
type MetricsCollector interface {
	// RecordRequest records latency and count for one request. endpoint is
	// the route pattern, not the raw path.
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// Server holds the chassis dependencies. Optional fields left nil disable
// the corresponding middleware.
type Server struct {
	Config         *config.Config
	Store          Store
	Logger         *slog.Logger
	Validator      *Validator
	Metrics        MetricsCollector
	Authenticator  Authenticator
	RateLimitStore RateLimitStore
	HealthProbes   []HealthProbe

	// V1RouteRegistrars mount domain handlers under /v1. Populated by
	// cmd/api so that core never imports handler packages.
	V1RouteRegistrars []func(r chi.Router)

	router *chi.Mux
}

// NewServer validates the critical dependencies and prepares the router.
// The caller mounts routes with MountRoutes after registering handlers.
// A non-nil store is also registered as the "store" health probe.
func NewServer(cfg *config.Config, store Store, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	s := &Server{
		Config:    cfg,
		Store:     store,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}
	if store != nil {
		s.HealthProbes = append(s.HealthProbes, StoreProbe{Store: store})
	}
	return s, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown releases server resources. The HTTP listener must already be
// drained.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown initiated")
	if s.Store != nil {
		s.Store.Close()
	}
	s.Logger.InfoContext(ctx, "server shutdown complete")
	return nil
}
