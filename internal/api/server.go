package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/version-vault/internal/component"
	"github.com/version-vault/internal/config"
	"github.com/version-vault/internal/metrics"
	"github.com/version-vault/internal/store"
	"github.com/version-vault/internal/switcher"
	"github.com/version-vault/internal/tracking"
)

// Server represents the HTTP server
type Server struct {
	*http.Server
	router    chi.Router
	store     store.Store
	snapshots component.SnapshotProvider
	tracking  *tracking.Map
	switcher  *switcher.Switcher
	registry  *prometheus.Registry
}

// NewServer creates a new HTTP server with all routes configured. st holds
// locally tagged versions; snapshots may extend it with remote providers.
func NewServer(cfg config.ServerConfig, st store.Store, snapshots component.SnapshotProvider, tm *tracking.Map, sw *switcher.Switcher) *Server {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics.Collectors()...)

	s := &Server{
		Server: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler: r,
		},
		router:    r,
		store:     st,
		snapshots: snapshots,
		tracking:  tm,
		switcher:  sw,
		registry:  registry,
	}

	s.setupRoutes()

	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))

		r.Get("/health", s.handleHealth)
		r.Get("/tracking", s.handleTracking)

		// Component ids containing "/" must be path-escaped
		r.Get("/components", s.handleListComponents)
		r.Get("/components/{id}/versions", s.handleVersions)
		r.Get("/components/{id}/versions/{version}", s.handleGetVersion)
		r.Get("/components/{id}/diff/{v1}/{v2}", s.handleDiff)
		r.Post("/components/{id}/use/{version}", s.handleUse)
	})

	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Server.Shutdown(ctx)
}
