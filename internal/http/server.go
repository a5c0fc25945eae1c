// Package http provides the HTTP server: a chi router carrying the raw
// media routes and a huma API carrying the JSON operations.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/jmylchreest/recast/internal/config"
	"github.com/jmylchreest/recast/internal/http/middleware"
	"github.com/jmylchreest/recast/internal/metrics"
)

// Server wraps the chi router, the huma API, and the underlying
// http.Server.
type Server struct {
	router   *chi.Mux
	api      huma.API
	srv      *http.Server
	shutdown time.Duration
	logger   *slog.Logger
}

// NewServer creates a configured server. The metrics parameter may be nil,
// in which case requests are not counted.
func NewServer(cfg config.ServerConfig, logger *slog.Logger, m *metrics.Metrics, version string) *Server {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 7300
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	router := chi.NewRouter()

	router.Use(chimiddleware.RealIP)
	router.Use(middleware.RequestID)
	router.Use(middleware.NewLoggingMiddleware(logger))
	router.Use(middleware.NewMetricsMiddleware(m))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS(cfg.CORSOrigins))
	router.Use(middleware.SkipCompressionForMedia(chimiddleware.Compress(5)))

	humaConfig := huma.DefaultConfig("recast API", version)
	humaConfig.DocsPath = ""
	api := humachi.New(router, humaConfig)

	// No WriteTimeout: stream responses stay open for as long as the
	// client keeps watching.
	httpServer := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:     router,
		ReadTimeout: cfg.ReadTimeout,
		IdleTimeout: 120 * time.Second,
	}

	return &Server{
		router:   router,
		api:      api,
		srv:      httpServer,
		shutdown: cfg.ShutdownTimeout,
		logger:   logger,
	}
}

// API returns the huma API for registering JSON operations.
func (s *Server) API() huma.API {
	return s.api
}

// Router returns the chi router for registering raw routes. Raw routes
// registered after a huma operation on the same path win, which is how the
// media endpoints keep their documented form while bypassing huma's
// buffered response path.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.srv.Addr
}

// Start begins serving and blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, bounded by the configured
// shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.shutdown)
	defer cancel()

	s.logger.Info("http server shutting down")
	return s.srv.Shutdown(ctx)
}

// ListenAndServe serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- s.Start() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}
