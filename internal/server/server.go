// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the wiring layer: it connects handlers, middleware, and
// routes, and owns start-up and graceful shutdown. main.go stays minimal and
// tests can build the full router without opening a socket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/script-executor/internal/auth"
	"github.com/sakif/script-executor/internal/executor"
	"github.com/sakif/script-executor/internal/handler"
	"github.com/sakif/script-executor/internal/metrics"
	"github.com/sakif/script-executor/internal/middleware"
)

// shutdownGrace is how long in-flight executions get to finish after a
// shutdown signal.
const shutdownGrace = 30 * time.Second

// writeMargin is added to the execution timeout to form the write deadline.
// It covers the shared-workspace queue, the pipe drain and the response.
const writeMargin = 15 * time.Second

// Config holds server configuration.
type Config struct {
	Port int
	// SharedSecret gates every /internal route. Empty means every such
	// request is refused.
	SharedSecret string
	// ExecutionTimeout is the runner deadline; the write timeout is derived
	// from it so a slow script never loses its response. Shared workspaces
	// queue for at most workspace.Config.SlotWait, which must stay below
	// writeMargin.
	ExecutionTimeout time.Duration
	MaxRequestBytes  int64
	RateLimit        float64
	RateBurst        int
}

// Server represents the HTTP server and all its dependencies.
type Server struct {
	router   *chi.Mux
	config   Config
	logger   *slog.Logger
	exec     executor.Executor
	counters *metrics.Counters
}

// New creates a new Server with the given config.
//
// DEPENDENCY INJECTION:
// The executor and counters are built by the caller and passed in, so tests
// can hand in a fake executor and main.go decides how scripts actually run.
func New(cfg Config, logger *slog.Logger, exec executor.Executor, counters *metrics.Counters) (*Server, error) {
	if exec == nil {
		return nil, errors.New("server: executor is required")
	}
	if cfg.SharedSecret == "" {
		logger.Warn("EXECUTOR_SHARED_SECRET is not set, every execution request will be refused")
	}

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		exec:     exec,
		counters: counters,
	}

	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /healthz                   → liveness, no auth
// POST   /internal/execute-script   → run a script     [rate limit, secret]
// GET    /internal/metrics          → counters         [secret]
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: assigns a unique ID to each request
// 2. RealIP: rewrites RemoteAddr from proxy headers
// 3. Recoverer: panics become a JSON 500
// 4. Logger: one line per request
//
// The rate limit runs before the secret check so unauthenticated floods are
// throttled too.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Recoverer(s.logger))
	s.router.Use(middleware.Logger(s.logger))

	validator, err := handler.NewRequestValidator()
	if err != nil {
		return err
	}
	executeHandler := handler.NewExecuteHandler(s.exec, validator, s.config.MaxRequestBytes, s.logger)
	metricsHandler := handler.NewMetricsHandler(s.counters)
	gate := auth.RequireSharedSecret(s.config.SharedSecret, s.logger)

	s.router.Get("/healthz", handler.HandleHealth)

	s.router.Route("/internal", func(r chi.Router) {
		r.With(middleware.RateLimit(s.config.RateLimit, s.config.RateBurst, s.logger), gate).
			Post("/execute-script", executeHandler.HandleExecute)
		r.With(gate).Get("/metrics", metricsHandler.HandleMetrics)
	})

	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until SIGINT/SIGTERM, then shuts
// down gracefully.
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      s.config.ExecutionTimeout + writeMargin,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.Duration("execution_timeout", s.config.ExecutionTimeout),
			slog.Bool("rate_limited", s.config.RateLimit > 0),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
