// Package server assembles the HTTP router and owns the listener lifecycle.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/texforge/texforge/internal/server/handlers"
	"github.com/texforge/texforge/internal/server/middleware"
)

// Options configures the HTTP listener and middleware chain.
type Options struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// RateLimitRPS enables per-IP throttling when positive.
	RateLimitRPS   float64
	RateLimitBurst int
}

// Server wires middleware, routes, and the net/http server.
type Server struct {
	opts   Options
	router chi.Router
	http   *http.Server
}

// New builds the router around the compile handler and health manager.
//
// The compile endpoint is registered for every method: the handler itself
// enforces POST so the 405 body matches the service contract rather than
// the router's default.
func New(opts Options, compile http.Handler, health *handlers.HealthManager, logger *zap.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recovery(logger))
	if opts.RateLimitRPS > 0 {
		r.Use(middleware.RateLimit(opts.RateLimitRPS, opts.RateLimitBurst))
	}

	r.Get("/health", health.HealthHandler)
	r.Get("/health/live", health.LivenessHandler)
	r.Get("/health/ready", health.ReadinessHandler)
	r.Get("/version", handlers.VersionHandler)
	r.Handle("/", compile)

	return &Server{
		opts:   opts,
		router: r,
		http: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", opts.Host, opts.Port),
			Handler:      r,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
			IdleTimeout:  opts.IdleTimeout,
		},
	}
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.opts.Port
}

// Start serves until the listener closes. It returns nil on graceful
// shutdown.
func (s *Server) Start() error {
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
