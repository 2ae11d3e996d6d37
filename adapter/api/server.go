// Package api serves the scheduling engine over HTTP: staff and patient
// booking endpoints plus the public token links sent in notifications.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/maximegiguere1one/chiroflow/internal/app"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the HTTP API server.
type Server struct {
	router chi.Router
	server *http.Server
	logger *slog.Logger
	c      *app.Container
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         "0.0.0.0:8080",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewServer creates an API server over a wired container.
func NewServer(cfg ServerConfig, c *app.Container) *Server {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router: chi.NewRouter(),
		logger: logger,
		c:      c,
	}
	s.registerRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestContext(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.c.Health.Handler())
	if s.c.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.c.Registry, promhttp.HandlerOpts{}))
	}

	scheduling := &schedulingHandler{c: s.c, logger: s.logger}
	waitlist := &waitlistHandler{c: s.c, logger: s.logger}
	tokens := &tokenHandler{gateway: s.c.Gateway, logger: s.logger}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/owners/{ownerID}/slots", scheduling.AvailableSlots)

		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", scheduling.Book)
			r.Route("/{appointmentID}", func(r chi.Router) {
				r.Get("/", scheduling.Get)
				r.Get("/reschedule-eligibility", scheduling.RescheduleEligibility)
				r.Post("/reschedule", scheduling.Reschedule)
				r.Post("/cancel", scheduling.Cancel)
				r.Post("/outcome", scheduling.RecordOutcome)
			})
		})

		r.Post("/waitlist", waitlist.Join)
		r.Post("/rebooking-requests", waitlist.CreateRebooking)
	})

	// Token links are public; the token is the credential.
	r.Route("/t/{token}", func(r chi.Router) {
		r.Get("/", tokens.Resolve)
		r.Post("/{action}", tokens.Perform)
	})
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}
