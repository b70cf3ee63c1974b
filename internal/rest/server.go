// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-identity.
//
// go-identity is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeremyhahn/go-identity/pkg/adapters/audit"
	"github.com/jeremyhahn/go-identity/pkg/adapters/auth"
	"github.com/jeremyhahn/go-identity/pkg/adapters/logger"
	"github.com/jeremyhahn/go-identity/pkg/identity"
	"github.com/jeremyhahn/go-identity/pkg/metrics"
	"github.com/jeremyhahn/go-identity/pkg/ratelimit"
)

// Server represents the REST API server.
type Server struct {
	server        *http.Server
	handlers      *HandlerContext
	tlsConfig     *tls.Config
	authenticator auth.Authenticator
	limiter       *ratelimit.Limiter
	metricsPath   string
	logger        logger.Logger
}

// Config holds the REST server configuration.
type Config struct {
	// Addr is the host:port to listen on.
	Addr string

	Module *identity.Module

	// Health backs the /health probes. Probes report healthy when nil.
	Health HealthChecker

	// Audit answers GET /api/v1/audit. The route returns 501 when the
	// adapter cannot be queried.
	Audit audit.Adapter

	// Version is reported by /api/v1/info.
	Version string

	// TLSConfig enables HTTPS when set.
	TLSConfig *tls.Config

	// Authenticator defaults to NoOp.
	Authenticator auth.Authenticator

	// Limiter applies per-client rate limits to /api/v1 when set.
	Limiter *ratelimit.Limiter

	// MetricsPath serves Prometheus metrics when non-empty.
	MetricsPath string

	Logger logger.Logger

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer creates a new REST API server.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Module == nil {
		return nil, fmt.Errorf("identity module is required")
	}

	if cfg.Addr == "" {
		cfg.Addr = ":8443"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	// Authenticate blocks on the user, so writes get a longer budget.
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 2 * time.Minute
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}

	authenticator := cfg.Authenticator
	if authenticator == nil {
		authenticator = auth.NewNoOpAuthenticator()
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	auditor := cfg.Audit
	if auditor == nil {
		auditor = audit.NewNop()
	}

	s := &Server{
		handlers: &HandlerContext{
			module:        cfg.Module,
			HealthChecker: cfg.Health,
			audit:         auditor,
			version:       cfg.Version,
		},
		tlsConfig:     cfg.TLSConfig,
		authenticator: authenticator,
		limiter:       cfg.Limiter,
		metricsPath:   cfg.MetricsPath,
		logger:        log,
	}
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.setupRouter(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		TLSConfig:         cfg.TLSConfig,
	}
	return s, nil
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(s.RecoveryMiddleware())
	r.Use(s.CorrelationMiddleware())
	r.Use(s.LoggingMiddleware())
	r.Use(metrics.HTTPMiddleware)

	r.Get("/health/live", s.handlers.LivenessHandler)
	r.Get("/health/ready", s.handlers.ReadinessHandler)
	r.Get("/health/startup", s.handlers.StartupHandler)
	if s.metricsPath != "" {
		r.Handle(s.metricsPath, promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if s.limiter != nil && s.limiter.IsEnabled() {
			r.Use(ratelimit.Middleware(s.limiter))
		}
		r.Use(auth.Middleware(s.authenticator))
		r.Use(PrincipalMiddleware)

		r.Get("/info", s.handlers.InfoHandler)

		r.Route("/items/{id}", func(r chi.Router) {
			r.With(auth.RequireScope(auth.ScopeItemsRead)).Get("/", s.handlers.ReadItemHandler)
			r.With(auth.RequireScope(auth.ScopeItemsRead)).Head("/", s.handlers.ItemExistsHandler)
			r.With(auth.RequireScope(auth.ScopeItemsRead)).Get("/exists", s.handlers.ItemExistsHandler)
			r.With(auth.RequireScope(auth.ScopeItemsWrite)).Put("/", s.handlers.SaveItemHandler)
			r.With(auth.RequireScope(auth.ScopeItemsWrite)).Patch("/", s.handlers.UpdateItemHandler)
			r.With(auth.RequireScope(auth.ScopeItemsWrite)).Delete("/", s.handlers.ResetItemHandler)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireScope(auth.ScopeAuth))
			r.Post("/auth", s.handlers.AuthenticateHandler)
			r.Post("/auth/invalidate", s.handlers.InvalidateHandler)
			r.Get("/policy", s.handlers.GetPolicyHandler)
			r.Get("/device", s.handlers.DeviceHandler)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireScope(auth.ScopePolicy))
			r.Put("/policy", s.handlers.SetPolicyHandler)
			r.Get("/audit", s.handlers.AuditHandler)
		})
	})

	return r
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start listens and serves until Stop is called.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Stop is called.
func (s *Server) Serve(ln net.Listener) error {
	if s.tlsConfig != nil {
		s.logger.Info("Starting HTTPS server",
			logger.String("address", ln.Addr().String()),
			logger.String("auth", s.authenticator.Name()))
		ln = tls.NewListener(ln, s.tlsConfig)
	} else {
		s.logger.Info("Starting HTTP server",
			logger.String("address", ln.Addr().String()),
			logger.String("auth", s.authenticator.Name()))
	}
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the REST API server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown server", logger.Error(err))
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	s.logger.Info("Server stopped")
	return nil
}
