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

// Package server runs identityd: it builds an identity module from
// configuration and serves it over the REST API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/jeremyhahn/go-identity/internal/config"
	"github.com/jeremyhahn/go-identity/internal/rest"
	"github.com/jeremyhahn/go-identity/pkg/adapters/audit"
	"github.com/jeremyhahn/go-identity/pkg/health"
	"github.com/jeremyhahn/go-identity/pkg/identity"
	"github.com/jeremyhahn/go-identity/pkg/metrics"
	"github.com/jeremyhahn/go-identity/pkg/ratelimit"
	"github.com/jeremyhahn/go-identity/pkg/storage"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

// Server is a running identityd instance.
type Server struct {
	mu     sync.Mutex
	config *config.Config
	logger *slog.Logger
	level  *slog.LevelVar

	module  *identity.Module
	audit   audit.Adapter
	health  *health.Checker
	limiter *ratelimit.Limiter
	rest    *rest.Server

	wg    sync.WaitGroup
	errCh chan error
}

// New builds the module and REST server described by cfg. Nothing
// listens until Start.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	log, level := NewLogger(cfg.Logging)

	if cfg.Metrics.Enabled {
		metrics.Enable()
	} else {
		metrics.Disable()
	}

	auditor := NewAuditor(&cfg.Audit, log)
	module, err := BuildModule(ctx, cfg, log, auditor)
	if err != nil {
		_ = auditor.Close()
		return nil, err
	}

	s := &Server{
		config: cfg,
		logger: log,
		level:  level,
		module: module,
		audit:  auditor,
		errCh:  make(chan error, 1),
	}
	if cfg.Health.Enabled {
		s.health = health.NewChecker()
		s.health.RegisterCheck("store", health.StoreCheck(
			module.StoreCapabilities().Name, cfg.Health.ProbeTimeout, storage.Probe(module.Store())))
	}
	s.limiter = ratelimit.New(&ratelimit.Config{
		Enabled:           cfg.RateLimit.Enabled,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMin,
		Burst:             cfg.RateLimit.Burst,
		TrustForwardedFor: cfg.RateLimit.TrustForwardedFor,
	})

	if err := s.initREST(); err != nil {
		s.limiter.Stop()
		_ = module.Close(ctx)
		_ = auditor.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) initREST() error {
	tlsConfig, err := s.config.TLS.LoadTLSConfig()
	if err != nil {
		return fmt.Errorf("failed to load TLS configuration: %w", err)
	}
	authenticator, err := s.config.Auth.CreateAuthenticator()
	if err != nil {
		return fmt.Errorf("failed to create authenticator: %w", err)
	}

	cfg := &rest.Config{
		Addr:          s.config.Server.Address(),
		Module:        s.module,
		Audit:         s.audit,
		Version:       getBuildVersion(),
		TLSConfig:     tlsConfig,
		Authenticator: authenticator,
		Limiter:       s.limiter,
		Logger:        adapt(s.logger, "rest"),
		ReadTimeout:   s.config.Server.ReadTimeout,
		WriteTimeout:  s.config.Server.WriteTimeout,
	}
	// A nil *health.Checker must not become a non-nil interface.
	if s.health != nil {
		cfg.Health = s.health
	}
	if s.config.Metrics.Enabled {
		cfg.MetricsPath = s.config.Metrics.Path
	}
	s.rest, err = rest.NewServer(cfg)
	return err
}

// getBuildVersion retrieves the version from build information
func getBuildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && setting.Value != "" {
			if len(setting.Value) >= 7 {
				return setting.Value[:7]
			}
			return setting.Value
		}
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

// Module returns the identity module being served.
func (s *Server) Module() *identity.Module {
	return s.module
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Server.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Server.Address(), err)
	}
	s.StartOn(ln)
	return nil
}

// StartOn serves on ln in the background.
func (s *Server) StartOn(ln net.Listener) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.rest.Serve(ln); err != nil {
			s.logger.Error("REST server error", slog.Any("error", err))
			s.errCh <- err
		}
	}()
	if s.health != nil {
		s.health.MarkStarted()
	}
	s.logEvent(context.Background(), audit.EventSystemStart)
	s.logger.Info("identityd started",
		"address", ln.Addr().String(),
		"store", s.module.StoreCapabilities().Name,
		"policy", s.module.AuthenticationPolicy().String())
}

// Errors delivers a fatal serve error.
func (s *Server) Errors() <-chan error {
	return s.errCh
}

// Reload applies the parts of cfg that can change at runtime: the log
// level and the authentication policy. Other changes need a restart.
func (s *Server) Reload(ctx context.Context, cfg *config.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("Reloading configuration")
	if cfg.Logging.Format != s.config.Logging.Format {
		s.logger.Warn("Log format change requires a restart",
			"current", s.config.Logging.Format, "requested", cfg.Logging.Format)
	}
	if cfg.Logging.Level != s.config.Logging.Level {
		setLevel(s.level, cfg.Logging.Level)
		s.logger.Info("Log level updated", "level", cfg.Logging.Level)
	}

	policy, err := types.ParseAuthenticationPolicy(cfg.Policy.Default)
	if err != nil {
		return err
	}
	if err := s.module.SetAuthenticationPolicy(ctx, policy); err != nil {
		return fmt.Errorf("failed to apply policy: %w", err)
	}
	if cfg.Store.Backend != s.config.Store.Backend || cfg.Server != s.config.Server {
		s.logger.Warn("Store and listener changes require a restart")
	}

	s.config.Logging = cfg.Logging
	s.config.Policy.Default = cfg.Policy.Default
	return nil
}

// Shutdown stops accepting requests, waits for in-flight operations and
// closes the store.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down identityd")
	if s.health != nil {
		s.health.MarkNotStarted()
	}

	var errs []error
	if err := s.rest.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	s.wg.Wait()
	s.limiter.Stop()

	s.logEvent(ctx, audit.EventSystemStop)
	if err := s.module.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to close module: %w", err))
	}
	if err := s.audit.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.logger.Info("identityd stopped")
	return nil
}

// ShutdownTimeout is the configured grace period for Shutdown.
func (s *Server) ShutdownTimeout() time.Duration {
	if s.config.Server.ShutdownTimeout > 0 {
		return s.config.Server.ShutdownTimeout
	}
	return 30 * time.Second
}

func (s *Server) logEvent(ctx context.Context, typ audit.EventType) {
	e := audit.NewEvent(typ, audit.OutcomeSuccess)
	e.Store = s.module.StoreCapabilities().Name
	if err := s.audit.Log(ctx, e); err != nil {
		s.logger.Warn("audit log failed", slog.Any("error", err))
	}
}
