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

package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jeremyhahn/go-identity/internal/config"
	"github.com/jeremyhahn/go-identity/pkg/adapters/audit"
	"github.com/jeremyhahn/go-identity/pkg/adapters/logger"
	"github.com/jeremyhahn/go-identity/pkg/identity"
	"github.com/jeremyhahn/go-identity/pkg/item"
	"github.com/jeremyhahn/go-identity/pkg/platform"
	"github.com/jeremyhahn/go-identity/pkg/platform/simulated"
	"github.com/jeremyhahn/go-identity/pkg/platform/touchid"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

var biometryTypes = map[string]types.BiometryType{
	"none":        types.BiometryNone,
	"fingerprint": types.BiometryFingerprint,
	"face":        types.BiometryFace,
}

// NewAuthenticator builds the platform authenticator selected by cfg.
func NewAuthenticator(cfg *config.PlatformConfig, log *slog.Logger) (platform.Authenticator, error) {
	switch cfg.Type {
	case "simulated":
		sc := cfg.Simulated
		sim := &simulated.Config{
			Device: platform.Device{
				HardwarePresent:  sc.HardwarePresent,
				BiometryType:     biometryTypes[sc.BiometryType],
				BiometryEnrolled: sc.BiometryEnrolled,
				PasscodeSet:      sc.PasscodeSet,
				WatchPaired:      sc.WatchPaired,
			},
			MaxFailures: sc.MaxFailures,
			Logger:      adapt(log, "platform"),
		}
		if sc.Outcome == "reject" {
			sim.Outcome = func(platform.PromptRequest) error {
				return types.ErrAuthenticationFailed
			}
		}
		log.Warn("Simulated authenticator in use, prompts are answered without a user")
		return simulated.New(sim), nil
	case "touchid":
		a, err := touchid.New(&touchid.Config{BiometryType: types.BiometryTouchID})
		if err != nil {
			return nil, err
		}
		return a, nil
	}
	return nil, fmt.Errorf("unknown platform type %q", cfg.Type)
}

// NewAuditor builds the audit sink selected by cfg.
func NewAuditor(cfg *config.AuditConfig, log *slog.Logger) audit.Adapter {
	switch cfg.Type {
	case "memory":
		return audit.NewMemoryAdapter(cfg.Capacity)
	case "none":
		return audit.NewNop()
	default:
		return audit.NewLoggerAdapter(adapt(log, "audit"))
	}
}

// BuildModule opens the configured store and authenticator and wires an
// identity module over them. Closing the module closes the store.
func BuildModule(ctx context.Context, cfg *config.Config, log *slog.Logger, auditor audit.Adapter) (*identity.Module, error) {
	policy, err := types.ParseAuthenticationPolicy(cfg.Policy.Default)
	if err != nil {
		return nil, err
	}
	conflict, err := item.ParseConflictMode(cfg.Policy.Conflict)
	if err != nil {
		return nil, err
	}
	auth, err := NewAuthenticator(&cfg.Platform, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticator: %w", err)
	}
	store, err := OpenStore(ctx, &cfg.Store, log)
	if err != nil {
		return nil, err
	}

	m, err := identity.New(&identity.Config{
		Store:         store,
		Authenticator: auth,
		Policy:        policy,
		Conflict:      conflict,
		Reason:        cfg.Policy.Reason,
		Logger:        adapt(log, "identity"),
		Audit:         auditor,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	log.Info("Identity module ready",
		"platform", auth.Name(),
		"policy", policy.String(),
		"conflict", conflict.String())
	return m, nil
}

// NewLogger builds the process logger. The returned LevelVar can be
// changed at runtime.
func NewLogger(cfg config.LoggingConfig) (*slog.Logger, *slog.LevelVar) {
	level := new(slog.LevelVar)
	setLevel(level, cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler), level
}

func setLevel(v *slog.LevelVar, name string) {
	l, _ := logger.ParseLevel(name)
	switch l {
	case logger.LevelDebug:
		v.Set(slog.LevelDebug)
	case logger.LevelWarn:
		v.Set(slog.LevelWarn)
	case logger.LevelError:
		v.Set(slog.LevelError)
	default:
		v.Set(slog.LevelInfo)
	}
}

// adapt wraps log for packages that take a logger.Logger.
func adapt(log *slog.Logger, component string) logger.Logger {
	return logger.NewSlogAdapter(&logger.SlogConfig{Logger: log.With("component", component)})
}
