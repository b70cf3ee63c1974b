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

// Package identity is the entry point of go-identity. A Module ties one
// secure store and one platform authenticator together and hands out
// keychain items and authentication sessions.
//
//	m, err := identity.New(&identity.Config{
//		Store:         memory.New(nil),
//		Authenticator: simulated.New(nil),
//	})
//	it, _ := m.CreateKeychainItem(item.Options{Identifier: "password"})
//	c, _ := it.Save(ctx, []byte("s3cr3t"), nil)
//	r, _ := c.Wait(ctx)
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/coder/quartz"

	"github.com/jeremyhahn/go-identity/pkg/adapters/audit"
	"github.com/jeremyhahn/go-identity/pkg/adapters/logger"
	"github.com/jeremyhahn/go-identity/pkg/item"
	"github.com/jeremyhahn/go-identity/pkg/platform"
	"github.com/jeremyhahn/go-identity/pkg/policy"
	"github.com/jeremyhahn/go-identity/pkg/session"
	"github.com/jeremyhahn/go-identity/pkg/storage"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

// APIName is reported by the module.
const APIName = "Ti.Identity"

// Config configures a Module.
type Config struct {
	Store         storage.Adapter
	Authenticator platform.Authenticator

	// Policy is the initial authentication policy.
	Policy types.AuthenticationPolicy

	// Conflict decides how concurrent operations on one item behave.
	Conflict item.ConflictMode

	// Reason is shown when reading a protected item.
	Reason string

	// Clock drives reuse windows. Defaults to the real clock.
	Clock quartz.Clock

	Logger logger.Logger
	Audit  audit.Adapter
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Store == nil {
		return fmt.Errorf("%w: identity: store is required", types.ErrInvalidArgument)
	}
	if c.Authenticator == nil {
		return fmt.Errorf("%w: identity: authenticator is required", types.ErrInvalidArgument)
	}
	if c.Conflict != item.ConflictFailFast && c.Conflict != item.ConflictQueue {
		return fmt.Errorf("%w: identity: unknown conflict mode %d", types.ErrInvalidArgument, c.Conflict)
	}
	return nil
}

// Module is one configured identity instance.
type Module struct {
	store   storage.Adapter
	policy  *policy.Context
	session *session.Session
	flights *item.Flights
	reason  string
	logger  logger.Logger
	audit   audit.Adapter
}

// New wires a Module.
func New(config *Config) (*Module, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: identity: config is required", types.ErrInvalidArgument)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	log := config.Logger
	if log == nil {
		log = logger.NewNop()
	}
	auditor := config.Audit
	if auditor == nil {
		auditor = audit.NewNop()
	}

	pc, err := policy.New(&policy.Config{
		Authenticator: config.Authenticator,
		Policy:        config.Policy,
		Logger:        log,
		Audit:         auditor,
	})
	if err != nil {
		return nil, err
	}
	s, err := session.New(&session.Config{
		Policy: pc,
		Clock:  config.Clock,
		Logger: log.With(logger.String("component", "session")),
		Audit:  auditor,
	})
	if err != nil {
		return nil, err
	}

	m := &Module{
		store:   config.Store,
		policy:  pc,
		session: s,
		flights: item.NewFlights(config.Conflict),
		reason:  config.Reason,
		logger:  log,
		audit:   auditor,
	}
	log.Info("identity module ready",
		logger.String("store", config.Store.Capabilities().Name),
		logger.String("authenticator", config.Authenticator.Name()),
		logger.String("policy", pc.AuthenticationPolicy().String()),
		logger.String("conflict", config.Conflict.String()))
	return m, nil
}

func (m *Module) APIName() string { return APIName }

// CreateKeychainItem returns a handle on an item. Items of one module share
// the conflict registry and unlock through the module's session.
func (m *Module) CreateKeychainItem(opts item.Options) (*item.Item, error) {
	return item.New(&item.Config{
		Store:   m.store,
		Flights: m.flights,
		Gate:    m.session.Gate(),
		Reason:  m.reason,
		Logger:  m.logger.With(logger.String("component", "item")),
		Audit:   m.audit,
	}, opts)
}

// Authenticate prompts the user under the current policy.
func (m *Module) Authenticate(ctx context.Context, req session.Request, cb session.Callback) (*session.Completion, error) {
	return m.session.Authenticate(ctx, req, cb)
}

// Invalidate ends the current authentication context.
func (m *Module) Invalidate() {
	m.session.Invalidate()
}

func (m *Module) IsSupported(ctx context.Context) bool {
	return m.policy.IsSupported(ctx)
}

func (m *Module) DeviceCanAuthenticate(ctx context.Context) *types.DeviceAuthStatus {
	return m.policy.DeviceCanAuthenticate(ctx)
}

func (m *Module) SetAuthenticationPolicy(ctx context.Context, p types.AuthenticationPolicy) error {
	return m.policy.SetAuthenticationPolicy(ctx, p)
}

func (m *Module) AuthenticationPolicy() types.AuthenticationPolicy {
	return m.policy.AuthenticationPolicy()
}

func (m *Module) BiometryType(ctx context.Context) types.BiometryType {
	return m.policy.BiometryType(ctx)
}

func (m *Module) Capabilities(ctx context.Context) types.BiometryCapability {
	return m.policy.Capabilities(ctx)
}

// StoreCapabilities describes the secure store.
func (m *Module) StoreCapabilities() storage.Capabilities {
	return m.store.Capabilities()
}

// SessionState returns the lifecycle state of the module's session.
func (m *Module) SessionState() session.State {
	return m.session.State()
}

// Store returns the secure store, for health probes.
func (m *Module) Store() storage.Adapter {
	return m.store
}

// Close waits for outstanding operations, then closes the session and the
// store.
func (m *Module) Close(ctx context.Context) error {
	var errs []error
	if err := m.flights.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("identity: waiting for item operations: %w", err))
	}
	if err := m.session.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("identity: closing session: %w", err))
	}
	if err := m.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("identity: closing store: %w", err))
	}
	m.logger.Info("identity module closed")
	return errors.Join(errs...)
}
