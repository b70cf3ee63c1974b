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

// Package policy holds the process-wide authentication policy and answers
// capability questions about the device.
package policy

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/jeremyhahn/go-identity/pkg/adapters/audit"
	"github.com/jeremyhahn/go-identity/pkg/adapters/logger"
	"github.com/jeremyhahn/go-identity/pkg/correlation"
	"github.com/jeremyhahn/go-identity/pkg/platform"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

// DefaultPolicy is the policy of a new Context.
const DefaultPolicy = types.DefaultAuthenticationPolicy

// Config configures a Context.
type Config struct {
	Authenticator platform.Authenticator

	// Policy defaults to DefaultPolicy.
	Policy types.AuthenticationPolicy

	Logger logger.Logger
	Audit  audit.Adapter
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Authenticator == nil {
		return fmt.Errorf("%w: policy: authenticator is required", types.ErrInvalidArgument)
	}
	if c.Policy != 0 && !c.Policy.Valid() {
		return fmt.Errorf("%w: policy: unknown authentication policy %d", types.ErrInvalidArgument, c.Policy)
	}
	return nil
}

// Context is the mutable policy shared by every session of a module.
type Context struct {
	mu     sync.RWMutex
	policy types.AuthenticationPolicy
	auth   platform.Authenticator
	logger logger.Logger
	audit  audit.Adapter
}

// New creates a Context.
func New(config *Config) (*Context, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: policy: config is required", types.ErrInvalidArgument)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	c := &Context{
		policy: config.Policy,
		auth:   config.Authenticator,
		logger: config.Logger,
		audit:  config.Audit,
	}
	if c.policy == 0 {
		c.policy = DefaultPolicy
	}
	if c.logger == nil {
		c.logger = logger.NewNop()
	}
	if c.audit == nil {
		c.audit = audit.NewNop()
	}
	return c, nil
}

// Authenticator returns the platform the context queries.
func (c *Context) Authenticator() platform.Authenticator {
	return c.auth
}

// AuthenticationPolicy returns the current policy.
func (c *Context) AuthenticationPolicy() types.AuthenticationPolicy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.policy
}

// SetAuthenticationPolicy replaces the policy. Sessions started afterwards
// use the new value.
func (c *Context) SetAuthenticationPolicy(ctx context.Context, p types.AuthenticationPolicy) error {
	if !p.Valid() {
		return fmt.Errorf("%w: unknown authentication policy %d", types.ErrInvalidArgument, p)
	}
	c.mu.Lock()
	old := c.policy
	c.policy = p
	c.mu.Unlock()

	if old == p {
		return nil
	}
	c.logger.InfoContext(ctx, "authentication policy changed",
		logger.String("from", old.String()),
		logger.String("to", p.String()))

	event := audit.NewEvent(audit.EventPolicyChange, audit.OutcomeSuccess)
	event.CorrelationID = correlation.GetCorrelationID(ctx)
	event.Principal = audit.PrincipalFrom(ctx)
	event.Metadata = map[string]string{
		"from":   old.String(),
		"to":     p.String(),
		"policy": strconv.Itoa(int(p)),
	}
	if err := c.audit.Log(ctx, event); err != nil {
		c.logger.WarnContext(ctx, "audit log failed", logger.Error(err))
	}
	return nil
}

// IsSupported reports whether the device can authenticate under the current
// policy. A device that cannot be queried is reported as unsupported.
func (c *Context) IsSupported(ctx context.Context) bool {
	d, err := c.auth.Device(ctx)
	if err != nil {
		c.logger.DebugContext(ctx, "device query failed", logger.Error(err))
		return false
	}
	return platform.CanAuthenticate(d, c.AuthenticationPolicy()).CanAuthenticate
}

// Capabilities queries the biometric hardware.
func (c *Context) Capabilities(ctx context.Context) types.BiometryCapability {
	d, err := c.auth.Device(ctx)
	if err != nil {
		return types.BiometryCapability{ReasonUnavailable: types.KindOf(err)}
	}
	return d.Capability()
}

// BiometryType returns the sensor class, or BiometryNone.
func (c *Context) BiometryType(ctx context.Context) types.BiometryType {
	return c.Capabilities(ctx).BiometryType
}

// DeviceCanAuthenticate explains whether the current policy can be
// satisfied. Each call returns a new value.
func (c *Context) DeviceCanAuthenticate(ctx context.Context) *types.DeviceAuthStatus {
	d, err := c.auth.Device(ctx)
	if err != nil {
		return &types.DeviceAuthStatus{Error: err.Error(), Code: types.CodeOf(err)}
	}
	return platform.CanAuthenticate(d, c.AuthenticationPolicy())
}
