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

package session

import (
	"context"
	"fmt"

	"github.com/jeremyhahn/go-identity/pkg/storage"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

// DefaultGateReason is shown when an item operation does not supply one.
const DefaultGateReason = "Authenticate to access a protected item"

// Gate returns a storage.Gate that unlocks items through this session.
func (s *Session) Gate() storage.Gate {
	return gate{s}
}

type gate struct {
	s *Session
}

func (g gate) Factors(ctx context.Context) (types.Factors, error) {
	d, err := g.s.auth.Device(ctx)
	if err != nil {
		return types.Factors{}, err
	}
	return d.Factors(), nil
}

// Authorize prompts once for each policy mode needs, in order, and stops at
// the first failure. A reuse window recorded under the same policy skips
// that prompt.
func (g gate) Authorize(ctx context.Context, mode types.AccessControlMode, reason string) error {
	if reason == "" {
		reason = DefaultGateReason
	}
	for _, p := range mode.Policies() {
		if err := g.prompt(ctx, p, reason); err != nil {
			return err
		}
	}
	return nil
}

func (g gate) prompt(ctx context.Context, p types.AuthenticationPolicy, reason string) error {
	c, err := g.s.Authenticate(ctx, Request{Reason: reason, Policy: p}, nil)
	if err != nil {
		return err
	}
	r, err := c.Wait(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrAppCancelled, err)
	}
	if !r.Success {
		return &types.ResultError{Kind: types.KindForCode(r.Code), Message: r.Error}
	}
	return nil
}

func (g gate) EnrollmentGeneration(ctx context.Context) (uint64, error) {
	return g.s.auth.EnrollmentGeneration(ctx)
}
