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

package mocks

import (
	"context"
	"sync"

	"github.com/jeremyhahn/go-identity/pkg/storage"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

// MockGate is a storage.Gate with fixed device factors. Authorize succeeds
// unless AuthorizeErr or AuthorizeFunc says otherwise.
type MockGate struct {
	mu sync.Mutex

	DeviceFactors types.Factors
	Generation    uint64
	AuthorizeErr  error

	AuthorizeFunc func(ctx context.Context, mode types.AccessControlMode, reason string) error

	AuthorizeCalls []types.AccessControlMode
	Reasons        []string
}

// NewMockGate returns a gate for a device with biometry and a passcode.
func NewMockGate() *MockGate {
	return &MockGate{DeviceFactors: types.Factors{Biometry: true, Passcode: true}}
}

func (g *MockGate) Factors(context.Context) (types.Factors, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.DeviceFactors, nil
}

func (g *MockGate) Authorize(ctx context.Context, mode types.AccessControlMode, reason string) error {
	g.mu.Lock()
	g.AuthorizeCalls = append(g.AuthorizeCalls, mode)
	g.Reasons = append(g.Reasons, reason)
	fn, err := g.AuthorizeFunc, g.AuthorizeErr
	g.mu.Unlock()
	if fn != nil {
		return fn(ctx, mode, reason)
	}
	return err
}

func (g *MockGate) EnrollmentGeneration(context.Context) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Generation, nil
}

// SetGeneration simulates a biometric enrollment change.
func (g *MockGate) SetGeneration(gen uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Generation = gen
}

// AuthorizeCount returns the number of Authorize calls.
func (g *MockGate) AuthorizeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.AuthorizeCalls)
}

var _ storage.Gate = (*MockGate)(nil)
