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

//go:build !darwin || !cgo

package touchid

import (
	"context"

	"github.com/jeremyhahn/go-identity/pkg/platform"
)

// Authenticator is unavailable on this platform.
type Authenticator struct{}

// New always fails with ErrUnsupported.
func New(config *Config) (*Authenticator, error) {
	return nil, ErrUnsupported
}

func (a *Authenticator) Name() string { return Name }

func (a *Authenticator) Device(ctx context.Context) (platform.Device, error) {
	return platform.Device{}, ErrUnsupported
}

func (a *Authenticator) Evaluate(ctx context.Context, req platform.PromptRequest) error {
	return ErrUnsupported
}

func (a *Authenticator) Cancel() {}

func (a *Authenticator) EnrollmentGeneration(ctx context.Context) (uint64, error) {
	return 0, ErrUnsupported
}

var _ platform.Authenticator = (*Authenticator)(nil)
