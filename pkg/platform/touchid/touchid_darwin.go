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

//go:build darwin && cgo

package touchid

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ansxuman/go-touchid"

	"github.com/jeremyhahn/go-identity/pkg/platform"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

// Authenticator prompts through LocalAuthentication.
type Authenticator struct {
	mu      sync.Mutex
	state   *deviceState
	pending bool
	cancel  chan struct{}
}

// New creates a Touch ID authenticator.
func New(config *Config) (*Authenticator, error) {
	if config == nil {
		config = &Config{}
	}
	biometry := config.BiometryType
	if biometry == types.BiometryNone {
		biometry = types.BiometryFingerprint
	}
	return &Authenticator{state: newDeviceState(biometry)}, nil
}

func (a *Authenticator) Name() string { return Name }

// Device reports a Mac with a passcode and an enrolled sensor until a
// prompt answer says otherwise. Watch unlock is not exposed through
// go-touchid.
func (a *Authenticator) Device(ctx context.Context) (platform.Device, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.current(time.Now()), nil
}

// EnrollmentGeneration is constant. LocalAuthentication's domain state is
// not exposed through go-touchid, so items bound to the current biometry
// set are never invalidated by this authenticator.
func (a *Authenticator) EnrollmentGeneration(ctx context.Context) (uint64, error) {
	return 1, nil
}

// Evaluate shows the system prompt. Cancelling returns AppCancelled at once,
// but the system sheet stays up until the user dismisses it; a new prompt
// is refused with Busy until then.
func (a *Authenticator) Evaluate(ctx context.Context, req platform.PromptRequest) error {
	device, _ := a.Device(ctx)
	if err := platform.Preflight(device, req.Policy); err != nil {
		return err
	}
	deviceType := touchid.DeviceTypeBiometrics
	if req.Policy.AcceptsPasscode() {
		deviceType = touchid.DeviceTypeAny
	}

	a.mu.Lock()
	if a.pending {
		a.mu.Unlock()
		return fmt.Errorf("%w: a prompt is already showing", types.ErrBusy)
	}
	a.pending = true
	cancel := make(chan struct{})
	a.cancel = cancel
	a.mu.Unlock()

	answer := make(chan error, 1)
	go func() {
		ok, err := touchid.Auth(deviceType, req.Reason)
		result := mapResult(ok, err)
		a.mu.Lock()
		a.pending = false
		a.cancel = nil
		a.state.record(time.Now(), req.Policy, result)
		a.mu.Unlock()
		answer <- result
	}()

	select {
	case err := <-answer:
		return err
	case <-cancel:
		return types.ErrAppCancelled
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", types.ErrAppCancelled, ctx.Err())
	}
}

func (a *Authenticator) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		close(a.cancel)
		a.cancel = nil
	}
}

var _ platform.Authenticator = (*Authenticator)(nil)
