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

// Package platform defines the device authentication capability that
// sessions prompt through, and the checks shared by every implementation.
package platform

import (
	"context"
	"fmt"
	"strings"

	"github.com/jeremyhahn/go-identity/pkg/types"
)

// Device is a snapshot of the device's authentication hardware.
type Device struct {
	HardwarePresent  bool               `json:"hardwarePresent" yaml:"hardware_present"`
	BiometryType     types.BiometryType `json:"biometryType" yaml:"biometry_type"`
	BiometryEnrolled bool               `json:"biometryEnrolled" yaml:"biometry_enrolled"`
	PasscodeSet      bool               `json:"passcodeSet" yaml:"passcode_set"`
	WatchPaired      bool               `json:"watchPaired" yaml:"watch_paired"`
	LockedOut        bool               `json:"lockedOut" yaml:"locked_out"`
}

// BiometryUsable reports whether a biometric prompt could succeed now.
func (d Device) BiometryUsable() bool {
	return d.HardwarePresent && d.BiometryType != types.BiometryNone && d.BiometryEnrolled && !d.LockedOut
}

// Factors returns the factors the device can present.
func (d Device) Factors() types.Factors {
	return types.Factors{
		Biometry: d.HardwarePresent && d.BiometryEnrolled,
		Passcode: d.PasscodeSet,
		Watch:    d.WatchPaired,
	}
}

// Capability describes the biometric hardware.
func (d Device) Capability() types.BiometryCapability {
	c := types.BiometryCapability{Supported: d.BiometryUsable()}
	if d.HardwarePresent {
		c.BiometryType = d.BiometryType
	}
	if !c.Supported {
		c.ReasonUnavailable, _ = biometryFailure(d)
	}
	return c
}

// PromptRequest is what a prompt shows and which factors it accepts.
type PromptRequest struct {
	Policy        types.AuthenticationPolicy
	Reason        string
	Title         string
	Subtitle      string
	FallbackTitle string
	CancelTitle   string
}

// Authenticator presents authentication prompts.
type Authenticator interface {
	// Device reports the hardware state at call time.
	Device(ctx context.Context) (Device, error)

	// Evaluate shows a prompt and blocks until it is answered. It returns
	// nil on success and otherwise an error wrapping a types ErrorKind.
	// Cancelling ctx or calling Cancel dismisses the prompt with
	// AppCancelled.
	Evaluate(ctx context.Context, req PromptRequest) error

	// Cancel dismisses any open prompt.
	Cancel()

	// EnrollmentGeneration changes whenever the enrolled biometric set
	// changes.
	EnrollmentGeneration(ctx context.Context) (uint64, error)

	Name() string
}

// CanAuthenticate reports whether d can satisfy policy. The error text
// lists every missing requirement.
func CanAuthenticate(d Device, policy types.AuthenticationPolicy) *types.DeviceAuthStatus {
	var reasons []string
	var kind *types.ErrorKind

	fail := func(k *types.ErrorKind, reason string) {
		if kind == nil {
			kind = k
		}
		reasons = append(reasons, reason)
	}
	biometry := func() {
		if k, reason := biometryFailure(d); k != nil {
			fail(k, reason)
		}
	}

	switch policy {
	case types.PolicyPasscode:
		if !d.PasscodeSet {
			fail(types.ErrPasscodeNotSet, "Device is not secure, passcode not set")
		}
	case types.PolicyBiometricsOrPasscode:
		if !d.BiometryUsable() && !d.PasscodeSet {
			biometry()
			fail(types.ErrPasscodeNotSet, "No passcode detected")
		}
	case types.PolicyWatch:
		if !d.WatchPaired {
			fail(types.ErrBiometryNotAvailable, "No paired watch")
		}
	case types.PolicyBiometricsOrWatch:
		if !d.BiometryUsable() && !d.WatchPaired {
			biometry()
			fail(types.ErrBiometryNotAvailable, "No paired watch")
		}
	default:
		biometry()
	}

	if kind == nil {
		return &types.DeviceAuthStatus{CanAuthenticate: true}
	}
	return &types.DeviceAuthStatus{
		Error: joinReasons(reasons),
		Code:  kind.Code,
	}
}

// Preflight returns the error a prompt under policy would fail with before
// it is shown, or nil.
func Preflight(d Device, policy types.AuthenticationPolicy) error {
	status := CanAuthenticate(d, policy)
	if status.CanAuthenticate {
		return nil
	}
	return fmt.Errorf("%w: %s", types.KindForCode(status.Code), status.Error)
}

func biometryFailure(d Device) (*types.ErrorKind, string) {
	switch {
	case !d.HardwarePresent || d.BiometryType == types.BiometryNone:
		return types.ErrBiometryNotAvailable, "Hardware not detected"
	case !d.BiometryEnrolled:
		return types.ErrBiometryNotEnrolled, "No enrolled biometrics"
	case d.LockedOut:
		return types.ErrBiometryLockout, "Biometry is locked out"
	}
	return nil, ""
}

// joinReasons renders "A, and b, and c".
func joinReasons(reasons []string) string {
	var b strings.Builder
	for i, r := range reasons {
		if i == 0 {
			b.WriteString(r)
			continue
		}
		b.WriteString(", and ")
		b.WriteString(strings.ToLower(r[:1]) + r[1:])
	}
	return b.String()
}
