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

package types

import (
	"fmt"
	"strings"
)

// AuthenticationPolicy selects which factors an authentication prompt accepts.
type AuthenticationPolicy int

const (
	PolicyBiometrics AuthenticationPolicy = iota + 1
	PolicyPasscode
	PolicyBiometricsOrPasscode
	PolicyBiometricsOrWatch
	PolicyWatch
)

// DefaultAuthenticationPolicy is the policy in effect until one is set.
const DefaultAuthenticationPolicy = PolicyBiometrics

var policyNames = map[AuthenticationPolicy]string{
	PolicyBiometrics:           "biometrics",
	PolicyPasscode:             "passcode",
	PolicyBiometricsOrPasscode: "biometrics_or_passcode",
	PolicyBiometricsOrWatch:    "biometrics_or_watch",
	PolicyWatch:                "watch",
}

// String returns the policy name used in config files and APIs.
func (p AuthenticationPolicy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// Valid reports whether p is one of the defined policies.
func (p AuthenticationPolicy) Valid() bool {
	_, ok := policyNames[p]
	return ok
}

// AcceptsBiometry reports whether a biometric match satisfies p.
func (p AuthenticationPolicy) AcceptsBiometry() bool {
	return p == PolicyBiometrics || p == PolicyBiometricsOrPasscode || p == PolicyBiometricsOrWatch
}

// AcceptsPasscode reports whether the device passcode satisfies p.
func (p AuthenticationPolicy) AcceptsPasscode() bool {
	return p == PolicyPasscode || p == PolicyBiometricsOrPasscode
}

// AcceptsWatch reports whether a paired watch satisfies p.
func (p AuthenticationPolicy) AcceptsWatch() bool {
	return p == PolicyBiometricsOrWatch || p == PolicyWatch
}

// ParseAuthenticationPolicy accepts a policy name or its numeric value.
func ParseAuthenticationPolicy(s string) (AuthenticationPolicy, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for p, name := range policyNames {
		if s == name || s == fmt.Sprintf("%d", int(p)) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown authentication policy %q", ErrInvalidArgument, s)
}

// BiometryType is the class of biometric sensor available on the device.
type BiometryType int

const (
	BiometryNone BiometryType = iota
	BiometryFingerprint
	BiometryFace
)

// Touch ID and Face ID aliases.
const (
	BiometryTouchID = BiometryFingerprint
	BiometryFaceID  = BiometryFace
)

// String returns the biometry name.
func (b BiometryType) String() string {
	switch b {
	case BiometryFingerprint:
		return "fingerprint"
	case BiometryFace:
		return "face"
	default:
		return "none"
	}
}
