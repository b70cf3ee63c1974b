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

// AccessibilityMode describes when, relative to the device lock state, a
// stored item may be read. Values are the keychain attribute codes and must
// not change.
type AccessibilityMode string

const (
	AccessibleWhenUnlocked                   AccessibilityMode = "ak"
	AccessibleAfterFirstUnlock               AccessibilityMode = "ck"
	AccessibleAlways                         AccessibilityMode = "dk"
	AccessibleWhenPasscodeSetThisDeviceOnly  AccessibilityMode = "akpu"
	AccessibleWhenUnlockedThisDeviceOnly     AccessibilityMode = "aku"
	AccessibleAfterFirstUnlockThisDeviceOnly AccessibilityMode = "cku"
	AccessibleAlwaysThisDeviceOnly           AccessibilityMode = "dku"
)

// DefaultAccessibility applies when an item does not set a mode.
const DefaultAccessibility = AccessibleWhenUnlocked

// Keystore integer codes for the accessibility modes that exist there.
const (
	AndroidAccessibleAlways                        = 0
	AndroidAccessibleAlwaysThisDeviceOnly          = 1
	AndroidAccessibleWhenPasscodeSetThisDeviceOnly = 2
)

// Valid reports whether m is a known mode. The empty mode is valid and
// resolves to DefaultAccessibility.
func (m AccessibilityMode) Valid() bool {
	switch m {
	case "", AccessibleWhenUnlocked, AccessibleAfterFirstUnlock, AccessibleAlways,
		AccessibleWhenPasscodeSetThisDeviceOnly, AccessibleWhenUnlockedThisDeviceOnly,
		AccessibleAfterFirstUnlockThisDeviceOnly, AccessibleAlwaysThisDeviceOnly:
		return true
	}
	return false
}

// OrDefault returns m, or DefaultAccessibility when m is empty.
func (m AccessibilityMode) OrDefault() AccessibilityMode {
	if m == "" {
		return DefaultAccessibility
	}
	return m
}

// ThisDeviceOnly reports whether items in this mode never migrate to
// another device through backup or sync.
func (m AccessibilityMode) ThisDeviceOnly() bool {
	return strings.HasSuffix(string(m), "u")
}

// RequiresPasscode reports whether the mode can only be used on a device
// with a passcode.
func (m AccessibilityMode) RequiresPasscode() bool {
	return m == AccessibleWhenPasscodeSetThisDeviceOnly
}

// AndroidCode returns the keystore integer for m, if one exists.
func (m AccessibilityMode) AndroidCode() (int, bool) {
	switch m {
	case AccessibleAlways:
		return AndroidAccessibleAlways, true
	case AccessibleAlwaysThisDeviceOnly:
		return AndroidAccessibleAlwaysThisDeviceOnly, true
	case AccessibleWhenPasscodeSetThisDeviceOnly:
		return AndroidAccessibleWhenPasscodeSetThisDeviceOnly, true
	}
	return 0, false
}

// AccessibilityFromAndroid converts a keystore integer code.
func AccessibilityFromAndroid(code int) (AccessibilityMode, error) {
	switch code {
	case AndroidAccessibleAlways:
		return AccessibleAlways, nil
	case AndroidAccessibleAlwaysThisDeviceOnly:
		return AccessibleAlwaysThisDeviceOnly, nil
	case AndroidAccessibleWhenPasscodeSetThisDeviceOnly:
		return AccessibleWhenPasscodeSetThisDeviceOnly, nil
	}
	return "", fmt.Errorf("%w: unknown accessibility code %d", ErrInvalidArgument, code)
}

// AccessControlMode is a set of factors that gate access to an item. Bit
// values match SecAccessControlCreateFlags.
type AccessControlMode uint32

const (
	AccessControlUserPresence        AccessControlMode = 1 << 0
	AccessControlBiometryAny         AccessControlMode = 1 << 1
	AccessControlBiometryCurrentSet  AccessControlMode = 1 << 3
	AccessControlDevicePasscode      AccessControlMode = 1 << 4
	AccessControlWatch               AccessControlMode = 1 << 5
	AccessControlOr                  AccessControlMode = 1 << 14
	AccessControlAnd                 AccessControlMode = 1 << 15
	AccessControlPrivateKeyUsage     AccessControlMode = 1 << 30
	AccessControlApplicationPassword AccessControlMode = 1 << 31
)

// Legacy Touch ID names.
const (
	AccessControlTouchIDAny        = AccessControlBiometryAny
	AccessControlTouchIDCurrentSet = AccessControlBiometryCurrentSet
)

const factorMask = AccessControlUserPresence | AccessControlBiometryAny |
	AccessControlBiometryCurrentSet | AccessControlDevicePasscode | AccessControlWatch

const knownMask = factorMask | AccessControlOr | AccessControlAnd |
	AccessControlPrivateKeyUsage | AccessControlApplicationPassword

// Keystore integer codes for access control.
const (
	AndroidAccessControlUserPresence      = 1
	AndroidAccessControlDevicePasscode    = 2
	AndroidAccessControlTouchIDAny        = 3
	AndroidAccessControlTouchIDCurrentSet = 4
)

// AccessControlFromAndroid converts a keystore integer code.
func AccessControlFromAndroid(code int) (AccessControlMode, error) {
	switch code {
	case AndroidAccessControlUserPresence:
		return AccessControlUserPresence, nil
	case AndroidAccessControlDevicePasscode:
		return AccessControlDevicePasscode, nil
	case AndroidAccessControlTouchIDAny:
		return AccessControlBiometryAny, nil
	case AndroidAccessControlTouchIDCurrentSet:
		return AccessControlBiometryCurrentSet, nil
	}
	return 0, fmt.Errorf("%w: unknown access control code %d", ErrInvalidArgument, code)
}

// Has reports whether every bit of flag is set in m.
func (m AccessControlMode) Has(flag AccessControlMode) bool {
	return m&flag == flag
}

// Gated reports whether m requires any authentication factor.
func (m AccessControlMode) Gated() bool {
	return m&factorMask != 0
}

// Validate rejects unknown bits and contradictory combinators.
func (m AccessControlMode) Validate() error {
	if m&^knownMask != 0 {
		return fmt.Errorf("%w: unknown access control bits %#x", ErrInvalidArgument, uint32(m&^knownMask))
	}
	if m.Has(AccessControlOr) && m.Has(AccessControlAnd) {
		return fmt.Errorf("%w: access control cannot combine OR and AND", ErrInvalidArgument)
	}
	if (m.Has(AccessControlOr) || m.Has(AccessControlAnd)) && !m.Gated() {
		return fmt.Errorf("%w: access control combinator without factors", ErrInvalidArgument)
	}
	return nil
}

// Factors describes which authentication factors a device can present.
type Factors struct {
	Biometry bool
	Passcode bool
	Watch    bool
}

// SatisfiedBy reports whether a device with the given factors can satisfy m.
// Multiple factors combine with AND unless AccessControlOr is set.
func (m AccessControlMode) SatisfiedBy(f Factors) bool {
	if !m.Gated() {
		return true
	}
	checks := make([]bool, 0, 4)
	if m.Has(AccessControlUserPresence) {
		checks = append(checks, f.Biometry || f.Passcode)
	}
	if m.Has(AccessControlBiometryAny) || m.Has(AccessControlBiometryCurrentSet) {
		checks = append(checks, f.Biometry)
	}
	if m.Has(AccessControlDevicePasscode) {
		checks = append(checks, f.Passcode)
	}
	if m.Has(AccessControlWatch) {
		checks = append(checks, f.Watch)
	}
	if m.Has(AccessControlOr) {
		for _, ok := range checks {
			if ok {
				return true
			}
		}
		return false
	}
	for _, ok := range checks {
		if !ok {
			return false
		}
	}
	return true
}

// Policy returns the authentication policy a prompt must use to unlock an
// item protected by m.
func (m AccessControlMode) Policy() AuthenticationPolicy {
	bio := m.Has(AccessControlBiometryAny) || m.Has(AccessControlBiometryCurrentSet)
	switch {
	case m.Has(AccessControlUserPresence):
		return PolicyBiometricsOrPasscode
	case bio && m.Has(AccessControlDevicePasscode) && m.Has(AccessControlOr):
		return PolicyBiometricsOrPasscode
	case bio && m.Has(AccessControlWatch) && m.Has(AccessControlOr):
		return PolicyBiometricsOrWatch
	case bio:
		return PolicyBiometrics
	case m.Has(AccessControlDevicePasscode):
		return PolicyPasscode
	case m.Has(AccessControlWatch):
		return PolicyWatch
	}
	return DefaultAuthenticationPolicy
}

// Policies returns the prompts that together unlock an item protected by
// m. Factors combined with AND each need their own prompt; an OR mode or a
// single factor needs one.
func (m AccessControlMode) Policies() []AuthenticationPolicy {
	if m.Has(AccessControlOr) {
		return []AuthenticationPolicy{m.Policy()}
	}
	var ps []AuthenticationPolicy
	if m.Has(AccessControlUserPresence) {
		ps = append(ps, PolicyBiometricsOrPasscode)
	}
	if m.Has(AccessControlBiometryAny) || m.Has(AccessControlBiometryCurrentSet) {
		ps = append(ps, PolicyBiometrics)
	}
	if m.Has(AccessControlDevicePasscode) {
		ps = append(ps, PolicyPasscode)
	}
	if m.Has(AccessControlWatch) {
		ps = append(ps, PolicyWatch)
	}
	if len(ps) == 0 {
		return []AuthenticationPolicy{m.Policy()}
	}
	return ps
}

// String lists the set flags.
func (m AccessControlMode) String() string {
	if m == 0 {
		return "none"
	}
	names := []struct {
		flag AccessControlMode
		name string
	}{
		{AccessControlUserPresence, "user_presence"},
		{AccessControlBiometryAny, "biometry_any"},
		{AccessControlBiometryCurrentSet, "biometry_current_set"},
		{AccessControlDevicePasscode, "device_passcode"},
		{AccessControlWatch, "watch"},
		{AccessControlOr, "or"},
		{AccessControlAnd, "and"},
		{AccessControlPrivateKeyUsage, "private_key_usage"},
		{AccessControlApplicationPassword, "application_password"},
	}
	var parts []string
	for _, n := range names {
		if m.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseAccessControl parses a "|" or "," separated list of flag names.
func ParseAccessControl(s string) (AccessControlMode, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "none" {
		return 0, nil
	}
	lookup := map[string]AccessControlMode{
		"user_presence":        AccessControlUserPresence,
		"biometry_any":         AccessControlBiometryAny,
		"touch_id_any":         AccessControlBiometryAny,
		"biometry_current_set": AccessControlBiometryCurrentSet,
		"touch_id_current_set": AccessControlBiometryCurrentSet,
		"device_passcode":      AccessControlDevicePasscode,
		"watch":                AccessControlWatch,
		"or":                   AccessControlOr,
		"and":                  AccessControlAnd,
		"private_key_usage":    AccessControlPrivateKeyUsage,
		"application_password": AccessControlApplicationPassword,
	}
	var m AccessControlMode
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' }) {
		flag, ok := lookup[strings.ToLower(strings.TrimSpace(part))]
		if !ok {
			return 0, fmt.Errorf("%w: unknown access control flag %q", ErrInvalidArgument, part)
		}
		m |= flag
	}
	return m, m.Validate()
}
