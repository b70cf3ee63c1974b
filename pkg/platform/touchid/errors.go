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

package touchid

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jeremyhahn/go-identity/pkg/types"
)

// ErrUnsupported is returned by New where LocalAuthentication is missing.
var ErrUnsupported = errors.New("touchid: not supported on this platform")

// Name identifies the authenticator in logs and capabilities.
const Name = "touchid"

// Config configures the Touch ID authenticator.
type Config struct {
	// BiometryType is reported by Device. LocalAuthentication is not
	// queried for it. Defaults to fingerprint.
	BiometryType types.BiometryType
}

// LocalAuthentication reports failures as NSError descriptions.
var laErrors = []struct {
	match string
	kind  *types.ErrorKind
}{
	{"canceled by user", types.ErrUserCancel},
	{"cancelled by user", types.ErrUserCancel},
	{"fallback", types.ErrUserFallback},
	{"canceled by system", types.ErrSystemCancel},
	{"cancelled by system", types.ErrSystemCancel},
	{"locked out", types.ErrBiometryLockout},
	{"lockout", types.ErrBiometryLockout},
	{"no identities are enrolled", types.ErrBiometryNotEnrolled},
	{"not enrolled", types.ErrBiometryNotEnrolled},
	{"passcode not set", types.ErrPasscodeNotSet},
	{"not available", types.ErrBiometryNotAvailable},
	{"invalidated", types.ErrInvalidContext},
	{"application retry limit", types.ErrAuthenticationFailed},
}

// mapResult turns a go-touchid answer into a kind-wrapping error.
func mapResult(ok bool, err error) error {
	if err == nil {
		if ok {
			return nil
		}
		return types.ErrAuthenticationFailed
	}
	msg := strings.ToLower(err.Error())
	for _, e := range laErrors {
		if strings.Contains(msg, e.match) {
			return fmt.Errorf("%w: %w", e.kind, err)
		}
	}
	return fmt.Errorf("%w: %w", types.ErrUnknown, err)
}
