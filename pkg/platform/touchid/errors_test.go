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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jeremyhahn/go-identity/pkg/types"
)

func TestMapResult(t *testing.T) {
	assert.NoError(t, mapResult(true, nil))
	assert.ErrorIs(t, mapResult(false, nil), types.ErrAuthenticationFailed)

	tests := map[string]*types.ErrorKind{
		"Error occurred with Touch ID: Canceled by user.":               types.ErrUserCancel,
		"Fallback authentication mechanism selected.":                   types.ErrUserFallback,
		"Biometry is locked out.":                                       types.ErrBiometryLockout,
		"No identities are enrolled.":                                   types.ErrBiometryNotEnrolled,
		"Biometry is not available on this device.":                     types.ErrBiometryNotAvailable,
		"Authentication was canceled by system (another app came up).": types.ErrSystemCancel,
		"something unexpected":                                          types.ErrUnknown,
	}
	for msg, kind := range tests {
		err := mapResult(false, errors.New(msg))
		assert.ErrorIs(t, err, kind, msg)
		assert.Contains(t, err.Error(), msg)
	}
}

func TestNewOnUnsupportedPlatform(t *testing.T) {
	a, err := New(nil)
	if errors.Is(err, ErrUnsupported) {
		assert.Nil(t, a)
		return
	}
	assert.NoError(t, err)
	assert.Equal(t, Name, a.Name())
}
