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
	"time"

	"github.com/jeremyhahn/go-identity/pkg/platform"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

// observationTTL bounds how long a negative answer from LocalAuthentication
// keeps the device reported as unable to authenticate. After it the device
// is assumed capable again so the next prompt can find out.
const observationTTL = time.Minute

// deviceState is the device as learned from prompt answers. go-touchid
// has no query for hardware, enrollment or passcode, so they start out
// assumed present.
type deviceState struct {
	assumed  platform.Device
	observed platform.Device
	at       time.Time
}

func newDeviceState(biometry types.BiometryType) *deviceState {
	d := platform.Device{
		HardwarePresent:  true,
		BiometryType:     biometry,
		BiometryEnrolled: true,
		PasscodeSet:      true,
	}
	return &deviceState{assumed: d, observed: d}
}

func (s *deviceState) current(now time.Time) platform.Device {
	if s.at.IsZero() || now.Sub(s.at) > observationTTL {
		return s.assumed
	}
	return s.observed
}

// record folds the answer to a prompt under p into the observed state.
func (s *deviceState) record(now time.Time, p types.AuthenticationPolicy, err error) {
	d := s.current(now)
	switch types.KindOf(err) {
	case nil:
		if p.AcceptsBiometry() && !p.AcceptsPasscode() {
			d.HardwarePresent = true
			d.BiometryEnrolled = true
		}
		if p.AcceptsPasscode() {
			d.PasscodeSet = true
			d.LockedOut = false
		}
	case types.ErrBiometryNotAvailable:
		d.HardwarePresent = false
	case types.ErrBiometryNotEnrolled:
		d.BiometryEnrolled = false
	case types.ErrPasscodeNotSet:
		d.PasscodeSet = false
	case types.ErrBiometryLockout:
		d.LockedOut = true
	default:
		return
	}
	s.observed = d
	s.at = now
}
