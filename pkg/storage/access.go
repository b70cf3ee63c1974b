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

package storage

import (
	"context"
	"fmt"

	"github.com/jeremyhahn/go-identity/pkg/types"
)

// NewRecord validates opts and builds the envelope for value. Gated modes
// are checked against the device through opts.Gate; a mode the device
// cannot satisfy fails with AccessControlUnsatisfiable.
func NewRecord(ctx context.Context, value []byte, opts *PutOptions) (*Record, error) {
	if opts == nil {
		opts = &PutOptions{}
	}
	if !opts.Accessibility.Valid() {
		return nil, fmt.Errorf("%w: unknown accessibility mode %q", types.ErrInvalidArgument, opts.Accessibility)
	}
	if err := opts.AccessControl.Validate(); err != nil {
		return nil, err
	}
	rec := &Record{
		Value:         value,
		Accessibility: opts.Accessibility.OrDefault(),
		AccessControl: opts.AccessControl,
	}

	needsDevice := opts.AccessControl.Gated() || rec.Accessibility.RequiresPasscode()
	if !needsDevice {
		return rec, nil
	}
	if opts.Gate == nil {
		return nil, fmt.Errorf("%w: %s requires an authentication gate", types.ErrAccessControlUnsatisfiable, opts.AccessControl)
	}
	factors, err := opts.Gate.Factors(ctx)
	if err != nil {
		return nil, err
	}
	if rec.Accessibility.RequiresPasscode() && !factors.Passcode {
		return nil, fmt.Errorf("%w: accessibility %q requires a device passcode", types.ErrAccessControlUnsatisfiable, rec.Accessibility)
	}
	if !opts.AccessControl.SatisfiedBy(factors) {
		return nil, fmt.Errorf("%w: %s", types.ErrAccessControlUnsatisfiable, opts.AccessControl)
	}
	if opts.AccessControl.Has(types.AccessControlBiometryCurrentSet) {
		gen, err := opts.Gate.EnrollmentGeneration(ctx)
		if err != nil {
			return nil, err
		}
		rec.Generation = gen
	}
	return rec, nil
}

// Authorize unlocks rec for the caller. Ungated records pass through. A
// record bound to the current biometry set fails permanently once the
// enrollment changes.
func Authorize(ctx context.Context, rec *Record, opts *GetOptions) error {
	if !rec.AccessControl.Gated() {
		return nil
	}
	if opts == nil || opts.Gate == nil {
		return fmt.Errorf("%w: item is protected by %s", types.ErrAuthenticationRequired, rec.AccessControl)
	}
	if rec.AccessControl.Has(types.AccessControlBiometryCurrentSet) {
		gen, err := opts.Gate.EnrollmentGeneration(ctx)
		if err != nil {
			return err
		}
		if gen != rec.Generation {
			return fmt.Errorf("%w: key permanently invalidated by a biometric enrollment change", types.ErrAuthenticationFailed)
		}
	}
	return opts.Gate.Authorize(ctx, rec.AccessControl, opts.Reason)
}
