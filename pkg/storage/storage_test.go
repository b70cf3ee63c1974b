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

package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-identity/pkg/storage"
	"github.com/jeremyhahn/go-identity/pkg/storage/mocks"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

func TestScopeKey(t *testing.T) {
	assert.Equal(t, "/go-identity/password", storage.Scope{}.Key("password"))
	assert.Equal(t, "team/svc/password", storage.Scope{AccessGroup: "team", Service: "svc"}.Key("password"))

	// Separators inside components must not collide with another scope.
	a := storage.Scope{AccessGroup: "a/b", Service: "c"}.Key("d")
	b := storage.Scope{AccessGroup: "a", Service: "b/c"}.Key("d")
	assert.NotEqual(t, a, b)
}

func TestValidateIdentifier(t *testing.T) {
	assert.NoError(t, storage.ValidateIdentifier("password"))
	assert.ErrorIs(t, storage.ValidateIdentifier(""), types.ErrInvalidArgument)
	assert.ErrorIs(t, storage.ValidateIdentifier("a\x00b"), types.ErrInvalidArgument)
}

func TestRecordRoundTrip(t *testing.T) {
	in := &storage.Record{
		Value:         []byte("s3cr3t"),
		Accessibility: types.AccessibleAfterFirstUnlockThisDeviceOnly,
		AccessControl: types.AccessControlBiometryCurrentSet | types.AccessControlOr | types.AccessControlDevicePasscode,
		Generation:    42,
	}
	data, err := in.MarshalBinary()
	require.NoError(t, err)

	out := &storage.Record{}
	require.NoError(t, out.UnmarshalBinary(data))
	assert.Equal(t, in, out)

	clear(data)
	assert.Equal(t, "s3cr3t", string(out.Value), "decoded value does not alias the input")

	out.Wipe()
	assert.Equal(t, make([]byte, 6), out.Value)
}

func TestRecordCorrupt(t *testing.T) {
	rec := &storage.Record{}
	assert.ErrorIs(t, rec.UnmarshalBinary(nil), storage.ErrCorruptRecord)
	assert.ErrorIs(t, rec.UnmarshalBinary([]byte("not a record at all")), storage.ErrCorruptRecord)

	good, err := (&storage.Record{Value: []byte("v"), Accessibility: "ak"}).MarshalBinary()
	require.NoError(t, err)

	bad := append([]byte(nil), good...)
	bad[3] = 99
	assert.ErrorIs(t, rec.UnmarshalBinary(bad), storage.ErrCorruptRecord)

	assert.ErrorIs(t, rec.UnmarshalBinary(good[:len(good)-3]), storage.ErrCorruptRecord)
}

func TestNewRecord(t *testing.T) {
	ctx := context.Background()

	rec, err := storage.NewRecord(ctx, []byte("v"), nil)
	require.NoError(t, err)
	assert.Equal(t, types.DefaultAccessibility, rec.Accessibility)

	gate := mocks.NewMockGate()
	gate.Generation = 3
	rec, err = storage.NewRecord(ctx, []byte("v"), &storage.PutOptions{
		AccessControl: types.AccessControlBiometryCurrentSet,
		Gate:          gate,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), rec.Generation)
	assert.Zero(t, gate.AuthorizeCount(), "saving never prompts")

	gate.DeviceFactors = types.Factors{Passcode: true}
	_, err = storage.NewRecord(ctx, []byte("v"), &storage.PutOptions{
		AccessControl: types.AccessControlBiometryAny | types.AccessControlOr | types.AccessControlDevicePasscode,
		Gate:          gate,
	})
	assert.NoError(t, err, "OR is satisfied by the passcode alone")

	_, err = storage.NewRecord(ctx, []byte("v"), &storage.PutOptions{
		AccessControl: types.AccessControlBiometryAny | types.AccessControlDevicePasscode,
		Gate:          gate,
	})
	assert.ErrorIs(t, err, types.ErrAccessControlUnsatisfiable)
}

func TestAuthorize(t *testing.T) {
	ctx := context.Background()
	open := &storage.Record{}
	assert.NoError(t, storage.Authorize(ctx, open, nil))

	gated := &storage.Record{AccessControl: types.AccessControlUserPresence}
	assert.ErrorIs(t, storage.Authorize(ctx, gated, nil), types.ErrAuthenticationRequired)

	gate := mocks.NewMockGate()
	require.NoError(t, storage.Authorize(ctx, gated, &storage.GetOptions{Gate: gate, Reason: "unlock"}))
	assert.Equal(t, []types.AccessControlMode{types.AccessControlUserPresence}, gate.AuthorizeCalls)
	assert.Equal(t, []string{"unlock"}, gate.Reasons)

	bound := &storage.Record{AccessControl: types.AccessControlBiometryCurrentSet, Generation: 1}
	gate.SetGeneration(2)
	err := storage.Authorize(ctx, bound, &storage.GetOptions{Gate: gate})
	assert.ErrorIs(t, err, types.ErrAuthenticationFailed)
	assert.Len(t, gate.AuthorizeCalls, 1, "invalidated keys do not prompt")
}

func TestProbe(t *testing.T) {
	m := mocks.NewMockAdapter(false)
	require.NoError(t, storage.Probe(m)(context.Background()))
	calls := m.Calls("exists")
	require.Len(t, calls, 1)
	assert.Equal(t, storage.ProbeIdentifier, calls[0].ID)

	m.ExistsFunc = func(context.Context, storage.Scope, string) (bool, error) {
		return false, storage.Unavailable("exists", errors.New("locked"))
	}
	err := storage.Probe(m)(context.Background())
	assert.ErrorIs(t, err, types.ErrStoreUnavailable)
	assert.Equal(t, types.CodeStoreUnavailable, types.CodeOf(err))
}
