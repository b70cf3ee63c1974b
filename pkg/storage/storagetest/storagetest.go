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

// Package storagetest is a conformance suite every storage.Adapter must pass.
package storagetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-identity/pkg/storage"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

// Factory returns a fresh, empty adapter. The suite closes it.
type Factory func(t *testing.T) storage.Adapter

type gate struct {
	factors types.Factors
	gen     uint64
	err     error
	calls   int
}

func (g *gate) Factors(context.Context) (types.Factors, error) { return g.factors, nil }
func (g *gate) EnrollmentGeneration(context.Context) (uint64, error) {
	return g.gen, nil
}
func (g *gate) Authorize(context.Context, types.AccessControlMode, string) error {
	g.calls++
	return g.err
}

// Run executes the suite against adapters built by newAdapter.
func Run(t *testing.T, newAdapter Factory) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(t *testing.T, a storage.Adapter)
	}{
		{"NeverSaved", testNeverSaved},
		{"PutGetExists", testPutGetExists},
		{"PutOverExisting", testPutOverExisting},
		{"Update", testUpdate},
		{"DeleteIdempotent", testDeleteIdempotent},
		{"ScopesIsolated", testScopesIsolated},
		{"InvalidIdentifier", testInvalidIdentifier},
		{"InvalidAttributes", testInvalidAttributes},
		{"GatedItem", testGatedItem},
		{"CurrentSetInvalidation", testCurrentSetInvalidation},
		{"PasscodeAccessibility", testPasscodeAccessibility},
		{"CallerOwnsValue", testCallerOwnsValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAdapter(t)
			t.Cleanup(func() { _ = a.Close() })
			tt.fn(t, a)
		})
	}
}

var scope = storage.Scope{Service: "storagetest"}

func testNeverSaved(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	ok, err := a.Exists(ctx, scope, "never-saved")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = a.Get(ctx, scope, "never-saved", nil)
	assert.ErrorIs(t, err, types.ErrNotFound)

	err = a.Update(ctx, scope, "never-saved", []byte("v"), nil)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func testPutGetExists(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	require.NoError(t, a.Put(ctx, scope, "password", []byte("s3cr3t_p4$$w0rd"), nil))

	ok, err := a.Exists(ctx, scope, "password")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := a.Get(ctx, scope, "password", nil)
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t_p4$$w0rd", string(got))
}

func testPutOverExisting(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	require.NoError(t, a.Put(ctx, scope, "dup", []byte("first"), nil))
	err := a.Put(ctx, scope, "dup", []byte("second"), nil)

	got, gerr := a.Get(ctx, scope, "dup", nil)
	require.NoError(t, gerr)
	if a.Capabilities().OverwriteOnPut {
		require.NoError(t, err)
		assert.Equal(t, "second", string(got))
	} else {
		assert.ErrorIs(t, err, types.ErrDuplicateItem)
		assert.Equal(t, types.CodeDuplicateItem, types.CodeOf(err))
		assert.Equal(t, "first", string(got))
	}
}

func testUpdate(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	require.NoError(t, a.Put(ctx, scope, "upd", []byte("old"), nil))
	require.NoError(t, a.Update(ctx, scope, "upd", []byte("new"), nil))
	got, err := a.Get(ctx, scope, "upd", nil)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func testDeleteIdempotent(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	require.NoError(t, a.Put(ctx, scope, "gone", []byte("v"), nil))
	require.NoError(t, a.Delete(ctx, scope, "gone"))
	require.NoError(t, a.Delete(ctx, scope, "gone"))
	require.NoError(t, a.Delete(ctx, scope, "never-existed"))

	ok, err := a.Exists(ctx, scope, "gone")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = a.Get(ctx, scope, "gone", nil)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func testScopesIsolated(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	groupA := storage.Scope{AccessGroup: "group.a", Service: "storagetest"}
	groupB := storage.Scope{AccessGroup: "group.b", Service: "storagetest"}

	require.NoError(t, a.Put(ctx, groupA, "shared", []byte("a"), nil))
	ok, err := a.Exists(ctx, groupB, "shared")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Put(ctx, groupB, "shared", []byte("b"), nil))
	got, err := a.Get(ctx, groupA, "shared", nil)
	require.NoError(t, err)
	assert.Equal(t, "a", string(got))

	require.NoError(t, a.Delete(ctx, groupB, "shared"))
	ok, err = a.Exists(ctx, groupA, "shared")
	require.NoError(t, err)
	assert.True(t, ok)
}

func testInvalidIdentifier(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	err := a.Put(ctx, scope, "", []byte("v"), nil)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
	_, err = a.Exists(ctx, scope, "")
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func testInvalidAttributes(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	err := a.Put(ctx, scope, "attrs", []byte("v"), &storage.PutOptions{Accessibility: "bogus"})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	err = a.Put(ctx, scope, "attrs", []byte("v"), &storage.PutOptions{
		AccessControl: types.AccessControlOr | types.AccessControlAnd | types.AccessControlBiometryAny,
	})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	ok, err := a.Exists(ctx, scope, "attrs")
	require.NoError(t, err)
	assert.False(t, ok, "rejected items are not stored")
}

func testGatedItem(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	mode := types.AccessControlBiometryAny

	err := a.Put(ctx, scope, "gated", []byte("v"), &storage.PutOptions{AccessControl: mode})
	assert.ErrorIs(t, err, types.ErrAccessControlUnsatisfiable, "gated put needs a gate")

	noBio := &gate{factors: types.Factors{Passcode: true}}
	err = a.Put(ctx, scope, "gated", []byte("v"), &storage.PutOptions{AccessControl: mode, Gate: noBio})
	assert.ErrorIs(t, err, types.ErrAccessControlUnsatisfiable)

	g := &gate{factors: types.Factors{Biometry: true, Passcode: true}}
	require.NoError(t, a.Put(ctx, scope, "gated", []byte("v"), &storage.PutOptions{AccessControl: mode, Gate: g}))

	_, err = a.Get(ctx, scope, "gated", nil)
	assert.ErrorIs(t, err, types.ErrAuthenticationRequired)

	g.err = types.ErrUserCancel
	_, err = a.Get(ctx, scope, "gated", &storage.GetOptions{Gate: g, Reason: "read"})
	assert.ErrorIs(t, err, types.ErrUserCancel)
	err = a.Update(ctx, scope, "gated", []byte("w"), &storage.GetOptions{Gate: g, Reason: "update"})
	assert.ErrorIs(t, err, types.ErrUserCancel)

	g.err = nil
	require.NoError(t, a.Update(ctx, scope, "gated", []byte("w"), &storage.GetOptions{Gate: g, Reason: "update"}))
	got, err := a.Get(ctx, scope, "gated", &storage.GetOptions{Gate: g, Reason: "read"})
	require.NoError(t, err)
	assert.Equal(t, "w", string(got))
	assert.Equal(t, 4, g.calls)

	ok, err := a.Exists(ctx, scope, "gated")
	require.NoError(t, err)
	assert.True(t, ok, "existence checks are never gated")
}

func testCurrentSetInvalidation(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	g := &gate{factors: types.Factors{Biometry: true}, gen: 7}
	require.NoError(t, a.Put(ctx, scope, "bound", []byte("v"), &storage.PutOptions{
		AccessControl: types.AccessControlBiometryCurrentSet,
		Gate:          g,
	}))

	_, err := a.Get(ctx, scope, "bound", &storage.GetOptions{Gate: g})
	require.NoError(t, err)

	g.gen = 8
	_, err = a.Get(ctx, scope, "bound", &storage.GetOptions{Gate: g})
	assert.ErrorIs(t, err, types.ErrAuthenticationFailed)
}

func testPasscodeAccessibility(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	opts := &storage.PutOptions{Accessibility: types.AccessibleWhenPasscodeSetThisDeviceOnly}
	err := a.Put(ctx, scope, "akpu", []byte("v"), opts)
	assert.ErrorIs(t, err, types.ErrAccessControlUnsatisfiable)

	opts.Gate = &gate{factors: types.Factors{Passcode: true}}
	require.NoError(t, a.Put(ctx, scope, "akpu", []byte("v"), opts))
}

func testCallerOwnsValue(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	value := []byte("mutable")
	require.NoError(t, a.Put(ctx, scope, "owned", value, nil))
	copy(value, "XXXXXXX")

	got, err := a.Get(ctx, scope, "owned", nil)
	require.NoError(t, err)
	assert.Equal(t, "mutable", string(got))
	clear(got)

	again, err := a.Get(ctx, scope, "owned", nil)
	require.NoError(t, err)
	assert.Equal(t, "mutable", string(again))
}

