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

package keychain

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-identity/pkg/storage"
	"github.com/jeremyhahn/go-identity/pkg/storage/storagetest"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

// The login keychain is shared state, so these tests only run when asked.
func requireKeychain(t *testing.T) {
	t.Helper()
	if os.Getenv("IDENTITY_KEYCHAIN_TESTS") == "" {
		t.Skip("set IDENTITY_KEYCHAIN_TESTS=1 to run against the login keychain")
	}
}

// scoped isolates each run under a unique service.
type scoped struct {
	*Store
	service string
}

func (s scoped) scope(in storage.Scope) storage.Scope {
	in.Service = s.service + "." + in.ServiceOrDefault()
	return in
}

func (s scoped) Exists(ctx context.Context, sc storage.Scope, id string) (bool, error) {
	return s.Store.Exists(ctx, s.scope(sc), id)
}

func (s scoped) Put(ctx context.Context, sc storage.Scope, id string, v []byte, o *storage.PutOptions) error {
	return s.Store.Put(ctx, s.scope(sc), id, v, o)
}

func (s scoped) Get(ctx context.Context, sc storage.Scope, id string, o *storage.GetOptions) ([]byte, error) {
	return s.Store.Get(ctx, s.scope(sc), id, o)
}

func (s scoped) Update(ctx context.Context, sc storage.Scope, id string, v []byte, o *storage.GetOptions) error {
	return s.Store.Update(ctx, s.scope(sc), id, v, o)
}

func (s scoped) Delete(ctx context.Context, sc storage.Scope, id string) error {
	return s.Store.Delete(ctx, s.scope(sc), id)
}

func TestConformance(t *testing.T) {
	requireKeychain(t)
	storagetest.Run(t, func(t *testing.T) storage.Adapter {
		return scoped{Store: New(nil), service: "go-identity-test-" + uuid.NewString()}
	})
}

func TestAccessibleMapping(t *testing.T) {
	for _, mode := range []types.AccessibilityMode{
		types.AccessibleWhenUnlocked,
		types.AccessibleAfterFirstUnlock,
		types.AccessibleAlways,
		types.AccessibleWhenPasscodeSetThisDeviceOnly,
		types.AccessibleWhenUnlockedThisDeviceOnly,
		types.AccessibleAfterFirstUnlockThisDeviceOnly,
		types.AccessibleAlwaysThisDeviceOnly,
	} {
		_, ok := accessible[mode]
		assert.True(t, ok, mode)
	}
}

func TestCapabilities(t *testing.T) {
	caps := New(nil).Capabilities()
	assert.Equal(t, "keychain", caps.Name)
	assert.False(t, caps.OverwriteOnPut)
	assert.True(t, caps.HardwareBacked)
}

func TestClosed(t *testing.T) {
	s := New(&Config{Label: "test"})
	require.NoError(t, s.Close())
	_, err := s.Exists(context.Background(), storage.Scope{}, "k")
	assert.ErrorIs(t, err, storage.ErrClosed)
}
