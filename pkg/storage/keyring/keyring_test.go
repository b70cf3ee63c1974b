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

package keyring

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/jeremyhahn/go-identity/pkg/storage"
	"github.com/jeremyhahn/go-identity/pkg/storage/mocks"
	"github.com/jeremyhahn/go-identity/pkg/storage/storagetest"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Adapter {
		keyring.MockInit()
		return New()
	})
}

func TestServiceNaming(t *testing.T) {
	keyring.MockInit()
	s := New()
	ctx := context.Background()
	scope := storage.Scope{AccessGroup: "team", Service: "com.example"}

	require.NoError(t, s.Put(ctx, scope, "token", []byte("v"), nil))
	raw, err := keyring.Get("go-identity:team/com.example", "token")
	require.NoError(t, err)
	assert.NotEmpty(t, raw)

	_, err = keyring.Get("go-identity:/com.example", "token")
	assert.ErrorIs(t, err, keyring.ErrNotFound)
}

func TestCorruptEntry(t *testing.T) {
	keyring.MockInit()
	s := New()
	require.NoError(t, keyring.Set("go-identity:/"+storage.DefaultService, "bad", "!!not base64"))

	_, err := s.Get(context.Background(), storage.Scope{}, "bad", nil)
	assert.ErrorIs(t, err, types.ErrStoreUnavailable)
	assert.ErrorIs(t, err, storage.ErrCorruptRecord)
}

func TestBackendFailure(t *testing.T) {
	boom := errors.New("secret service not running")
	keyring.MockInitWithError(boom)
	s := New()
	ctx := context.Background()

	_, err := s.Exists(ctx, storage.Scope{}, "k")
	assert.ErrorIs(t, err, types.ErrStoreUnavailable)
	assert.ErrorIs(t, err, boom)

	err = s.Put(ctx, storage.Scope{}, "k", []byte("v"), nil)
	assert.Equal(t, types.CodeStoreUnavailable, types.CodeOf(err))
}

func TestUpdateDoesNotRecreateDeletedEntry(t *testing.T) {
	keyring.MockInit()
	s := New()
	ctx := context.Background()
	scope := storage.Scope{}
	gate := mocks.NewMockGate()

	require.NoError(t, s.Put(ctx, scope, "token", []byte("v1"), &storage.PutOptions{
		AccessControl: types.AccessControlDevicePasscode,
		Gate:          gate,
	}))

	// Another process removes the entry while the prompt is showing.
	gate.AuthorizeFunc = func(context.Context, types.AccessControlMode, string) error {
		return keyring.Delete(service(scope), "token")
	}
	err := s.Update(ctx, scope, "token", []byte("v2"), &storage.GetOptions{Gate: gate})
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = keyring.Get(service(scope), "token")
	assert.ErrorIs(t, err, keyring.ErrNotFound)
}

func TestClose(t *testing.T) {
	keyring.MockInit()
	s := New()
	require.NoError(t, s.Close())
	err := s.Delete(context.Background(), storage.Scope{}, "k")
	assert.ErrorIs(t, err, storage.ErrClosed)
}
