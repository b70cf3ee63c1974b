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

//go:build azurekv

package azurekv

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-identity/pkg/storage"
	"github.com/jeremyhahn/go-identity/pkg/storage/storagetest"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

type mockSecretsClient struct {
	mu      sync.Mutex
	secrets map[string]string
	deleted map[string]bool
	purged  []string
}

func newMockSecretsClient() *mockSecretsClient {
	return &mockSecretsClient{secrets: map[string]string{}, deleted: map[string]bool{}}
}

func notFound() error {
	return &azcore.ResponseError{StatusCode: http.StatusNotFound, ErrorCode: "SecretNotFound"}
}

func (m *mockSecretsClient) GetSecret(_ context.Context, name, _ string, _ *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.secrets[name]
	if !ok {
		return azsecrets.GetSecretResponse{}, notFound()
	}
	return azsecrets.GetSecretResponse{Secret: azsecrets.Secret{Value: &v}}, nil
}

func (m *mockSecretsClient) SetSecret(_ context.Context, name string, p azsecrets.SetSecretParameters, _ *azsecrets.SetSecretOptions) (azsecrets.SetSecretResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleted[name] {
		return azsecrets.SetSecretResponse{}, &azcore.ResponseError{StatusCode: http.StatusConflict, ErrorCode: "Conflict"}
	}
	m.secrets[name] = *p.Value
	return azsecrets.SetSecretResponse{}, nil
}

func (m *mockSecretsClient) DeleteSecret(_ context.Context, name string, _ *azsecrets.DeleteSecretOptions) (azsecrets.DeleteSecretResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.secrets[name]; !ok {
		return azsecrets.DeleteSecretResponse{}, notFound()
	}
	delete(m.secrets, name)
	m.deleted[name] = true
	return azsecrets.DeleteSecretResponse{}, nil
}

func (m *mockSecretsClient) PurgeDeletedSecret(_ context.Context, name string, _ *azsecrets.PurgeDeletedSecretOptions) (azsecrets.PurgeDeletedSecretResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.deleted, name)
	m.purged = append(m.purged, name)
	return azsecrets.PurgeDeletedSecretResponse{}, nil
}

func newStore(t *testing.T, client SecretsClient, purge bool) *Store {
	t.Helper()
	s, err := NewWithClient(&Config{VaultURL: "https://test.vault.azure.net/", PurgeOnDelete: purge}, client)
	require.NoError(t, err)
	return s
}

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Adapter {
		return newStore(t, newMockSecretsClient(), true)
	})
}

func TestSecretName(t *testing.T) {
	s := newStore(t, newMockSecretsClient(), false)
	name := s.SecretName(storage.Scope{AccessGroup: "g", Service: "s"}, "id with spaces/and slashes")
	assert.True(t, strings.HasPrefix(name, "gi-"))
	assert.Len(t, name, len("gi-")+64)
	assert.NotEqual(t, name, s.SecretName(storage.Scope{Service: "s"}, "id with spaces/and slashes"))
}

func TestConfig_Validate(t *testing.T) {
	assert.Error(t, (&Config{}).Validate())
	assert.Error(t, (&Config{VaultURL: "https://v", Prefix: "bad_prefix"}).Validate())
	assert.NoError(t, (&Config{VaultURL: "https://v", Prefix: "ok-1"}).Validate())
}

func TestSoftDeleteBlocksRecreateWithoutPurge(t *testing.T) {
	client := newMockSecretsClient()
	s := newStore(t, client, false)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, storage.Scope{}, "k", []byte("v"), nil))
	require.NoError(t, s.Delete(ctx, storage.Scope{}, "k"))
	assert.Empty(t, client.purged)

	err := s.Put(ctx, storage.Scope{}, "k", []byte("v"), nil)
	assert.ErrorIs(t, err, types.ErrBusy)
}

func TestPurgeOnDelete(t *testing.T) {
	client := newMockSecretsClient()
	s := newStore(t, client, true)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, storage.Scope{}, "k", []byte("v"), nil))
	require.NoError(t, s.Delete(ctx, storage.Scope{}, "k"))
	assert.Equal(t, []string{s.SecretName(storage.Scope{}, "k")}, client.purged)
	require.NoError(t, s.Put(ctx, storage.Scope{}, "k", []byte("v2"), nil))
}

func TestForbiddenMapsToAuthenticationFailed(t *testing.T) {
	err := mapError("get", "k", &azcore.ResponseError{StatusCode: http.StatusForbidden})
	assert.ErrorIs(t, err, types.ErrAuthenticationFailed)
	assert.ErrorIs(t, mapError("get", "k", &azcore.ResponseError{StatusCode: 500}), types.ErrStoreUnavailable)
}
