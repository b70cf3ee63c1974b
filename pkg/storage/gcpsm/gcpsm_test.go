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

//go:build gcpsm

package gcpsm

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jeremyhahn/go-identity/pkg/storage"
	"github.com/jeremyhahn/go-identity/pkg/storage/storagetest"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

type mockClient struct {
	mu       sync.Mutex
	versions map[string][][]byte
	addErr   error
}

func newMockClient() *mockClient {
	return &mockClient{versions: map[string][][]byte{}}
}

func (m *mockClient) CreateSecret(_ context.Context, req *secretmanagerpb.CreateSecretRequest, _ ...gax.CallOption) (*secretmanagerpb.Secret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := req.Parent + "/secrets/" + req.SecretId
	if _, ok := m.versions[name]; ok {
		return nil, status.Error(codes.AlreadyExists, "secret exists")
	}
	m.versions[name] = nil
	return &secretmanagerpb.Secret{Name: name}, nil
}

func (m *mockClient) AddSecretVersion(_ context.Context, req *secretmanagerpb.AddSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.SecretVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return nil, m.addErr
	}
	if _, ok := m.versions[req.Parent]; !ok {
		return nil, status.Error(codes.NotFound, "no secret")
	}
	m.versions[req.Parent] = append(m.versions[req.Parent], bytes.Clone(req.Payload.Data))
	return &secretmanagerpb.SecretVersion{}, nil
}

func (m *mockClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := m.versions[strings.TrimSuffix(req.Name, "/versions/latest")]
	if len(versions) == 0 {
		return nil, status.Error(codes.NotFound, "no version")
	}
	latest := bytes.Clone(versions[len(versions)-1])
	return &secretmanagerpb.AccessSecretVersionResponse{Payload: &secretmanagerpb.SecretPayload{Data: latest}}, nil
}

func (m *mockClient) DeleteSecret(_ context.Context, req *secretmanagerpb.DeleteSecretRequest, _ ...gax.CallOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.versions[req.Name]; !ok {
		return status.Error(codes.NotFound, "no secret")
	}
	delete(m.versions, req.Name)
	return nil
}

func newStore(t *testing.T, client SecretManagerClient) *Store {
	t.Helper()
	s, err := NewWithClient(&Config{ProjectID: "test-project"}, client)
	require.NoError(t, err)
	return s
}

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Adapter {
		return newStore(t, newMockClient())
	})
}

func TestSecretName(t *testing.T) {
	s := newStore(t, newMockClient())
	name := s.SecretName(storage.Scope{Service: "svc"}, "k")
	assert.True(t, strings.HasPrefix(name, "projects/test-project/secrets/go-identity-"))
}

func TestPutCleansUpOnVersionFailure(t *testing.T) {
	client := newMockClient()
	client.addErr = status.Error(codes.Unavailable, "backend down")
	s := newStore(t, client)

	err := s.Put(context.Background(), storage.Scope{}, "k", []byte("v"), nil)
	assert.ErrorIs(t, err, types.ErrStoreUnavailable)
	assert.Empty(t, client.versions)
}

func TestRequiresProject(t *testing.T) {
	_, err := NewWithClient(&Config{}, newMockClient())
	assert.Error(t, err)
}

func TestErrorMapping(t *testing.T) {
	assert.ErrorIs(t, mapError("get", "k", status.Error(codes.PermissionDenied, "")), types.ErrAuthenticationFailed)
	assert.ErrorIs(t, mapError("get", "k", status.Error(codes.AlreadyExists, "")), types.ErrDuplicateItem)
	assert.ErrorIs(t, mapError("get", "k", errors.New("eof")), types.ErrStoreUnavailable)
}
