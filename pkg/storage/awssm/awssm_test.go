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

//go:build awssm

package awssm

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-identity/pkg/storage"
	"github.com/jeremyhahn/go-identity/pkg/storage/storagetest"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

type mockSMClient struct {
	mu      sync.Mutex
	secrets map[string][]byte
	kmsKeys map[string]string
	force   []bool
}

func newMockSMClient() *mockSMClient {
	return &mockSMClient{secrets: map[string][]byte{}, kmsKeys: map[string]string{}}
}

func (m *mockSMClient) CreateSecret(_ context.Context, in *secretsmanager.CreateSecretInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := aws.ToString(in.Name)
	if _, ok := m.secrets[name]; ok {
		return nil, &smtypes.ResourceExistsException{Message: aws.String("exists")}
	}
	m.secrets[name] = bytes.Clone(in.SecretBinary)
	m.kmsKeys[name] = aws.ToString(in.KmsKeyId)
	return &secretsmanager.CreateSecretOutput{Name: in.Name}, nil
}

func (m *mockSMClient) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.secrets[aws.ToString(in.SecretId)]
	if !ok {
		return nil, &smtypes.ResourceNotFoundException{Message: aws.String("not found")}
	}
	return &secretsmanager.GetSecretValueOutput{SecretBinary: bytes.Clone(v)}, nil
}

func (m *mockSMClient) PutSecretValue(_ context.Context, in *secretsmanager.PutSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := aws.ToString(in.SecretId)
	if _, ok := m.secrets[id]; !ok {
		return nil, &smtypes.ResourceNotFoundException{Message: aws.String("not found")}
	}
	m.secrets[id] = bytes.Clone(in.SecretBinary)
	return &secretsmanager.PutSecretValueOutput{}, nil
}

func (m *mockSMClient) DeleteSecret(_ context.Context, in *secretsmanager.DeleteSecretInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.force = append(m.force, aws.ToBool(in.ForceDeleteWithoutRecovery))
	id := aws.ToString(in.SecretId)
	if _, ok := m.secrets[id]; !ok {
		return nil, &smtypes.ResourceNotFoundException{Message: aws.String("not found")}
	}
	delete(m.secrets, id)
	return &secretsmanager.DeleteSecretOutput{}, nil
}

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Adapter {
		return NewWithClient(nil, newMockSMClient())
	})
}

func TestSecretNameAndKMSKey(t *testing.T) {
	client := newMockSMClient()
	s := NewWithClient(&Config{Prefix: "apps/identity", KMSKeyID: "alias/items"}, client)
	ctx := context.Background()

	name := s.SecretName(storage.Scope{Service: "svc"}, "k")
	assert.True(t, strings.HasPrefix(name, "apps/identity/"))
	require.NoError(t, s.Put(ctx, storage.Scope{Service: "svc"}, "k", []byte("v"), nil))
	assert.Equal(t, "alias/items", client.kmsKeys[name])

	require.NoError(t, s.Delete(ctx, storage.Scope{Service: "svc"}, "k"))
	assert.Equal(t, []bool{true}, client.force)
}

func TestErrorMapping(t *testing.T) {
	denied := &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "no"}
	assert.ErrorIs(t, mapError("get", "k", denied), types.ErrAuthenticationFailed)
	assert.ErrorIs(t, mapError("get", "k", &smtypes.ResourceExistsException{}), types.ErrDuplicateItem)
	assert.ErrorIs(t, mapError("get", "k", &smtypes.ResourceNotFoundException{}), types.ErrNotFound)
	assert.ErrorIs(t, mapError("get", "k", errors.New("dial tcp")), types.ErrStoreUnavailable)
}
