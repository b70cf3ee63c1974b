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

//go:build vault

package vault

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	vault "github.com/hashicorp/vault/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-identity/pkg/storage"
	"github.com/jeremyhahn/go-identity/pkg/storage/storagetest"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

// fakeKV mimics the KV v2 HTTP semantics the store relies on.
type fakeKV struct {
	mu       sync.Mutex
	secrets  map[string]map[string]interface{}
	versions map[string]int64
	paths    []string
	err      error
}

func newFakeKV() *fakeKV {
	return &fakeKV{secrets: map[string]map[string]interface{}{}, versions: map[string]int64{}}
}

func (f *fakeKV) key(path string) string {
	path = strings.Replace(path, "/data/", "/", 1)
	return strings.Replace(path, "/metadata/", "/", 1)
}

func (f *fakeKV) ReadWithContext(_ context.Context, path string) (*vault.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.secrets[f.key(path)]
	if !ok {
		return nil, nil
	}
	return &vault.Secret{Data: map[string]interface{}{
		"data":     data,
		"metadata": map[string]interface{}{"version": json.Number(jsonInt(f.versions[f.key(path)]))},
	}}, nil
}

func (f *fakeKV) WriteWithContext(_ context.Context, path string, payload map[string]interface{}) (*vault.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	if f.err != nil {
		return nil, f.err
	}
	k := f.key(path)
	cas := payload["options"].(map[string]interface{})["cas"].(int64)
	if cas != f.versions[k] {
		return nil, &vault.ResponseError{
			HTTPMethod: http.MethodPut,
			StatusCode: http.StatusBadRequest,
			Errors:     []string{"check-and-set parameter did not match the current version"},
		}
	}
	f.secrets[k] = payload["data"].(map[string]interface{})
	f.versions[k]++
	return &vault.Secret{}, nil
}

func (f *fakeKV) DeleteWithContext(_ context.Context, path string) (*vault.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	if f.err != nil {
		return nil, f.err
	}
	delete(f.secrets, f.key(path))
	delete(f.versions, f.key(path))
	return nil, nil
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func newStore(t *testing.T, kv *fakeKV) *Store {
	t.Helper()
	s, err := NewWithClient(&Config{Address: "http://127.0.0.1:8200", Token: "root"}, kv)
	require.NoError(t, err)
	return s
}

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Adapter {
		return newStore(t, newFakeKV())
	})
}

func TestConfig_Validate(t *testing.T) {
	c := &Config{Address: "a", Token: "t", Mount: "/kv/"}
	require.NoError(t, c.Validate())
	assert.Equal(t, "kv", c.Mount)
	assert.Equal(t, "go-identity", c.Prefix)

	assert.Error(t, (&Config{Token: "t"}).Validate())
	assert.Error(t, (&Config{Address: "a"}).Validate())
}

func TestPaths(t *testing.T) {
	kv := newFakeKV()
	s := newStore(t, kv)
	ctx := context.Background()
	scope := storage.Scope{AccessGroup: "team", Service: "svc"}

	require.NoError(t, s.Put(ctx, scope, "a/b", []byte("v"), nil))
	require.NoError(t, s.Delete(ctx, scope, "a/b"))
	assert.Equal(t, []string{
		"secret/data/go-identity/team/svc/a%2Fb",
		"secret/metadata/go-identity/team/svc/a%2Fb",
	}, kv.paths)
}

func TestUpdate_ConcurrentModification(t *testing.T) {
	kv := newFakeKV()
	s := newStore(t, kv)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, storage.Scope{}, "k", []byte("v1"), nil))

	rec, version, err := s.read(ctx, storage.Scope{}, "k", "update")
	require.NoError(t, err)
	require.NoError(t, s.Update(ctx, storage.Scope{}, "k", []byte("v2"), nil))

	err = s.write(ctx, storage.Scope{}, "k", rec, version, "update")
	assert.ErrorIs(t, err, types.ErrDuplicateItem)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"forbidden", &vault.ResponseError{StatusCode: http.StatusForbidden}, types.ErrAuthenticationFailed},
		{"not found", &vault.ResponseError{StatusCode: http.StatusNotFound}, types.ErrNotFound},
		{"sealed", &vault.ResponseError{StatusCode: http.StatusServiceUnavailable}, types.ErrStoreUnavailable},
		{"network", errors.New("connection refused"), types.ErrStoreUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := newFakeKV()
			kv.err = tt.err
			_, err := newStore(t, kv).Get(context.Background(), storage.Scope{}, "k", nil)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSoftDeletedVersionIsNotFound(t *testing.T) {
	kv := newFakeKV()
	s := newStore(t, kv)
	kv.secrets["secret/go-identity/"+storage.Scope{}.Key("k")] = nil

	ok, err := s.Exists(context.Background(), storage.Scope{}, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
