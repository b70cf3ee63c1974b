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
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	vault "github.com/hashicorp/vault/api"

	"github.com/jeremyhahn/go-identity/pkg/storage"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

const recordField = "record"

// LogicalClient is the part of the Vault API the store uses. *vault.Logical
// satisfies it.
type LogicalClient interface {
	ReadWithContext(ctx context.Context, path string) (*vault.Secret, error)
	WriteWithContext(ctx context.Context, path string, data map[string]interface{}) (*vault.Secret, error)
	DeleteWithContext(ctx context.Context, path string) (*vault.Secret, error)
}

// Config holds the configuration for the Vault store.
type Config struct {
	// Address is the Vault server address (e.g., "http://127.0.0.1:8200")
	Address string

	// Token is the Vault authentication token
	Token string

	// Namespace is the Vault namespace (Enterprise feature, optional)
	Namespace string

	// Mount is the KV v2 mount (default: "secret")
	Mount string

	// Prefix is prepended to every item path (default: "go-identity")
	Prefix string

	// TLSSkipVerify disables TLS certificate verification (not recommended for production)
	TLSSkipVerify bool
}

// Validate checks the configuration and fills defaults.
func (c *Config) Validate() error {
	if c.Address == "" {
		return errors.New("vault address is required")
	}
	if c.Token == "" {
		return errors.New("vault token is required")
	}
	if c.Mount == "" {
		c.Mount = "secret"
	}
	if c.Prefix == "" {
		c.Prefix = "go-identity"
	}
	c.Mount = strings.Trim(c.Mount, "/")
	c.Prefix = strings.Trim(c.Prefix, "/")
	return nil
}

// Store is a storage.Adapter over Vault KV v2.
type Store struct {
	config *Config
	client LogicalClient

	mu     sync.RWMutex
	closed bool
}

// New connects to Vault.
func New(config *Config) (*Store, error) {
	if config == nil {
		return nil, errors.New("vault config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = config.Address
	if config.TLSSkipVerify {
		if err := vaultConfig.ConfigureTLS(&vault.TLSConfig{Insecure: true}); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}
	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, storage.Unavailable("connect", err)
	}
	client.SetToken(config.Token)
	if config.Namespace != "" {
		client.SetNamespace(config.Namespace)
	}
	return &Store{config: config, client: client.Logical()}, nil
}

// NewWithClient creates a store over an existing client (for testing).
func NewWithClient(config *Config, client LogicalClient) (*Store, error) {
	if config == nil {
		return nil, errors.New("vault config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &Store{config: config, client: client}, nil
}

func (s *Store) dataPath(scope storage.Scope, id string) string {
	return s.config.Mount + "/data/" + s.config.Prefix + "/" + scope.Key(id)
}

func (s *Store) metadataPath(scope storage.Scope, id string) string {
	return s.config.Mount + "/metadata/" + s.config.Prefix + "/" + scope.Key(id)
}

func (s *Store) Exists(ctx context.Context, scope storage.Scope, id string) (bool, error) {
	rec, _, err := s.read(ctx, scope, id, "exists")
	if errors.Is(err, types.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	rec.Wipe()
	return true, nil
}

func (s *Store) Put(ctx context.Context, scope storage.Scope, id string, value []byte, opts *storage.PutOptions) error {
	if err := storage.ValidateIdentifier(id); err != nil {
		return err
	}
	rec, err := storage.NewRecord(ctx, value, opts)
	if err != nil {
		return err
	}
	return s.write(ctx, scope, id, rec, 0, "put")
}

func (s *Store) Get(ctx context.Context, scope storage.Scope, id string, opts *storage.GetOptions) ([]byte, error) {
	rec, _, err := s.read(ctx, scope, id, "get")
	if err != nil {
		return nil, err
	}
	if err := storage.Authorize(ctx, rec, opts); err != nil {
		rec.Wipe()
		return nil, err
	}
	return rec.Value, nil
}

func (s *Store) Update(ctx context.Context, scope storage.Scope, id string, value []byte, opts *storage.GetOptions) error {
	rec, version, err := s.read(ctx, scope, id, "update")
	if err != nil {
		return err
	}
	rec.Wipe()
	if err := storage.Authorize(ctx, rec, opts); err != nil {
		return err
	}
	rec.Value = value
	err = s.write(ctx, scope, id, rec, version, "update")
	if errors.Is(err, types.ErrDuplicateItem) {
		// the secret changed between read and write
		return fmt.Errorf("%w: %s was modified concurrently", types.ErrBusy, id)
	}
	return err
}

// Delete removes every version and the metadata of the secret.
func (s *Store) Delete(ctx context.Context, scope storage.Scope, id string) error {
	if err := storage.ValidateIdentifier(id); err != nil {
		return err
	}
	if err := s.checkOpen("delete"); err != nil {
		return err
	}
	if _, err := s.client.DeleteWithContext(ctx, s.metadataPath(scope, id)); err != nil {
		return mapError("delete", id, err)
	}
	return nil
}

func (s *Store) Capabilities() storage.Capabilities {
	return storage.Capabilities{
		Name:                  "vault",
		EnforcesAccessControl: true,
	}
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) checkOpen(op string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return storage.Unavailable(op, storage.ErrClosed)
	}
	return nil
}

// read returns the record and the KV version it came from.
func (s *Store) read(ctx context.Context, scope storage.Scope, id, op string) (*storage.Record, int64, error) {
	if err := storage.ValidateIdentifier(id); err != nil {
		return nil, 0, err
	}
	if err := s.checkOpen(op); err != nil {
		return nil, 0, err
	}
	secret, err := s.client.ReadWithContext(ctx, s.dataPath(scope, id))
	if err != nil {
		return nil, 0, mapError(op, id, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, 0, fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}
	data, _ := secret.Data["data"].(map[string]interface{})
	if data == nil {
		// soft-deleted or destroyed version
		return nil, 0, fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}
	encoded, ok := data[recordField].(string)
	if !ok {
		return nil, 0, storage.Unavailable(op, storage.ErrCorruptRecord)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, 0, storage.Unavailable(op, fmt.Errorf("%w: %w", storage.ErrCorruptRecord, err))
	}
	defer storage.Wipe(raw)

	rec := &storage.Record{}
	if err := rec.UnmarshalBinary(raw); err != nil {
		return nil, 0, storage.Unavailable(op, err)
	}
	return rec, version(secret), nil
}

// write stores rec with check-and-set cas. cas=0 only succeeds when the
// secret does not exist.
func (s *Store) write(ctx context.Context, scope storage.Scope, id string, rec *storage.Record, cas int64, op string) error {
	raw, err := rec.MarshalBinary()
	if err != nil {
		return err
	}
	defer storage.Wipe(raw)
	if err := s.checkOpen(op); err != nil {
		return err
	}
	payload := map[string]interface{}{
		"data":    map[string]interface{}{recordField: base64.StdEncoding.EncodeToString(raw)},
		"options": map[string]interface{}{"cas": cas},
	}
	if _, err := s.client.WriteWithContext(ctx, s.dataPath(scope, id), payload); err != nil {
		return mapError(op, id, err)
	}
	return nil
}

func version(secret *vault.Secret) int64 {
	meta, _ := secret.Data["metadata"].(map[string]interface{})
	switch v := meta["version"].(type) {
	case json.Number:
		n, _ := v.Int64()
		return n
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

func mapError(op, id string, err error) error {
	var respErr *vault.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", types.ErrNotFound, id)
		case http.StatusBadRequest:
			for _, msg := range respErr.Errors {
				if strings.Contains(msg, "check-and-set") {
					return fmt.Errorf("%w: %s", types.ErrDuplicateItem, id)
				}
			}
		case http.StatusForbidden:
			return fmt.Errorf("%w: %s: permission denied", types.ErrAuthenticationFailed, op)
		}
	}
	return storage.Unavailable(op, err)
}

var _ storage.Adapter = (*Store)(nil)
