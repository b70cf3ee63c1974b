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
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	"github.com/jeremyhahn/go-identity/pkg/storage"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

const contentType = "application/vnd.go-identity.record"

// SecretsClient is the part of azsecrets.Client the store uses.
type SecretsClient interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
	SetSecret(ctx context.Context, name string, parameters azsecrets.SetSecretParameters, options *azsecrets.SetSecretOptions) (azsecrets.SetSecretResponse, error)
	DeleteSecret(ctx context.Context, name string, options *azsecrets.DeleteSecretOptions) (azsecrets.DeleteSecretResponse, error)
	PurgeDeletedSecret(ctx context.Context, name string, options *azsecrets.PurgeDeletedSecretOptions) (azsecrets.PurgeDeletedSecretResponse, error)
}

// Config holds Azure Key Vault settings.
type Config struct {
	VaultURL string

	// Service principal credentials. When ClientSecret is empty the store
	// uses a managed identity or the default credential chain.
	TenantID     string
	ClientID     string
	ClientSecret string

	UseManagedIdentity bool
	UserAssignedID     string

	// Prefix starts every secret name (default: "gi").
	Prefix string

	// PurgeOnDelete purges soft-deleted secrets so the name can be reused
	// immediately. Requires the purge permission.
	PurgeOnDelete bool
}

// Validate checks the configuration and fills defaults.
func (c *Config) Validate() error {
	if c.VaultURL == "" {
		return errors.New("vault_url is required for Azure Key Vault")
	}
	if _, err := url.Parse(c.VaultURL); err != nil {
		return fmt.Errorf("invalid vault_url: %w", err)
	}
	if c.Prefix == "" {
		c.Prefix = "gi"
	}
	for _, r := range c.Prefix {
		if !(r == '-' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return fmt.Errorf("secret name prefix %q may only contain letters, digits and dashes", c.Prefix)
		}
	}
	return nil
}

// Store is a storage.Adapter over Azure Key Vault secrets.
type Store struct {
	config *Config
	client SecretsClient

	mu     sync.RWMutex
	closed bool
}

// New creates a Key Vault client from config.
func New(config *Config) (*Store, error) {
	if config == nil {
		return nil, errors.New("azurekv config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	cred, err := credential(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}
	client, err := azsecrets.NewClient(config.VaultURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Key Vault client: %w", err)
	}
	return &Store{config: config, client: client}, nil
}

// NewWithClient creates a store over an existing client (for testing).
func NewWithClient(config *Config, client SecretsClient) (*Store, error) {
	if config == nil {
		return nil, errors.New("azurekv config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Store{config: config, client: client}, nil
}

func credential(config *Config) (azcore.TokenCredential, error) {
	switch {
	case config.UseManagedIdentity && config.UserAssignedID != "":
		return azidentity.NewManagedIdentityCredential(&azidentity.ManagedIdentityCredentialOptions{
			ID: azidentity.ClientID(config.UserAssignedID),
		})
	case config.UseManagedIdentity:
		return azidentity.NewManagedIdentityCredential(nil)
	case config.ClientSecret != "":
		return azidentity.NewClientSecretCredential(config.TenantID, config.ClientID, config.ClientSecret, nil)
	default:
		return azidentity.NewDefaultAzureCredential(nil)
	}
}

// SecretName returns the Key Vault secret name for an item.
func (s *Store) SecretName(scope storage.Scope, id string) string {
	sum := sha256.Sum256([]byte(scope.Key(id)))
	return s.config.Prefix + "-" + hex.EncodeToString(sum[:])
}

func (s *Store) Exists(ctx context.Context, scope storage.Scope, id string) (bool, error) {
	rec, err := s.read(ctx, scope, id, "exists")
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
	return s.write(ctx, scope, id, rec, "put")
}

func (s *Store) Get(ctx context.Context, scope storage.Scope, id string, opts *storage.GetOptions) ([]byte, error) {
	rec, err := s.read(ctx, scope, id, "get")
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
	rec, err := s.read(ctx, scope, id, "update")
	if err != nil {
		return err
	}
	rec.Wipe()
	if err := storage.Authorize(ctx, rec, opts); err != nil {
		return err
	}
	rec.Value = value
	return s.write(ctx, scope, id, rec, "update")
}

func (s *Store) Delete(ctx context.Context, scope storage.Scope, id string) error {
	if err := storage.ValidateIdentifier(id); err != nil {
		return err
	}
	if err := s.checkOpen("delete"); err != nil {
		return err
	}
	name := s.SecretName(scope, id)
	if _, err := s.client.DeleteSecret(ctx, name, nil); err != nil {
		if statusCode(err) == http.StatusNotFound {
			return nil
		}
		return mapError("delete", id, err)
	}
	if s.config.PurgeOnDelete {
		if _, err := s.client.PurgeDeletedSecret(ctx, name, nil); err != nil && statusCode(err) != http.StatusNotFound {
			return mapError("purge", id, err)
		}
	}
	return nil
}

func (s *Store) Capabilities() storage.Capabilities {
	return storage.Capabilities{
		Name:                  "azurekv",
		OverwriteOnPut:        true,
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

func (s *Store) read(ctx context.Context, scope storage.Scope, id, op string) (*storage.Record, error) {
	if err := storage.ValidateIdentifier(id); err != nil {
		return nil, err
	}
	if err := s.checkOpen(op); err != nil {
		return nil, err
	}
	resp, err := s.client.GetSecret(ctx, s.SecretName(scope, id), "", nil)
	if err != nil {
		return nil, mapError(op, id, err)
	}
	if resp.Value == nil {
		return nil, storage.Unavailable(op, storage.ErrCorruptRecord)
	}
	raw, err := base64.StdEncoding.DecodeString(*resp.Value)
	if err != nil {
		return nil, storage.Unavailable(op, fmt.Errorf("%w: %w", storage.ErrCorruptRecord, err))
	}
	defer storage.Wipe(raw)
	rec := &storage.Record{}
	if err := rec.UnmarshalBinary(raw); err != nil {
		return nil, storage.Unavailable(op, err)
	}
	return rec, nil
}

func (s *Store) write(ctx context.Context, scope storage.Scope, id string, rec *storage.Record, op string) error {
	raw, err := rec.MarshalBinary()
	if err != nil {
		return err
	}
	defer storage.Wipe(raw)
	if err := s.checkOpen(op); err != nil {
		return err
	}
	value := base64.StdEncoding.EncodeToString(raw)
	ct := contentType
	_, err = s.client.SetSecret(ctx, s.SecretName(scope, id), azsecrets.SetSecretParameters{
		Value:       &value,
		ContentType: &ct,
	}, nil)
	if err != nil {
		return mapError(op, id, err)
	}
	return nil
}

func statusCode(err error) int {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode
	}
	return 0
}

func mapError(op, id string, err error) error {
	switch statusCode(err) {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", types.ErrNotFound, id)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s: %w", types.ErrAuthenticationFailed, op, err)
	case http.StatusConflict:
		// a soft-deleted secret with this name is awaiting purge
		return fmt.Errorf("%w: %s: %w", types.ErrBusy, op, err)
	default:
		return storage.Unavailable(op, err)
	}
}

var _ storage.Adapter = (*Store)(nil)
