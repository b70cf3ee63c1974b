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
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jeremyhahn/go-identity/pkg/storage"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

// SecretManagerClient is the part of the Secret Manager API the store uses.
type SecretManagerClient interface {
	CreateSecret(ctx context.Context, req *secretmanagerpb.CreateSecretRequest, opts ...gax.CallOption) (*secretmanagerpb.Secret, error)
	AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.SecretVersion, error)
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	DeleteSecret(ctx context.Context, req *secretmanagerpb.DeleteSecretRequest, opts ...gax.CallOption) error
}

// Config holds Secret Manager settings.
type Config struct {
	ProjectID       string
	CredentialsFile string
	Endpoint        string

	// Prefix starts every secret id (default: "go-identity").
	Prefix string
}

// Store is a storage.Adapter over Secret Manager.
type Store struct {
	config *Config
	client SecretManagerClient
	closer func() error

	mu     sync.RWMutex
	closed bool
}

// New dials Secret Manager.
func New(ctx context.Context, config *Config) (*Store, error) {
	if config == nil || config.ProjectID == "" {
		return nil, errors.New("gcpsm: project id is required")
	}
	var opts []option.ClientOption
	if config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
	}
	if config.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(config.Endpoint))
	}
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcpsm: create client: %w", err)
	}
	s, err := NewWithClient(config, client)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	s.closer = client.Close
	return s, nil
}

// NewWithClient creates a store over an existing client (for testing).
func NewWithClient(config *Config, client SecretManagerClient) (*Store, error) {
	if config == nil || config.ProjectID == "" {
		return nil, errors.New("gcpsm: project id is required")
	}
	if config.Prefix == "" {
		config.Prefix = "go-identity"
	}
	return &Store{config: config, client: client}, nil
}

// SecretName returns the full resource name of an item's secret.
func (s *Store) SecretName(scope storage.Scope, id string) string {
	return "projects/" + s.config.ProjectID + "/secrets/" + s.secretID(scope, id)
}

func (s *Store) secretID(scope storage.Scope, id string) string {
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
	if err := s.checkOpen("put"); err != nil {
		return err
	}
	_, err = s.client.CreateSecret(ctx, &secretmanagerpb.CreateSecretRequest{
		Parent:   "projects/" + s.config.ProjectID,
		SecretId: s.secretID(scope, id),
		Secret: &secretmanagerpb.Secret{
			Replication: &secretmanagerpb.Replication{
				Replication: &secretmanagerpb.Replication_Automatic_{
					Automatic: &secretmanagerpb.Replication_Automatic{},
				},
			},
			Labels: map[string]string{"managed-by": "go-identity"},
		},
	})
	if err != nil {
		return mapError("put", id, err)
	}
	if err := s.addVersion(ctx, scope, id, rec, "put"); err != nil {
		// leave no empty secret behind
		_ = s.client.DeleteSecret(ctx, &secretmanagerpb.DeleteSecretRequest{Name: s.SecretName(scope, id)})
		return err
	}
	return nil
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
	return s.addVersion(ctx, scope, id, rec, "update")
}

func (s *Store) Delete(ctx context.Context, scope storage.Scope, id string) error {
	if err := storage.ValidateIdentifier(id); err != nil {
		return err
	}
	if err := s.checkOpen("delete"); err != nil {
		return err
	}
	err := s.client.DeleteSecret(ctx, &secretmanagerpb.DeleteSecretRequest{Name: s.SecretName(scope, id)})
	if err != nil && status.Code(err) != codes.NotFound {
		return mapError("delete", id, err)
	}
	return nil
}

func (s *Store) Capabilities() storage.Capabilities {
	return storage.Capabilities{
		Name:                  "gcpsm",
		EnforcesAccessControl: true,
	}
}

// Close releases the client connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.closer != nil {
		return s.closer()
	}
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
	resp, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: s.SecretName(scope, id) + "/versions/latest",
	})
	if err != nil {
		return nil, mapError(op, id, err)
	}
	data := resp.GetPayload().GetData()
	defer storage.Wipe(data)
	rec := &storage.Record{}
	if err := rec.UnmarshalBinary(data); err != nil {
		return nil, storage.Unavailable(op, err)
	}
	return rec, nil
}

func (s *Store) addVersion(ctx context.Context, scope storage.Scope, id string, rec *storage.Record, op string) error {
	raw, err := rec.MarshalBinary()
	if err != nil {
		return err
	}
	defer storage.Wipe(raw)
	if err := s.checkOpen(op); err != nil {
		return err
	}
	_, err = s.client.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent:  s.SecretName(scope, id),
		Payload: &secretmanagerpb.SecretPayload{Data: raw},
	})
	if err != nil {
		return mapError(op, id, err)
	}
	return nil
}

func mapError(op, id string, err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", types.ErrNotFound, id)
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %s", types.ErrDuplicateItem, id)
	case codes.PermissionDenied, codes.Unauthenticated:
		return fmt.Errorf("%w: %s: %w", types.ErrAuthenticationFailed, op, err)
	default:
		return storage.Unavailable(op, err)
	}
}

var _ storage.Adapter = (*Store)(nil)
