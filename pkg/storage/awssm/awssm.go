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
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/smithy-go"

	"github.com/jeremyhahn/go-identity/pkg/storage"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

// SecretsManagerClient is the part of the Secrets Manager API the store uses.
type SecretsManagerClient interface {
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	DeleteSecret(ctx context.Context, params *secretsmanager.DeleteSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error)
}

// Config holds Secrets Manager settings.
type Config struct {
	Region string

	// Endpoint overrides the service endpoint (LocalStack).
	Endpoint string

	// Static credentials. The default chain is used when empty.
	AccessKeyID     string
	SecretAccessKey string

	// KMSKeyID encrypts new secrets with a customer managed key.
	KMSKeyID string

	// Prefix starts every secret name (default: "go-identity").
	Prefix string
}

// Store is a storage.Adapter over AWS Secrets Manager.
type Store struct {
	config *Config
	client SecretsManagerClient

	mu     sync.RWMutex
	closed bool
}

// New loads the AWS configuration and creates a client.
func New(ctx context.Context, config *Config) (*Store, error) {
	if config == nil {
		return nil, errors.New("awssm config is required")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if config.Region != "" {
		opts = append(opts, awsconfig.WithRegion(config.Region))
	}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	var clientOpts []func(*secretsmanager.Options)
	if config.Endpoint != "" {
		endpoint := config.Endpoint
		clientOpts = append(clientOpts, func(o *secretsmanager.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	return NewWithClient(config, secretsmanager.NewFromConfig(cfg, clientOpts...)), nil
}

// NewWithClient creates a store over an existing client (for testing).
func NewWithClient(config *Config, client SecretsManagerClient) *Store {
	if config == nil {
		config = &Config{}
	}
	if config.Prefix == "" {
		config.Prefix = "go-identity"
	}
	return &Store{config: config, client: client}
}

// SecretName returns the secret name for an item.
func (s *Store) SecretName(scope storage.Scope, id string) string {
	sum := sha256.Sum256([]byte(scope.Key(id)))
	return s.config.Prefix + "/" + hex.EncodeToString(sum[:])
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
	raw, err := rec.MarshalBinary()
	if err != nil {
		return err
	}
	defer storage.Wipe(raw)
	if err := s.checkOpen("put"); err != nil {
		return err
	}
	input := &secretsmanager.CreateSecretInput{
		Name:         aws.String(s.SecretName(scope, id)),
		SecretBinary: raw,
		Description:  aws.String("go-identity keychain item"),
	}
	if s.config.KMSKeyID != "" {
		input.KmsKeyId = aws.String(s.config.KMSKeyID)
	}
	if _, err := s.client.CreateSecret(ctx, input); err != nil {
		return mapError("put", id, err)
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
	raw, err := rec.MarshalBinary()
	if err != nil {
		return err
	}
	defer storage.Wipe(raw)
	if err := s.checkOpen("update"); err != nil {
		return err
	}
	_, err = s.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(s.SecretName(scope, id)),
		SecretBinary: raw,
	})
	if err != nil {
		return mapError("update", id, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, scope storage.Scope, id string) error {
	if err := storage.ValidateIdentifier(id); err != nil {
		return err
	}
	if err := s.checkOpen("delete"); err != nil {
		return err
	}
	_, err := s.client.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:                   aws.String(s.SecretName(scope, id)),
		ForceDeleteWithoutRecovery: aws.Bool(true),
	})
	if err != nil && !isNotFound(err) {
		return mapError("delete", id, err)
	}
	return nil
}

func (s *Store) Capabilities() storage.Capabilities {
	return storage.Capabilities{
		Name:                  "awssm",
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
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.SecretName(scope, id)),
	})
	if err != nil {
		return nil, mapError(op, id, err)
	}
	defer storage.Wipe(out.SecretBinary)
	rec := &storage.Record{}
	if err := rec.UnmarshalBinary(out.SecretBinary); err != nil {
		return nil, storage.Unavailable(op, err)
	}
	return rec, nil
}

func isNotFound(err error) bool {
	var notFound *smtypes.ResourceNotFoundException
	return errors.As(err, &notFound)
}

func mapError(op, id string, err error) error {
	var exists *smtypes.ResourceExistsException
	var apiErr smithy.APIError
	switch {
	case isNotFound(err):
		return fmt.Errorf("%w: %s", types.ErrNotFound, id)
	case errors.As(err, &exists):
		return fmt.Errorf("%w: %s", types.ErrDuplicateItem, id)
	case errors.As(err, &apiErr) && apiErr.ErrorCode() == "AccessDeniedException":
		return fmt.Errorf("%w: %s: %w", types.ErrAuthenticationFailed, op, err)
	default:
		return storage.Unavailable(op, err)
	}
}

var _ storage.Adapter = (*Store)(nil)
