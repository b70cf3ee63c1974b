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

//go:build gcpkms

package masterkey

import (
	"context"
	"errors"
	"fmt"

	kms "cloud.google.com/go/kms/apiv1"
	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
)

// GCPKMSClient is the subset of the Cloud KMS API used to wrap the master key.
type GCPKMSClient interface {
	Encrypt(ctx context.Context, req *kmspb.EncryptRequest, opts ...gax.CallOption) (*kmspb.EncryptResponse, error)
	Decrypt(ctx context.Context, req *kmspb.DecryptRequest, opts ...gax.CallOption) (*kmspb.DecryptResponse, error)
}

// GCPKMSConfig configures the Cloud KMS wrapper.
type GCPKMSConfig struct {
	// KeyName is the full CryptoKey resource name.
	KeyName         string
	CredentialsFile string
	CredentialsJSON []byte
	Endpoint        string
}

// GCPKMS wraps the master key with a Cloud KMS symmetric key.
type GCPKMS struct {
	client  GCPKMSClient
	keyName string
	closer  func() error
}

var gcpAAD = []byte("go-identity-master-key")

// NewGCPKMS dials Cloud KMS. Close releases the connection.
func NewGCPKMS(ctx context.Context, config *GCPKMSConfig) (*GCPKMS, error) {
	if config == nil || config.KeyName == "" {
		return nil, errors.New("masterkey: gcp kms key name is required")
	}
	var opts []option.ClientOption
	switch {
	case config.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
	case len(config.CredentialsJSON) > 0:
		opts = append(opts, option.WithCredentialsJSON(config.CredentialsJSON))
	}
	if config.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(config.Endpoint))
	}
	client, err := kms.NewKeyManagementClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("masterkey: create gcp kms client: %w", err)
	}
	g := NewGCPKMSWithClient(client, config.KeyName)
	g.closer = client.Close
	return g, nil
}

// NewGCPKMSWithClient uses an existing client.
func NewGCPKMSWithClient(client GCPKMSClient, keyName string) *GCPKMS {
	return &GCPKMS{client: client, keyName: keyName}
}

func (g *GCPKMS) Wrap(ctx context.Context, plaintext []byte) ([]byte, error) {
	resp, err := g.client.Encrypt(ctx, &kmspb.EncryptRequest{
		Name:                        g.keyName,
		Plaintext:                   plaintext,
		AdditionalAuthenticatedData: gcpAAD,
	})
	if err != nil {
		return nil, err
	}
	return resp.Ciphertext, nil
}

func (g *GCPKMS) Unwrap(ctx context.Context, ciphertext []byte) ([]byte, error) {
	resp, err := g.client.Decrypt(ctx, &kmspb.DecryptRequest{
		Name:                        g.keyName,
		Ciphertext:                  ciphertext,
		AdditionalAuthenticatedData: gcpAAD,
	})
	if err != nil {
		return nil, err
	}
	return resp.Plaintext, nil
}

func (g *GCPKMS) KeyID() string { return g.keyName }

func (g *GCPKMS) Name() string { return "gcpkms" }

// Close releases the underlying client.
func (g *GCPKMS) Close() error {
	if g.closer == nil {
		return nil
	}
	return g.closer()
}
