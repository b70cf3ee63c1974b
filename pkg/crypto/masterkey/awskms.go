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

//go:build awskms

package masterkey

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

// AWSKMSClient is the subset of the KMS API used to wrap the master key.
type AWSKMSClient interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// AWSKMSConfig configures the AWS KMS wrapper.
type AWSKMSConfig struct {
	KeyID    string
	Region   string
	Endpoint string

	// Static credentials. The default credential chain is used when
	// AccessKeyID is empty.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// AWSKMS wraps the master key with a symmetric AWS KMS key.
type AWSKMS struct {
	client AWSKMSClient
	keyID  string
}

var encryptionContext = map[string]string{"purpose": "go-identity-master-key"}

// NewAWSKMS builds a client from the default AWS configuration.
func NewAWSKMS(ctx context.Context, config *AWSKMSConfig) (*AWSKMS, error) {
	if config == nil || config.KeyID == "" {
		return nil, errors.New("masterkey: aws kms key id is required")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if config.Region != "" {
		opts = append(opts, awsconfig.WithRegion(config.Region))
	}
	if config.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, config.SessionToken)))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("masterkey: load aws config: %w", err)
	}
	client := kms.NewFromConfig(cfg, func(o *kms.Options) {
		if config.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.Endpoint)
		}
	})
	return NewAWSKMSWithClient(client, config.KeyID), nil
}

// NewAWSKMSWithClient uses an existing client.
func NewAWSKMSWithClient(client AWSKMSClient, keyID string) *AWSKMS {
	return &AWSKMS{client: client, keyID: keyID}
}

func (a *AWSKMS) Wrap(ctx context.Context, plaintext []byte) ([]byte, error) {
	out, err := a.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:             aws.String(a.keyID),
		Plaintext:         plaintext,
		EncryptionContext: encryptionContext,
	})
	if err != nil {
		return nil, err
	}
	return out.CiphertextBlob, nil
}

func (a *AWSKMS) Unwrap(ctx context.Context, ciphertext []byte) ([]byte, error) {
	out, err := a.client.Decrypt(ctx, &kms.DecryptInput{
		KeyId:             aws.String(a.keyID),
		CiphertextBlob:    ciphertext,
		EncryptionContext: encryptionContext,
	})
	if err != nil {
		return nil, err
	}
	return out.Plaintext, nil
}

func (a *AWSKMS) KeyID() string { return a.keyID }

func (a *AWSKMS) Name() string { return "awskms" }
