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

package config

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"time"

	"github.com/jeremyhahn/go-identity/pkg/adapters/auth"
)

// AuthConfig controls API authentication
type AuthConfig struct {
	// Type is noop or jwt.
	Type string    `yaml:"type"`
	JWT  JWTConfig `yaml:"jwt"`
}

// JWTConfig controls JWT authentication. Exactly one of Secret and
// PublicKeyFile is used.
type JWTConfig struct {
	Secret        string        `yaml:"secret"`
	PublicKeyFile string        `yaml:"public_key_file"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	Leeway        time.Duration `yaml:"leeway"`
}

// Validate checks the auth settings.
func (cfg *AuthConfig) Validate() error {
	switch cfg.Type {
	case "", "noop", "none":
		return nil
	case "jwt":
		if (cfg.JWT.Secret == "") == (cfg.JWT.PublicKeyFile == "") {
			return fmt.Errorf("%w: auth.jwt needs exactly one of secret and public_key_file", ErrInvalid)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown auth type %q", ErrInvalid, cfg.Type)
}

// CreateAuthenticator creates an authenticator from the configuration
func (cfg *AuthConfig) CreateAuthenticator() (auth.Authenticator, error) {
	switch cfg.Type {
	case "", "noop", "none":
		return auth.NewNoOpAuthenticator(), nil
	case "jwt":
		jc := &auth.JWTConfig{
			Issuer:   cfg.JWT.Issuer,
			Audience: cfg.JWT.Audience,
			Leeway:   cfg.JWT.Leeway,
		}
		if cfg.JWT.Secret != "" {
			jc.Secret = []byte(cfg.JWT.Secret)
		} else {
			key, err := loadPublicKey(cfg.JWT.PublicKeyFile)
			if err != nil {
				return nil, err
			}
			jc.PublicKey = key
		}
		return auth.NewJWTAuthenticator(jc)
	}
	return nil, fmt.Errorf("unknown auth type: %s", cfg.Type)
}

func loadPublicKey(path string) (any, error) {
	// #nosec G304 - key path from trusted config
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read JWT public key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("JWT public key %s is not PEM encoded", path)
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT public key: %w", err)
	}
	return key, nil
}
