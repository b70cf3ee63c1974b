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

package server

import (
	"context"

	"github.com/jeremyhahn/go-identity/internal/config"
	"github.com/jeremyhahn/go-identity/pkg/crypto/masterkey"
)

func init() {
	RegisterMasterKey("gcpkms", func(ctx context.Context, cfg *config.FileStoreConfig) (masterkey.Provider, func() error, error) {
		mk := cfg.MasterKey
		wrapper, err := masterkey.NewGCPKMS(ctx, &masterkey.GCPKMSConfig{
			KeyName:         mk.KeyID,
			CredentialsFile: mk.CredentialsFile,
			Endpoint:        mk.Endpoint,
		})
		if err != nil {
			return nil, nil, err
		}
		env, err := masterkey.NewEnvelope(cfg.MasterKeyFile(), wrapper)
		if err != nil {
			_ = wrapper.Close()
			return nil, nil, err
		}
		return env, wrapper.Close, nil
	})
}
