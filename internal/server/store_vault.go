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

package server

import (
	"context"
	"log/slog"

	"github.com/jeremyhahn/go-identity/internal/config"
	"github.com/jeremyhahn/go-identity/pkg/storage"
	"github.com/jeremyhahn/go-identity/pkg/storage/vault"
)

func init() {
	RegisterStore("vault", func(_ context.Context, cfg *config.StoreConfig, log *slog.Logger) (storage.Adapter, error) {
		v := cfg.Vault
		if v.TLSSkipVerify {
			log.Warn("Vault TLS verification disabled")
		}
		return vault.New(&vault.Config{
			Address:       v.Address,
			Token:         v.Token,
			Namespace:     v.Namespace,
			Mount:         v.Mount,
			Prefix:        v.Prefix,
			TLSSkipVerify: v.TLSSkipVerify,
		})
	})
}
