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

package server

import (
	"context"
	"log/slog"

	"github.com/jeremyhahn/go-identity/internal/config"
	"github.com/jeremyhahn/go-identity/pkg/storage"
	"github.com/jeremyhahn/go-identity/pkg/storage/azurekv"
)

func init() {
	RegisterStore("azurekv", func(_ context.Context, cfg *config.StoreConfig, log *slog.Logger) (storage.Adapter, error) {
		a := cfg.AzureKV
		if a.PurgeOnDelete {
			log.Info("Azure Key Vault secrets are purged on reset")
		}
		return azurekv.New(&azurekv.Config{
			VaultURL:           a.VaultURL,
			TenantID:           a.TenantID,
			ClientID:           a.ClientID,
			ClientSecret:       a.ClientSecret,
			UseManagedIdentity: a.UseManagedIdentity,
			UserAssignedID:     a.UserAssignedID,
			Prefix:             a.Prefix,
			PurgeOnDelete:      a.PurgeOnDelete,
		})
	})
}
