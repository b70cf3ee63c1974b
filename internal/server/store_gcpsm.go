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

package server

import (
	"context"
	"log/slog"

	"github.com/jeremyhahn/go-identity/internal/config"
	"github.com/jeremyhahn/go-identity/pkg/storage"
	"github.com/jeremyhahn/go-identity/pkg/storage/gcpsm"
)

func init() {
	RegisterStore("gcpsm", func(ctx context.Context, cfg *config.StoreConfig, _ *slog.Logger) (storage.Adapter, error) {
		g := cfg.GCPSM
		return gcpsm.New(ctx, &gcpsm.Config{
			ProjectID:       g.ProjectID,
			CredentialsFile: g.CredentialsFile,
			Endpoint:        g.Endpoint,
			Prefix:          g.Prefix,
		})
	})
}
