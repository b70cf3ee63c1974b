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

package server

import (
	"context"
	"log/slog"

	"github.com/jeremyhahn/go-identity/internal/config"
	"github.com/jeremyhahn/go-identity/pkg/storage"
	"github.com/jeremyhahn/go-identity/pkg/storage/awssm"
)

func init() {
	RegisterStore("awssm", func(ctx context.Context, cfg *config.StoreConfig, _ *slog.Logger) (storage.Adapter, error) {
		a := cfg.AWSSM
		return awssm.New(ctx, &awssm.Config{
			Region:          a.Region,
			Endpoint:        a.Endpoint,
			AccessKeyID:     a.AccessKeyID,
			SecretAccessKey: a.SecretAccessKey,
			KMSKeyID:        a.KMSKeyID,
			Prefix:          a.Prefix,
		})
	})
}
