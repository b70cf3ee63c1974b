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

//go:build !darwin || !cgo

package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jeremyhahn/go-identity/internal/config"
	"github.com/jeremyhahn/go-identity/pkg/storage"
)

func init() {
	RegisterStore("keychain", func(context.Context, *config.StoreConfig, *slog.Logger) (storage.Adapter, error) {
		return nil, errors.New("keychain store requires macOS built with cgo")
	})
}
