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

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/jeremyhahn/go-identity/internal/config"
	"github.com/jeremyhahn/go-identity/pkg/storage"
	"github.com/jeremyhahn/go-identity/pkg/storage/file"
	"github.com/jeremyhahn/go-identity/pkg/storage/keyring"
	"github.com/jeremyhahn/go-identity/pkg/storage/memory"
)

// StoreOpener builds a secure store from configuration.
type StoreOpener func(ctx context.Context, cfg *config.StoreConfig, log *slog.Logger) (storage.Adapter, error)

var (
	storesMu sync.RWMutex
	stores   = make(map[string]StoreOpener)
)

// RegisterStore makes a backend selectable by name. Backends behind build
// tags register themselves from init.
func RegisterStore(name string, open StoreOpener) {
	storesMu.Lock()
	defer storesMu.Unlock()
	stores[name] = open
}

// Stores lists the registered backend names.
func Stores() []string {
	storesMu.RLock()
	defer storesMu.RUnlock()
	names := make([]string, 0, len(stores))
	for name := range stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OpenStore opens the backend selected by cfg.Backend.
func OpenStore(ctx context.Context, cfg *config.StoreConfig, log *slog.Logger) (storage.Adapter, error) {
	storesMu.RLock()
	open, ok := stores[cfg.Backend]
	storesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
	store, err := open(ctx, cfg, log.With("store", cfg.Backend))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Backend, err)
	}
	log.Info("Secure store opened", "store", store.Capabilities().Name)
	return store, nil
}

// notCompiled is registered by the stub of a backend behind a build tag.
func notCompiled(name, tag string) StoreOpener {
	return func(context.Context, *config.StoreConfig, *slog.Logger) (storage.Adapter, error) {
		return nil, fmt.Errorf("%s store not compiled in (use -tags %s)", name, tag)
	}
}

func init() {
	RegisterStore("memory", func(_ context.Context, cfg *config.StoreConfig, log *slog.Logger) (storage.Adapter, error) {
		log.Warn("Memory store selected, items do not survive a restart")
		return memory.New(&memory.Config{Overwrite: cfg.Memory.Overwrite}), nil
	})
	RegisterStore("keyring", func(context.Context, *config.StoreConfig, *slog.Logger) (storage.Adapter, error) {
		return keyring.New(), nil
	})
	RegisterStore("file", openFileStore)
}

func openFileStore(ctx context.Context, cfg *config.StoreConfig, log *slog.Logger) (storage.Adapter, error) {
	mk, closer, err := OpenMasterKey(ctx, &cfg.File)
	if err != nil {
		return nil, err
	}
	store, err := file.New(&file.Config{Root: cfg.File.Root, MasterKey: mk})
	if err != nil {
		if closer != nil {
			_ = closer()
		}
		return nil, err
	}
	log.Info("File store ready", "root", cfg.File.Root, "master_key", mk.Name())
	if closer == nil {
		return store, nil
	}
	return &closingStore{Adapter: store, release: closer}, nil
}

// closingStore releases a resource the store depends on after the store
// itself is closed.
type closingStore struct {
	storage.Adapter
	release func() error
}

func (c *closingStore) Close() error {
	return errors.Join(c.Adapter.Close(), c.release())
}
