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
	"fmt"
	"os"
	"sync"

	"github.com/jeremyhahn/go-identity/internal/config"
	"github.com/jeremyhahn/go-identity/pkg/crypto/masterkey"
)

// MasterKeyOpener builds the master key provider of the file store. The
// returned func, when non-nil, releases the provider's resources.
type MasterKeyOpener func(ctx context.Context, cfg *config.FileStoreConfig) (masterkey.Provider, func() error, error)

var (
	masterKeysMu sync.RWMutex
	masterKeys   = make(map[string]MasterKeyOpener)
)

// RegisterMasterKey makes a master key source selectable by name.
func RegisterMasterKey(name string, open MasterKeyOpener) {
	masterKeysMu.Lock()
	defer masterKeysMu.Unlock()
	masterKeys[name] = open
}

// OpenMasterKey opens the source selected by cfg.MasterKey.Type.
func OpenMasterKey(ctx context.Context, cfg *config.FileStoreConfig) (masterkey.Provider, func() error, error) {
	masterKeysMu.RLock()
	open, ok := masterKeys[cfg.MasterKey.Type]
	masterKeysMu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("unknown master key type %q", cfg.MasterKey.Type)
	}
	return open(ctx, cfg)
}

func kmsNotCompiled(tag string) MasterKeyOpener {
	return func(context.Context, *config.FileStoreConfig) (masterkey.Provider, func() error, error) {
		return nil, nil, fmt.Errorf("%s master key not compiled in (use -tags %s)", tag, tag)
	}
}

func init() {
	RegisterMasterKey("random", func(context.Context, *config.FileStoreConfig) (masterkey.Provider, func() error, error) {
		return masterkey.NewRandom(), nil, nil
	})
	RegisterMasterKey("passphrase", func(_ context.Context, cfg *config.FileStoreConfig) (masterkey.Provider, func() error, error) {
		env := cfg.MasterKey.PassphraseEnv
		pass := os.Getenv(env)
		if pass == "" {
			return nil, nil, fmt.Errorf("master key passphrase not set (export %s)", env)
		}
		p, err := masterkey.NewPassphrase(&masterkey.PassphraseConfig{
			Passphrase: []byte(pass),
			KeyFile:    cfg.MasterKeyFile(),
		})
		return p, nil, err
	})
}
