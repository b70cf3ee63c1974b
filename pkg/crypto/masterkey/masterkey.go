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

// Package masterkey provides the master key that the file store derives
// per-item keys from. The key only ever lives in a memguard enclave.
package masterkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/awnumar/memguard"
)

// Size is the master key length.
const Size = 32

var (
	// ErrInvalidPassphrase is returned when a passphrase does not open an
	// existing key file.
	ErrInvalidPassphrase = errors.New("masterkey: invalid passphrase")

	// ErrKeyFileMismatch is returned when a key file was written by a
	// different provider.
	ErrKeyFileMismatch = errors.New("masterkey: key file belongs to another provider")
)

// Provider yields the master key.
type Provider interface {
	// MasterKey returns the key sealed in an enclave. Providers may cache
	// the enclave; callers must not destroy it.
	MasterKey(ctx context.Context) (*memguard.Enclave, error)
	Name() string
}

// keyFile is the on-disk description of a persisted master key. It never
// holds the key in the clear.
type keyFile struct {
	Version  int    `json:"version"`
	Provider string `json:"provider"`

	// Passphrase providers.
	Salt    []byte `json:"salt,omitempty"`
	Time    uint32 `json:"time,omitempty"`
	Memory  uint32 `json:"memory,omitempty"`
	Threads uint8  `json:"threads,omitempty"`
	Check   []byte `json:"check,omitempty"`

	// Envelope providers.
	KeyID      string `json:"keyId,omitempty"`
	WrappedKey []byte `json:"wrappedKey,omitempty"`
}

const keyFileVersion = 1

func readKeyFile(path string) (*keyFile, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	kf := &keyFile{}
	if err := json.Unmarshal(data, kf); err != nil {
		return nil, fmt.Errorf("masterkey: parse %s: %w", path, err)
	}
	if kf.Version != keyFileVersion {
		return nil, fmt.Errorf("masterkey: unsupported key file version %d", kf.Version)
	}
	return kf, nil
}

func writeKeyFile(path string, kf *keyFile) error {
	kf.Version = keyFileVersion
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("masterkey: create key directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("masterkey: write key file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("masterkey: write key file: %w", err)
	}
	return nil
}
