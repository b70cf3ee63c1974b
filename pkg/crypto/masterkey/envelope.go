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

package masterkey

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/awnumar/memguard"
)

// Wrapper encrypts the master key under a key held by a KMS.
type Wrapper interface {
	Wrap(ctx context.Context, plaintext []byte) ([]byte, error)
	Unwrap(ctx context.Context, ciphertext []byte) ([]byte, error)

	// KeyID names the wrapping key. It is recorded in the key file.
	KeyID() string
	Name() string
}

// Envelope keeps a random master key wrapped by a KMS in a key file.
type Envelope struct {
	wrapper Wrapper
	path    string

	mu      sync.Mutex
	enclave *memguard.Enclave
}

// NewEnvelope creates an envelope provider persisting to path.
func NewEnvelope(path string, wrapper Wrapper) (*Envelope, error) {
	if path == "" {
		return nil, errors.New("masterkey: key file path is required")
	}
	if wrapper == nil {
		return nil, errors.New("masterkey: wrapper is required")
	}
	return &Envelope{wrapper: wrapper, path: path}, nil
}

func (e *Envelope) MasterKey(ctx context.Context) (*memguard.Enclave, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.enclave != nil {
		return e.enclave, nil
	}

	kf, err := readKeyFile(e.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return e.create(ctx)
	case err != nil:
		return nil, err
	case kf.Provider != e.Name():
		return nil, ErrKeyFileMismatch
	case kf.KeyID != e.wrapper.KeyID():
		return nil, fmt.Errorf("%w: wrapped by %q, configured %q", ErrKeyFileMismatch, kf.KeyID, e.wrapper.KeyID())
	}

	key, err := e.wrapper.Unwrap(ctx, kf.WrappedKey)
	if err != nil {
		return nil, fmt.Errorf("masterkey: unwrap with %s: %w", e.wrapper.Name(), err)
	}
	if len(key) != Size {
		memguard.WipeBytes(key)
		return nil, fmt.Errorf("masterkey: unwrapped key has %d bytes", len(key))
	}
	e.enclave = memguard.NewEnclave(key)
	return e.enclave, nil
}

func (e *Envelope) create(ctx context.Context) (*memguard.Enclave, error) {
	buf := memguard.NewBufferRandom(Size)
	defer buf.Destroy()

	wrapped, err := e.wrapper.Wrap(ctx, buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("masterkey: wrap with %s: %w", e.wrapper.Name(), err)
	}
	kf := &keyFile{Provider: e.Name(), KeyID: e.wrapper.KeyID(), WrappedKey: wrapped}
	if err := writeKeyFile(e.path, kf); err != nil {
		return nil, err
	}
	e.enclave = buf.Seal()
	return e.enclave, nil
}

func (e *Envelope) Name() string {
	return "envelope:" + e.wrapper.Name()
}
