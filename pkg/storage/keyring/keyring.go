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

// Package keyring stores items in the operating system credential store
// through zalando/go-keyring: the Secret Service on Linux, the Credential
// Manager on Windows and the login keychain on macOS.
//
// The credential store holds strings, so the encoded record is stored
// base64 encoded. The service is "go-identity:" followed by the scope
// namespace and the account is the identifier.
package keyring

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/zalando/go-keyring"

	"github.com/jeremyhahn/go-identity/pkg/storage"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

const servicePrefix = "go-identity:"

// Store is a storage.Adapter over the OS credential store.
type Store struct {
	mu     sync.RWMutex
	closed bool
}

// New returns a keyring store. It does not touch the credential store.
func New() *Store {
	return &Store{}
}

func service(scope storage.Scope) string {
	return servicePrefix + scope.Namespace()
}

func (s *Store) Exists(ctx context.Context, scope storage.Scope, id string) (bool, error) {
	_, err := s.fetch(scope, id, "exists")
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, types.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Put stores the item. The credential store replaces existing entries.
func (s *Store) Put(ctx context.Context, scope storage.Scope, id string, value []byte, opts *storage.PutOptions) error {
	if err := storage.ValidateIdentifier(id); err != nil {
		return err
	}
	rec, err := storage.NewRecord(ctx, value, opts)
	if err != nil {
		return err
	}
	return s.store(scope, id, rec, "put", false)
}

func (s *Store) Get(ctx context.Context, scope storage.Scope, id string, opts *storage.GetOptions) ([]byte, error) {
	rec, err := s.fetch(scope, id, "get")
	if err != nil {
		return nil, err
	}
	if err := storage.Authorize(ctx, rec, opts); err != nil {
		rec.Wipe()
		return nil, err
	}
	return rec.Value, nil
}

func (s *Store) Update(ctx context.Context, scope storage.Scope, id string, value []byte, opts *storage.GetOptions) error {
	rec, err := s.fetch(scope, id, "update")
	if err != nil {
		return err
	}
	rec.Wipe()
	if err := storage.Authorize(ctx, rec, opts); err != nil {
		return err
	}
	rec.Value = value
	return s.store(scope, id, rec, "update", true)
}

func (s *Store) Delete(_ context.Context, scope storage.Scope, id string) error {
	if err := storage.ValidateIdentifier(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.Unavailable("delete", storage.ErrClosed)
	}
	if err := keyring.Delete(service(scope), id); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return storage.Unavailable("delete", err)
	}
	return nil
}

func (s *Store) Capabilities() storage.Capabilities {
	return storage.Capabilities{
		Name:                  "keyring",
		OverwriteOnPut:        true,
		HardwareBacked:        true,
		EnforcesAccessControl: true,
	}
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) fetch(scope storage.Scope, id, op string) (*storage.Record, error) {
	if err := storage.ValidateIdentifier(id); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.Unavailable(op, storage.ErrClosed)
	}
	encoded, err := keyring.Get(service(scope), id)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", types.ErrNotFound, id)
		}
		return nil, storage.Unavailable(op, err)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, storage.Unavailable(op, fmt.Errorf("%w: %w", storage.ErrCorruptRecord, err))
	}
	defer storage.Wipe(data)
	rec := &storage.Record{}
	if err := rec.UnmarshalBinary(data); err != nil {
		return nil, storage.Unavailable(op, err)
	}
	return rec, nil
}

// store writes rec. With mustExist the entry is checked again under the
// write lock so a concurrent delete is not undone.
func (s *Store) store(scope storage.Scope, id string, rec *storage.Record, op string, mustExist bool) error {
	data, err := rec.MarshalBinary()
	if err != nil {
		return err
	}
	defer storage.Wipe(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.Unavailable(op, storage.ErrClosed)
	}
	if mustExist {
		if _, err := keyring.Get(service(scope), id); err != nil {
			if errors.Is(err, keyring.ErrNotFound) {
				return fmt.Errorf("%w: %s", types.ErrNotFound, id)
			}
			return storage.Unavailable(op, err)
		}
	}
	if err := keyring.Set(service(scope), id, base64.StdEncoding.EncodeToString(data)); err != nil {
		if errors.Is(err, keyring.ErrSetDataTooBig) {
			return fmt.Errorf("%w: %w", types.ErrInvalidArgument, err)
		}
		return storage.Unavailable(op, err)
	}
	return nil
}

var _ storage.Adapter = (*Store)(nil)
