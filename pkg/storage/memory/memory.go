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

// Package memory is an in-process secure store for tests and development.
// Items do not survive the process.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/jeremyhahn/go-identity/pkg/storage"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

// Config configures the memory store.
type Config struct {
	// Overwrite makes Put replace existing items. When false Put fails with
	// DuplicateItem, matching keychain semantics.
	Overwrite bool
}

// Store keeps encoded records in a map.
type Store struct {
	mu        sync.RWMutex
	items     map[string][]byte
	overwrite bool
	closed    bool
}

// New creates an empty store.
func New(config *Config) *Store {
	s := &Store{items: make(map[string][]byte)}
	if config != nil {
		s.overwrite = config.Overwrite
	}
	return s
}

func (s *Store) Exists(_ context.Context, scope storage.Scope, id string) (bool, error) {
	if err := storage.ValidateIdentifier(id); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, storage.Unavailable("exists", storage.ErrClosed)
	}
	_, ok := s.items[scope.Key(id)]
	return ok, nil
}

func (s *Store) Put(ctx context.Context, scope storage.Scope, id string, value []byte, opts *storage.PutOptions) error {
	if err := storage.ValidateIdentifier(id); err != nil {
		return err
	}
	rec, err := storage.NewRecord(ctx, value, opts)
	if err != nil {
		return err
	}
	data, err := rec.MarshalBinary()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		storage.Wipe(data)
		return storage.Unavailable("put", storage.ErrClosed)
	}
	key := scope.Key(id)
	if old, ok := s.items[key]; ok {
		if !s.overwrite {
			storage.Wipe(data)
			return fmt.Errorf("%w: %s", types.ErrDuplicateItem, id)
		}
		storage.Wipe(old)
	}
	s.items[key] = data
	return nil
}

func (s *Store) Get(ctx context.Context, scope storage.Scope, id string, opts *storage.GetOptions) ([]byte, error) {
	rec, err := s.load(scope, id, "get")
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
	rec, err := s.load(scope, id, "update")
	if err != nil {
		return err
	}
	rec.Wipe()
	if err := storage.Authorize(ctx, rec, opts); err != nil {
		return err
	}
	rec.Value = value
	data, err := rec.MarshalBinary()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		storage.Wipe(data)
		return storage.Unavailable("update", storage.ErrClosed)
	}
	key := scope.Key(id)
	old, ok := s.items[key]
	if !ok {
		storage.Wipe(data)
		return fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}
	storage.Wipe(old)
	s.items[key] = data
	return nil
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
	key := scope.Key(id)
	if old, ok := s.items[key]; ok {
		storage.Wipe(old)
		delete(s.items, key)
	}
	return nil
}

func (s *Store) Capabilities() storage.Capabilities {
	return storage.Capabilities{
		Name:                  "memory",
		OverwriteOnPut:        s.overwrite,
		EnforcesAccessControl: true,
	}
}

// Close wipes every item.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.items {
		storage.Wipe(v)
		delete(s.items, k)
	}
	s.closed = true
	return nil
}

// Len returns the number of stored items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Store) load(scope storage.Scope, id, op string) (*storage.Record, error) {
	if err := storage.ValidateIdentifier(id); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.Unavailable(op, storage.ErrClosed)
	}
	data, ok := s.items[scope.Key(id)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}
	rec := &storage.Record{}
	if err := rec.UnmarshalBinary(data); err != nil {
		return nil, storage.Unavailable(op, err)
	}
	return rec, nil
}

var _ storage.Adapter = (*Store)(nil)
