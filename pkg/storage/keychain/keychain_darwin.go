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

//go:build darwin && cgo

package keychain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	gokeychain "github.com/keybase/go-keychain"

	"github.com/jeremyhahn/go-identity/pkg/storage"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

// Store is a storage.Adapter over the login keychain.
type Store struct {
	label string

	mu     sync.RWMutex
	closed bool
}

// Config configures the keychain store.
type Config struct {
	// Label prefixes the kSecAttrLabel shown in Keychain Access.
	Label string
}

// New returns a keychain store.
func New(config *Config) *Store {
	label := "go-identity"
	if config != nil && config.Label != "" {
		label = config.Label
	}
	return &Store{label: label}
}

var accessible = map[types.AccessibilityMode]gokeychain.Accessible{
	types.AccessibleWhenUnlocked:                   gokeychain.AccessibleWhenUnlocked,
	types.AccessibleAfterFirstUnlock:               gokeychain.AccessibleAfterFirstUnlock,
	types.AccessibleAlways:                         gokeychain.AccessibleAlways,
	types.AccessibleWhenPasscodeSetThisDeviceOnly:  gokeychain.AccessibleWhenPasscodeSetThisDeviceOnly,
	types.AccessibleWhenUnlockedThisDeviceOnly:     gokeychain.AccessibleWhenUnlockedThisDeviceOnly,
	types.AccessibleAfterFirstUnlockThisDeviceOnly: gokeychain.AccessibleAfterFirstUnlockThisDeviceOnly,
	types.AccessibleAlwaysThisDeviceOnly:           gokeychain.AccessibleAccessibleAlwaysThisDeviceOnly,
}

func (s *Store) Exists(_ context.Context, scope storage.Scope, id string) (bool, error) {
	data, err := s.query(scope, id, "exists")
	if err != nil {
		return false, err
	}
	storage.Wipe(data)
	return data != nil, nil
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
	defer storage.Wipe(data)

	item := gokeychain.NewGenericPassword(scope.ServiceOrDefault(), id,
		fmt.Sprintf("%s: %s", s.label, id), data, scope.AccessGroup)
	item.SetSynchronizable(gokeychain.SynchronizableNo)
	item.SetAccessible(accessible[rec.Accessibility])

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.Unavailable("put", storage.ErrClosed)
	}
	return mapError("put", id, gokeychain.AddItem(item))
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
	defer storage.Wipe(data)

	query := gokeychain.NewItem()
	query.SetSecClass(gokeychain.SecClassGenericPassword)
	query.SetService(scope.ServiceOrDefault())
	query.SetAccount(id)
	query.SetAccessGroup(scope.AccessGroup)

	update := gokeychain.NewItem()
	update.SetData(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.Unavailable("update", storage.ErrClosed)
	}
	return mapError("update", id, gokeychain.UpdateItem(query, update))
}

func (s *Store) Delete(_ context.Context, scope storage.Scope, id string) error {
	if err := storage.ValidateIdentifier(id); err != nil {
		return err
	}
	item := gokeychain.NewItem()
	item.SetSecClass(gokeychain.SecClassGenericPassword)
	item.SetService(scope.ServiceOrDefault())
	item.SetAccount(id)
	item.SetAccessGroup(scope.AccessGroup)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.Unavailable("delete", storage.ErrClosed)
	}
	err := gokeychain.DeleteItem(item)
	if err != nil && !errors.Is(err, gokeychain.ErrorItemNotFound) {
		return mapError("delete", id, err)
	}
	return nil
}

func (s *Store) Capabilities() storage.Capabilities {
	return storage.Capabilities{
		Name:                  "keychain",
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

func (s *Store) load(scope storage.Scope, id, op string) (*storage.Record, error) {
	data, err := s.query(scope, id, op)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}
	defer storage.Wipe(data)
	rec := &storage.Record{}
	if err := rec.UnmarshalBinary(data); err != nil {
		return nil, storage.Unavailable(op, err)
	}
	return rec, nil
}

// query returns nil data when the item does not exist.
func (s *Store) query(scope storage.Scope, id, op string) ([]byte, error) {
	if err := storage.ValidateIdentifier(id); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.Unavailable(op, storage.ErrClosed)
	}
	data, err := gokeychain.GetGenericPassword(scope.ServiceOrDefault(), id, "", scope.AccessGroup)
	if err != nil {
		if errors.Is(err, gokeychain.ErrorItemNotFound) {
			return nil, nil
		}
		return nil, mapError(op, id, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

func mapError(op, id string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gokeychain.ErrorDuplicateItem):
		return fmt.Errorf("%w: %s", types.ErrDuplicateItem, id)
	case errors.Is(err, gokeychain.ErrorItemNotFound):
		return fmt.Errorf("%w: %s", types.ErrNotFound, id)
	case errors.Is(err, gokeychain.ErrorAuthFailed):
		return fmt.Errorf("%w: %w", types.ErrAuthenticationFailed, err)
	default:
		return storage.Unavailable(op, err)
	}
}

var _ storage.Adapter = (*Store)(nil)
