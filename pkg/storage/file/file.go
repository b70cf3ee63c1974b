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

// Package file is an encrypted, file-backed secure store.
//
// Each item is one file under Root:
//
//	<root>/<access group>/<service>/<identifier>_kc.dat
//
// Path components made only of [A-Za-z0-9._-] are used as-is; anything
// else is written as "~" followed by its hex encoding. The file holds a
// format version, a random per-item salt and the sealed record. The item
// key is derived from the master key with HKDF over the salt and the item's
// scope key, which is also bound as associated data, so a file moved to
// another path fails to open.
package file

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/jeremyhahn/go-identity/pkg/adapters/kdf"
	"github.com/jeremyhahn/go-identity/pkg/crypto/chacha20poly1305"
	"github.com/jeremyhahn/go-identity/pkg/crypto/masterkey"
	"github.com/jeremyhahn/go-identity/pkg/storage"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

const (
	defaultDirPerms  = 0o700
	defaultFilePerms = 0o600

	fileVersion = 1
	saltSize    = 32
	fileSuffix  = "_kc.dat"
	lockName    = ".lock"

	lockRetry = 10 * time.Millisecond
)

var itemKeyInfo = []byte("go-identity/file/item/v1|")

// ErrTampered is returned when an item file fails authentication.
var ErrTampered = errors.New("file: item failed authentication")

// Config configures the file store.
type Config struct {
	// Root is created with 0700 permissions if missing.
	Root string

	// MasterKey supplies the key items are sealed under.
	MasterKey masterkey.Provider
}

// Store keeps each item in its own encrypted file.
type Store struct {
	root      string
	lockPath  string
	masterKey masterkey.Provider

	mu     sync.RWMutex
	closed bool
}

// New opens a store rooted at config.Root.
func New(config *Config) (*Store, error) {
	if config == nil || config.Root == "" {
		return nil, errors.New("file storage: root directory cannot be empty")
	}
	if config.MasterKey == nil {
		return nil, errors.New("file storage: master key provider is required")
	}
	root, err := filepath.Abs(config.Root)
	if err != nil {
		return nil, fmt.Errorf("file storage: resolve root: %w", err)
	}
	if err := os.MkdirAll(root, defaultDirPerms); err != nil {
		return nil, fmt.Errorf("file storage: failed to create root directory: %w", err)
	}
	return &Store{
		root:      root,
		lockPath:  filepath.Join(root, lockName),
		masterKey: config.MasterKey,
	}, nil
}

// Root returns the absolute root directory.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) Exists(ctx context.Context, scope storage.Scope, id string) (bool, error) {
	if err := storage.ValidateIdentifier(id); err != nil {
		return false, err
	}
	unlock, err := s.lock(ctx, "exists", false)
	if err != nil {
		return false, err
	}
	defer unlock()

	_, err = os.Stat(s.path(scope, id))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, storage.Unavailable("exists", err)
	}
}

// Put writes the item, replacing any existing file.
func (s *Store) Put(ctx context.Context, scope storage.Scope, id string, value []byte, opts *storage.PutOptions) error {
	if err := storage.ValidateIdentifier(id); err != nil {
		return err
	}
	rec, err := storage.NewRecord(ctx, value, opts)
	if err != nil {
		return err
	}
	unlock, err := s.lock(ctx, "put", true)
	if err != nil {
		return err
	}
	defer unlock()
	return s.write(ctx, scope, id, rec, "put")
}

func (s *Store) Get(ctx context.Context, scope storage.Scope, id string, opts *storage.GetOptions) ([]byte, error) {
	if err := storage.ValidateIdentifier(id); err != nil {
		return nil, err
	}
	unlock, err := s.lock(ctx, "get", false)
	if err != nil {
		return nil, err
	}
	rec, err := s.read(ctx, scope, id, "get")
	unlock()
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
	if err := storage.ValidateIdentifier(id); err != nil {
		return err
	}
	unlock, err := s.lock(ctx, "update", false)
	if err != nil {
		return err
	}
	rec, err := s.read(ctx, scope, id, "update")
	unlock()
	if err != nil {
		return err
	}
	rec.Wipe()
	if err := storage.Authorize(ctx, rec, opts); err != nil {
		return err
	}

	unlock, err = s.lock(ctx, "update", true)
	if err != nil {
		return err
	}
	defer unlock()
	if _, err := os.Stat(s.path(scope, id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", types.ErrNotFound, id)
		}
		return storage.Unavailable("update", err)
	}
	rec.Value = value
	return s.write(ctx, scope, id, rec, "update")
}

// Delete removes the item file. A missing file is not an error.
func (s *Store) Delete(ctx context.Context, scope storage.Scope, id string) error {
	if err := storage.ValidateIdentifier(id); err != nil {
		return err
	}
	unlock, err := s.lock(ctx, "delete", true)
	if err != nil {
		return err
	}
	defer unlock()
	if err := os.Remove(s.path(scope, id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storage.Unavailable("delete", err)
	}
	return nil
}

func (s *Store) Capabilities() storage.Capabilities {
	return storage.Capabilities{
		Name:                  "file",
		OverwriteOnPut:        true,
		EnforcesAccessControl: true,
	}
}

// Close marks the store closed. The master key belongs to its provider.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// lock takes the in-process lock and the advisory lock on <root>/.lock,
// which serialises writers across processes sharing the directory.
func (s *Store) lock(ctx context.Context, op string, exclusive bool) (func(), error) {
	if exclusive {
		s.mu.Lock()
	} else {
		s.mu.RLock()
	}
	release := func() {
		if exclusive {
			s.mu.Unlock()
		} else {
			s.mu.RUnlock()
		}
	}
	if s.closed {
		release()
		return nil, storage.Unavailable(op, storage.ErrClosed)
	}

	fl := flock.New(s.lockPath)
	var ok bool
	var err error
	if exclusive {
		ok, err = fl.TryLockContext(ctx, lockRetry)
	} else {
		ok, err = fl.TryRLockContext(ctx, lockRetry)
	}
	if err == nil && !ok {
		err = errors.New("lock not acquired")
	}
	if err != nil {
		_ = fl.Close()
		release()
		return nil, storage.Unavailable(op, fmt.Errorf("lock %s: %w", s.lockPath, err))
	}
	return func() {
		_ = fl.Close()
		release()
	}, nil
}

func (s *Store) read(ctx context.Context, scope storage.Scope, id, op string) (*storage.Record, error) {
	data, err := os.ReadFile(s.path(scope, id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", types.ErrNotFound, id)
		}
		return nil, storage.Unavailable(op, err)
	}
	if len(data) < 1+saltSize || data[0] != fileVersion {
		return nil, storage.Unavailable(op, storage.ErrCorruptRecord)
	}
	salt, sealed := data[1:1+saltSize], data[1+saltSize:]

	sealer, err := s.sealer(ctx, scope, id, salt)
	if err != nil {
		return nil, storage.Unavailable(op, err)
	}
	plain, err := sealer.Open(sealed, []byte(scope.Key(id)))
	if err != nil {
		return nil, storage.Unavailable(op, ErrTampered)
	}
	defer storage.Wipe(plain)

	rec := &storage.Record{}
	if err := rec.UnmarshalBinary(plain); err != nil {
		return nil, storage.Unavailable(op, err)
	}
	return rec, nil
}

func (s *Store) write(ctx context.Context, scope storage.Scope, id string, rec *storage.Record, op string) error {
	plain, err := rec.MarshalBinary()
	if err != nil {
		return err
	}
	defer storage.Wipe(plain)

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return storage.Unavailable(op, err)
	}
	sealer, err := s.sealer(ctx, scope, id, salt)
	if err != nil {
		return storage.Unavailable(op, err)
	}
	sealed, err := sealer.Seal(plain, []byte(scope.Key(id)))
	if err != nil {
		return storage.Unavailable(op, err)
	}

	data := make([]byte, 0, 1+saltSize+len(sealed))
	data = append(data, fileVersion)
	data = append(data, salt...)
	data = append(data, sealed...)

	if err := writeAtomic(s.path(scope, id), data); err != nil {
		return storage.Unavailable(op, err)
	}
	return nil
}

func (s *Store) sealer(ctx context.Context, scope storage.Scope, id string, salt []byte) (*chacha20poly1305.Sealer, error) {
	enclave, err := s.masterKey.MasterKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}
	master, err := enclave.Open()
	if err != nil {
		return nil, fmt.Errorf("open master key: %w", err)
	}
	defer master.Destroy()

	info := append(append([]byte(nil), itemKeyInfo...), scope.Key(id)...)
	key, err := kdf.HKDF{}.DeriveKey(master.Bytes(), &kdf.Params{
		Salt:      salt,
		Info:      info,
		KeyLength: chacha20poly1305.KeySize,
	})
	if err != nil {
		return nil, err
	}
	defer storage.Wipe(key)
	return chacha20poly1305.New(key)
}

func (s *Store) path(scope storage.Scope, id string) string {
	return filepath.Join(s.root,
		component(scope.AccessGroup),
		component(scope.ServiceOrDefault()),
		component(id)+fileSuffix)
}

// component maps an arbitrary string onto a single safe path element.
func component(s string) string {
	if isSafe(s) {
		return s
	}
	return "~" + hex.EncodeToString([]byte(s))
}

func isSafe(s string) bool {
	if s == "" || s == "." || s == ".." || s == lockName {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, defaultDirPerms); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	cleanup := func() { _ = os.Remove(name) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Chmod(defaultFilePerms); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(name, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

var _ storage.Adapter = (*Store)(nil)
