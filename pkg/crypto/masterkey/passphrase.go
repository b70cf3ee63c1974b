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
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/awnumar/memguard"

	"github.com/jeremyhahn/go-identity/pkg/adapters/kdf"
	"github.com/jeremyhahn/go-identity/pkg/crypto/chacha20poly1305"
)

var checkPlaintext = []byte("go-identity master key check")

// PassphraseConfig configures a passphrase-derived master key.
type PassphraseConfig struct {
	// Passphrase is moved into an enclave and wiped by NewPassphrase.
	Passphrase []byte

	// KeyFile stores the salt, Argon2id costs and a check value.
	KeyFile string

	// Params overrides the Argon2id costs used when the key file is
	// created. Salt and KeyLength are ignored.
	Params *kdf.Params
}

// Passphrase derives the master key with Argon2id. The first call creates
// the key file; later calls verify the passphrase against it.
type Passphrase struct {
	passphrase *memguard.Enclave
	path       string
	params     kdf.Params

	mu      sync.Mutex
	enclave *memguard.Enclave
}

// NewPassphrase validates config and takes ownership of the passphrase.
func NewPassphrase(config *PassphraseConfig) (*Passphrase, error) {
	if config == nil || len(config.Passphrase) == 0 {
		return nil, errors.New("masterkey: passphrase is required")
	}
	if config.KeyFile == "" {
		return nil, errors.New("masterkey: key file path is required")
	}
	params := *kdf.DefaultArgon2Params(nil)
	if config.Params != nil {
		params.Time = config.Params.Time
		params.Memory = config.Params.Memory
		params.Threads = config.Params.Threads
	}
	return &Passphrase{
		passphrase: memguard.NewEnclave(config.Passphrase),
		path:       config.KeyFile,
		params:     params,
	}, nil
}

func (p *Passphrase) MasterKey(context.Context) (*memguard.Enclave, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enclave != nil {
		return p.enclave, nil
	}

	kf, err := readKeyFile(p.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return p.create()
	case err != nil:
		return nil, err
	case kf.Provider != p.Name():
		return nil, ErrKeyFileMismatch
	}

	key, err := p.derive(kf.Salt, kf.Time, kf.Memory, kf.Threads)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(key)

	sealer, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	check, err := sealer.Open(kf.Check, []byte(p.Name()))
	if err != nil || subtle.ConstantTimeCompare(check, checkPlaintext) != 1 {
		return nil, ErrInvalidPassphrase
	}
	p.enclave = memguard.NewEnclave(key)
	return p.enclave, nil
}

func (p *Passphrase) create() (*memguard.Enclave, error) {
	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("masterkey: generate salt: %w", err)
	}
	key, err := p.derive(salt, p.params.Time, p.params.Memory, p.params.Threads)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(key)

	sealer, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	check, err := sealer.Seal(checkPlaintext, []byte(p.Name()))
	if err != nil {
		return nil, err
	}
	kf := &keyFile{
		Provider: p.Name(),
		Salt:     salt,
		Time:     p.params.Time,
		Memory:   p.params.Memory,
		Threads:  p.params.Threads,
		Check:    check,
	}
	if err := writeKeyFile(p.path, kf); err != nil {
		return nil, err
	}
	p.enclave = memguard.NewEnclave(key)
	return p.enclave, nil
}

func (p *Passphrase) derive(salt []byte, time, memory uint32, threads uint8) ([]byte, error) {
	pass, err := p.passphrase.Open()
	if err != nil {
		return nil, fmt.Errorf("masterkey: open passphrase: %w", err)
	}
	defer pass.Destroy()
	return kdf.Argon2id{}.DeriveKey(pass.Bytes(), &kdf.Params{
		Salt:      salt,
		KeyLength: Size,
		Time:      time,
		Memory:    memory,
		Threads:   threads,
	})
}

func (p *Passphrase) Name() string {
	return "passphrase"
}
