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

// Package chacha20poly1305 seals item payloads with XChaCha20-Poly1305.
// Sealed blobs carry their random nonce as a prefix.
package chacha20poly1305

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the required key length.
const KeySize = chacha20poly1305.KeySize

// ErrOpen is returned when a blob fails authentication.
var ErrOpen = errors.New("chacha20poly1305: message authentication failed")

// Sealer encrypts and authenticates payloads under one key.
type Sealer struct {
	aead cipher.AEAD
}

// New creates a Sealer. The key is not retained beyond the cipher state.
func New(key []byte) (*Sealer, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("chacha20poly1305: invalid key size %d (must be %d bytes)", len(key), KeySize)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("chacha20poly1305: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal returns nonce || ciphertext || tag. aad is authenticated but not
// stored.
func (s *Sealer) Seal(plaintext, aad []byte) ([]byte, error) {
	ns := s.aead.NonceSize()
	out := make([]byte, ns, ns+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("chacha20poly1305: generate nonce: %w", err)
	}
	return s.aead.Seal(out, out[:ns], plaintext, aad), nil
}

// Open authenticates and decrypts a blob produced by Seal with the same aad.
func (s *Sealer) Open(blob, aad []byte) ([]byte, error) {
	ns := s.aead.NonceSize()
	if len(blob) < ns+s.aead.Overhead() {
		return nil, ErrOpen
	}
	pt, err := s.aead.Open(nil, blob[:ns], blob[ns:], aad)
	if err != nil {
		return nil, ErrOpen
	}
	return pt, nil
}

// Overhead is the number of bytes Seal adds to a plaintext.
func (s *Sealer) Overhead() int {
	return s.aead.NonceSize() + s.aead.Overhead()
}

// GenerateKey returns a random key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("chacha20poly1305: generate key: %w", err)
	}
	return key, nil
}
