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

// Package kdf derives keys for the file store: Argon2id stretches
// passphrases into master keys and HKDF derives per-item keys from them.
package kdf

import "errors"

// Algorithm names a key derivation function.
type Algorithm string

const (
	AlgorithmHKDF     Algorithm = "HKDF-SHA256"
	AlgorithmArgon2id Algorithm = "Argon2id"
)

func (a Algorithm) String() string {
	return string(a)
}

// Params holds the parameters of one derivation. Fields irrelevant to the
// algorithm are ignored.
type Params struct {
	Salt      []byte
	Info      []byte
	KeyLength int

	// Argon2id costs.
	Time    uint32
	Memory  uint32
	Threads uint8
}

// Deriver derives a key from input key material.
type Deriver interface {
	DeriveKey(ikm []byte, params *Params) ([]byte, error)
	Algorithm() Algorithm
}

var (
	ErrInvalidSalt      = errors.New("kdf: invalid salt")
	ErrInvalidKeyLength = errors.New("kdf: invalid key length")
	ErrInvalidMemory    = errors.New("kdf: invalid memory cost")
	ErrInvalidThreads   = errors.New("kdf: invalid threads")
	ErrInvalidTime      = errors.New("kdf: invalid time cost")
	ErrInvalidIKM       = errors.New("kdf: invalid input key material")
)

// KeyLength is the key size used throughout go-identity.
const KeyLength = 32
