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

package kdf

import (
	"golang.org/x/crypto/argon2"
)

const (
	MinArgon2SaltLength = 16
	MinArgon2Memory     = 8 * 1024 // 8 MiB
	MinArgon2Time       = 1
	MinArgon2Threads    = 1
)

// DefaultArgon2Params are the RFC 9106 second recommended settings.
func DefaultArgon2Params(salt []byte) *Params {
	return &Params{
		Salt:      salt,
		KeyLength: KeyLength,
		Time:      3,
		Memory:    64 * 1024,
		Threads:   4,
	}
}

// Argon2id stretches low-entropy secrets such as passphrases.
type Argon2id struct{}

func (Argon2id) DeriveKey(ikm []byte, params *Params) ([]byte, error) {
	if len(ikm) == 0 {
		return nil, ErrInvalidIKM
	}
	if params == nil || params.KeyLength <= 0 {
		return nil, ErrInvalidKeyLength
	}
	if len(params.Salt) < MinArgon2SaltLength {
		return nil, ErrInvalidSalt
	}
	if params.Memory < MinArgon2Memory {
		return nil, ErrInvalidMemory
	}
	if params.Time < MinArgon2Time {
		return nil, ErrInvalidTime
	}
	if params.Threads < MinArgon2Threads {
		return nil, ErrInvalidThreads
	}
	return argon2.IDKey(ikm, params.Salt, params.Time, params.Memory, params.Threads, uint32(params.KeyLength)), nil
}

func (Argon2id) Algorithm() Algorithm {
	return AlgorithmArgon2id
}
