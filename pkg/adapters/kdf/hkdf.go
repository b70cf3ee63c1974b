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
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HKDF expands high-entropy key material with SHA-256.
type HKDF struct{}

func (HKDF) DeriveKey(ikm []byte, params *Params) ([]byte, error) {
	if len(ikm) == 0 {
		return nil, ErrInvalidIKM
	}
	if params == nil || params.KeyLength <= 0 || params.KeyLength > 255*sha256.Size {
		return nil, ErrInvalidKeyLength
	}
	key := make([]byte, params.KeyLength)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, params.Salt, params.Info), key); err != nil {
		return nil, err
	}
	return key, nil
}

func (HKDF) Algorithm() Algorithm {
	return AlgorithmHKDF
}
