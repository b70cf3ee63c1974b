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
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RFC 5869 test case 1.
func TestHKDF_RFC5869(t *testing.T) {
	ikm, _ := hex.DecodeString("0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b")
	salt, _ := hex.DecodeString("000102030405060708090a0b0c")
	info, _ := hex.DecodeString("f0f1f2f3f4f5f6f7f8f9")
	want := "3cb25f25faacd57a90434f64d0362f2a2d2d0a90cf1a5a4c5db02d56ecc4c5bf34007208d5b887185865"

	key, err := HKDF{}.DeriveKey(ikm, &Params{Salt: salt, Info: info, KeyLength: 42})
	require.NoError(t, err)
	assert.Equal(t, want, hex.EncodeToString(key))
	assert.Equal(t, AlgorithmHKDF, HKDF{}.Algorithm())
}

func TestHKDF_InfoSeparatesKeys(t *testing.T) {
	master := bytes.Repeat([]byte{7}, 32)
	a, err := HKDF{}.DeriveKey(master, &Params{Info: []byte("item-a"), KeyLength: KeyLength})
	require.NoError(t, err)
	b, err := HKDF{}.DeriveKey(master, &Params{Info: []byte("item-b"), KeyLength: KeyLength})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHKDF_Errors(t *testing.T) {
	_, err := HKDF{}.DeriveKey(nil, &Params{KeyLength: 32})
	assert.ErrorIs(t, err, ErrInvalidIKM)
	_, err = HKDF{}.DeriveKey([]byte("k"), nil)
	assert.ErrorIs(t, err, ErrInvalidKeyLength)
	_, err = HKDF{}.DeriveKey([]byte("k"), &Params{KeyLength: 255*32 + 1})
	assert.ErrorIs(t, err, ErrInvalidKeyLength)
}

func TestArgon2id(t *testing.T) {
	salt := bytes.Repeat([]byte{1}, 16)
	params := &Params{Salt: salt, KeyLength: KeyLength, Time: 1, Memory: MinArgon2Memory, Threads: 1}

	a, err := Argon2id{}.DeriveKey([]byte("correct horse"), params)
	require.NoError(t, err)
	assert.Len(t, a, KeyLength)

	b, err := Argon2id{}.DeriveKey([]byte("correct horse"), params)
	require.NoError(t, err)
	assert.Equal(t, a, b, "deterministic for equal inputs")

	c, err := Argon2id{}.DeriveKey([]byte("battery staple"), params)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
	assert.Equal(t, AlgorithmArgon2id, Argon2id{}.Algorithm())
}

func TestArgon2id_Validation(t *testing.T) {
	good := func() *Params {
		return &Params{Salt: bytes.Repeat([]byte{1}, 16), KeyLength: 32, Time: 1, Memory: MinArgon2Memory, Threads: 1}
	}
	tests := []struct {
		name   string
		mutate func(p *Params)
		want   error
	}{
		{"short salt", func(p *Params) { p.Salt = p.Salt[:8] }, ErrInvalidSalt},
		{"zero key length", func(p *Params) { p.KeyLength = 0 }, ErrInvalidKeyLength},
		{"low memory", func(p *Params) { p.Memory = 1024 }, ErrInvalidMemory},
		{"zero time", func(p *Params) { p.Time = 0 }, ErrInvalidTime},
		{"zero threads", func(p *Params) { p.Threads = 0 }, ErrInvalidThreads},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := good()
			tt.mutate(p)
			_, err := Argon2id{}.DeriveKey([]byte("pw"), p)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	_, err := Argon2id{}.DeriveKey(nil, good())
	assert.ErrorIs(t, err, ErrInvalidIKM)
}

func TestDefaultArgon2Params(t *testing.T) {
	p := DefaultArgon2Params([]byte("0123456789abcdef"))
	assert.Equal(t, uint32(64*1024), p.Memory)
	assert.Equal(t, KeyLength, p.KeyLength)
}
