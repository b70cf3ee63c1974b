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

package chacha20poly1305

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSealer(t *testing.T) *Sealer {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)
	s, err := New(key)
	require.NoError(t, err)
	return s
}

func TestSealOpen(t *testing.T) {
	s := newSealer(t)
	blob, err := s.Seal([]byte("s3cr3t_p4$$w0rd"), []byte("password"))
	require.NoError(t, err)
	assert.Len(t, blob, len("s3cr3t_p4$$w0rd")+s.Overhead())

	pt, err := s.Open(blob, []byte("password"))
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t_p4$$w0rd", string(pt))
}

func TestSealUsesFreshNonces(t *testing.T) {
	s := newSealer(t)
	a, err := s.Seal([]byte("same"), nil)
	require.NoError(t, err)
	b, err := s.Seal([]byte("same"), nil)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestOpenRejects(t *testing.T) {
	s := newSealer(t)
	blob, err := s.Seal([]byte("payload"), []byte("aad"))
	require.NoError(t, err)

	_, err = s.Open(blob, []byte("other"))
	assert.ErrorIs(t, err, ErrOpen, "aad is bound")

	tampered := append([]byte(nil), blob...)
	tampered[len(tampered)-1] ^= 1
	_, err = s.Open(tampered, []byte("aad"))
	assert.ErrorIs(t, err, ErrOpen)

	_, err = s.Open(blob[:10], []byte("aad"))
	assert.ErrorIs(t, err, ErrOpen)

	_, err = newSealer(t).Open(blob, []byte("aad"))
	assert.ErrorIs(t, err, ErrOpen, "wrong key")
}

func TestNewKeySize(t *testing.T) {
	_, err := New(make([]byte, 16))
	assert.Error(t, err)
}
