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

package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-identity/pkg/storage"
	"github.com/jeremyhahn/go-identity/pkg/storage/memory"
	"github.com/jeremyhahn/go-identity/pkg/storage/storagetest"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

func TestConformance(t *testing.T) {
	t.Run("NoOverwrite", func(t *testing.T) {
		storagetest.Run(t, func(*testing.T) storage.Adapter { return memory.New(nil) })
	})
	t.Run("Overwrite", func(t *testing.T) {
		storagetest.Run(t, func(*testing.T) storage.Adapter {
			return memory.New(&memory.Config{Overwrite: true})
		})
	})
}

func TestCapabilities(t *testing.T) {
	caps := memory.New(&memory.Config{Overwrite: true}).Capabilities()
	assert.Equal(t, "memory", caps.Name)
	assert.True(t, caps.OverwriteOnPut)
	assert.False(t, caps.HardwareBacked)
	assert.True(t, caps.EnforcesAccessControl)
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	s := memory.New(nil)
	require.NoError(t, s.Put(ctx, storage.Scope{}, "a", []byte("v"), nil))
	assert.Equal(t, 1, s.Len())
	require.NoError(t, s.Close())
	assert.Zero(t, s.Len())

	_, err := s.Exists(ctx, storage.Scope{}, "a")
	assert.ErrorIs(t, err, types.ErrStoreUnavailable)
	assert.ErrorIs(t, err, storage.ErrClosed)
	assert.ErrorIs(t, s.Delete(ctx, storage.Scope{}, "a"), types.ErrStoreUnavailable)
}
