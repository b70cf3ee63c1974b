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
	"sync"

	"github.com/awnumar/memguard"
)

// Random holds an ephemeral key generated on first use. Items sealed under
// it are unreadable after the process exits.
type Random struct {
	once    sync.Once
	enclave *memguard.Enclave
}

// NewRandom creates an ephemeral provider.
func NewRandom() *Random {
	return &Random{}
}

func (r *Random) MasterKey(context.Context) (*memguard.Enclave, error) {
	r.once.Do(func() {
		r.enclave = memguard.NewEnclaveRandom(Size)
	})
	return r.enclave, nil
}

func (r *Random) Name() string {
	return "random"
}
