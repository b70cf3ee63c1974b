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

// Package mocks provides hand-written test doubles for pkg/storage.
package mocks

import (
	"context"
	"sync"

	"github.com/jeremyhahn/go-identity/pkg/storage"
	"github.com/jeremyhahn/go-identity/pkg/storage/memory"
)

// Call records one adapter invocation.
type Call struct {
	Scope storage.Scope
	ID    string
}

// MockAdapter delegates to an in-memory store unless a Func field is set.
// Every call is recorded before the override or store runs.
type MockAdapter struct {
	mu    sync.Mutex
	store *memory.Store

	CapabilitiesValue storage.Capabilities

	ExistsFunc func(ctx context.Context, scope storage.Scope, id string) (bool, error)
	PutFunc    func(ctx context.Context, scope storage.Scope, id string, value []byte, opts *storage.PutOptions) error
	GetFunc    func(ctx context.Context, scope storage.Scope, id string, opts *storage.GetOptions) ([]byte, error)
	UpdateFunc func(ctx context.Context, scope storage.Scope, id string, value []byte, opts *storage.GetOptions) error
	DeleteFunc func(ctx context.Context, scope storage.Scope, id string) error
	CloseFunc  func() error

	ExistsCalls []Call
	PutCalls    []Call
	GetCalls    []Call
	UpdateCalls []Call
	DeleteCalls []Call
	CloseCalls  int
}

// NewMockAdapter creates a mock backed by a memory store with the given
// overwrite behaviour.
func NewMockAdapter(overwrite bool) *MockAdapter {
	return &MockAdapter{
		store: memory.New(&memory.Config{Overwrite: overwrite}),
		CapabilitiesValue: storage.Capabilities{
			Name:                  "mock",
			OverwriteOnPut:        overwrite,
			EnforcesAccessControl: true,
		},
	}
}

func (m *MockAdapter) record(calls *[]Call, scope storage.Scope, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*calls = append(*calls, Call{Scope: scope, ID: id})
}

func (m *MockAdapter) Exists(ctx context.Context, scope storage.Scope, id string) (bool, error) {
	m.record(&m.ExistsCalls, scope, id)
	if m.ExistsFunc != nil {
		return m.ExistsFunc(ctx, scope, id)
	}
	return m.store.Exists(ctx, scope, id)
}

func (m *MockAdapter) Put(ctx context.Context, scope storage.Scope, id string, value []byte, opts *storage.PutOptions) error {
	m.record(&m.PutCalls, scope, id)
	if m.PutFunc != nil {
		return m.PutFunc(ctx, scope, id, value, opts)
	}
	return m.store.Put(ctx, scope, id, value, opts)
}

func (m *MockAdapter) Get(ctx context.Context, scope storage.Scope, id string, opts *storage.GetOptions) ([]byte, error) {
	m.record(&m.GetCalls, scope, id)
	if m.GetFunc != nil {
		return m.GetFunc(ctx, scope, id, opts)
	}
	return m.store.Get(ctx, scope, id, opts)
}

func (m *MockAdapter) Update(ctx context.Context, scope storage.Scope, id string, value []byte, opts *storage.GetOptions) error {
	m.record(&m.UpdateCalls, scope, id)
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, scope, id, value, opts)
	}
	return m.store.Update(ctx, scope, id, value, opts)
}

func (m *MockAdapter) Delete(ctx context.Context, scope storage.Scope, id string) error {
	m.record(&m.DeleteCalls, scope, id)
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, scope, id)
	}
	return m.store.Delete(ctx, scope, id)
}

func (m *MockAdapter) Capabilities() storage.Capabilities {
	return m.CapabilitiesValue
}

func (m *MockAdapter) Close() error {
	m.mu.Lock()
	m.CloseCalls++
	m.mu.Unlock()
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return m.store.Close()
}

// Calls returns a snapshot of the calls recorded for op, one of "exists",
// "put", "get", "update" or "delete".
func (m *MockAdapter) Calls(op string) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	var src []Call
	switch op {
	case "exists":
		src = m.ExistsCalls
	case "put":
		src = m.PutCalls
	case "get":
		src = m.GetCalls
	case "update":
		src = m.UpdateCalls
	case "delete":
		src = m.DeleteCalls
	}
	return append([]Call(nil), src...)
}

var _ storage.Adapter = (*MockAdapter)(nil)
