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

package audit

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("audit: adapter closed")

// DefaultMemoryCapacity bounds the in-memory ring.
const DefaultMemoryCapacity = 10000

// MemoryAdapter keeps the most recent events in memory.
type MemoryAdapter struct {
	mu       sync.RWMutex
	events   []*Event
	capacity int
	closed   bool
}

// NewMemoryAdapter creates an adapter that retains at most capacity events.
func NewMemoryAdapter(capacity int) *MemoryAdapter {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryAdapter{capacity: capacity}
}

func (m *MemoryAdapter) Log(_ context.Context, event *Event) error {
	if event == nil {
		return errors.New("audit: nil event")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	cp := *event
	m.events = append(m.events, &cp)
	if over := len(m.events) - m.capacity; over > 0 {
		m.events = append(m.events[:0:0], m.events[over:]...)
	}
	return nil
}

// Query returns matching events, newest first.
func (m *MemoryAdapter) Query(_ context.Context, q *Query) ([]*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	var out []*Event
	for i := len(m.events) - 1; i >= 0; i-- {
		if !q.Matches(m.events[i]) {
			continue
		}
		cp := *m.events[i]
		out = append(out, &cp)
		if q != nil && q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// Len returns the number of retained events.
func (m *MemoryAdapter) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

func (m *MemoryAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.events = nil
	return nil
}
