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

package item

import (
	"context"
	"fmt"
	"sync"

	"github.com/jeremyhahn/go-identity/pkg/types"
)

// ConflictMode decides what happens to an operation on an identifier that
// already has one outstanding.
type ConflictMode int

const (
	// ConflictFailFast completes the second operation with Busy.
	ConflictFailFast ConflictMode = iota

	// ConflictQueue runs waiting operations one at a time in call order.
	ConflictQueue
)

func (m ConflictMode) String() string {
	switch m {
	case ConflictFailFast:
		return "failfast"
	case ConflictQueue:
		return "queue"
	}
	return fmt.Sprintf("conflict(%d)", int(m))
}

// ParseConflictMode parses "failfast" or "queue".
func ParseConflictMode(s string) (ConflictMode, error) {
	switch s {
	case "", "failfast", "fail-fast":
		return ConflictFailFast, nil
	case "queue":
		return ConflictQueue, nil
	}
	return ConflictFailFast, fmt.Errorf("%w: unknown conflict mode %q", types.ErrInvalidArgument, s)
}

// Flights tracks outstanding operations per item key. Every item created
// by a module shares one registry so that two handles for the same
// identifier serialize.
type Flights struct {
	mode ConflictMode

	mu      sync.Mutex
	lanes   map[string]*lane
	closed  bool
	pending sync.WaitGroup
}

type lane struct {
	waiters []*ticket
}

type ticket struct {
	key   string
	ready chan struct{}
}

var errClosed = fmt.Errorf("%w: module closed", types.ErrStoreUnavailable)

// NewFlights creates a registry.
func NewFlights(mode ConflictMode) *Flights {
	return &Flights{mode: mode, lanes: make(map[string]*lane)}
}

// Mode returns the conflict mode.
func (f *Flights) Mode() ConflictMode {
	return f.mode
}

// reserve claims a place for key in call order without blocking. The
// ticket becomes ready when the operation may run. Every successful or
// Busy reservation must be matched by a call to done once the result has
// been delivered; a closed registry reserves nothing.
func (f *Flights) reserve(key string) (*ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, errClosed
	}
	f.pending.Add(1)
	t := &ticket{key: key, ready: make(chan struct{})}
	l, busy := f.lanes[key]
	switch {
	case !busy:
		f.lanes[key] = &lane{}
		close(t.ready)
	case f.mode == ConflictFailFast:
		return nil, fmt.Errorf("%w: another operation on this item is outstanding", types.ErrBusy)
	default:
		l.waiters = append(l.waiters, t)
	}
	return t, nil
}

// wait blocks until t is at the head of its lane. A ticket that is
// already at the head runs even when ctx is done. On cancellation the
// ticket is withdrawn and must not be released.
func (f *Flights) wait(ctx context.Context, t *ticket) error {
	select {
	case <-t.ready:
		return nil
	default:
	}
	select {
	case <-t.ready:
		return nil
	case <-ctx.Done():
	}

	f.mu.Lock()
	l := f.lanes[t.key]
	for i, w := range l.waiters {
		if w == t {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			f.mu.Unlock()
			return ctx.Err()
		}
	}
	f.mu.Unlock()

	// Handed the lane while cancelling; pass it on.
	f.release(t)
	return ctx.Err()
}

// release hands the lane to the next waiter or frees it.
func (f *Flights) release(t *ticket) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.lanes[t.key]
	if len(l.waiters) > 0 {
		next := l.waiters[0]
		l.waiters = l.waiters[1:]
		close(next.ready)
		return
	}
	delete(f.lanes, t.key)
}

func (f *Flights) done() {
	f.pending.Done()
}

// Outstanding returns the number of keys with an operation running.
func (f *Flights) Outstanding() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.lanes)
}

// Close refuses new operations and waits for outstanding ones.
func (f *Flights) Close(ctx context.Context) error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()

	done := make(chan struct{})
	go func() {
		f.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
