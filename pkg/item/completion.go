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

	"github.com/jeremyhahn/go-identity/pkg/types"
)

// Completion is the single-shot handle of one item operation.
type Completion struct {
	event  string
	done   chan struct{}
	result types.Result
}

func newCompletion(event string) *Completion {
	return &Completion{event: event, done: make(chan struct{})}
}

// Event names the operation: save, read, update, reset or exists.
func (c *Completion) Event() string {
	return c.event
}

// Done is closed once the result is available.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Wait blocks for the result or until ctx is done. Cancelling ctx does not
// cancel the operation.
func (c *Completion) Wait(ctx context.Context) (types.Result, error) {
	select {
	case <-c.done:
		return c.result, nil
	case <-ctx.Done():
		return types.Result{}, ctx.Err()
	}
}

// Result returns the result if it is available.
func (c *Completion) Result() (types.Result, bool) {
	select {
	case <-c.done:
		return c.result, true
	default:
		return types.Result{}, false
	}
}

func (c *Completion) complete(r types.Result) {
	c.result = r
	close(c.done)
}
