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

package health

import (
	"context"
	"errors"
	"time"

	"github.com/jeremyhahn/go-identity/pkg/metrics"
)

// DefaultProbeTimeout bounds a single store probe.
const DefaultProbeTimeout = 2 * time.Second

// Probe touches a secure store and returns an error when it cannot be reached.
type Probe func(ctx context.Context) error

// StoreCheck wraps a store probe as a readiness check. A probe that exceeds
// timeout is reported unhealthy; the store_healthy gauge follows the result.
func StoreCheck(store string, timeout time.Duration, probe Probe) CheckFunc {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	name := "store:" + store
	return func(ctx context.Context) CheckResult {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		err := probe(ctx)
		metrics.SetStoreHealth(store, err == nil)
		if err == nil {
			return CheckResult{Name: name, Status: StatusHealthy, Message: "store reachable"}
		}
		msg := "store unreachable"
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "store probe timed out"
		}
		return CheckResult{Name: name, Status: StatusUnhealthy, Message: msg, Error: err.Error()}
	}
}
