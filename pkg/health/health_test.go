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
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-identity/pkg/metrics"
)

func TestChecker_Live(t *testing.T) {
	c := NewChecker()
	assert.Equal(t, StatusHealthy, c.Live(context.Background()).Status)
}

func TestChecker_ReadyDefault(t *testing.T) {
	results := NewChecker().Ready(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, "default", results[0].Name)
	assert.Equal(t, StatusHealthy, results[0].Status)
}

func TestChecker_ReadySortedAndNamed(t *testing.T) {
	c := NewChecker()
	c.RegisterCheck("b", func(context.Context) CheckResult { return CheckResult{Status: StatusHealthy} })
	c.RegisterCheck("a", func(context.Context) CheckResult { return CheckResult{Status: StatusDegraded} })
	c.RegisterCheck("nil", nil)

	results := c.Ready(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Name)
	assert.Equal(t, "b", results[1].Name)
	assert.False(t, c.IsHealthy(context.Background()))

	c.UnregisterCheck("a")
	assert.True(t, c.IsHealthy(context.Background()))
}

func TestChecker_Startup(t *testing.T) {
	clock := quartz.NewMock(t)
	c := NewCheckerWithClock(clock)

	assert.Equal(t, StatusUnhealthy, c.Startup(context.Background()).Status)
	assert.False(t, c.IsStarted())

	c.MarkStarted()
	clock.Advance(90 * time.Second)
	r := c.Startup(context.Background())
	assert.Equal(t, StatusHealthy, r.Status)
	assert.Contains(t, r.Message, "1m30s")
	assert.Equal(t, 90*time.Second, c.Uptime())

	c.MarkNotStarted()
	assert.False(t, c.IsStarted())
}

func TestAggregateStatus(t *testing.T) {
	tests := []struct {
		name    string
		results []CheckResult
		want    Status
	}{
		{"empty", nil, StatusHealthy},
		{"healthy", []CheckResult{{Status: StatusHealthy}}, StatusHealthy},
		{"degraded", []CheckResult{{Status: StatusHealthy}, {Status: StatusDegraded}}, StatusDegraded},
		{"unhealthy", []CheckResult{{Status: StatusDegraded}, {Status: StatusUnhealthy}}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AggregateStatus(tt.results))
		})
	}
}

func TestStoreCheck(t *testing.T) {
	metrics.StoreHealthy.Reset()

	ok := StoreCheck("memory", 0, func(context.Context) error { return nil })(context.Background())
	assert.Equal(t, "store:memory", ok.Name)
	assert.Equal(t, StatusHealthy, ok.Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StoreHealthy.WithLabelValues("memory")))

	bad := StoreCheck("memory", 0, func(context.Context) error { return errors.New("locked") })(context.Background())
	assert.Equal(t, StatusUnhealthy, bad.Status)
	assert.Equal(t, "locked", bad.Error)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.StoreHealthy.WithLabelValues("memory")))
}

func TestStoreCheck_Timeout(t *testing.T) {
	check := StoreCheck("slow", time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	r := check(context.Background())
	assert.Equal(t, StatusUnhealthy, r.Status)
	assert.Equal(t, "store probe timed out", r.Message)
}
