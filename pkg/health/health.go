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

// Package health implements liveness, readiness and startup probes for the
// identity daemon.
package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/coder/quartz"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	// StatusDegraded means the component answers but with reduced capability,
	// for example a store that is reachable but read-only.
	StatusDegraded Status = "degraded"
)

// CheckResult is the outcome of one probe.
type CheckResult struct {
	Name    string        `json:"name"`
	Status  Status        `json:"status"`
	Message string        `json:"message,omitempty"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

// CheckFunc performs a single readiness check.
type CheckFunc func(ctx context.Context) CheckResult

// Checker tracks registered readiness checks and startup state.
type Checker struct {
	clock quartz.Clock

	mu        sync.RWMutex
	started   bool
	startTime time.Time
	checks    map[string]CheckFunc
}

// NewChecker creates a checker using the real clock.
func NewChecker() *Checker {
	return NewCheckerWithClock(quartz.NewReal())
}

// NewCheckerWithClock creates a checker that measures uptime with clock.
func NewCheckerWithClock(clock quartz.Clock) *Checker {
	return &Checker{
		clock:     clock,
		startTime: clock.Now(),
		checks:    make(map[string]CheckFunc),
	}
}

// RegisterCheck adds or replaces a named readiness check.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	if check == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// UnregisterCheck removes a readiness check.
func (c *Checker) UnregisterCheck(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checks, name)
}

// MarkStarted flips the startup probe to healthy.
func (c *Checker) MarkStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
}

// MarkNotStarted is used during shutdown so traffic drains first.
func (c *Checker) MarkNotStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = false
}

// Live reports whether the process is running. It never consults stores.
func (c *Checker) Live(context.Context) CheckResult {
	return CheckResult{Name: "liveness", Status: StatusHealthy, Message: "alive"}
}

// Ready runs every registered check concurrently and returns the results
// sorted by name.
func (c *Checker) Ready(ctx context.Context) []CheckResult {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	checks := make([]CheckFunc, 0, len(c.checks))
	for name, check := range c.checks {
		names = append(names, name)
		checks = append(checks, check)
	}
	c.mu.RUnlock()

	if len(checks) == 0 {
		return []CheckResult{{Name: "default", Status: StatusHealthy, Message: "no readiness checks configured"}}
	}

	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i := range checks {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := c.clock.Now()
			r := checks[i](ctx)
			r.Latency = c.clock.Since(start)
			if r.Name == "" {
				r.Name = names[i]
			}
			results[i] = r
		}(i)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}

// Startup fails until MarkStarted is called.
func (c *Checker) Startup(context.Context) CheckResult {
	c.mu.RLock()
	started := c.started
	c.mu.RUnlock()

	if !started {
		return CheckResult{Name: "startup", Status: StatusUnhealthy, Message: "initialization not complete"}
	}
	return CheckResult{
		Name:    "startup",
		Status:  StatusHealthy,
		Message: fmt.Sprintf("initialized (uptime: %s)", c.Uptime().Round(time.Second)),
	}
}

// IsHealthy reports whether every readiness check is healthy.
func (c *Checker) IsHealthy(ctx context.Context) bool {
	return AggregateStatus(c.Ready(ctx)) == StatusHealthy
}

// IsStarted reports whether MarkStarted has been called.
func (c *Checker) IsStarted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.started
}

// Uptime returns the time since the checker was created.
func (c *Checker) Uptime() time.Duration {
	return c.clock.Since(c.startTime)
}

// AggregateStatus folds results: any unhealthy wins, then degraded.
func AggregateStatus(results []CheckResult) Status {
	status := StatusHealthy
	for _, r := range results {
		switch r.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}
