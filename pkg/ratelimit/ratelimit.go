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

// Package ratelimit throttles API clients with per-client token buckets.
package ratelimit

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/quartz"
	"golang.org/x/time/rate"
)

// Config holds rate limiter configuration.
type Config struct {
	Enabled bool

	// RequestsPerMinute is the sustained rate per client.
	RequestsPerMinute int

	// Burst defaults to RequestsPerMinute.
	Burst int

	// CleanupInterval defaults to 10 minutes.
	CleanupInterval time.Duration

	// MaxIdle defaults to 30 minutes.
	MaxIdle time.Duration

	// TrustForwardedFor makes the middleware key clients by the first
	// X-Forwarded-For address. Only enable behind a trusted proxy.
	TrustForwardedFor bool

	// Clock defaults to the real clock.
	Clock quartz.Clock
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter is a per-client token bucket limiter.
type Limiter struct {
	clock   quartz.Clock
	rate    rate.Limit
	burst   int
	enabled bool
	maxIdle time.Duration
	trustFF bool

	mu      sync.Mutex
	clients map[string]*client

	cancel context.CancelFunc
	ticker quartz.Waiter
}

// New creates a limiter. A nil config yields a disabled limiter.
func New(config *Config) *Limiter {
	if config == nil {
		config = &Config{}
	}
	clock := config.Clock
	if clock == nil {
		clock = quartz.NewReal()
	}
	burst := config.Burst
	if burst <= 0 {
		burst = config.RequestsPerMinute
	}
	cleanupInterval := config.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = 10 * time.Minute
	}
	maxIdle := config.MaxIdle
	if maxIdle <= 0 {
		maxIdle = 30 * time.Minute
	}

	l := &Limiter{
		clock:   clock,
		rate:    rate.Limit(float64(config.RequestsPerMinute) / 60.0),
		burst:   burst,
		enabled: config.Enabled,
		maxIdle: maxIdle,
		trustFF: config.TrustForwardedFor,
		clients: make(map[string]*client),
	}

	if l.enabled {
		ctx, cancel := context.WithCancel(context.Background())
		l.cancel = cancel
		l.ticker = clock.TickerFunc(ctx, cleanupInterval, func() error {
			l.cleanup()
			return nil
		}, "ratelimit", "cleanup")
	}
	return l
}

// Allow reports whether a request from key fits within its budget.
func (l *Limiter) Allow(key string) bool {
	if !l.enabled {
		return true
	}
	now := l.clock.Now()

	l.mu.Lock()
	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	l.mu.Unlock()

	return c.limiter.AllowN(now, 1)
}

// RetryAfter is the whole-second wait advertised to throttled clients.
func (l *Limiter) RetryAfter() int {
	if l.rate <= 0 {
		return 60
	}
	return int(math.Ceil(1 / float64(l.rate)))
}

func (l *Limiter) cleanup() {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, c := range l.clients {
		if now.Sub(c.lastSeen) > l.maxIdle {
			delete(l.clients, key)
		}
	}
}

// Stop ends the cleanup ticker. It is safe to call more than once.
func (l *Limiter) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	if l.ticker != nil {
		_ = l.ticker.Wait()
	}
}

// IsEnabled reports whether limiting is active.
func (l *Limiter) IsEnabled() bool {
	return l.enabled
}

// ActiveClients returns the number of tracked clients.
func (l *Limiter) ActiveClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Middleware rejects requests over budget with 429 and a Retry-After header.
func Middleware(l *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(l.clientKey(r)) {
				w.Header().Set("Retry-After", strconv.Itoa(l.RetryAfter()))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l *Limiter) clientKey(r *http.Request) string {
	if l.trustFF {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
