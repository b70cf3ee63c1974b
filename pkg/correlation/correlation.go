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

// Package correlation carries operation IDs through contexts so that log
// lines, audit events and HTTP responses for one item operation or
// authentication can be joined.
package correlation

import (
	"context"

	"github.com/google/uuid"
)

type contextKey struct{}

const (
	// CorrelationIDHeader is the HTTP header that carries the ID.
	CorrelationIDHeader = "X-Correlation-ID"

	// RequestIDHeader is accepted as a fallback on inbound requests.
	RequestIDHeader = "X-Request-ID"
)

// WithCorrelationID returns a child of ctx carrying id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, contextKey{}, id)
}

// GetCorrelationID returns the ID stored in ctx, or "".
func GetCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// NewID returns a random UUIDv4 string.
func NewID() string {
	return uuid.New().String()
}

// Ensure returns ctx and its correlation ID, attaching a new ID first when
// ctx has none.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := GetCorrelationID(ctx); id != "" {
		return ctx, id
	}
	id := NewID()
	return WithCorrelationID(ctx, id), id
}
