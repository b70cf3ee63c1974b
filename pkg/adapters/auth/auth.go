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

// Package auth authenticates callers of the HTTP API. It is unrelated to
// the user-presence prompts handled by pkg/session.
package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
)

// Scopes granted by API tokens.
const (
	ScopeItemsRead  = "items:read"
	ScopeItemsWrite = "items:write"
	ScopeAuth       = "auth"
	ScopePolicy     = "policy:admin"
)

// ErrUnauthenticated is returned when a request carries no usable credential.
var ErrUnauthenticated = errors.New("auth: unauthenticated")

// Principal is the authenticated API caller.
type Principal struct {
	Subject string
	Scopes  []string
	Method  string
}

// HasScope reports whether the principal was granted scope. A nil principal
// has no scopes.
func (p *Principal) HasScope(scope string) bool {
	if p == nil {
		return false
	}
	return slices.Contains(p.Scopes, scope) || slices.Contains(p.Scopes, "*")
}

// Authenticator validates the credential carried by an HTTP request.
type Authenticator interface {
	AuthenticateHTTP(r *http.Request) (*Principal, error)
	Name() string
}

type contextKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx, or nil.
func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(contextKey{}).(*Principal)
	return p
}

// Middleware authenticates every request and rejects failures with 401.
func Middleware(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := a.AuthenticateHTTP(r)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="identity"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireScope rejects requests whose principal lacks scope with 403.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !PrincipalFrom(r.Context()).HasScope(scope) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request, header string) string {
	v := strings.TrimSpace(r.Header.Get(header))
	if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
		return strings.TrimSpace(v[7:])
	}
	return v
}
