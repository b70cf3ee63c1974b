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

package auth

import "net/http"

// NoOpAuthenticator admits every request as an anonymous principal holding
// all scopes. Use it only for local development.
type NoOpAuthenticator struct{}

// NewNoOpAuthenticator creates a NoOpAuthenticator.
func NewNoOpAuthenticator() *NoOpAuthenticator {
	return &NoOpAuthenticator{}
}

func (a *NoOpAuthenticator) AuthenticateHTTP(*http.Request) (*Principal, error) {
	return &Principal{Subject: "anonymous", Scopes: []string{"*"}, Method: "noop"}, nil
}

func (a *NoOpAuthenticator) Name() string {
	return "noop"
}
