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

package rest

import (
	"github.com/jeremyhahn/go-identity/pkg/storage"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

// ErrorResponse is the body of every non-result error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// ValueRequest is the body of save and update.
type ValueRequest struct {
	Value []byte `json:"value"`
}

// AuthenticateRequest is the body of POST /api/v1/auth.
type AuthenticateRequest struct {
	Reason string `json:"reason"`

	// AllowableReuseDuration is a Go duration string such as "30s".
	AllowableReuseDuration string `json:"allowableReuseDuration,omitempty"`

	// Policy overrides the current policy for this call.
	Policy string `json:"policy,omitempty"`

	Title         string `json:"title,omitempty"`
	Subtitle      string `json:"subtitle,omitempty"`
	FallbackTitle string `json:"fallbackTitle,omitempty"`
	CancelTitle   string `json:"cancelTitle,omitempty"`
}

// PolicyRequest is the body of PUT /api/v1/policy.
type PolicyRequest struct {
	Policy string `json:"policy"`
}

// PolicyResponse reports the current policy.
type PolicyResponse struct {
	Policy string `json:"policy"`
	Code   int    `json:"code"`
}

// DeviceResponse reports device and session state.
type DeviceResponse struct {
	Status       *types.DeviceAuthStatus `json:"status"`
	Supported    bool                    `json:"supported"`
	BiometryType string                  `json:"biometryType"`
	Policy       string                  `json:"policy"`
	SessionState string                  `json:"sessionState"`
}

// InfoResponse describes the running module.
type InfoResponse struct {
	APIName string               `json:"apiName"`
	Version string               `json:"version"`
	Store   storage.Capabilities `json:"store"`
}
