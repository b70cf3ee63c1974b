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

package types

// Event names carried by item completions.
const (
	EventSave   = "save"
	EventRead   = "read"
	EventUpdate = "update"
	EventReset  = "reset"
	EventExists = "exists"
)

// Result is the uniform outcome of a keychain item operation.
// Success is true exactly when Code is CodeSuccess.
type Result struct {
	Success    bool   `json:"success"`
	Code       int    `json:"code"`
	Error      string `json:"error,omitempty"`
	Identifier string `json:"identifier"`
	Value      []byte `json:"value,omitempty"`
	Exists     bool   `json:"exists"`
}

// NewResult builds a Result for identifier from err.
func NewResult(identifier string, err error) Result {
	r := Result{Identifier: identifier, Code: CodeOf(err)}
	r.Success = r.Code == CodeSuccess
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Err converts a failed Result back into an error carrying its kind.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	return &ResultError{Kind: KindForCode(r.Code), Message: r.Error}
}

// AuthenticationResult is the outcome of one authentication call.
// Success is true exactly when Code is CodeSuccess.
type AuthenticationResult struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Error   string `json:"error,omitempty"`

	// Reused is set when a prior success inside the reuse window satisfied
	// the call without prompting.
	Reused bool `json:"reused,omitempty"`
}

// NewAuthenticationResult builds an AuthenticationResult from err.
func NewAuthenticationResult(err error) AuthenticationResult {
	r := AuthenticationResult{Code: CodeOf(err)}
	r.Success = r.Code == CodeSuccess
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// BiometryCapability describes the biometric hardware at query time.
type BiometryCapability struct {
	Supported         bool         `json:"supported"`
	BiometryType      BiometryType `json:"biometry_type"`
	ReasonUnavailable *ErrorKind   `json:"-"`
}

// DeviceAuthStatus answers whether the device can authenticate under the
// current policy. Each call returns a new value that callers may modify.
type DeviceAuthStatus struct {
	CanAuthenticate bool   `json:"canAuthenticate"`
	Error           string `json:"error,omitempty"`
	Code            int    `json:"code"`
}

// ResultError is the error form of a failed Result.
type ResultError struct {
	Kind    *ErrorKind
	Message string
}

func (e *ResultError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.Error()
}

func (e *ResultError) Unwrap() error {
	return e.Kind
}
