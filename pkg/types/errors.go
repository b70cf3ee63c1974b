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

import "errors"

// Stable result codes. The authentication codes follow LocalAuthentication's
// LAError values and the store codes follow Security framework OSStatus
// values so results round-trip unchanged between platform implementations.
const (
	CodeSuccess = 0

	CodeAuthenticationFailed = -1
	CodeUserCancel           = -2
	CodeUserFallback         = -3
	CodeSystemCancel         = -4
	CodePasscodeNotSet       = -5
	CodeBiometryNotAvailable = -6
	CodeBiometryNotEnrolled  = -7
	CodeBiometryLockout      = -8
	CodeAppCancelled         = -9
	CodeInvalidContext       = -10

	CodeInvalidArgument            = -50
	CodeBusy                       = -1001
	CodeStoreUnavailable           = -25291
	CodeDuplicateItem              = -25299
	CodeNotFound                   = -25300
	CodeAuthenticationRequired     = -25308
	CodeAccessControlUnsatisfiable = -34018

	// CodeUnknown is reported for platform errors that have no mapping.
	CodeUnknown = -9999
)

// Legacy Touch ID names kept for integrators that still switch on them.
const (
	CodeTouchIDNotAvailable = CodeBiometryNotAvailable
	CodeTouchIDNotEnrolled  = CodeBiometryNotEnrolled
	CodeTouchIDLockout      = CodeBiometryLockout
)

// ErrorKind is a classified failure carrying a stable numeric code.
// Kinds are compared by identity, so wrap them with %w and test with
// errors.Is.
type ErrorKind struct {
	Name    string
	Code    int
	Message string
}

// Error implements the error interface.
func (k *ErrorKind) Error() string {
	return "identity: " + k.Message
}

var (
	ErrInvalidArgument            = &ErrorKind{"InvalidArgument", CodeInvalidArgument, "invalid argument"}
	ErrNotFound                   = &ErrorKind{"NotFound", CodeNotFound, "item not found"}
	ErrDuplicateItem              = &ErrorKind{"DuplicateItem", CodeDuplicateItem, "item already exists"}
	ErrAccessControlUnsatisfiable = &ErrorKind{"AccessControlUnsatisfiable", CodeAccessControlUnsatisfiable, "access control cannot be satisfied on this device"}
	ErrAuthenticationRequired     = &ErrorKind{"AuthenticationRequired", CodeAuthenticationRequired, "authentication required"}
	ErrAuthenticationFailed       = &ErrorKind{"AuthenticationFailed", CodeAuthenticationFailed, "authentication failed"}
	ErrUserCancel                 = &ErrorKind{"UserCancel", CodeUserCancel, "authentication cancelled by user"}
	ErrUserFallback               = &ErrorKind{"UserFallback", CodeUserFallback, "user selected fallback"}
	ErrSystemCancel               = &ErrorKind{"SystemCancel", CodeSystemCancel, "authentication cancelled by system"}
	ErrAppCancelled               = &ErrorKind{"AppCancelled", CodeAppCancelled, "authentication cancelled by application"}
	ErrPasscodeNotSet             = &ErrorKind{"PasscodeNotSet", CodePasscodeNotSet, "device is not secure, passcode not set"}
	ErrBiometryNotAvailable       = &ErrorKind{"BiometryNotAvailable", CodeBiometryNotAvailable, "biometry hardware not detected"}
	ErrBiometryNotEnrolled        = &ErrorKind{"BiometryNotEnrolled", CodeBiometryNotEnrolled, "no enrolled biometrics"}
	ErrBiometryLockout            = &ErrorKind{"BiometryLockout", CodeBiometryLockout, "biometry locked out after too many failed attempts"}
	ErrInvalidContext             = &ErrorKind{"InvalidContext", CodeInvalidContext, "authentication context was invalidated"}
	ErrBusy                       = &ErrorKind{"Busy", CodeBusy, "another operation is in progress"}
	ErrStoreUnavailable           = &ErrorKind{"StoreUnavailable", CodeStoreUnavailable, "secure store unavailable"}
	ErrUnknown                    = &ErrorKind{"Unknown", CodeUnknown, "unknown error"}
)

var kindsByCode = map[int]*ErrorKind{}

func init() {
	for _, k := range []*ErrorKind{
		ErrInvalidArgument, ErrNotFound, ErrDuplicateItem, ErrAccessControlUnsatisfiable,
		ErrAuthenticationRequired, ErrAuthenticationFailed, ErrUserCancel, ErrUserFallback,
		ErrSystemCancel, ErrAppCancelled, ErrPasscodeNotSet, ErrBiometryNotAvailable,
		ErrBiometryNotEnrolled, ErrBiometryLockout, ErrInvalidContext, ErrBusy,
		ErrStoreUnavailable, ErrUnknown,
	} {
		kindsByCode[k.Code] = k
	}
}

// KindOf returns the first ErrorKind in err's chain. Errors without a kind
// classify as ErrUnknown; a nil error returns nil.
func KindOf(err error) *ErrorKind {
	if err == nil {
		return nil
	}
	var kind *ErrorKind
	if errors.As(err, &kind) {
		return kind
	}
	return ErrUnknown
}

// CodeOf returns the result code for err. A nil error is CodeSuccess.
func CodeOf(err error) int {
	if err == nil {
		return CodeSuccess
	}
	return KindOf(err).Code
}

// KindForCode looks up the kind registered for code. Unregistered codes
// return ErrUnknown.
func KindForCode(code int) *ErrorKind {
	if k, ok := kindsByCode[code]; ok {
		return k
	}
	return ErrUnknown
}
