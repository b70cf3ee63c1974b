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
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/jeremyhahn/go-identity/pkg/types"
)

// Common errors
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternalError  = errors.New("internal server error")
	ErrNotSupported   = errors.New("not supported")
)

// statusForCode maps a result code to the HTTP status it is reported with.
func statusForCode(code int) int {
	switch code {
	case types.CodeSuccess:
		return http.StatusOK
	case types.CodeInvalidArgument:
		return http.StatusBadRequest
	case types.CodeNotFound:
		return http.StatusNotFound
	case types.CodeDuplicateItem, types.CodeBusy:
		return http.StatusConflict
	case types.CodeAuthenticationFailed, types.CodeAuthenticationRequired,
		types.CodeUserCancel, types.CodeUserFallback, types.CodeSystemCancel,
		types.CodeAppCancelled, types.CodeInvalidContext, types.CodeAccessControlUnsatisfiable:
		return http.StatusForbidden
	case types.CodePasscodeNotSet, types.CodeBiometryNotAvailable,
		types.CodeBiometryNotEnrolled, types.CodeBiometryLockout:
		return http.StatusPreconditionFailed
	case types.CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// mapErrorToStatusCode maps errors to HTTP status codes.
func mapErrorToStatusCode(err error) int {
	if errors.Is(err, ErrInvalidRequest) {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrNotSupported) {
		return http.StatusNotImplemented
	}
	return statusForCode(types.CodeOf(err))
}

// writeError writes an error response to the client.
func writeError(w http.ResponseWriter, err error, statusCode int) {
	writeErrorWithMessage(w, err, "", statusCode)
}

// writeErrorWithMessage writes an error response with a custom message.
func writeErrorWithMessage(w http.ResponseWriter, err error, message string, statusCode int) {
	writeJSON(w, ErrorResponse{
		Error:   err.Error(),
		Message: message,
		Code:    statusCode,
	}, statusCode)
}

// handleError maps err to a status code and writes the error response.
func handleError(w http.ResponseWriter, err error) {
	writeError(w, err, mapErrorToStatusCode(err))
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode JSON response: %v", err)
	}
}
