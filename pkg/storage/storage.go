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

// Package storage defines the capability interface between keychain items
// and an OS or service backed secure key-value store.
//
// Adapters persist a Record envelope that carries the secret together with
// its accessibility and access-control attributes, so gating is enforced the
// same way on every backend through Authorize.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jeremyhahn/go-identity/pkg/types"
)

// ErrClosed is returned by adapters after Close.
var ErrClosed = errors.New("storage: closed")

// Scope partitions the store. Items are keyed by scope and identifier.
type Scope struct {
	AccessGroup string
	Service     string
}

// DefaultService is used when a scope does not name a service.
const DefaultService = "go-identity"

// ServiceOrDefault returns the scope's service, or DefaultService.
func (s Scope) ServiceOrDefault() string {
	if s.Service == "" {
		return DefaultService
	}
	return s.Service
}

// Key returns a stable string naming id within s, suitable for map keys and
// flat remote namespaces.
func (s Scope) Key(id string) string {
	return s.Namespace() + "/" + escape(id)
}

// Namespace names the scope without an identifier.
func (s Scope) Namespace() string {
	return escape(s.AccessGroup) + "/" + escape(s.ServiceOrDefault())
}

func escape(s string) string {
	return strings.NewReplacer("%", "%25", "/", "%2F").Replace(s)
}

// Capabilities describes adapter behaviour that varies by backend.
type Capabilities struct {
	Name string `json:"name"`

	// OverwriteOnPut is true when Put replaces an existing item instead of
	// failing with DuplicateItem.
	OverwriteOnPut bool `json:"overwriteOnPut"`

	// HardwareBacked is true when secrets rest in OS or hardware protected
	// storage rather than in files or a remote service.
	HardwareBacked bool `json:"hardwareBacked"`

	// EnforcesAccessControl is true when Get and Update honour the stored
	// access-control mode.
	EnforcesAccessControl bool `json:"enforcesAccessControl"`
}

// Gate connects adapters to user authentication.
type Gate interface {
	// Factors reports which authentication factors the device can present.
	Factors(ctx context.Context) (types.Factors, error)

	// Authorize authenticates the user for mode, honouring any reuse window.
	Authorize(ctx context.Context, mode types.AccessControlMode, reason string) error

	// EnrollmentGeneration changes whenever the biometric enrollment set
	// changes.
	EnrollmentGeneration(ctx context.Context) (uint64, error)
}

// PutOptions carries item attributes for Put.
type PutOptions struct {
	Accessibility types.AccessibilityMode
	AccessControl types.AccessControlMode

	// Gate checks that a gated AccessControl can be satisfied. Required when
	// AccessControl is gated.
	Gate Gate
}

// GetOptions carries the gate used to unlock gated items.
type GetOptions struct {
	Gate   Gate
	Reason string
}

// Adapter is a secure key-value store. Implementations are safe for
// concurrent use. Errors wrap the types.ErrorKind sentinels.
type Adapter interface {
	Exists(ctx context.Context, scope Scope, id string) (bool, error)

	// Put stores a new item. Whether an existing item is replaced or
	// rejected with DuplicateItem is reported by Capabilities.
	Put(ctx context.Context, scope Scope, id string, value []byte, opts *PutOptions) error

	// Get returns the stored secret. Callers own the returned slice.
	Get(ctx context.Context, scope Scope, id string, opts *GetOptions) ([]byte, error)

	// Update replaces the value of an existing item, keeping its attributes.
	Update(ctx context.Context, scope Scope, id string, value []byte, opts *GetOptions) error

	// Delete removes an item. Deleting a missing item succeeds.
	Delete(ctx context.Context, scope Scope, id string) error

	Capabilities() Capabilities
	Close() error
}

// ValidateIdentifier rejects identifiers no backend can store.
func ValidateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("%w: identifier is required", types.ErrInvalidArgument)
	}
	if strings.ContainsRune(id, 0) {
		return fmt.Errorf("%w: identifier contains a null byte", types.ErrInvalidArgument)
	}
	return nil
}

// ProbeIdentifier is looked up by Probe. It is never written.
const ProbeIdentifier = ".health-probe"

// Probe returns a health probe that issues an Exists call against a.
func Probe(a Adapter) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := a.Exists(ctx, Scope{Service: DefaultService}, ProbeIdentifier)
		return err
	}
}

// Unavailable wraps a backend failure as StoreUnavailable.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", types.ErrStoreUnavailable, op, err)
}

// Wipe zeroes b.
func Wipe(b []byte) {
	clear(b)
}
