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

// Package audit records security-relevant events: item access,
// authentication outcomes and policy changes.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// EventType categorizes audit events.
type EventType string

const (
	EventItemSave   EventType = "item.save"
	EventItemRead   EventType = "item.read"
	EventItemUpdate EventType = "item.update"
	EventItemReset  EventType = "item.reset"
	EventItemExists EventType = "item.exists"

	EventAuthSuccess    EventType = "auth.success"
	EventAuthFailure    EventType = "auth.failure"
	EventAuthReuse      EventType = "auth.reuse"
	EventAuthInvalidate EventType = "auth.invalidate"

	EventPolicyChange EventType = "policy.change"

	EventSystemStart EventType = "system.start"
	EventSystemStop  EventType = "system.stop"
)

// Outcome is the result of the audited action.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeDenied  Outcome = "denied"
)

// Event is one audit record. It never carries secret values.
type Event struct {
	ID            string            `json:"id"`
	Timestamp     time.Time         `json:"timestamp"`
	Type          EventType         `json:"type"`
	Outcome       Outcome           `json:"outcome"`
	Identifier    string            `json:"identifier,omitempty"`
	AccessGroup   string            `json:"accessGroup,omitempty"`
	Store         string            `json:"store,omitempty"`
	Code          int               `json:"code"`
	Message       string            `json:"message,omitempty"`
	Principal     string            `json:"principal,omitempty"`
	CorrelationID string            `json:"correlationId,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewEvent fills ID and Timestamp.
func NewEvent(typ EventType, outcome Outcome) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      typ,
		Outcome:   outcome,
	}
}

// ErrQueryNotSupported is returned by adapters that only write events.
var ErrQueryNotSupported = errors.New("audit: adapter does not support queries")

type principalKey struct{}

// WithPrincipal attaches the acting subject to ctx. Events logged under
// the returned context record it.
func WithPrincipal(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, principalKey{}, subject)
}

// PrincipalFrom returns the subject attached by WithPrincipal.
func PrincipalFrom(ctx context.Context) string {
	s, _ := ctx.Value(principalKey{}).(string)
	return s
}

// Query filters events. Zero values match everything.
type Query struct {
	Types         []EventType
	Outcomes      []Outcome
	Identifier    string
	CorrelationID string
	Since         time.Time
	Limit         int
}

// Adapter persists audit events.
type Adapter interface {
	Log(ctx context.Context, event *Event) error
	Query(ctx context.Context, q *Query) ([]*Event, error)
	Close() error
}

// Matches reports whether e satisfies q.
func (q *Query) Matches(e *Event) bool {
	if q == nil {
		return true
	}
	if len(q.Types) > 0 && !contains(q.Types, e.Type) {
		return false
	}
	if len(q.Outcomes) > 0 && !contains(q.Outcomes, e.Outcome) {
		return false
	}
	if q.Identifier != "" && q.Identifier != e.Identifier {
		return false
	}
	if q.CorrelationID != "" && q.CorrelationID != e.CorrelationID {
		return false
	}
	if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
		return false
	}
	return true
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

type nopAdapter struct{}

// NewNop returns an Adapter that drops every event.
func NewNop() Adapter { return nopAdapter{} }

func (nopAdapter) Log(context.Context, *Event) error { return nil }
func (nopAdapter) Query(context.Context, *Query) ([]*Event, error) {
	return nil, nil
}
func (nopAdapter) Close() error { return nil }
