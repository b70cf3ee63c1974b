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

// Package item implements keychain items: named secrets in a secure store
// whose operations run asynchronously and report a uniform result.
package item

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jeremyhahn/go-identity/pkg/adapters/audit"
	"github.com/jeremyhahn/go-identity/pkg/adapters/logger"
	"github.com/jeremyhahn/go-identity/pkg/correlation"
	"github.com/jeremyhahn/go-identity/pkg/metrics"
	"github.com/jeremyhahn/go-identity/pkg/storage"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

// APIName is reported by every item.
const APIName = "Ti.Identity.KeychainItem"

// ErrUpdateMissing is the message of an update on an absent item.
const ErrUpdateMissing = "could not update, item does not exist"

// Options are the attributes of an item. Identifier is required.
type Options struct {
	Identifier        string                  `json:"identifier" yaml:"identifier"`
	AccessGroup       string                  `json:"accessGroup,omitempty" yaml:"access_group"`
	Service           string                  `json:"service,omitempty" yaml:"service"`
	AccessibilityMode types.AccessibilityMode `json:"accessibilityMode,omitempty" yaml:"accessibility_mode"`
	AccessControlMode types.AccessControlMode `json:"accessControlMode,omitempty" yaml:"access_control_mode"`
}

// Validate checks the attributes.
func (o *Options) Validate() error {
	if err := storage.ValidateIdentifier(o.Identifier); err != nil {
		return err
	}
	if !o.AccessibilityMode.Valid() {
		return fmt.Errorf("%w: unknown accessibility mode %q", types.ErrInvalidArgument, o.AccessibilityMode)
	}
	return o.AccessControlMode.Validate()
}

// Config wires an item to its store.
type Config struct {
	Store storage.Adapter

	// Flights is shared by all items of a module. A nil Flights gives the
	// item a private fail-fast registry.
	Flights *Flights

	// Gate unlocks items with a gated AccessControlMode.
	Gate storage.Gate

	// Reason is shown when a read or update needs authentication.
	Reason string

	Logger logger.Logger
	Audit  audit.Adapter
}

// Callback receives the completion of one operation.
type Callback func(event string, result types.Result)

// Item is a handle on one identifier within a scope. Handles are cheap;
// any number may refer to the same identifier.
type Item struct {
	opts    Options
	scope   storage.Scope
	key     string
	store   storage.Adapter
	flights *Flights
	gate    storage.Gate
	reason  string
	logger  logger.Logger
	audit   audit.Adapter
}

// New creates an item handle. Nothing is read or written.
func New(config *Config, opts Options) (*Item, error) {
	if config == nil || config.Store == nil {
		return nil, fmt.Errorf("%w: item: store is required", types.ErrInvalidArgument)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts.AccessibilityMode = opts.AccessibilityMode.OrDefault()
	it := &Item{
		opts:    opts,
		scope:   storage.Scope{AccessGroup: opts.AccessGroup, Service: opts.Service},
		store:   config.Store,
		flights: config.Flights,
		gate:    config.Gate,
		reason:  config.Reason,
		logger:  config.Logger,
		audit:   config.Audit,
	}
	it.key = it.scope.Key(opts.Identifier)
	if it.flights == nil {
		it.flights = NewFlights(ConflictFailFast)
	}
	if it.logger == nil {
		it.logger = logger.NewNop()
	}
	if it.audit == nil {
		it.audit = audit.NewNop()
	}
	it.logger = it.logger.With(logger.Identifier(opts.Identifier))
	return it, nil
}

func (it *Item) APIName() string                            { return APIName }
func (it *Item) Identifier() string                         { return it.opts.Identifier }
func (it *Item) AccessGroup() string                        { return it.opts.AccessGroup }
func (it *Item) Service() string                            { return it.opts.Service }
func (it *Item) AccessibilityMode() types.AccessibilityMode { return it.opts.AccessibilityMode }
func (it *Item) AccessControlMode() types.AccessControlMode { return it.opts.AccessControlMode }
func (it *Item) Options() Options                           { return it.opts }

// Save stores value. An empty value is rejected synchronously and no
// completion is produced.
func (it *Item) Save(ctx context.Context, value []byte, cb Callback) (*Completion, error) {
	if len(value) == 0 {
		return nil, fmt.Errorf("%w: value is required", types.ErrInvalidArgument)
	}
	value = bytes.Clone(value)
	return it.start(ctx, types.EventSave, cb, func(ctx context.Context) types.Result {
		defer storage.Wipe(value)
		err := it.store.Put(ctx, it.scope, it.opts.Identifier, value, &storage.PutOptions{
			Accessibility: it.opts.AccessibilityMode,
			AccessControl: it.opts.AccessControlMode,
			Gate:          it.gate,
		})
		return types.NewResult(it.opts.Identifier, err)
	})
}

// Read fetches the secret into Result.Value.
func (it *Item) Read(ctx context.Context, cb Callback) (*Completion, error) {
	return it.start(ctx, types.EventRead, cb, func(ctx context.Context) types.Result {
		value, err := it.store.Get(ctx, it.scope, it.opts.Identifier, it.getOptions())
		r := types.NewResult(it.opts.Identifier, err)
		if err == nil {
			r.Value = value
		}
		return r
	})
}

// Update replaces the value of an existing item. An empty value completes
// with an InvalidArgument failure instead of a synchronous error.
func (it *Item) Update(ctx context.Context, value []byte, cb Callback) (*Completion, error) {
	value = bytes.Clone(value)
	return it.start(ctx, types.EventUpdate, cb, func(ctx context.Context) types.Result {
		if len(value) == 0 {
			return types.NewResult(it.opts.Identifier, fmt.Errorf("%w: value is required", types.ErrInvalidArgument))
		}
		defer storage.Wipe(value)
		err := it.store.Update(ctx, it.scope, it.opts.Identifier, value, it.getOptions())
		r := types.NewResult(it.opts.Identifier, err)
		if errors.Is(err, types.ErrNotFound) {
			r.Error = ErrUpdateMissing
		}
		return r
	})
}

// Reset deletes the item. It succeeds whether or not the item existed and
// fails only when the store is unavailable.
func (it *Item) Reset(ctx context.Context, cb Callback) (*Completion, error) {
	return it.start(ctx, types.EventReset, cb, func(ctx context.Context) types.Result {
		err := it.store.Delete(ctx, it.scope, it.opts.Identifier)
		if err != nil && !errors.Is(err, types.ErrStoreUnavailable) {
			it.logger.WarnContext(ctx, "reset reported an error, treating item as removed", logger.Error(err))
			err = nil
		}
		return types.NewResult(it.opts.Identifier, err)
	})
}

// FetchExistence reports whether the item is stored. cb is required.
func (it *Item) FetchExistence(ctx context.Context, cb Callback) (*Completion, error) {
	if cb == nil {
		return nil, fmt.Errorf("%w: callback is required", types.ErrInvalidArgument)
	}
	return it.start(ctx, types.EventExists, cb, func(ctx context.Context) types.Result {
		exists, err := it.store.Exists(ctx, it.scope, it.opts.Identifier)
		r := types.NewResult(it.opts.Identifier, err)
		r.Exists = err == nil && exists
		return r
	})
}

func (it *Item) getOptions() *storage.GetOptions {
	return &storage.GetOptions{Gate: it.gate, Reason: it.reason}
}

// start reserves the item's lane in call order and runs op on a worker
// goroutine. Results are delivered after the lane is released.
func (it *Item) start(ctx context.Context, event string, cb Callback, op func(context.Context) types.Result) (*Completion, error) {
	t, err := it.flights.reserve(it.key)
	if errors.Is(err, errClosed) {
		return nil, err
	}
	c := newCompletion(event)

	if err != nil {
		metrics.RecordBusy(metrics.ComponentItem)
		it.logger.DebugContext(ctx, "operation rejected", logger.Operation(event), logger.Error(err))
		go func() {
			defer it.flights.done()
			it.finish(ctx, c, cb, types.NewResult(it.opts.Identifier, err), 0)
		}()
		return c, nil
	}

	go func() {
		defer it.flights.done()
		if err := it.flights.wait(ctx, t); err != nil {
			busy := fmt.Errorf("%w: gave up waiting for the outstanding operation: %w", types.ErrBusy, err)
			it.finish(ctx, c, cb, types.NewResult(it.opts.Identifier, busy), 0)
			return
		}
		start := time.Now()
		r := op(ctx)
		took := time.Since(start)
		it.flights.release(t)
		it.finish(ctx, c, cb, r, took)
	}()
	return c, nil
}

func (it *Item) finish(ctx context.Context, c *Completion, cb Callback, r types.Result, took time.Duration) {
	store := it.store.Capabilities().Name
	metrics.RecordItemOperation(c.event, store, !r.Success, took.Seconds(), r.Code)

	fields := []logger.Field{logger.Operation(c.event), logger.Code(r.Code), logger.Duration("took", took)}
	if r.Success {
		it.logger.DebugContext(ctx, "item operation completed", fields...)
	} else {
		it.logger.InfoContext(ctx, "item operation failed", append(fields, logger.String("error", r.Error))...)
	}
	it.record(ctx, c.event, store, r)

	c.complete(r)
	if cb != nil {
		cb(c.event, r)
	}
}

var auditTypes = map[string]audit.EventType{
	types.EventSave:   audit.EventItemSave,
	types.EventRead:   audit.EventItemRead,
	types.EventUpdate: audit.EventItemUpdate,
	types.EventReset:  audit.EventItemReset,
	types.EventExists: audit.EventItemExists,
}

func (it *Item) record(ctx context.Context, event, store string, r types.Result) {
	outcome := audit.OutcomeSuccess
	switch r.Code {
	case types.CodeSuccess:
	case types.CodeAuthenticationFailed, types.CodeAuthenticationRequired, types.CodeUserCancel:
		outcome = audit.OutcomeDenied
	default:
		outcome = audit.OutcomeFailure
	}
	e := audit.NewEvent(auditTypes[event], outcome)
	e.Identifier = it.opts.Identifier
	e.AccessGroup = it.opts.AccessGroup
	e.Store = store
	e.Code = r.Code
	e.Message = r.Error
	e.CorrelationID = correlation.GetCorrelationID(ctx)
	e.Principal = audit.PrincipalFrom(ctx)
	if err := it.audit.Log(ctx, e); err != nil {
		it.logger.WarnContext(ctx, "audit log failed", logger.Error(err))
	}
}
