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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jeremyhahn/go-identity/pkg/adapters/audit"
	"github.com/jeremyhahn/go-identity/pkg/identity"
	"github.com/jeremyhahn/go-identity/pkg/item"
	"github.com/jeremyhahn/go-identity/pkg/session"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

// maxBodyBytes bounds request bodies. Item values are small secrets.
const maxBodyBytes = 1 << 20

// HandlerContext holds the dependencies of the HTTP handlers.
type HandlerContext struct {
	module        *identity.Module
	HealthChecker HealthChecker
	audit         audit.Adapter
	version       string
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

// keychainItem builds the item addressed by the request path and query.
func (h *HandlerContext) keychainItem(r *http.Request) (*item.Item, error) {
	q := r.URL.Query()
	mode, err := types.ParseAccessControl(q.Get("access_control"))
	if err != nil {
		return nil, err
	}
	return h.module.CreateKeychainItem(item.Options{
		Identifier:        chi.URLParam(r, "id"),
		AccessGroup:       q.Get("access_group"),
		Service:           q.Get("service"),
		AccessibilityMode: types.AccessibilityMode(q.Get("accessibility")),
		AccessControlMode: mode,
	})
}

type itemOp func(ctx context.Context, it *item.Item) (*item.Completion, error)

// runItem starts op and writes its result. success is the status used
// when the operation succeeds.
func (h *HandlerContext) runItem(w http.ResponseWriter, r *http.Request, success int, op itemOp) {
	it, err := h.keychainItem(r)
	if err != nil {
		handleError(w, err)
		return
	}
	c, err := op(r.Context(), it)
	if err != nil {
		handleError(w, err)
		return
	}
	result, err := c.Wait(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	status := statusForCode(result.Code)
	if result.Success {
		status = success
	}
	writeJSON(w, result, status)
}

// SaveItemHandler handles PUT /api/v1/items/{id}.
func (h *HandlerContext) SaveItemHandler(w http.ResponseWriter, r *http.Request) {
	var req ValueRequest
	if err := decode(w, r, &req); err != nil {
		handleError(w, err)
		return
	}
	h.runItem(w, r, http.StatusCreated, func(ctx context.Context, it *item.Item) (*item.Completion, error) {
		return it.Save(ctx, req.Value, nil)
	})
}

// ReadItemHandler handles GET /api/v1/items/{id}.
func (h *HandlerContext) ReadItemHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	h.runItem(w, r, http.StatusOK, func(ctx context.Context, it *item.Item) (*item.Completion, error) {
		return it.Read(ctx, nil)
	})
}

// UpdateItemHandler handles PATCH /api/v1/items/{id}.
func (h *HandlerContext) UpdateItemHandler(w http.ResponseWriter, r *http.Request) {
	var req ValueRequest
	if err := decode(w, r, &req); err != nil {
		handleError(w, err)
		return
	}
	h.runItem(w, r, http.StatusOK, func(ctx context.Context, it *item.Item) (*item.Completion, error) {
		return it.Update(ctx, req.Value, nil)
	})
}

// ResetItemHandler handles DELETE /api/v1/items/{id}.
func (h *HandlerContext) ResetItemHandler(w http.ResponseWriter, r *http.Request) {
	h.runItem(w, r, http.StatusOK, func(ctx context.Context, it *item.Item) (*item.Completion, error) {
		return it.Reset(ctx, nil)
	})
}

// ItemExistsHandler handles HEAD /api/v1/items/{id} and
// GET /api/v1/items/{id}/exists. HEAD answers 404 for a missing item.
func (h *HandlerContext) ItemExistsHandler(w http.ResponseWriter, r *http.Request) {
	it, err := h.keychainItem(r)
	if err != nil {
		handleError(w, err)
		return
	}
	// FetchExistence requires a callback; the completion carries the same result.
	c, err := it.FetchExistence(r.Context(), func(string, types.Result) {})
	if err != nil {
		handleError(w, err)
		return
	}
	result, err := c.Wait(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	status := statusForCode(result.Code)
	if r.Method == http.MethodHead {
		if result.Success && !result.Exists {
			status = http.StatusNotFound
		}
		w.WriteHeader(status)
		return
	}
	writeJSON(w, result, status)
}

// AuthenticateHandler handles POST /api/v1/auth. The call blocks until the
// prompt completes or the client goes away.
func (h *HandlerContext) AuthenticateHandler(w http.ResponseWriter, r *http.Request) {
	var req AuthenticateRequest
	if err := decode(w, r, &req); err != nil {
		handleError(w, err)
		return
	}
	sr := session.Request{
		Reason:        req.Reason,
		Title:         req.Title,
		Subtitle:      req.Subtitle,
		FallbackTitle: req.FallbackTitle,
		CancelTitle:   req.CancelTitle,
	}
	if req.AllowableReuseDuration != "" {
		d, err := time.ParseDuration(req.AllowableReuseDuration)
		if err != nil {
			handleError(w, fmt.Errorf("%w: allowableReuseDuration: %w", ErrInvalidRequest, err))
			return
		}
		sr.AllowableReuseDuration = d
	}
	if req.Policy != "" {
		p, err := types.ParseAuthenticationPolicy(req.Policy)
		if err != nil {
			handleError(w, err)
			return
		}
		sr.Policy = p
	}

	c, err := h.module.Authenticate(r.Context(), sr, nil)
	if err != nil {
		handleError(w, err)
		return
	}
	result, err := c.Wait(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, result, statusForCode(result.Code))
}

// InvalidateHandler handles POST /api/v1/auth/invalidate.
func (h *HandlerContext) InvalidateHandler(w http.ResponseWriter, r *http.Request) {
	h.module.Invalidate()
	w.WriteHeader(http.StatusNoContent)
}

// GetPolicyHandler handles GET /api/v1/policy.
func (h *HandlerContext) GetPolicyHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, PolicyResponse{Policy: h.module.AuthenticationPolicy().String()}, http.StatusOK)
}

// SetPolicyHandler handles PUT /api/v1/policy.
func (h *HandlerContext) SetPolicyHandler(w http.ResponseWriter, r *http.Request) {
	var req PolicyRequest
	if err := decode(w, r, &req); err != nil {
		handleError(w, err)
		return
	}
	p, err := types.ParseAuthenticationPolicy(req.Policy)
	if err != nil {
		handleError(w, err)
		return
	}
	if err := h.module.SetAuthenticationPolicy(r.Context(), p); err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, PolicyResponse{Policy: p.String()}, http.StatusOK)
}

// DeviceHandler handles GET /api/v1/device.
func (h *HandlerContext) DeviceHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	writeJSON(w, DeviceResponse{
		Status:       h.module.DeviceCanAuthenticate(ctx),
		Supported:    h.module.IsSupported(ctx),
		BiometryType: h.module.BiometryType(ctx).String(),
		Policy:       h.module.AuthenticationPolicy().String(),
		SessionState: h.module.SessionState().String(),
	}, http.StatusOK)
}

// InfoHandler handles GET /api/v1/info.
func (h *HandlerContext) InfoHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, InfoResponse{
		APIName: h.module.APIName(),
		Version: h.version,
		Store:   h.module.StoreCapabilities(),
	}, http.StatusOK)
}

// AuditHandler handles GET /api/v1/audit. Filters: type (repeatable or
// comma separated), outcome, identifier, correlation_id, since (RFC 3339)
// and limit.
func (h *HandlerContext) AuditHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := &audit.Query{
		Identifier:    q.Get("identifier"),
		CorrelationID: q.Get("correlation_id"),
	}
	for _, v := range q["type"] {
		for _, t := range strings.Split(v, ",") {
			query.Types = append(query.Types, audit.EventType(strings.TrimSpace(t)))
		}
	}
	for _, o := range q["outcome"] {
		query.Outcomes = append(query.Outcomes, audit.Outcome(o))
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			handleError(w, fmt.Errorf("%w: since: %w", ErrInvalidRequest, err))
			return
		}
		query.Since = since
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			handleError(w, fmt.Errorf("%w: limit must be a non-negative integer", ErrInvalidRequest))
			return
		}
		query.Limit = n
	}

	events, err := h.audit.Query(r.Context(), query)
	if err != nil {
		if errors.Is(err, audit.ErrQueryNotSupported) {
			handleError(w, fmt.Errorf("%w: audit sink cannot be queried", ErrNotSupported))
			return
		}
		handleError(w, err)
		return
	}
	if events == nil {
		events = []*audit.Event{}
	}
	writeJSON(w, events, http.StatusOK)
}
