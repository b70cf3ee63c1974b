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

package audit

import (
	"context"
	"errors"

	"github.com/jeremyhahn/go-identity/pkg/adapters/logger"
)

// LoggerAdapter writes events as structured log lines. It cannot be queried.
type LoggerAdapter struct {
	log logger.Logger
}

// NewLoggerAdapter writes audit events through log.
func NewLoggerAdapter(log logger.Logger) *LoggerAdapter {
	if log == nil {
		log = logger.NewNop()
	}
	return &LoggerAdapter{log: log.With(logger.String("component", "audit"))}
}

func (a *LoggerAdapter) Log(ctx context.Context, e *Event) error {
	if e == nil {
		return errors.New("audit: nil event")
	}
	fields := []logger.Field{
		logger.String("event_id", e.ID),
		logger.String("event_type", string(e.Type)),
		logger.String("outcome", string(e.Outcome)),
		logger.Code(e.Code),
	}
	if e.Identifier != "" {
		fields = append(fields, logger.Identifier(e.Identifier))
	}
	if e.AccessGroup != "" {
		fields = append(fields, logger.String("access_group", e.AccessGroup))
	}
	if e.Store != "" {
		fields = append(fields, logger.String("store", e.Store))
	}
	if e.Principal != "" {
		fields = append(fields, logger.String("principal", e.Principal))
	}
	if e.Message != "" {
		fields = append(fields, logger.String("detail", e.Message))
	}
	for k, v := range e.Metadata {
		fields = append(fields, logger.String("meta_"+k, v))
	}
	if e.Outcome == OutcomeSuccess {
		a.log.InfoContext(ctx, "audit", fields...)
	} else {
		a.log.WarnContext(ctx, "audit", fields...)
	}
	return nil
}

func (a *LoggerAdapter) Query(context.Context, *Query) ([]*Event, error) {
	return nil, ErrQueryNotSupported
}

func (a *LoggerAdapter) Close() error { return nil }
