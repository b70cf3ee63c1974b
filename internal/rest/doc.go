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

// Package rest exposes an identity module over HTTP.
//
// Routes:
//
//	GET    /health/live | /health/ready | /health/startup
//	GET    /metrics
//	GET    /api/v1/info
//	PUT    /api/v1/items/{id}             save
//	GET    /api/v1/items/{id}             read
//	PATCH  /api/v1/items/{id}             update
//	DELETE /api/v1/items/{id}             reset
//	HEAD   /api/v1/items/{id}             existence
//	GET    /api/v1/items/{id}/exists      existence as JSON
//	POST   /api/v1/auth                   authenticate
//	POST   /api/v1/auth/invalidate
//	GET    /api/v1/policy
//	PUT    /api/v1/policy
//	GET    /api/v1/device
//	GET    /api/v1/audit
//
// Item routes read access_group, service, accessibility and access_control
// from the query string. Item values travel base64 encoded in JSON.
// Responses for item and authentication calls carry the result code of the
// operation next to the HTTP status.
package rest
