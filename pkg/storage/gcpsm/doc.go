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

// Package gcpsm stores items in Google Cloud Secret Manager. It is built
// with the "gcpsm" tag.
//
// Each item is a secret named <prefix>-<sha256 of the scope key> whose
// latest version holds the encoded record. Put creates the secret, so an
// existing item fails with DuplicateItem; Update adds a version.
package gcpsm
