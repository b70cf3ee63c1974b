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

// Package azurekv stores items as Azure Key Vault secrets. It is built with
// the "azurekv" tag.
//
// Key Vault secret names only allow [0-9a-zA-Z-], so each item is named by
// a prefix and the SHA-256 of its scope key. Setting a secret adds a new
// version, so Put replaces existing items.
package azurekv
