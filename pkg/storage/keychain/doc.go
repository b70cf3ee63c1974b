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

// Package keychain stores items as generic passwords in macOS Keychain
// Services. It is only built on darwin with cgo enabled.
//
// The scope service maps to kSecAttrService, the identifier to
// kSecAttrAccount and the access group to kSecAttrAccessGroup. Items are
// never synchronised to iCloud. Adding an item that already exists fails
// with DuplicateItem.
package keychain
