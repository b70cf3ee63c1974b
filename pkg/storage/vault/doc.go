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

// Package vault stores items in a HashiCorp Vault KV version 2 mount. It is
// built with the "vault" tag.
//
// Each item is one secret at <mount>/data/<prefix>/<group>/<service>/<id>
// holding the encoded record. Put creates with cas=0 so an existing secret
// fails with DuplicateItem; Update writes with the version it read.
package vault
