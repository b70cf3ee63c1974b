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

// Package awssm stores items in AWS Secrets Manager. It is built with the
// "awssm" tag.
//
// Each item is a secret named <prefix>/<sha256 of the scope key> holding
// the encoded record as SecretBinary. Put uses CreateSecret, so an existing
// item fails with DuplicateItem. Delete skips the recovery window so the
// name can be reused at once.
package awssm
