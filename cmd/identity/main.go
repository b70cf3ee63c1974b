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

// Command identity manages keychain items and runs local authentication
// prompts from the command line.
package main

import (
	"os"

	"github.com/jeremyhahn/go-identity/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
