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

package cli

import (
	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-identity/internal/server"
)

func newStoresCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "stores",
		Short: "List the secure store backends known to this binary",
		Long: `List the secure store backends. Cloud backends are only usable when
the binary was built with their tag, e.g. -tags vault.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.printer().PrintList("stores", server.Stores())
		},
	}
}
