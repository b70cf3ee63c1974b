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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-identity/pkg/identity"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

// policyNames lists every authentication policy in numeric order.
func policyNames() []string {
	var names []string
	for p := types.PolicyBiometrics; p.Valid(); p++ {
		names = append(names, p.String())
	}
	return names
}

func newPolicyCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect authentication policies",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List the authentication policies",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return g.printer().PrintList("policies", policyNames())
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the policy in effect",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return g.withModule(cmd.Context(), func(m *identity.Module) error {
					p := m.AuthenticationPolicy()
					if g.outputFormat() == string(OutputFormatJSON) {
						return g.printer().printJSON(map[string]interface{}{
							"policy": p.String(),
							"value":  int(p),
						})
					}
					fmt.Fprintln(g.stdout, p)
					return nil
				})
			},
		},
	)
	return cmd
}
