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

	"github.com/jeremyhahn/go-identity/pkg/identity"
)

func newDeviceCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "device",
		Short: "Report whether the device can authenticate under the policy in effect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return g.withModule(ctx, func(m *identity.Module) error {
				return g.printer().PrintDevice(DeviceInfo{
					Supported:    m.IsSupported(ctx),
					BiometryType: m.BiometryType(ctx).String(),
					Policy:       m.AuthenticationPolicy().String(),
					Status:       *m.DeviceCanAuthenticate(ctx),
					Store:        m.StoreCapabilities(),
				})
			})
		},
	}
}
