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
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-identity/pkg/identity"
	"github.com/jeremyhahn/go-identity/pkg/session"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

// authenticate runs one prompt and waits for its result.
func (g *globals) authenticate(ctx context.Context, m *identity.Module, req session.Request) (types.AuthenticationResult, error) {
	c, err := m.Authenticate(ctx, req, nil)
	if err != nil {
		return types.AuthenticationResult{}, err
	}
	return c.Wait(ctx)
}

func newAuthCommand(g *globals) *cobra.Command {
	var (
		req   session.Request
		reuse time.Duration
	)
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Run a local authentication prompt",
		Long: `Prompt the user with the configured authentication policy and report
the outcome. The command exits non-zero when authentication fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.AllowableReuseDuration = reuse
			return g.withModule(cmd.Context(), func(m *identity.Module) error {
				g.printVerbose("authenticating with policy %s", m.AuthenticationPolicy())
				result, err := g.authenticate(cmd.Context(), m, req)
				if err != nil {
					return err
				}
				if perr := g.printer().PrintAuthentication(result); perr != nil {
					return perr
				}
				if !result.Success {
					return &reportedError{err: &types.ResultError{Kind: types.KindForCode(result.Code), Message: result.Error}}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.Reason, "reason", "", "reason shown in the prompt (required)")
	cmd.Flags().DurationVar(&reuse, "reuse", 0, "allowable reuse duration of a successful authentication")
	cmd.Flags().StringVar(&req.Title, "title", "", "prompt title")
	cmd.Flags().StringVar(&req.Subtitle, "subtitle", "", "prompt subtitle")
	cmd.Flags().StringVar(&req.FallbackTitle, "fallback-title", "", "title of the fallback button")
	cmd.Flags().StringVar(&req.CancelTitle, "cancel-title", "", "title of the cancel button")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}
