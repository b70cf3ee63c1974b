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
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-identity/pkg/identity"
	"github.com/jeremyhahn/go-identity/pkg/item"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

// maxValueSize bounds values read from stdin.
const maxValueSize = 1 << 20

type itemFlags struct {
	service       string
	accessGroup   string
	accessibility string
	accessControl string
}

func (f *itemFlags) register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&f.service, "service", "", "service the item belongs to")
	cmd.PersistentFlags().StringVar(&f.accessGroup, "access-group", "", "access group shared between applications")
	cmd.PersistentFlags().StringVar(&f.accessibility, "accessibility", "",
		"accessibility mode (ak, ck, dk, akpu, aku, cku, dku)")
	cmd.PersistentFlags().StringVar(&f.accessControl, "access-control", "",
		"comma separated access control flags (user_presence, biometry_any, biometry_current_set, device_passcode, watch, or, and)")
}

func (f *itemFlags) options(id string) (item.Options, error) {
	mode, err := types.ParseAccessControl(f.accessControl)
	if err != nil {
		return item.Options{}, err
	}
	return item.Options{
		Identifier:        id,
		AccessGroup:       f.accessGroup,
		Service:           f.service,
		AccessibilityMode: types.AccessibilityMode(f.accessibility),
		AccessControlMode: mode,
	}, nil
}

type itemOp func(ctx context.Context, it *item.Item) (*item.Completion, error)

// runItem opens the module, runs op against the item and prints the result.
// A failed result is printed and returned as a reportedError.
func (g *globals) runItem(cmd *cobra.Command, f *itemFlags, id string, op itemOp) error {
	opts, err := f.options(id)
	if err != nil {
		return err
	}
	return g.withModule(cmd.Context(), func(m *identity.Module) error {
		it, err := m.CreateKeychainItem(opts)
		if err != nil {
			return err
		}
		g.printVerbose("%s on %q in store %s", cmd.Name(), id, m.StoreCapabilities().Name)
		c, err := op(cmd.Context(), it)
		if err != nil {
			return err
		}
		result, err := c.Wait(cmd.Context())
		if err != nil {
			return err
		}
		if perr := g.printer().PrintResult(c.Event(), result); perr != nil {
			return perr
		}
		if !result.Success {
			return &reportedError{err: &types.ResultError{Kind: types.KindForCode(result.Code), Message: result.Error}}
		}
		return nil
	})
}

// readValue returns args[1] or, when absent or "-", stdin.
func (g *globals) readValue(args []string) ([]byte, error) {
	if len(args) > 1 && args[1] != "-" {
		return []byte(args[1]), nil
	}
	data, err := io.ReadAll(io.LimitReader(g.stdin, maxValueSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read value from stdin: %w", err)
	}
	if len(data) > maxValueSize {
		return nil, fmt.Errorf("%w: value exceeds %d bytes", types.ErrInvalidArgument, maxValueSize)
	}
	return []byte(strings.TrimSuffix(string(data), "\n")), nil
}

func newItemCommand(g *globals) *cobra.Command {
	f := &itemFlags{}
	cmd := &cobra.Command{
		Use:   "item",
		Short: "Manage keychain items",
		Long: `Save, read, update, reset and check keychain items.

Values are taken from the argument after the identifier, or from stdin
when it is omitted or "-". A trailing newline on stdin is dropped. Reading or updating an item with
an access control mode prompts for authentication first.`,
	}
	f.register(cmd)

	cmd.AddCommand(
		&cobra.Command{
			Use:   "save <identifier> [value|-]",
			Short: "Store a new item",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				value, err := g.readValue(args)
				if err != nil {
					return err
				}
				return g.runItem(cmd, f, args[0], func(ctx context.Context, it *item.Item) (*item.Completion, error) {
					return it.Save(ctx, value, nil)
				})
			},
		},
		&cobra.Command{
			Use:   "read <identifier>",
			Short: "Print the value of an item",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return g.runItem(cmd, f, args[0], func(ctx context.Context, it *item.Item) (*item.Completion, error) {
					return it.Read(ctx, nil)
				})
			},
		},
		&cobra.Command{
			Use:   "update <identifier> [value|-]",
			Short: "Replace the value of an existing item",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				value, err := g.readValue(args)
				if err != nil {
					return err
				}
				return g.runItem(cmd, f, args[0], func(ctx context.Context, it *item.Item) (*item.Completion, error) {
					return it.Update(ctx, value, nil)
				})
			},
		},
		&cobra.Command{
			Use:     "reset <identifier>",
			Aliases: []string{"delete", "rm"},
			Short:   "Delete an item",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return g.runItem(cmd, f, args[0], func(ctx context.Context, it *item.Item) (*item.Completion, error) {
					return it.Reset(ctx, nil)
				})
			},
		},
		&cobra.Command{
			Use:   "exists <identifier>",
			Short: "Report whether an item exists",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return g.runItem(cmd, f, args[0], func(ctx context.Context, it *item.Item) (*item.Completion, error) {
					return it.FetchExistence(ctx, func(string, types.Result) {})
				})
			},
		},
	)
	return cmd
}
