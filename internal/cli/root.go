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

// Package cli implements the identity command line tool.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-identity/internal/config"
	"github.com/jeremyhahn/go-identity/internal/server"
	"github.com/jeremyhahn/go-identity/pkg/identity"
)

// EnvPrefix is prepended to the environment variables bound to the
// persistent flags, e.g. IDENTITY_OUTPUT.
const EnvPrefix = "IDENTITY"

// globals carries the persistent flag values of one command tree.
type globals struct {
	v      *viper.Viper
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	// openModule is replaced in tests.
	openModule func(ctx context.Context, cfg *config.Config, log *slog.Logger) (*identity.Module, error)
}

func (g *globals) configFile() string   { return g.v.GetString("config") }
func (g *globals) outputFormat() string { return g.v.GetString("output") }
func (g *globals) verbose() bool        { return g.v.GetBool("verbose") }

func (g *globals) printer() *Printer {
	return NewPrinter(g.outputFormat(), g.stdout)
}

// loadConfig reads the config file and applies the flag overrides.
func (g *globals) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(g.configFile())
	if err != nil {
		return nil, err
	}
	if s := g.v.GetString("store"); s != "" {
		cfg.Store.Backend = s
	}
	if p := g.v.GetString("policy"); p != "" {
		cfg.Policy.Default = p
	}
	if d := g.v.GetString("data-dir"); d != "" {
		cfg.Store.File.Root = d
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// logger writes warnings only unless --verbose is set.
func (g *globals) logger(cfg *config.Config) *slog.Logger {
	lc := cfg.Logging
	lc.Level = "warn"
	if g.verbose() {
		lc.Level = "debug"
	}
	log, _ := server.NewLogger(lc)
	return log
}

// withModule opens the module described by the configuration, runs fn and
// closes the module.
func (g *globals) withModule(ctx context.Context, fn func(m *identity.Module) error) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	log := g.logger(cfg)
	m, err := g.openModule(ctx, cfg, log)
	if err != nil {
		return err
	}
	err = fn(m)
	if cerr := m.Close(ctx); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func openModule(ctx context.Context, cfg *config.Config, log *slog.Logger) (*identity.Module, error) {
	return server.BuildModule(ctx, cfg, log, server.NewAuditor(&cfg.Audit, log))
}

func (g *globals) printVerbose(format string, args ...interface{}) {
	if g.verbose() {
		fmt.Fprintf(g.stderr, "[VERBOSE] "+format+"\n", args...)
	}
}

// reportedError is returned by commands that already printed a failed
// result; Execute only sets the exit code.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// NewRootCommand builds the identity command tree writing to the given
// streams.
func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	g := &globals{
		v:          viper.New(),
		stdin:      stdin,
		stdout:     stdout,
		stderr:     stderr,
		openModule: openModule,
	}
	return newRootCommand(g)
}

func newRootCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "go-identity CLI - keychain items and local authentication",
		Long: `identity manages keychain items in a secure store and runs local
authentication prompts against the configured platform authenticator.

Items are addressed by identifier, optionally scoped by service and
access group. Reads and updates of items with an access control mode
require a successful authentication first.

Every flag may also be set through the environment with the IDENTITY_
prefix, e.g. IDENTITY_OUTPUT=json.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetIn(g.stdin)
	cmd.SetOut(g.stdout)
	cmd.SetErr(g.stderr)

	flags := cmd.PersistentFlags()
	flags.String("config", "", "config file (defaults are used when empty)")
	flags.StringP("output", "o", "text", "output format (text, json)")
	flags.BoolP("verbose", "v", false, "verbose output")
	flags.String("store", "", "secure store backend, overrides the config file")
	flags.String("policy", "", "authentication policy, overrides the config file")
	flags.String("data-dir", "", "root directory of the file store")

	g.v.SetEnvPrefix(EnvPrefix)
	g.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	g.v.AutomaticEnv()
	_ = g.v.BindPFlags(flags)

	cmd.AddCommand(
		newVersionCommand(g),
		newStoresCommand(g),
		newItemCommand(g),
		newAuthCommand(g),
		newPolicyCommand(g),
		newDeviceCommand(g),
	)
	return cmd
}

// Execute runs the identity command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := NewRootCommand(os.Stdin, os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		var reported *reportedError
		if errors.As(err, &reported) {
			return 1
		}
		format, _ := cmd.PersistentFlags().GetString("output")
		if env := os.Getenv(EnvPrefix + "_OUTPUT"); env != "" && !cmd.PersistentFlags().Changed("output") {
			format = env
		}
		_ = NewPrinter(format, os.Stderr).PrintError(err)
		return 1
	}
	return 0
}
