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

// Command identityd serves the identity REST API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/jeremyhahn/go-identity/internal/config"
	"github.com/jeremyhahn/go-identity/internal/server"
)

var (
	// Version information (set during build)
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (defaults are used when empty)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("go-identity server\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Git Commit: %s\n", commit)
		fmt.Printf("  Built:      %s\n", date)
		os.Exit(0)
	}

	// Check for config file override via environment
	if envConfig := os.Getenv("IDENTITY_CONFIG"); envConfig != "" {
		*configPath = envConfig
	}

	slog.Info("Starting identity server",
		"config", *configPath,
		"version", version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("Configuration loaded successfully",
		"store", cfg.Store.Backend,
		"platform", cfg.Platform.Type,
		"policy", cfg.Policy.Default)

	ctx, reload := server.SetupSignalHandler()

	srv, err := server.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to create server", slog.Any("error", err))
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		slog.Error("Failed to start server", slog.Any("error", err))
		os.Exit(1)
	}

	exitCode := 0
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-srv.Errors():
			slog.Error("Server failed", slog.Any("error", err))
			exitCode = 1
			break loop
		case <-reload:
			next, err := config.Load(*configPath)
			if err != nil {
				slog.Error("Reload failed, keeping current configuration", slog.Any("error", err))
				continue
			}
			if err := srv.Reload(ctx, next); err != nil {
				slog.Error("Reload failed", slog.Any("error", err))
				continue
			}
			slog.Info("Configuration reloaded")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), srv.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", slog.Any("error", err))
		exitCode = 1
	}

	slog.Info("Server stopped")
	os.Exit(exitCode)
}
