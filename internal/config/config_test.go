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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "identity.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "127.0.0.1:8443", cfg.Server.Address())
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "simulated", cfg.Platform.Type)
	assert.Equal(t, "biometrics", cfg.Policy.Default)
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Port, cfg.Server.Port)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  shutdown_timeout: 5s
logging:
  level: debug
  format: json
policy:
  default: biometrics_or_passcode
  conflict: queue
store:
  backend: file
  file:
    root: /var/lib/identity
    master_key:
      type: passphrase
      passphrase_env: MY_PASS
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "queue", cfg.Policy.Conflict)
	assert.Equal(t, "MY_PASS", cfg.Store.File.MasterKey.PassphraseEnv)
	assert.Equal(t, "/var/lib/identity/master.key", cfg.Store.File.MasterKeyFile())

	// untouched sections keep their defaults
	assert.True(t, cfg.Platform.Simulated.BiometryEnrolled)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server: ["))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "policy:\n  default: retina\n"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("IDENTITY_PORT", "9443")
	t.Setenv("IDENTITY_STORE", "vault")
	t.Setenv("VAULT_ADDR", "http://127.0.0.1:8200")
	t.Setenv("VAULT_TOKEN", "root")
	t.Setenv("IDENTITY_POLICY", "passcode")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9443, cfg.Server.Port)
	assert.Equal(t, "vault", cfg.Store.Backend)
	assert.Equal(t, "root", cfg.Store.Vault.Token)
	assert.Equal(t, "passcode", cfg.Policy.Default)
}

func TestEnvOverrides_BadPortIgnored(t *testing.T) {
	for _, v := range []string{"abc", "0", "70000"} {
		t.Setenv("IDENTITY_PORT", v)
		cfg := Default()
		applyEnvOverrides(cfg)
		assert.Equal(t, 8443, cfg.Server.Port, v)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }},
		{"conflict", func(c *Config) { c.Policy.Conflict = "wait" }},
		{"platform", func(c *Config) { c.Platform.Type = "android" }},
		{"simulated outcome", func(c *Config) { c.Platform.Simulated.Outcome = "maybe" }},
		{"backend", func(c *Config) { c.Store.Backend = "sqlite" }},
		{"audit", func(c *Config) { c.Audit.Type = "syslog" }},
		{"tls without cert", func(c *Config) { c.TLS.Enabled = true }},
		{"rate limit", func(c *Config) { c.RateLimit.Enabled = true; c.RateLimit.RequestsPerMin = 0 }},
		{"file root", func(c *Config) { c.Store.Backend = "file" }},
		{"master key type", func(c *Config) {
			c.Store.Backend = "file"
			c.Store.File.Root = "/tmp/x"
			c.Store.File.MasterKey.Type = "hsm"
		}},
		{"kms key id", func(c *Config) {
			c.Store.Backend = "file"
			c.Store.File.Root = "/tmp/x"
			c.Store.File.MasterKey.Type = "awskms"
		}},
		{"vault", func(c *Config) { c.Store.Backend = "vault" }},
		{"azurekv", func(c *Config) { c.Store.Backend = "azurekv" }},
		{"awssm", func(c *Config) { c.Store.Backend = "awssm" }},
		{"gcpsm", func(c *Config) { c.Store.Backend = "gcpsm" }},
		{"jwt", func(c *Config) { c.Auth.Type = "jwt" }},
		{"auth type", func(c *Config) { c.Auth.Type = "basic" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestValidate_SimulatedChecksSkippedForTouchID(t *testing.T) {
	cfg := Default()
	cfg.Platform.Type = "touchid"
	cfg.Platform.Simulated.Outcome = ""
	assert.NoError(t, cfg.Validate())
}
