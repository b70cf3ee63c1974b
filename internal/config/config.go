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

// Package config loads the identityd and identity CLI configuration from
// YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Config is the complete configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	TLS       TLSConfig       `yaml:"tls"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Health    HealthConfig    `yaml:"health"`
	Policy    PolicyConfig    `yaml:"policy"`
	Platform  PlatformConfig  `yaml:"platform"`
	Store     StoreConfig     `yaml:"store"`
	Audit     AuditConfig     `yaml:"audit"`
}

// ServerConfig contains listener settings
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Address returns host:port.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RateLimitConfig controls per-client rate limiting
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMin    int  `yaml:"requests_per_min"`
	Burst             int  `yaml:"burst"`
	TrustForwardedFor bool `yaml:"trust_forwarded_for"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// HealthConfig controls health probes
type HealthConfig struct {
	Enabled      bool          `yaml:"enabled"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// PolicyConfig sets the initial authentication policy and item conflict
// behaviour.
type PolicyConfig struct {
	// Default is one of biometrics, passcode, biometrics_or_passcode,
	// biometrics_or_watch, watch.
	Default string `yaml:"default"`

	// Conflict is failfast or queue.
	Conflict string `yaml:"conflict"`

	// Reason is shown when a protected item is read.
	Reason string `yaml:"reason"`
}

// PlatformConfig selects the authenticator.
type PlatformConfig struct {
	// Type is simulated or touchid.
	Type      string          `yaml:"type"`
	Simulated SimulatedConfig `yaml:"simulated"`
}

// SimulatedConfig describes the simulated device.
type SimulatedConfig struct {
	HardwarePresent  bool   `yaml:"hardware_present"`
	BiometryType     string `yaml:"biometry_type"`
	BiometryEnrolled bool   `yaml:"biometry_enrolled"`
	PasscodeSet      bool   `yaml:"passcode_set"`
	WatchPaired      bool   `yaml:"watch_paired"`
	MaxFailures      int    `yaml:"max_failures"`

	// Outcome is accept or reject.
	Outcome string `yaml:"outcome"`
}

// StoreConfig selects and configures the secure store.
type StoreConfig struct {
	// Backend is memory, file, keyring, keychain, vault, azurekv, awssm or
	// gcpsm.
	Backend string `yaml:"backend"`

	Memory   MemoryStoreConfig   `yaml:"memory"`
	File     FileStoreConfig     `yaml:"file"`
	Keychain KeychainStoreConfig `yaml:"keychain"`
	Vault    VaultStoreConfig    `yaml:"vault"`
	AzureKV  AzureKVStoreConfig  `yaml:"azurekv"`
	AWSSM    AWSSMStoreConfig    `yaml:"awssm"`
	GCPSM    GCPSMStoreConfig    `yaml:"gcpsm"`
}

type MemoryStoreConfig struct {
	Overwrite bool `yaml:"overwrite"`
}

// FileStoreConfig configures the sealed file store.
type FileStoreConfig struct {
	Root      string          `yaml:"root"`
	MasterKey MasterKeyConfig `yaml:"master_key"`
}

// MasterKeyConfig selects where the file store's master key comes from.
type MasterKeyConfig struct {
	// Type is passphrase, awskms, gcpkms or random.
	Type string `yaml:"type"`

	// KeyFile holds the KDF parameters or the wrapped key. Defaults to
	// <root>/master.key.
	KeyFile string `yaml:"key_file"`

	// PassphraseEnv names the variable holding the passphrase.
	PassphraseEnv string `yaml:"passphrase_env"`

	// KeyID is the AWS KMS key id or the GCP KMS key resource name.
	KeyID           string `yaml:"key_id"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	CredentialsFile string `yaml:"credentials_file"`
}

type KeychainStoreConfig struct {
	Label string `yaml:"label"`
}

type VaultStoreConfig struct {
	Address       string `yaml:"address"`
	Token         string `yaml:"token"`
	Namespace     string `yaml:"namespace"`
	Mount         string `yaml:"mount"`
	Prefix        string `yaml:"prefix"`
	TLSSkipVerify bool   `yaml:"tls_skip_verify"`
}

type AzureKVStoreConfig struct {
	VaultURL           string `yaml:"vault_url"`
	TenantID           string `yaml:"tenant_id"`
	ClientID           string `yaml:"client_id"`
	ClientSecret       string `yaml:"client_secret"`
	UseManagedIdentity bool   `yaml:"use_managed_identity"`
	UserAssignedID     string `yaml:"user_assigned_id"`
	Prefix             string `yaml:"prefix"`
	PurgeOnDelete      bool   `yaml:"purge_on_delete"`
}

type AWSSMStoreConfig struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	KMSKeyID        string `yaml:"kms_key_id"`
	Prefix          string `yaml:"prefix"`
}

type GCPSMStoreConfig struct {
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
	Endpoint        string `yaml:"endpoint"`
	Prefix          string `yaml:"prefix"`
}

// AuditConfig selects the audit sink.
type AuditConfig struct {
	// Type is log, memory or none.
	Type     string `yaml:"type"`
	Capacity int    `yaml:"capacity"`
}

// Default returns a configuration that runs a REST server on localhost
// against an in-memory store and a simulated device.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8443,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    2 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		Auth:      AuthConfig{Type: "noop"},
		RateLimit: RateLimitConfig{RequestsPerMin: 600},
		Metrics:   MetricsConfig{Enabled: true, Path: "/metrics"},
		Health:    HealthConfig{Enabled: true, ProbeTimeout: 2 * time.Second},
		Policy:    PolicyConfig{Default: "biometrics", Conflict: "failfast"},
		Platform: PlatformConfig{
			Type: "simulated",
			Simulated: SimulatedConfig{
				HardwarePresent:  true,
				BiometryType:     "fingerprint",
				BiometryEnrolled: true,
				PasscodeSet:      true,
				MaxFailures:      5,
				Outcome:          "accept",
			},
		},
		Store: StoreConfig{
			Backend: "memory",
			File: FileStoreConfig{
				MasterKey: MasterKeyConfig{Type: "passphrase", PassphraseEnv: "IDENTITY_PASSPHRASE"},
			},
			Vault:   VaultStoreConfig{Mount: "secret", Prefix: "go-identity"},
			AzureKV: AzureKVStoreConfig{Prefix: "gi"},
			AWSSM:   AWSSMStoreConfig{Prefix: "go-identity"},
			GCPSM:   GCPSMStoreConfig{Prefix: "go-identity"},
		},
		Audit: AuditConfig{Type: "log", Capacity: 10000},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates. An empty path loads the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		// #nosec G304 - config path is provided by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString(&cfg.Server.Host, "IDENTITY_HOST")
	if v := os.Getenv("IDENTITY_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		switch {
		case err != nil:
			log.Printf("Warning: invalid IDENTITY_PORT value %q, using %d: %v", v, cfg.Server.Port, err)
		case port < 1 || port > 65535:
			log.Printf("Warning: IDENTITY_PORT %q out of range 1-65535, using %d", v, cfg.Server.Port)
		default:
			cfg.Server.Port = port
		}
	}
	setString(&cfg.Logging.Level, "IDENTITY_LOG_LEVEL")
	setString(&cfg.Logging.Format, "IDENTITY_LOG_FORMAT")
	setString(&cfg.Policy.Default, "IDENTITY_POLICY")
	setString(&cfg.Policy.Conflict, "IDENTITY_CONFLICT")
	setString(&cfg.Platform.Type, "IDENTITY_PLATFORM")
	setString(&cfg.Store.Backend, "IDENTITY_STORE")
	setString(&cfg.Store.File.Root, "IDENTITY_DATA_DIR")
	setString(&cfg.Auth.JWT.Secret, "IDENTITY_JWT_SECRET")

	// Vault
	setString(&cfg.Store.Vault.Address, "VAULT_ADDR")
	setString(&cfg.Store.Vault.Token, "VAULT_TOKEN")
	setString(&cfg.Store.Vault.Namespace, "VAULT_NAMESPACE")

	// AWS
	setString(&cfg.Store.AWSSM.Region, "AWS_REGION")
	setString(&cfg.Store.AWSSM.Endpoint, "AWS_ENDPOINT_URL")
	setString(&cfg.Store.AWSSM.AccessKeyID, "AWS_ACCESS_KEY_ID")
	setString(&cfg.Store.AWSSM.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	if cfg.Store.File.MasterKey.Type == "awskms" {
		setString(&cfg.Store.File.MasterKey.Region, "AWS_REGION")
	}

	// Azure
	setString(&cfg.Store.AzureKV.VaultURL, "AZURE_KEYVAULT_URL")
	setString(&cfg.Store.AzureKV.TenantID, "AZURE_TENANT_ID")
	setString(&cfg.Store.AzureKV.ClientID, "AZURE_CLIENT_ID")
	setString(&cfg.Store.AzureKV.ClientSecret, "AZURE_CLIENT_SECRET")

	// Google
	setString(&cfg.Store.GCPSM.ProjectID, "GOOGLE_CLOUD_PROJECT")
	setString(&cfg.Store.GCPSM.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	if cfg.Store.File.MasterKey.Type == "gcpkms" {
		setString(&cfg.Store.File.MasterKey.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	}
}

var (
	validLevels    = []string{"debug", "info", "warn", "error"}
	validFormats   = []string{"json", "text"}
	validPolicies  = []string{"biometrics", "passcode", "biometrics_or_passcode", "biometrics_or_watch", "watch"}
	validConflicts = []string{"failfast", "queue"}
	validPlatforms = []string{"simulated", "touchid"}
	validBiometry  = []string{"none", "fingerprint", "face"}
	validOutcomes  = []string{"accept", "reject"}
	validStores    = []string{"memory", "file", "keyring", "keychain", "vault", "azurekv", "awssm", "gcpsm"}
	validMasterKey = []string{"passphrase", "awskms", "gcpkms", "random"}
	validAudit     = []string{"log", "memory", "none"}
)

func oneOf(field, value string, allowed []string) error {
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s %q (must be one of %s)", ErrInvalid, field, value, strings.Join(allowed, ", "))
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d", ErrInvalid, c.Server.Port)
	}
	checks := []error{
		oneOf("log level", c.Logging.Level, validLevels),
		oneOf("log format", c.Logging.Format, validFormats),
		oneOf("policy", c.Policy.Default, validPolicies),
		oneOf("conflict mode", c.Policy.Conflict, validConflicts),
		oneOf("platform", c.Platform.Type, validPlatforms),
		oneOf("store backend", c.Store.Backend, validStores),
		oneOf("audit type", c.Audit.Type, validAudit),
	}
	if c.Platform.Type == "simulated" {
		checks = append(checks,
			oneOf("simulated biometry type", c.Platform.Simulated.BiometryType, validBiometry),
			oneOf("simulated outcome", c.Platform.Simulated.Outcome, validOutcomes))
	}
	if err := errors.Join(checks...); err != nil {
		return err
	}

	if c.TLS.Enabled && (c.TLS.CertFile == "" || c.TLS.KeyFile == "") {
		return fmt.Errorf("%w: tls cert_file and key_file are required when TLS is enabled", ErrInvalid)
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMin <= 0 {
		return fmt.Errorf("%w: ratelimit requests_per_min must be positive", ErrInvalid)
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.Store.Validate()
}

// Validate checks the settings of the selected backend.
func (s *StoreConfig) Validate() error {
	switch s.Backend {
	case "file":
		if s.File.Root == "" {
			return fmt.Errorf("%w: store.file.root is required", ErrInvalid)
		}
		mk := s.File.MasterKey
		if err := oneOf("master key type", mk.Type, validMasterKey); err != nil {
			return err
		}
		switch mk.Type {
		case "passphrase":
			if mk.PassphraseEnv == "" {
				return fmt.Errorf("%w: store.file.master_key.passphrase_env is required", ErrInvalid)
			}
		case "awskms", "gcpkms":
			if mk.KeyID == "" {
				return fmt.Errorf("%w: store.file.master_key.key_id is required for %s", ErrInvalid, mk.Type)
			}
		}
	case "vault":
		if s.Vault.Address == "" || s.Vault.Token == "" {
			return fmt.Errorf("%w: vault address and token are required (or set VAULT_ADDR and VAULT_TOKEN)", ErrInvalid)
		}
	case "azurekv":
		if s.AzureKV.VaultURL == "" {
			return fmt.Errorf("%w: azurekv vault_url is required (or set AZURE_KEYVAULT_URL)", ErrInvalid)
		}
	case "awssm":
		if s.AWSSM.Region == "" {
			return fmt.Errorf("%w: awssm region is required (or set AWS_REGION)", ErrInvalid)
		}
	case "gcpsm":
		if s.GCPSM.ProjectID == "" {
			return fmt.Errorf("%w: gcpsm project_id is required (or set GOOGLE_CLOUD_PROJECT)", ErrInvalid)
		}
	}
	return nil
}

// MasterKeyFile returns the configured key file or its default location.
func (f FileStoreConfig) MasterKeyFile() string {
	if f.MasterKey.KeyFile != "" {
		return f.MasterKey.KeyFile
	}
	return strings.TrimRight(f.Root, "/") + "/master.key"
}
