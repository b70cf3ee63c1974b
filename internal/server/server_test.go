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

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-identity/internal/config"
	"github.com/jeremyhahn/go-identity/pkg/adapters/audit"
	"github.com/jeremyhahn/go-identity/pkg/platform"
	"github.com/jeremyhahn/go-identity/pkg/storage"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStoresRegistered(t *testing.T) {
	names := Stores()
	for _, want := range []string{"memory", "file", "keyring", "keychain", "vault", "azurekv", "awssm", "gcpsm"} {
		assert.Contains(t, names, want)
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	cfg := config.Default().Store
	s, err := OpenStore(ctx, &cfg, discard())
	require.NoError(t, err)
	assert.Equal(t, "memory", s.Capabilities().Name)
	require.NoError(t, s.Close())

	cfg.Backend = "sqlite"
	_, err = OpenStore(ctx, &cfg, discard())
	assert.ErrorContains(t, err, "unknown store backend")
}

func TestOpenStore_File(t *testing.T) {
	ctx := context.Background()
	t.Setenv("TEST_IDENTITY_PASS", "correct horse battery staple")

	cfg := config.Default().Store
	cfg.Backend = "file"
	cfg.File.Root = t.TempDir()
	cfg.File.MasterKey.PassphraseEnv = "TEST_IDENTITY_PASS"

	s, err := OpenStore(ctx, &cfg, discard())
	require.NoError(t, err)
	scope := storage.Scope{Service: "test"}
	require.NoError(t, s.Put(ctx, scope, "k", []byte("v"), &storage.PutOptions{}))
	got, err := s.Get(ctx, scope, "k", &storage.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
	require.NoError(t, s.Close())

	cfg.File.MasterKey.PassphraseEnv = "TEST_IDENTITY_UNSET"
	_, err = OpenStore(ctx, &cfg, discard())
	assert.ErrorContains(t, err, "TEST_IDENTITY_UNSET")

	cfg.File.MasterKey.Type = "random"
	s, err = OpenStore(ctx, &cfg, discard())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	cfg.File.MasterKey.Type = "hsm"
	_, err = OpenStore(ctx, &cfg, discard())
	assert.ErrorContains(t, err, "unknown master key type")
}

func TestClosingStoreReleases(t *testing.T) {
	released := false
	cfg := config.Default().Store
	inner, err := OpenStore(context.Background(), &cfg, discard())
	require.NoError(t, err)

	s := &closingStore{Adapter: inner, release: func() error {
		released = true
		return nil
	}}
	require.NoError(t, s.Close())
	assert.True(t, released)
}

func TestNewAuthenticator(t *testing.T) {
	cfg := config.Default().Platform
	a, err := NewAuthenticator(&cfg, discard())
	require.NoError(t, err)
	assert.Equal(t, "simulated", a.Name())

	d, err := a.Device(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.BiometryFingerprint, d.BiometryType)
	require.NoError(t, a.Evaluate(context.Background(), platform.PromptRequest{Policy: types.PolicyBiometrics, Reason: "r"}))

	cfg.Simulated.Outcome = "reject"
	a, err = NewAuthenticator(&cfg, discard())
	require.NoError(t, err)
	err = a.Evaluate(context.Background(), platform.PromptRequest{Policy: types.PolicyBiometrics, Reason: "r"})
	assert.ErrorIs(t, err, types.ErrAuthenticationFailed)

	cfg.Type = "android"
	_, err = NewAuthenticator(&cfg, discard())
	assert.Error(t, err)
}

func TestNewAuditor(t *testing.T) {
	assert.IsType(t, &audit.MemoryAdapter{}, NewAuditor(&config.AuditConfig{Type: "memory", Capacity: 10}, discard()))
	assert.IsType(t, &audit.LoggerAdapter{}, NewAuditor(&config.AuditConfig{Type: "log"}, discard()))
	assert.NotNil(t, NewAuditor(&config.AuditConfig{Type: "none"}, discard()))
}

func TestBuildModule_BadPolicy(t *testing.T) {
	cfg := config.Default()
	cfg.Policy.Default = "retina"
	_, err := BuildModule(context.Background(), cfg, discard(), audit.NewNop())
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestServerLifecycle(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Logging.Level = "error"
	cfg.Audit.Type = "memory"

	srv, err := New(ctx, cfg)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv.StartOn(ln)
	base := "http://" + ln.Addr().String()

	resp, err := http.Get(base + "/health/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, _ := json.Marshal(map[string][]byte{"value": []byte("s3cr3t")})
	req, err := http.NewRequest(http.MethodPut, base+"/api/v1/items/password", bytes.NewReader(body))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	next := config.Default()
	next.Policy.Default = "passcode"
	next.Logging.Level = "debug"
	require.NoError(t, srv.Reload(ctx, next))
	assert.Equal(t, types.PolicyPasscode, srv.Module().AuthenticationPolicy())

	next.Policy.Default = "retina"
	assert.Error(t, srv.Reload(ctx, next))

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(shutdownCtx))

	select {
	case err := <-srv.Errors():
		t.Fatalf("unexpected serve error: %v", err)
	default:
	}
}

func TestNew_InvalidAuth(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.Type = "jwt"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}
