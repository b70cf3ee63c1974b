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

package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-identity/pkg/adapters/audit"
	"github.com/jeremyhahn/go-identity/pkg/adapters/auth"
	"github.com/jeremyhahn/go-identity/pkg/correlation"
	"github.com/jeremyhahn/go-identity/pkg/identity"
	"github.com/jeremyhahn/go-identity/pkg/platform"
	"github.com/jeremyhahn/go-identity/pkg/platform/simulated"
	"github.com/jeremyhahn/go-identity/pkg/ratelimit"
	"github.com/jeremyhahn/go-identity/pkg/storage/memory"
	"github.com/jeremyhahn/go-identity/pkg/types"
)

type fixture struct {
	handler http.Handler
	module  *identity.Module
	audit   *audit.MemoryAdapter
}

func newFixture(t *testing.T, mutate func(*Config), sim *simulated.Config) *fixture {
	t.Helper()
	auditor := audit.NewMemoryAdapter(100)
	m, err := identity.New(&identity.Config{
		Store:         memory.New(nil),
		Authenticator: simulated.New(sim),
		Audit:         auditor,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close(context.Background()) })

	cfg := &Config{Module: m, Audit: auditor, Version: "test"}
	if mutate != nil {
		mutate(cfg)
	}
	s, err := NewServer(cfg)
	require.NoError(t, err)
	return &fixture{handler: s.Handler(), module: m, audit: auditor}
}

func (f *fixture) do(t *testing.T, method, target string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, r)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) types.Result {
	t.Helper()
	var r types.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r), rec.Body.String())
	return r
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(nil)
	assert.Error(t, err)
	_, err = NewServer(&Config{})
	assert.Error(t, err)
}

func TestHealthProbesWithoutChecker(t *testing.T) {
	f := newFixture(t, nil, nil)
	for _, path := range []string{"/health/live", "/health/ready", "/health/startup"} {
		rec := f.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestItemLifecycle(t *testing.T) {
	f := newFixture(t, nil, nil)
	const path = "/api/v1/items/password"

	rec := f.do(t, http.MethodPut, path, ValueRequest{Value: []byte("s3cr3t")})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, decodeResult(t, rec).Success)

	rec = f.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	r := decodeResult(t, rec)
	assert.Equal(t, "s3cr3t", string(r.Value))
	assert.Equal(t, "password", r.Identifier)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec = f.do(t, http.MethodPatch, path, ValueRequest{Value: []byte("n3w")})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, path, nil)
	assert.Equal(t, "n3w", string(decodeResult(t, rec).Value))

	rec = f.do(t, http.MethodGet, path+"/exists", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeResult(t, rec).Exists)

	rec = f.do(t, http.MethodHead, path, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodHead, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, path+"/exists", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeResult(t, rec).Exists)
}

func TestItemErrors(t *testing.T) {
	f := newFixture(t, nil, nil)
	const path = "/api/v1/items/token"

	rec := f.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, types.CodeNotFound, decodeResult(t, rec).Code)

	rec = f.do(t, http.MethodPatch, path, ValueRequest{Value: []byte("x")})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "could not update, item does not exist", decodeResult(t, rec).Error)

	rec = f.do(t, http.MethodPut, path, ValueRequest{Value: []byte("a")})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = f.do(t, http.MethodPut, path, ValueRequest{Value: []byte("b")})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, types.CodeDuplicateItem, decodeResult(t, rec).Code)

	rec = f.do(t, http.MethodPut, "/api/v1/items/other", ValueRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, path+"?access_control=retina", ValueRequest{Value: []byte("a")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, path+"?accessibility=zz", ValueRequest{Value: []byte("a")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPut, path, bytes.NewBufferString(`{"value":`))
	out := httptest.NewRecorder()
	f.handler.ServeHTTP(out, req)
	assert.Equal(t, http.StatusBadRequest, out.Code)
}

func TestItemScopesAreSeparate(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec := f.do(t, http.MethodPut, "/api/v1/items/k?service=a", ValueRequest{Value: []byte("one")})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = f.do(t, http.MethodPut, "/api/v1/items/k?service=b", ValueRequest{Value: []byte("two")})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/items/k?service=a", nil)
	assert.Equal(t, "one", string(decodeResult(t, rec).Value))
	rec = f.do(t, http.MethodGet, "/api/v1/items/k?service=b", nil)
	assert.Equal(t, "two", string(decodeResult(t, rec).Value))
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/auth", AuthenticateRequest{Reason: "unlock", AllowableReuseDuration: "1m"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var first types.AuthenticationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.True(t, first.Success)
	assert.False(t, first.Reused)

	rec = f.do(t, http.MethodPost, "/api/v1/auth", AuthenticateRequest{Reason: "unlock"})
	var second types.AuthenticationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.True(t, second.Reused)

	rec = f.do(t, http.MethodPost, "/api/v1/auth/invalidate", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAuthenticate_Errors(t *testing.T) {
	f := newFixture(t, nil, &simulated.Config{
		Device: platform.Device{HardwarePresent: true, BiometryType: types.BiometryFace, BiometryEnrolled: true, PasscodeSet: true},
		Outcome: func(platform.PromptRequest) error {
			return types.ErrAuthenticationFailed
		},
	})

	rec := f.do(t, http.MethodPost, "/api/v1/auth", AuthenticateRequest{Reason: "unlock"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	var r types.AuthenticationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	assert.Equal(t, types.CodeAuthenticationFailed, r.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/auth", AuthenticateRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/auth", AuthenticateRequest{Reason: "x", AllowableReuseDuration: "soon"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/auth", AuthenticateRequest{Reason: "x", Policy: "retina"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthenticate_NotEnrolled(t *testing.T) {
	f := newFixture(t, nil, &simulated.Config{
		Device: platform.Device{HardwarePresent: true, BiometryType: types.BiometryFingerprint, PasscodeSet: true},
	})
	rec := f.do(t, http.MethodPost, "/api/v1/auth", AuthenticateRequest{Reason: "unlock"})
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/auth", AuthenticateRequest{Reason: "unlock", Policy: "passcode"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPolicyAndDevice(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec := f.do(t, http.MethodGet, "/api/v1/policy", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var p PolicyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "biometrics", p.Policy)

	rec = f.do(t, http.MethodPut, "/api/v1/policy", PolicyRequest{Policy: "passcode"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.PolicyPasscode, f.module.AuthenticationPolicy())

	rec = f.do(t, http.MethodPut, "/api/v1/policy", PolicyRequest{Policy: "retina"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/device", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var d DeviceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.True(t, d.Status.CanAuthenticate)
	assert.True(t, d.Supported)
	assert.Equal(t, "fingerprint", d.BiometryType)
	assert.Equal(t, "passcode", d.Policy)

	rec = f.do(t, http.MethodGet, "/api/v1/info", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var info InfoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, identity.APIName, info.APIName)
	assert.Equal(t, "memory", info.Store.Name)
}

func TestAuditQuery(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.do(t, http.MethodPut, "/api/v1/items/a", ValueRequest{Value: []byte("1")})
	f.do(t, http.MethodGet, "/api/v1/items/a", nil)
	f.do(t, http.MethodGet, "/api/v1/items/b", nil)

	rec := f.do(t, http.MethodGet, "/api/v1/audit?identifier=a&type=item.save,item.read", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var events []*audit.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 2)
	assert.Equal(t, "anonymous", events[0].Principal)

	rec = f.do(t, http.MethodGet, "/api/v1/audit?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/v1/audit?since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuditQuery_NotSupported(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Audit = audit.NewLoggerAdapter(nil) }, nil)
	rec := f.do(t, http.MethodGet, "/api/v1/audit", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestCorrelationHeader(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec := f.do(t, http.MethodGet, "/api/v1/policy", nil, correlation.CorrelationIDHeader, "corr-42")
	assert.Equal(t, "corr-42", rec.Header().Get(correlation.CorrelationIDHeader))

	rec = f.do(t, http.MethodGet, "/api/v1/policy", nil, correlation.RequestIDHeader, "req-7")
	assert.Equal(t, "req-7", rec.Header().Get(correlation.CorrelationIDHeader))

	rec = f.do(t, http.MethodGet, "/api/v1/policy", nil)
	assert.NotEmpty(t, rec.Header().Get(correlation.CorrelationIDHeader))
}

func TestJWTScopes(t *testing.T) {
	secret := []byte("test-secret")
	jwtAuth, err := auth.NewJWTAuthenticator(&auth.JWTConfig{Secret: secret})
	require.NoError(t, err)
	f := newFixture(t, func(c *Config) { c.Authenticator = jwtAuth }, nil)

	token := func(scope string) string {
		claims := auth.Claims{
			Scope: scope,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "svc",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
		require.NoError(t, err)
		return "Bearer " + s
	}

	rec := f.do(t, http.MethodGet, "/api/v1/items/x", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/v1/items/x", ValueRequest{Value: []byte("v")}, "Authorization", token(auth.ScopeItemsRead))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/v1/items/x", ValueRequest{Value: []byte("v")}, "Authorization", token(auth.ScopeItemsWrite))
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/v1/policy", PolicyRequest{Policy: "passcode"}, "Authorization", token(auth.ScopeAuth))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/v1/policy", PolicyRequest{Policy: "passcode"}, "Authorization", token(auth.ScopePolicy))
	assert.Equal(t, http.StatusOK, rec.Code)

	// probes stay open
	rec = f.do(t, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.New(&ratelimit.Config{Enabled: true, RequestsPerMinute: 1, Burst: 1})
	t.Cleanup(limiter.Stop)
	f := newFixture(t, func(c *Config) { c.Limiter = limiter }, nil)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/policy", nil).Code)
	rec := f.do(t, http.MethodGet, "/api/v1/policy", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRecoveryMiddleware(t *testing.T) {
	f := newFixture(t, nil, nil)
	s, err := NewServer(&Config{Module: f.module})
	require.NoError(t, err)

	h := s.RecoveryMiddleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStatusForCode(t *testing.T) {
	tests := map[int]int{
		types.CodeSuccess:                    http.StatusOK,
		types.CodeInvalidArgument:            http.StatusBadRequest,
		types.CodeNotFound:                   http.StatusNotFound,
		types.CodeDuplicateItem:              http.StatusConflict,
		types.CodeBusy:                       http.StatusConflict,
		types.CodeUserCancel:                 http.StatusForbidden,
		types.CodeAccessControlUnsatisfiable: http.StatusForbidden,
		types.CodeBiometryLockout:            http.StatusPreconditionFailed,
		types.CodeStoreUnavailable:           http.StatusServiceUnavailable,
		types.CodeUnknown:                    http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, statusForCode(code), "code %d", code)
	}
}
