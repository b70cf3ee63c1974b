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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-identity/pkg/types"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCommand(strings.NewReader(stdin), &out, &errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// fileStore returns the flags selecting a fresh file store.
func fileStore(t *testing.T) []string {
	t.Helper()
	t.Setenv("IDENTITY_PASSPHRASE", "correct horse battery staple")
	return []string{"--store", "file", "--data-dir", t.TempDir()}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "identity version dev")

	out, err = run(t, "", "version", "-o", "json")
	require.NoError(t, err)
	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, Version, v["version"])
	assert.NotEmpty(t, v["go_version"])
}

func TestStores(t *testing.T) {
	out, err := run(t, "", "stores")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Contains(t, lines, "memory")
	assert.Contains(t, lines, "file")
}

func TestPolicyList(t *testing.T) {
	out, err := run(t, "", "policy", "list")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"biometrics", "passcode", "biometrics_or_passcode", "biometrics_or_watch", "watch",
	}, strings.Split(strings.TrimSpace(out), "\n"))

	out, err = run(t, "", "policy", "list", "-o", "json")
	require.NoError(t, err)
	var v map[string][]string
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Len(t, v["policies"], 5)
}

func TestPolicyShow(t *testing.T) {
	out, err := run(t, "", "policy", "show")
	require.NoError(t, err)
	assert.Equal(t, "biometrics\n", out)

	out, err = run(t, "", "policy", "show", "--policy", "passcode", "-o", "json")
	require.NoError(t, err)
	var v map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "passcode", v["policy"])
	assert.Equal(t, float64(types.PolicyPasscode), v["value"])
}

func TestItemLifecycle(t *testing.T) {
	store := fileStore(t)
	with := func(args ...string) []string {
		return append(append([]string{}, args...), store...)
	}

	out, err := run(t, "", with("item", "save", "password", "s3cret")...)
	require.NoError(t, err)
	assert.Equal(t, "save password: ok\n", out)

	out, err = run(t, "", with("item", "read", "password")...)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", out)

	out, err = run(t, "rotated\n", with("item", "update", "password", "-")...)
	require.NoError(t, err)
	assert.Equal(t, "update password: ok\n", out)

	out, err = run(t, "", with("item", "read", "password")...)
	require.NoError(t, err)
	assert.Equal(t, "rotated", out)

	out, err = run(t, "", with("item", "exists", "password")...)
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)

	out, err = run(t, "", with("item", "reset", "password")...)
	require.NoError(t, err)
	assert.Equal(t, "reset password: ok\n", out)

	out, err = run(t, "", with("item", "exists", "password")...)
	require.NoError(t, err)
	assert.Equal(t, "false\n", out)
}

func TestItemReadMissing(t *testing.T) {
	out, err := run(t, "", append([]string{"item", "read", "absent"}, fileStore(t)...)...)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFound))
	var reported *reportedError
	assert.True(t, errors.As(err, &reported))
	assert.Contains(t, out, "read absent: failed")
}

func TestItemUpdateMissing(t *testing.T) {
	_, err := run(t, "", append([]string{"item", "update", "absent", "v"}, fileStore(t)...)...)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestItemServiceScope(t *testing.T) {
	store := fileStore(t)

	_, err := run(t, "", append([]string{"item", "save", "token", "abc", "--service", "mail"}, store...)...)
	require.NoError(t, err)

	out, err := run(t, "", append([]string{"item", "exists", "token", "--service", "chat"}, store...)...)
	require.NoError(t, err)
	assert.Equal(t, "false\n", out)

	out, err = run(t, "", append([]string{"item", "exists", "token", "--service", "mail"}, store...)...)
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)
}

func TestItemGatedRead(t *testing.T) {
	store := fileStore(t)

	_, err := run(t, "", append([]string{"item", "save", "pin", "1234", "--access-control", "user_presence"}, store...)...)
	require.NoError(t, err)

	// The simulated device accepts the prompt.
	out, err := run(t, "", append([]string{"item", "read", "pin", "--access-control", "user_presence"}, store...)...)
	require.NoError(t, err)
	assert.Equal(t, "1234", out)
}

func TestItemJSONOutput(t *testing.T) {
	out, err := run(t, "", "item", "save", "k", "v", "-o", "json")
	require.NoError(t, err)

	var v map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "save", v["event"])
	assert.Equal(t, true, v["success"])
	assert.Equal(t, "k", v["identifier"])
	assert.Equal(t, float64(types.CodeSuccess), v["code"])
}

func TestItemInvalidArguments(t *testing.T) {
	_, err := run(t, "", "item", "save", "k", "v", "--access-control", "bogus")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInvalidArgument))

	_, err = run(t, "", "item", "save", "k", "v", "--accessibility", "zz")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInvalidArgument))

	_, err = run(t, "", "item", "read")
	assert.Error(t, err)
}

func TestReadValueLimit(t *testing.T) {
	g := &globals{stdin: strings.NewReader(strings.Repeat("x", maxValueSize+1))}
	_, err := g.readValue([]string{"id"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInvalidArgument))

	g = &globals{stdin: strings.NewReader("value\n")}
	v, err := g.readValue([]string{"id", "-"})
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), v)

	v, err = g.readValue([]string{"id", "inline"})
	require.NoError(t, err)
	assert.Equal(t, []byte("inline"), v)
}

func TestAuth(t *testing.T) {
	out, err := run(t, "", "auth", "--reason", "unlock the vault")
	require.NoError(t, err)
	assert.Equal(t, "authenticated\n", out)

	out, err = run(t, "", "auth", "--reason", "unlock", "-o", "json")
	require.NoError(t, err)
	var r types.AuthenticationResult
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.True(t, r.Success)
	assert.Equal(t, types.CodeSuccess, r.Code)

	_, err = run(t, "", "auth")
	assert.Error(t, err)
}

func TestAuthRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
platform:
  type: simulated
  simulated:
    hardware_present: true
    biometry_type: fingerprint
    biometry_enrolled: true
    passcode_set: true
    outcome: reject
`), 0o600))

	out, err := run(t, "", "auth", "--reason", "unlock", "--config", path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrAuthenticationFailed))
	assert.Contains(t, out, "authentication failed")
}

func TestDevice(t *testing.T) {
	out, err := run(t, "", "device", "-o", "json")
	require.NoError(t, err)

	var d DeviceInfo
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.True(t, d.Supported)
	assert.Equal(t, "fingerprint", d.BiometryType)
	assert.Equal(t, "biometrics", d.Policy)
	assert.True(t, d.Status.CanAuthenticate)
	assert.Equal(t, "memory", d.Store.Name)

	out, err = run(t, "", "device")
	require.NoError(t, err)
	assert.Contains(t, out, "Can authenticate: true")
}

func TestInvalidConfiguration(t *testing.T) {
	_, err := run(t, "", "device", "--store", "bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")

	_, err = run(t, "", "device", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEnvironmentBinding(t *testing.T) {
	t.Setenv("IDENTITY_OUTPUT", "json")
	out, err := run(t, "", "policy", "list")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(out)))
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPrinter("json", &buf).PrintError(types.ErrBusy))
	var v map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &v))
	assert.Equal(t, float64(types.CodeOf(types.ErrBusy)), v["code"])

	buf.Reset()
	require.NoError(t, NewPrinter("text", &buf).PrintError(errors.New("boom")))
	assert.Equal(t, "Error: boom\n", buf.String())
}
