package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/openproject-mcp/internal/config"
	"github.com/HendryAvila/openproject-mcp/internal/openproject/optest"
	"github.com/HendryAvila/openproject-mcp/internal/server"
	"github.com/HendryAvila/openproject-mcp/internal/updater"
)

type result struct {
	code           int
	stdout, stderr string
}

func execute(t *testing.T, a *app, args ...string) result {
	t.Helper()
	code := a.run(args)
	return result{
		code:   code,
		stdout: a.stdout.(*bytes.Buffer).String(),
		stderr: a.stderr.(*bytes.Buffer).String(),
	}
}

// testApp runs with an empty config directory and no update server.
func testApp(t *testing.T, env map[string]string) *app {
	t.Helper()
	if env == nil {
		env = map[string]string{}
	}
	env["XDG_CONFIG_HOME"] = t.TempDir()
	a := newApp(&bytes.Buffer{}, &bytes.Buffer{}, env)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(ts.Close)
	a.updates.Endpoint = ts.URL
	a.updates.HTTPClient = ts.Client()
	return a
}

func trackerEnv(fake *optest.Server) map[string]string {
	return map[string]string{
		"OPENPROJECT_URL":     fake.URL,
		"OPENPROJECT_API_KEY": optest.APIKey,
	}
}

func TestVersion(t *testing.T) {
	r := execute(t, testApp(t, nil), "version")
	require.Equal(t, 0, r.code)
	require.Equal(t, config.AppName+" v"+server.Version+"\n", r.stdout)
}

func TestNoArgsPrintsUsage(t *testing.T) {
	r := execute(t, testApp(t, nil))
	require.Equal(t, 0, r.code)
	require.Contains(t, r.stdout, `"mcpServers"`)
}

func TestUnknownCommand(t *testing.T) {
	r := execute(t, testApp(t, nil), "frobnicate")
	require.Equal(t, 1, r.code)
	require.Contains(t, r.stderr, "unknown command")
}

func TestConfigInit(t *testing.T) {
	a := testApp(t, nil)
	path := filepath.Join(a.env["XDG_CONFIG_HOME"], config.AppName, "config.json")

	r := execute(t, a, "config", "init")
	require.Equal(t, 0, r.code, r.stderr)
	require.Contains(t, r.stdout, path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, config.Template, string(data))

	a = newApp(&bytes.Buffer{}, &bytes.Buffer{}, a.env)
	r = execute(t, a, "config", "init")
	require.Equal(t, 1, r.code)
	require.Contains(t, r.stderr, "already exists")

	a = newApp(&bytes.Buffer{}, &bytes.Buffer{}, a.env)
	r = execute(t, a, "config", "init", "--force")
	require.Equal(t, 0, r.code, r.stderr)
}

func TestConfigInit_ExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "op.json")
	r := execute(t, testApp(t, nil), "--config", path, "config", "init")
	require.Equal(t, 0, r.code, r.stderr)
	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestConfigShow_MasksAPIKey(t *testing.T) {
	r := execute(t, testApp(t, map[string]string{
		"OPENPROJECT_URL":     "https://op.example.com/",
		"OPENPROJECT_API_KEY": optest.APIKey,
		"MCP_TRANSPORT":       "HTTP",
	}), "config", "show")
	require.Equal(t, 0, r.code, r.stderr)
	require.NotContains(t, r.stdout, optest.APIKey)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &got))
	require.Equal(t, "https://op.example.com", got["openproject_url"])
	require.Equal(t, "http", got["transport"])
	key := got["openproject_api_key"].(string)
	require.True(t, strings.HasSuffix(key, optest.APIKey[len(optest.APIKey)-4:]), key)
	require.True(t, strings.HasPrefix(key, "****"), key)
}

func TestConfigShow_InvalidConfig(t *testing.T) {
	r := execute(t, testApp(t, nil), "config", "show")
	require.Equal(t, 1, r.code)
	require.Contains(t, r.stderr, "openproject_url")
	require.Contains(t, r.stderr, "openproject_api_key")
}

func TestHealth(t *testing.T) {
	fake := optest.New(t)

	r := execute(t, testApp(t, trackerEnv(fake)), "health")
	require.Equal(t, 0, r.code, r.stderr)
	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &report))
	require.Equal(t, "healthy", report["status"])
	require.Equal(t, "14.6.1", report["openproject_version"])

	fake.Lock()
	fake.Fail["GET /"] = http.StatusBadGateway
	fake.Unlock()
	r = execute(t, testApp(t, trackerEnv(fake)), "health")
	require.Equal(t, exitDegraded, r.code)
	require.Contains(t, r.stdout, `"degraded"`)
}

func TestHealth_BadConfig(t *testing.T) {
	r := execute(t, testApp(t, nil), "health")
	require.Equal(t, exitUnhealthy, r.code)
	require.Contains(t, r.stderr, "Error:")
}

func TestServe_RejectsInvalidFlags(t *testing.T) {
	fake := optest.New(t)
	r := execute(t, testApp(t, trackerEnv(fake)), "serve", "--transport", "pigeon", "--port", "0", "--no-update-check")
	require.Equal(t, 1, r.code)
	require.Contains(t, r.stderr, "transport")
	require.Contains(t, r.stderr, "port")
	require.Empty(t, fake.Requests())
}

func TestUpdate_Check(t *testing.T) {
	orig := server.Version
	server.Version = "0.1.0"
	t.Cleanup(func() { server.Version = orig })

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(updater.ReleaseInfo{TagName: "v0.2.0", HTMLURL: "https://example.com/v0.2.0"})
	}))
	defer ts.Close()

	a := testApp(t, nil)
	a.updates.Endpoint = ts.URL
	a.updates.HTTPClient = ts.Client()

	r := execute(t, a, "update", "--check")
	require.Equal(t, 0, r.code, r.stderr)
	require.Contains(t, r.stderr, "v0.1.0 -> v0.2.0")
}

func TestUpdate_UpToDate(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(updater.ReleaseInfo{TagName: "v1.0.0"})
	}))
	defer ts.Close()

	orig := server.Version
	server.Version = "1.0.0"
	t.Cleanup(func() { server.Version = orig })

	a := testApp(t, nil)
	a.updates.Endpoint = ts.URL
	a.updates.HTTPClient = ts.Client()

	r := execute(t, a, "update")
	require.Equal(t, 0, r.code, r.stderr)
	require.Contains(t, r.stderr, "Already at the latest version")
}
