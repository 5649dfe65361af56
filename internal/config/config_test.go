package config

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/HendryAvila/openproject-mcp/internal/errs"
)

const testKey = "0123456789abcdef0123456789abcdef"

func baseEnv(t *testing.T) map[string]string {
	t.Helper()
	return map[string]string{
		"HOME":                t.TempDir(),
		"OPENPROJECT_URL":     "https://op.example.com/",
		"OPENPROJECT_API_KEY": testKey,
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func invalidFields(t *testing.T, err error) []string {
	t.Helper()
	var verr *errs.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	out := make([]string, len(verr.Fields))
	for i, f := range verr.Fields {
		out[i] = f.Field
	}
	sort.Strings(out)
	return out
}

// --- Load ---

func TestLoad_DefaultsFromEnvOnly(t *testing.T) {
	env := baseEnv(t)
	cfg, err := Load(LoadInput{Env: env})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.OpenProjectURL != "https://op.example.com" {
		t.Errorf("URL = %q, trailing slash should be trimmed", cfg.OpenProjectURL)
	}
	if cfg.Timeout.D() != 30*time.Second {
		t.Errorf("Timeout = %s", cfg.Timeout)
	}
	if cfg.CacheTTL.D() != 5*time.Minute {
		t.Errorf("CacheTTL = %s", cfg.CacheTTL)
	}
	if cfg.Transport != TransportStdio || cfg.Addr() != "localhost:8080" {
		t.Errorf("transport = %s addr = %s", cfg.Transport, cfg.Addr())
	}
	if want := filepath.Join(env["HOME"], ".openproject-mcp", "audit.db"); cfg.AuditDB != want {
		t.Errorf("AuditDB = %q, want %q", cfg.AuditDB, want)
	}
	if cfg.Source != "" {
		t.Errorf("Source = %q, no file expected", cfg.Source)
	}
}

func TestLoad_FileThenEnvPrecedence(t *testing.T) {
	path := writeFile(t, `{
		// comments and trailing commas are fine
		"openproject_url": "https://file.example.com",
		"timeout": "10s",
		"cache_ttl": 90,
		"transport": "http",
		"port": 9000,
	}`)
	env := baseEnv(t)
	env["MCP_PORT"] = "9100"

	cfg, err := Load(LoadInput{Path: path, Env: env})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OpenProjectURL != "https://op.example.com" {
		t.Errorf("env should win for URL, got %q", cfg.OpenProjectURL)
	}
	if cfg.Timeout.D() != 10*time.Second {
		t.Errorf("Timeout = %s, want 10s from file", cfg.Timeout)
	}
	if cfg.CacheTTL.D() != 90*time.Second {
		t.Errorf("CacheTTL = %s, want 90s from file", cfg.CacheTTL)
	}
	if cfg.Transport != TransportHTTP {
		t.Errorf("Transport = %s", cfg.Transport)
	}
	if cfg.Port != 9100 {
		t.Errorf("Port = %d, want env 9100", cfg.Port)
	}
	if cfg.Source != path {
		t.Errorf("Source = %q", cfg.Source)
	}
}

func TestLoad_DefaultPathIsOptional(t *testing.T) {
	env := baseEnv(t)
	env["XDG_CONFIG_HOME"] = t.TempDir()

	if _, err := Load(LoadInput{Env: env}); err != nil {
		t.Fatalf("missing default file should be fine: %v", err)
	}

	path := DefaultPath(env)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(`{"log_level": "debug"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(LoadInput{Env: env})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.Source != path {
		t.Errorf("LogLevel = %s Source = %s", cfg.LogLevel, cfg.Source)
	}
}

func TestLoad_ExplicitPathMustExist(t *testing.T) {
	_, err := Load(LoadInput{Path: filepath.Join(t.TempDir(), "nope.json"), Env: baseEnv(t)})
	if !errors.Is(err, ErrConfigFileNotFound) {
		t.Fatalf("expected ErrConfigFileNotFound, got %v", err)
	}
}

func TestLoad_BadFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"broken jsonc", `{"port": `},
		{"unknown key", `{"prot": 9000}`},
		{"bad duration", `{"timeout": "soon"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(LoadInput{Path: writeFile(t, tt.content), Env: baseEnv(t)})
			if !errors.Is(err, ErrConfigInvalid) {
				t.Fatalf("expected ErrConfigInvalid, got %v", err)
			}
		})
	}
}

func TestLoad_ReportsEveryInvalidSetting(t *testing.T) {
	env := map[string]string{
		"OPENPROJECT_URL":     "ftp://op.example.com",
		"OPENPROJECT_API_KEY": "short",
		"OPENPROJECT_TIMEOUT": "forever",
		"MCP_TRANSPORT":       "carrier-pigeon",
		"MCP_PORT":            "70000",
		"MCP_LOG_FORMAT":      "xml",
		"MCP_AUDIT_DISABLED":  "maybe",
	}
	_, err := Load(LoadInput{Env: env})

	got := invalidFields(t, err)
	want := []string{
		"MCP_AUDIT_DISABLED",
		"OPENPROJECT_TIMEOUT",
		"log_format",
		"openproject_api_key",
		"openproject_url",
		"port",
		"transport",
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("fields = %v, want %v", got, want)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	_, err := Load(LoadInput{Env: map[string]string{}})
	got := invalidFields(t, err)
	if strings.Join(got, ",") != "openproject_api_key,openproject_url" {
		t.Errorf("fields = %v", got)
	}
}

func TestLoad_ZeroCacheTTLAllowed(t *testing.T) {
	env := baseEnv(t)
	env["OPENPROJECT_CACHE_TTL"] = "0"
	cfg, err := Load(LoadInput{Env: env})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CacheTTL != 0 {
		t.Errorf("CacheTTL = %s", cfg.CacheTTL)
	}
}

func TestRedacted(t *testing.T) {
	cfg := Config{APIKey: testKey}
	got := cfg.Redacted().APIKey
	if !strings.HasSuffix(got, "cdef") || strings.Contains(got, "0123") {
		t.Errorf("Redacted = %q", got)
	}
	if cfg.APIKey != testKey {
		t.Error("Redacted must not modify the receiver")
	}
	if (Config{APIKey: "abc"}).Redacted().APIKey != "****" {
		t.Error("short keys should be fully masked")
	}
}

// --- WriteTemplate ---

func TestWriteTemplate_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("WriteTemplate: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %o, want 600", info.Mode().Perm())
	}

	env := map[string]string{"OPENPROJECT_API_KEY": testKey}
	cfg, err := Load(LoadInput{Path: path, Env: env})
	if err != nil {
		t.Fatalf("template should load once a key is set: %v", err)
	}
	if cfg.OpenProjectURL != "https://openproject.example.com" {
		t.Errorf("URL = %q", cfg.OpenProjectURL)
	}
}

func TestWriteTemplate_RefusesOverwrite(t *testing.T) {
	path := writeFile(t, `{"port": 1}`)

	err := WriteTemplate(path, false)
	if !errors.Is(err, ErrConfigExists) {
		t.Fatalf("expected ErrConfigExists, got %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != `{"port": 1}` {
		t.Errorf("file was modified: %s", data)
	}

	if err := WriteTemplate(path, true); err != nil {
		t.Fatalf("forced write: %v", err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != Template {
		t.Error("forced write should replace the file")
	}
}
