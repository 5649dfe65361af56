package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
)

// ErrConfigExists is returned by WriteTemplate when the target exists and
// force is not set.
var ErrConfigExists = errors.New("config file already exists")

// Template is the commented starter file written by `config init`.
// Environment variables override every key.
const Template = `// openproject-mcp configuration (JSON with comments).
// Environment variables take precedence over this file.
{
  // Root URL of your OpenProject instance, without /api/v3.
  // env: OPENPROJECT_URL
  "openproject_url": "https://openproject.example.com",

  // API key from "My account > Access tokens". Prefer the env var.
  // env: OPENPROJECT_API_KEY
  "openproject_api_key": "",

  // Optional Host header override for instances behind a proxy.
  // env: OPENPROJECT_HOST_HEADER
  // "host_header": "openproject.internal",

  // Per-request timeout. env: OPENPROJECT_TIMEOUT
  "timeout": "30s",

  // How long types, statuses and priorities are cached. 0 disables.
  // env: OPENPROJECT_CACHE_TTL
  "cache_ttl": "5m",

  // "stdio" for desktop clients, "http" for streamable HTTP.
  // env: MCP_TRANSPORT, MCP_HOST, MCP_PORT
  "transport": "stdio",
  "host": "localhost",
  "port": 8080,

  // env: MCP_LOG_LEVEL (trace, debug, info, warn, error, off)
  "log_level": "info",
  // env: MCP_LOG_FORMAT (console, json)
  "log_format": "console",

  // Tool-call audit log (SQLite). env: MCP_AUDIT_DB, MCP_AUDIT_DISABLED
  // "audit_db": "~/.openproject-mcp/audit.db",
  "audit_disabled": false,
}
`

// WriteTemplate writes Template to path atomically, creating parent
// directories. An existing file is only replaced when force is set.
func WriteTemplate(path string, force bool) error {
	if path == "" {
		return fmt.Errorf("no config path: set XDG_CONFIG_HOME or HOME, or pass --config")
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s (use --force to overwrite)", ErrConfigExists, path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := atomic.WriteFile(path, strings.NewReader(Template)); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	// atomic.WriteFile keeps the mode of a replaced file but not for new
	// ones; the file may hold an API key.
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("setting config permissions: %w", err)
	}
	return nil
}
