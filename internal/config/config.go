// Package config loads the server configuration from defaults, an
// optional JSONC file and environment variables, in that order of
// precedence (later wins), and validates the result.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tailscale/hujson"

	"github.com/HendryAvila/openproject-mcp/internal/errs"
	"github.com/HendryAvila/openproject-mcp/internal/validate"
)

// AppName is used for the config directory and the user agent.
const AppName = "openproject-mcp"

// Transports.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Sentinel errors.
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigInvalid      = errors.New("invalid config file")
)

// Duration is a time.Duration read from strings such as "30s" or "5m".
// Plain numbers are taken as seconds.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts "1m30s" or a number of seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := parseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(v)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\" or a number of seconds")
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(n * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

// Config is the complete runtime configuration.
type Config struct {
	OpenProjectURL string   `json:"openproject_url" validate:"required,http_url"`
	APIKey         string   `json:"openproject_api_key" validate:"required,min=20"`
	HostHeader     string   `json:"host_header,omitempty"`
	Timeout        Duration `json:"timeout" validate:"gt=0"`
	CacheTTL       Duration `json:"cache_ttl" validate:"gte=0"`
	Transport      string   `json:"transport" validate:"oneof=stdio http"`
	Host           string   `json:"host" validate:"required"`
	Port           int      `json:"port" validate:"min=1,max=65535"`
	LogLevel       string   `json:"log_level" validate:"oneof=trace debug info warn warning error fatal panic off disabled"`
	LogFormat      string   `json:"log_format" validate:"oneof=console json"`
	AuditDB        string   `json:"audit_db,omitempty"`
	AuditDisabled  bool     `json:"audit_disabled"`

	// Source is the config file that was loaded, if any.
	Source string `json:"-"`
}

// Default returns the configuration used when nothing is set. env supplies
// HOME for the audit database path.
func Default(env map[string]string) Config {
	cfg := Config{
		Timeout:   Duration(30 * time.Second),
		CacheTTL:  Duration(5 * time.Minute),
		Transport: TransportStdio,
		Host:      "localhost",
		Port:      8080,
		LogLevel:  "info",
		LogFormat: "console",
	}
	if home := env["HOME"]; home != "" {
		cfg.AuditDB = filepath.Join(home, "."+AppName, "audit.db")
	}
	return cfg
}

// Addr returns host:port for the HTTP transport.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Redacted returns a copy safe to print: the API key keeps only its last
// four characters.
func (c Config) Redacted() Config {
	if n := len(c.APIKey); n > 4 {
		c.APIKey = strings.Repeat("*", n-4) + c.APIKey[n-4:]
	} else if n > 0 {
		c.APIKey = "****"
	}
	return c
}

// DefaultPath returns $XDG_CONFIG_HOME/openproject-mcp/config.json, or
// ~/.config/openproject-mcp/config.json, or "" when neither is known.
func DefaultPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, AppName, "config.json")
	}
	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", AppName, "config.json")
	}
	return ""
}

// LoadInput holds the inputs for Load.
type LoadInput struct {
	// Path is an explicit config file; it must exist. Empty means the
	// default path, which is optional.
	Path string
	// Env is the process environment as a map.
	Env map[string]string
}

// Load builds the configuration. Every invalid setting is reported in one
// *errs.ValidationError.
func Load(in LoadInput) (Config, error) {
	cfg := Default(in.Env)

	path, mustExist := in.Path, true
	if path == "" {
		path, mustExist = DefaultPath(in.Env), false
	}
	if path != "" {
		loaded, err := loadFile(&cfg, path, mustExist)
		if err != nil {
			return Config{}, err
		}
		if loaded {
			cfg.Source = path
		}
	}

	v := applyEnv(&cfg, in.Env)
	v.Merge(validate.Struct(cfg))
	if err := v.Err(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadFile overlays the keys present in the file onto cfg.
func loadFile(cfg *Config, path string, mustExist bool) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if mustExist {
				return false, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
			}
			return false, nil
		}
		return false, fmt.Errorf("reading config %s: %w", path, err)
	}

	std, err := hujson.Standardize(data)
	if err != nil {
		return false, fmt.Errorf("%w %s: invalid JSONC: %w", ErrConfigInvalid, path, err)
	}
	dec := json.NewDecoder(bytes.NewReader(std))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}
	return true, nil
}

// applyEnv overlays the environment. Values that do not parse are
// reported against their variable name.
func applyEnv(cfg *Config, env map[string]string) *errs.ValidationError {
	v := &errs.ValidationError{}

	str := func(key string, dst *string) {
		if val, ok := env[key]; ok && val != "" {
			*dst = strings.TrimSpace(val)
		}
	}
	dur := func(key string, dst *Duration) {
		val, ok := env[key]
		if !ok || val == "" {
			return
		}
		d, err := parseDuration(val)
		if err != nil {
			v.Add(key, "not a duration", `e.g. "30s" or "5m"`, val)
			return
		}
		*dst = Duration(d)
	}

	str("OPENPROJECT_URL", &cfg.OpenProjectURL)
	str("OPENPROJECT_API_KEY", &cfg.APIKey)
	str("OPENPROJECT_HOST_HEADER", &cfg.HostHeader)
	dur("OPENPROJECT_TIMEOUT", &cfg.Timeout)
	dur("OPENPROJECT_CACHE_TTL", &cfg.CacheTTL)
	str("MCP_TRANSPORT", &cfg.Transport)
	str("MCP_HOST", &cfg.Host)
	str("MCP_LOG_LEVEL", &cfg.LogLevel)
	str("MCP_LOG_FORMAT", &cfg.LogFormat)
	str("MCP_AUDIT_DB", &cfg.AuditDB)

	if val := env["MCP_PORT"]; val != "" {
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			v.Add("MCP_PORT", "not a number", "1..65535", val)
		} else {
			cfg.Port = n
		}
	}
	if val := env["MCP_AUDIT_DISABLED"]; val != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			v.Add("MCP_AUDIT_DISABLED", "not a boolean", "true or false", val)
		} else {
			cfg.AuditDisabled = b
		}
	}

	cfg.Transport = strings.ToLower(cfg.Transport)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	cfg.OpenProjectURL = strings.TrimRight(cfg.OpenProjectURL, "/")
	return v
}

// Environ returns os.Environ as a map.
func Environ() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			out[k] = v
		}
	}
	return out
}
