// Package logger provides the process-wide zerolog logger.
//
// Logs always go to stderr by default: in stdio mode stdout carries the
// MCP JSON-RPC stream and must never see a log line.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Options configures the logger.
type Options struct {
	Level     string
	Format    string // console or json
	Component string
	Writer    io.Writer
}

// FromEnv reads MCP_LOG_LEVEL and MCP_LOG_FORMAT.
func FromEnv() Options {
	return Options{
		Level:  strings.ToLower(getenv("MCP_LOG_LEVEL", "info")),
		Format: strings.ToLower(getenv("MCP_LOG_FORMAT", "console")),
	}
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

var (
	once   sync.Once
	root   atomic.Pointer[zerolog.Logger]
	inited atomic.Bool
)

// Logger is the project-wide logging type.
type Logger = zerolog.Logger

// Get returns the root logger, initializing it from the environment on
// first use.
func Get() *Logger {
	if !inited.Load() {
		Init(FromEnv())
	}
	return root.Load()
}

// Init builds the root logger. Only the first call has an effect.
func Init(opt Options) {
	once.Do(func() {
		root.Store(build(opt))
		inited.Store(true)
	})
}

// New builds a standalone logger without touching the process-wide root.
// Tests use it to capture output.
func New(opt Options) *Logger {
	return build(opt)
}

func build(opt Options) *Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var w io.Writer = os.Stderr
	if opt.Writer != nil {
		w = opt.Writer
	}
	if opt.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: opt.Writer != nil}
	}

	ctx := zerolog.New(w).Level(ParseLevel(opt.Level)).With().Timestamp()
	if opt.Component != "" {
		ctx = ctx.Str("component", opt.Component)
	}
	l := ctx.Logger()
	return &l
}

// ParseLevel maps a level name to zerolog; unknown names fall back to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Named returns a child logger with a component field.
func Named(component string) *Logger {
	if component == "" {
		return Get()
	}
	l := Get().With().Str("component", component).Logger()
	return &l
}

type ctxKey struct{}

// WithCallID annotates ctx with a tool-call correlation id.
func WithCallID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

// CallID returns the correlation id stored by WithCallID, if any.
func CallID(ctx context.Context) string {
	s, _ := ctx.Value(ctxKey{}).(string)
	return s
}

// C returns a child of l enriched with the call id from ctx.
func C(ctx context.Context, l *Logger) *Logger {
	if l == nil {
		l = Get()
	}
	id := CallID(ctx)
	if id == "" {
		return l
	}
	ll := l.With().Str("call_id", id).Logger()
	return &ll
}

// Nop returns a disabled logger.
func Nop() *Logger {
	l := zerolog.Nop()
	return &l
}
