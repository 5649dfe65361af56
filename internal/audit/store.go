// Package audit records every tool call in a local SQLite database: which
// tool ran, a hash of its arguments, the outcome and how long it took.
// Argument values are never stored.
package audit

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// ─── Types ───────────────────────────────────────────────────────────────────

// Outcome of a tool call.
type Outcome string

const (
	OutcomeOK    Outcome = "ok"
	OutcomeError Outcome = "error"
)

// Entry is one recorded tool call.
type Entry struct {
	ID         string    `json:"id"`
	Tool       string    `json:"tool"`
	ArgsHash   string    `json:"args_hash"`
	Outcome    Outcome   `json:"outcome"`
	ErrorCode  string    `json:"error_code,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// RecentOptions filters Recent.
type RecentOptions struct {
	Tool       string
	ErrorsOnly bool
	Limit      int
}

// ToolStats aggregates calls per tool.
type ToolStats struct {
	Tool      string  `json:"tool"`
	Calls     int     `json:"calls"`
	Failures  int     `json:"failures"`
	AvgMillis float64 `json:"avg_ms"`
}

// Config holds store configuration.
type Config struct {
	// Path is the database file. Parent directories are created.
	Path string
	// MaxRecent caps Recent's limit.
	MaxRecent int
}

// DefaultMaxRecent is used when Config.MaxRecent is zero.
const DefaultMaxRecent = 200

const defaultRecent = 20

// timeLayout has fixed-width fractions so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the audit log backed by SQLite.
type Store struct {
	db  *sql.DB
	cfg Config
	now func() time.Time
}

// New opens (or creates) the database at cfg.Path and runs migrations.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("audit: no database path")
	}
	if cfg.MaxRecent <= 0 {
		cfg.MaxRecent = DefaultMaxRecent
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
		return nil, fmt.Errorf("audit: create data dir: %w", err)
	}

	db, err := openDB("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("audit: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, cfg: cfg, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS tool_calls (
			id          TEXT    PRIMARY KEY,
			tool        TEXT    NOT NULL,
			args_hash   TEXT    NOT NULL,
			outcome     TEXT    NOT NULL,
			error_code  TEXT,
			duration_ms INTEGER NOT NULL,
			created_at  TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tool_calls_created ON tool_calls(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_tool_calls_tool    ON tool_calls(tool, created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ─── Writes ──────────────────────────────────────────────────────────────────

// Record stores e. Empty ID and CreatedAt are filled in; the stored entry
// is returned.
func (s *Store) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.Tool == "" {
		return Entry{}, fmt.Errorf("audit: tool name is required")
	}
	if e.Outcome != OutcomeOK && e.Outcome != OutcomeError {
		return Entry{}, fmt.Errorf("audit: unknown outcome %q", e.Outcome)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	e.CreatedAt = e.CreatedAt.UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_calls (id, tool, args_hash, outcome, error_code, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Tool, e.ArgsHash, string(e.Outcome), nullableString(e.ErrorCode), e.DurationMS,
		e.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: record %s: %w", e.Tool, err)
	}
	return e, nil
}

// Prune deletes entries older than age and returns how many were removed.
func (s *Store) Prune(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := s.now().Add(-age).UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx, `DELETE FROM tool_calls WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit: prune: %w", err)
	}
	return res.RowsAffected()
}

// ─── Reads ───────────────────────────────────────────────────────────────────

// Recent returns the newest entries first.
func (s *Store) Recent(ctx context.Context, opts RecentOptions) ([]Entry, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultRecent
	}
	limit = min(limit, s.cfg.MaxRecent)

	query := `SELECT id, tool, args_hash, outcome, COALESCE(error_code, ''), duration_ms, created_at
	          FROM tool_calls WHERE 1=1`
	var args []any
	if opts.Tool != "" {
		query += ` AND tool = ?`
		args = append(args, opts.Tool)
	}
	if opts.ErrorsOnly {
		query += ` AND outcome = ?`
		args = append(args, string(OutcomeError))
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var outcome, created string
		if err := rows.Scan(&e.ID, &e.Tool, &e.ArgsHash, &outcome, &e.ErrorCode, &e.DurationMS, &created); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		e.Outcome = Outcome(outcome)
		e.CreatedAt, err = time.Parse(timeLayout, created)
		if err != nil {
			return nil, fmt.Errorf("audit: bad timestamp %q: %w", created, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats aggregates calls per tool, busiest first.
func (s *Store) Stats(ctx context.Context) ([]ToolStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tool,
		       COUNT(*),
		       SUM(CASE WHEN outcome = 'error' THEN 1 ELSE 0 END),
		       AVG(duration_ms)
		FROM tool_calls
		GROUP BY tool
		ORDER BY COUNT(*) DESC, tool ASC`)
	if err != nil {
		return nil, fmt.Errorf("audit: stats: %w", err)
	}
	defer rows.Close()

	var out []ToolStats
	for rows.Next() {
		var ts ToolStats
		if err := rows.Scan(&ts.Tool, &ts.Calls, &ts.Failures, &ts.AvgMillis); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// HashArgs returns the hex SHA-256 of the canonical JSON encoding of args.
// Map keys are encoded in sorted order, so equal arguments hash equally.
func HashArgs(args any) string {
	b, err := json.Marshal(args)
	if err != nil {
		b = []byte(fmt.Sprintf("%v", args))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
