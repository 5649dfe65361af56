package audit_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/HendryAvila/openproject-mcp/internal/audit"
)

// newTestStore creates a Store in a temp directory with a controllable
// clock starting at a fixed instant.
func newTestStore(t *testing.T) (*audit.Store, *time.Time) {
	t.Helper()
	s, err := audit.New(audit.Config{Path: filepath.Join(t.TempDir(), "audit.db")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	audit.SetClock(s, func() time.Time { return now })
	return s, &now
}

func record(t *testing.T, s *audit.Store, tool string, outcome audit.Outcome, code string, ms int64) audit.Entry {
	t.Helper()
	e, err := s.Record(context.Background(), audit.Entry{
		Tool: tool, ArgsHash: audit.HashArgs(map[string]any{"tool": tool}),
		Outcome: outcome, ErrorCode: code, DurationMS: ms,
	})
	if err != nil {
		t.Fatalf("Record(%s): %v", tool, err)
	}
	return e
}

// ─── New ────────────────────────────────────────────────────────────────────

func TestNew_CreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "audit.db")
	s, err := audit.New(audit.Config{Path: path})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := audit.New(audit.Config{}); err == nil {
		t.Error("expected error for empty path")
	}

	restore := audit.SetOpenDB(func(string, string) (*sql.DB, error) {
		return nil, errors.New("disk on fire")
	})
	defer restore()
	if _, err := audit.New(audit.Config{Path: filepath.Join(t.TempDir(), "x.db")}); err == nil {
		t.Error("expected open error to surface")
	}
}

func TestNew_ReopensExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	s, err := audit.New(audit.Config{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Record(context.Background(), audit.Entry{Tool: "get_projects", Outcome: audit.OutcomeOK}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s2, err := audit.New(audit.Config{Path: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, err := s2.Recent(context.Background(), audit.RecentOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("entries after reopen = %d, want 1", len(got))
	}
}

// ─── Record / Recent ────────────────────────────────────────────────────────

func TestRecord_FillsDefaults(t *testing.T) {
	s, now := newTestStore(t)
	e := record(t, s, "get_projects", audit.OutcomeOK, "", 12)

	if e.ID == "" {
		t.Error("ID should be generated")
	}
	if !e.CreatedAt.Equal(*now) {
		t.Errorf("CreatedAt = %v, want %v", e.CreatedAt, *now)
	}
}

func TestRecord_Rejects(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Record(ctx, audit.Entry{Outcome: audit.OutcomeOK}); err == nil {
		t.Error("expected error for missing tool")
	}
	if _, err := s.Record(ctx, audit.Entry{Tool: "x", Outcome: "maybe"}); err == nil {
		t.Error("expected error for unknown outcome")
	}
}

func TestRecent_NewestFirstWithFilters(t *testing.T) {
	s, now := newTestStore(t)

	record(t, s, "get_projects", audit.OutcomeOK, "", 5)
	*now = now.Add(time.Second)
	record(t, s, "search_work_packages", audit.OutcomeError, "validation_error", 1)
	*now = now.Add(time.Second)
	record(t, s, "search_work_packages", audit.OutcomeOK, "", 40)

	ctx := context.Background()
	all, err := s.Recent(ctx, audit.RecentOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	if all[0].Tool != "search_work_packages" || all[0].Outcome != audit.OutcomeOK {
		t.Errorf("newest = %+v", all[0])
	}
	if all[2].Tool != "get_projects" {
		t.Errorf("oldest = %+v", all[2])
	}

	failed, err := s.Recent(ctx, audit.RecentOptions{ErrorsOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 || failed[0].ErrorCode != "validation_error" {
		t.Errorf("errors only = %+v", failed)
	}

	byTool, err := s.Recent(ctx, audit.RecentOptions{Tool: "get_projects"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byTool) != 1 {
		t.Errorf("by tool = %d, want 1", len(byTool))
	}

	limited, err := s.Recent(ctx, audit.RecentOptions{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("limited = %d, want 2", len(limited))
	}
}

func TestRecent_SubSecondOrdering(t *testing.T) {
	s, now := newTestStore(t)

	record(t, s, "first", audit.OutcomeOK, "", 1)
	*now = now.Add(500 * time.Millisecond)
	record(t, s, "second", audit.OutcomeOK, "", 1)

	got, err := s.Recent(context.Background(), audit.RecentOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Tool != "second" {
		t.Errorf("newest = %s, want second", got[0].Tool)
	}
}

// ─── Stats / Prune ──────────────────────────────────────────────────────────

func TestStats(t *testing.T) {
	s, _ := newTestStore(t)
	record(t, s, "search_work_packages", audit.OutcomeOK, "", 10)
	record(t, s, "search_work_packages", audit.OutcomeError, "transport_error", 30)
	record(t, s, "get_projects", audit.OutcomeOK, "", 4)

	stats, err := s.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 2 {
		t.Fatalf("len = %d, want 2", len(stats))
	}
	top := stats[0]
	if top.Tool != "search_work_packages" || top.Calls != 2 || top.Failures != 1 || top.AvgMillis != 20 {
		t.Errorf("top = %+v", top)
	}
}

func TestPrune(t *testing.T) {
	s, now := newTestStore(t)
	record(t, s, "old", audit.OutcomeOK, "", 1)
	*now = now.Add(48 * time.Hour)
	record(t, s, "new", audit.OutcomeOK, "", 1)

	n, err := s.Prune(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}
	got, _ := s.Recent(context.Background(), audit.RecentOptions{})
	if len(got) != 1 || got[0].Tool != "new" {
		t.Errorf("remaining = %+v", got)
	}
}

// ─── HashArgs ───────────────────────────────────────────────────────────────

func TestHashArgs_StableAcrossKeyOrder(t *testing.T) {
	a := map[string]any{"project_id": 3, "status_ids": []int{1, 2}}
	b := map[string]any{"status_ids": []int{1, 2}, "project_id": 3}
	if audit.HashArgs(a) != audit.HashArgs(b) {
		t.Error("equal maps should hash equally")
	}
	if audit.HashArgs(a) == audit.HashArgs(map[string]any{"project_id": 4}) {
		t.Error("different args should hash differently")
	}
	if len(audit.HashArgs(nil)) != 64 {
		t.Error("hash should be 64 hex chars")
	}
}
