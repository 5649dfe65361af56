// Package refdata loads the tracker's slowly-changing reference data
// (work package types, statuses and priorities) through the TTL cache and
// resolves human-given values, such as names and e-mail addresses, to ids.
package refdata

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/HendryAvila/openproject-mcp/internal/cache"
	"github.com/HendryAvila/openproject-mcp/internal/errs"
	"github.com/HendryAvila/openproject-mcp/internal/logger"
	"github.com/HendryAvila/openproject-mcp/internal/openproject"
)

// ─── Types ──────────────────────────────────────────────────────────────────

// Kind names one reference-data set. Its value is the cache key.
type Kind string

const (
	KindTypes      Kind = "types"
	KindStatuses   Kind = "statuses"
	KindPriorities Kind = "priorities"
)

// AllKinds lists every set in a stable order.
var AllKinds = []Kind{KindTypes, KindStatuses, KindPriorities}

var validKinds = map[Kind]bool{
	KindTypes:      true,
	KindStatuses:   true,
	KindPriorities: true,
}

// ValidateKind returns an error when k is not a known set.
func ValidateKind(k Kind) error {
	if !validKinds[k] {
		return fmt.Errorf("unknown reference data %q (valid: types, statuses, priorities)", k)
	}
	return nil
}

// singular is used in NotFoundError messages.
func (k Kind) singular() string {
	switch k {
	case KindStatuses:
		return "status"
	case KindPriorities:
		return "priority"
	default:
		return "type"
	}
}

// Item is one reference-data entry. Flags carries the set-specific
// booleans (is_closed, is_readonly, is_milestone, is_active).
type Item struct {
	ID        int             `json:"id"`
	Name      string          `json:"name"`
	Position  int             `json:"position"`
	IsDefault bool            `json:"is_default"`
	Color     string          `json:"color,omitempty"`
	Flags     map[string]bool `json:"flags,omitempty"`
}

// Flag reads a set-specific boolean.
func (it Item) Flag(name string) bool { return it.Flags[name] }

// ClosedIDs returns the ids of the statuses flagged is_closed.
func ClosedIDs(statuses []Item) map[int]bool {
	out := make(map[int]bool, len(statuses))
	for _, it := range statuses {
		if it.Flag("is_closed") {
			out[it.ID] = true
		}
	}
	return out
}

func cloneItems(in []Item) []Item {
	if in == nil {
		return nil
	}
	out := make([]Item, len(in))
	for i, it := range in {
		it.Flags = maps.Clone(it.Flags)
		out[i] = it
	}
	return out
}

// Source is the subset of the API client the loader needs.
type Source interface {
	ListTypes(ctx context.Context) ([]openproject.Type, error)
	ListStatuses(ctx context.Context) ([]openproject.Status, error)
	ListPriorities(ctx context.Context) ([]openproject.Priority, error)
	ListUsers(ctx context.Context, filters string, pageSize, offset int) (*openproject.Collection[openproject.User], error)
}

// ─── Loader ─────────────────────────────────────────────────────────────────

// Loader serves reference data from a shared cache.
type Loader struct {
	src   Source
	cache *cache.Cache[[]Item]
	log   *logger.Logger
}

// NewCache builds the cache the loader expects. The entrypoint creates it
// once and hands it to NewLoader.
func NewCache(ttl time.Duration, log *logger.Logger) *cache.Cache[[]Item] {
	if log == nil {
		log = logger.Nop()
	}
	return cache.New[[]Item](ttl,
		cache.WithClone(cloneItems),
		cache.WithLogger[[]Item](log),
	)
}

// NewLoader creates a Loader over src using c.
func NewLoader(src Source, c *cache.Cache[[]Item], log *logger.Logger) *Loader {
	if log == nil {
		log = logger.Nop()
	}
	return &Loader{src: src, cache: c, log: log}
}

// Types returns the work package types.
func (l *Loader) Types(ctx context.Context) ([]Item, error) {
	return l.Get(ctx, KindTypes)
}

// Statuses returns the work package statuses.
func (l *Loader) Statuses(ctx context.Context) ([]Item, error) {
	return l.Get(ctx, KindStatuses)
}

// Priorities returns the work package priorities.
func (l *Loader) Priorities(ctx context.Context) ([]Item, error) {
	return l.Get(ctx, KindPriorities)
}

// Get returns one set, loading it on a miss or when stale.
func (l *Loader) Get(ctx context.Context, k Kind) ([]Item, error) {
	if err := ValidateKind(k); err != nil {
		return nil, err
	}
	return l.cache.GetOrLoad(ctx, string(k), l.fetcher(k))
}

func (l *Loader) fetcher(k Kind) cache.Loader[[]Item] {
	return func(ctx context.Context) ([]Item, error) {
		switch k {
		case KindTypes:
			src, err := l.src.ListTypes(ctx)
			if err != nil {
				return nil, err
			}
			out := make([]Item, len(src))
			for i, t := range src {
				out[i] = Item{ID: t.ID, Name: t.Name, Position: t.Position, IsDefault: t.IsDefault, Color: t.Color,
					Flags: map[string]bool{"is_milestone": t.IsMilestone}}
			}
			return out, nil
		case KindStatuses:
			src, err := l.src.ListStatuses(ctx)
			if err != nil {
				return nil, err
			}
			out := make([]Item, len(src))
			for i, s := range src {
				out[i] = Item{ID: s.ID, Name: s.Name, Position: s.Position, IsDefault: s.IsDefault, Color: s.Color,
					Flags: map[string]bool{"is_closed": s.IsClosed, "is_readonly": s.IsReadonly}}
			}
			return out, nil
		default:
			src, err := l.src.ListPriorities(ctx)
			if err != nil {
				return nil, err
			}
			out := make([]Item, len(src))
			for i, p := range src {
				out[i] = Item{ID: p.ID, Name: p.Name, Position: p.Position, IsDefault: p.IsDefault, Color: p.Color,
					Flags: map[string]bool{"is_active": p.IsActive}}
			}
			return out, nil
		}
	}
}

// Refresh invalidates the given sets, or all of them when none is named.
func (l *Loader) Refresh(kinds ...Kind) error {
	if len(kinds) == 0 {
		l.cache.Clear()
		l.log.Info().Msg("reference data cache cleared")
		return nil
	}
	for _, k := range kinds {
		if err := ValidateKind(k); err != nil {
			return err
		}
	}
	for _, k := range kinds {
		l.cache.Invalidate(string(k))
	}
	l.log.Info().Strs("kinds", kindStrings(kinds)).Msg("reference data invalidated")
	return nil
}

// Close drops every cached set. Called on shutdown.
func (l *Loader) Close() { l.cache.Clear() }

// Freshness reports, per set, whether it is cached and fresh and when it
// was last fetched.
type Freshness struct {
	Kind      Kind       `json:"kind"`
	Fresh     bool       `json:"fresh"`
	FetchedAt *time.Time `json:"fetched_at,omitempty"`
}

// Status returns the freshness of every set.
func (l *Loader) Status() []Freshness {
	out := make([]Freshness, 0, len(AllKinds))
	for _, k := range AllKinds {
		f := Freshness{Kind: k, Fresh: l.cache.IsFresh(string(k))}
		if at, ok := l.cache.FetchedAt(string(k)); ok {
			f.FetchedAt = &at
		}
		out = append(out, f)
	}
	return out
}

// Stats exposes the cache counters.
func (l *Loader) Stats() cache.Stats { return l.cache.Stats() }

// TTL returns the cache TTL.
func (l *Loader) TTL() time.Duration { return l.cache.TTL() }

// ─── Resolution ─────────────────────────────────────────────────────────────

// ResolveNames maps names in set k to ids, case-insensitively and in input
// order. Every unknown name is reported in one NotFoundError.
func (l *Loader) ResolveNames(ctx context.Context, k Kind, names []string) ([]int, error) {
	items, err := l.Get(ctx, k)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]int, len(items))
	for _, it := range items {
		byName[strings.ToLower(strings.TrimSpace(it.Name))] = it.ID
	}

	ids := make([]int, 0, len(names))
	var missing []string
	for _, n := range names {
		id, ok := byName[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			missing = append(missing, n)
			continue
		}
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	if len(missing) > 0 {
		return nil, &errs.NotFoundError{Resource: k.singular(), Key: strings.Join(missing, ", ")}
	}
	return ids, nil
}

// userPageSize is the page size used while scanning users.
const userPageSize = 100

// ResolveUserByEmail finds the user whose e-mail matches exactly, ignoring
// case. It is not cached. Pages are walked until a match, the end of the
// collection or openproject.MaxPages pages; no match is a NotFoundError.
func (l *Loader) ResolveUserByEmail(ctx context.Context, email string) (openproject.User, error) {
	email = strings.TrimSpace(email)
	filters, err := json.Marshal([]map[string]any{
		{"email": map[string]any{"operator": "=", "values": []string{email}}},
	})
	if err != nil {
		return openproject.User{}, fmt.Errorf("encoding user filter: %w", err)
	}

	offset := 0
	for range openproject.MaxPages {
		page, err := l.src.ListUsers(ctx, string(filters), userPageSize, offset)
		if err != nil {
			return openproject.User{}, fmt.Errorf("looking up user %q: %w", email, err)
		}
		elems := page.Elements()
		for _, u := range elems {
			if strings.EqualFold(strings.TrimSpace(u.Email), email) {
				return u, nil
			}
		}
		offset += len(elems)
		if len(elems) == 0 || offset >= page.Total {
			return openproject.User{}, &errs.NotFoundError{Resource: "user", Key: email}
		}
	}
	l.log.Warn().Int("scanned", offset).Msg("user lookup stopped at page limit")
	return openproject.User{}, &errs.NotFoundError{Resource: "user", Key: email}
}

func kindStrings(kinds []Kind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}
