package search

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/HendryAvila/openproject-mcp/internal/filter"
	"github.com/HendryAvila/openproject-mcp/internal/logger"
	"github.com/HendryAvila/openproject-mcp/internal/openproject"
)

// Transport is the subset of the API client the executor needs.
type Transport interface {
	SearchWorkPackages(ctx context.Context, q openproject.Query) (*openproject.Collection[openproject.WorkPackage], error)
	WorkPackageURL(id int) string
}

// Item is the summary of one work package in a result page.
type Item struct {
	ID          int    `json:"id"`
	Subject     string `json:"subject"`
	Description string `json:"description,omitempty"`
	ProjectID   int    `json:"project_id"`
	Project     string `json:"project,omitempty"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	Assignee    string `json:"assignee"`
	Progress    int    `json:"percentage_done"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
	StartDate   string `json:"start_date,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
	URL         string `json:"url"`
}

// descriptionLimit caps item descriptions, in runes.
const descriptionLimit = 200

// Envelope is one normalized result page. It is built per call and never
// cached.
type Envelope struct {
	Items          []Item     `json:"items"`
	TotalCount     int        `json:"totalCount"`
	Count          int        `json:"count"`
	PageCount      int        `json:"pageCount"`
	HasMore        bool       `json:"hasMore"`
	AppliedFilters filter.Set `json:"appliedFilters"`
	Sort           SortSpec   `json:"sort"`
	PageSize       int        `json:"pageSize"`
	Offset         int        `json:"offset"`
}

// Executor runs one query per call. It never retries.
type Executor struct {
	tr  Transport
	log *logger.Logger
}

// NewExecutor returns an Executor over tr. log may be nil.
func NewExecutor(tr Transport, log *logger.Logger) *Executor {
	if log == nil {
		log = logger.Nop()
	}
	return &Executor{tr: tr, log: log}
}

// Execute sends set, sort and page as a single request and normalizes the
// collection. An empty set sends no filters parameter. The envelope's
// AppliedFilters is exactly the set that was sent.
func (e *Executor) Execute(ctx context.Context, set filter.Set, sort SortSpec, page PageSpec) (*Envelope, error) {
	v := sort.Validate()
	v.Merge(page.Validate())
	if err := v.Err(); err != nil {
		return nil, err
	}

	q := openproject.Query{SortBy: sort.Wire(), PageSize: page.Size, Offset: page.Offset}
	if !set.IsEmpty() {
		wire, err := set.Wire()
		if err != nil {
			return nil, err
		}
		q.Filters = string(wire)
	}

	start := time.Now()
	col, err := e.tr.SearchWorkPackages(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("searching work packages: %w", err)
	}

	elems := col.Elements()
	env := &Envelope{
		Items:          make([]Item, 0, len(elems)),
		TotalCount:     col.Total,
		Count:          len(elems),
		PageCount:      pageCount(col.Total, page.Size),
		HasMore:        page.Offset+len(elems) < col.Total,
		AppliedFilters: set,
		Sort:           sort,
		PageSize:       page.Size,
		Offset:         page.Offset,
	}
	for _, wp := range elems {
		env.Items = append(env.Items, e.summarize(wp))
	}

	logger.C(ctx, e.log).Debug().
		Int("criteria", set.Len()).
		Int("total", env.TotalCount).
		Int("count", env.Count).
		Dur("took", time.Since(start)).
		Msg("work package search")
	return env, nil
}

func pageCount(total, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

func (e *Executor) summarize(wp openproject.WorkPackage) Item {
	l := wp.Links
	return Item{
		ID:          wp.ID,
		Subject:     wp.Subject,
		Description: truncateRunes(wp.Description.Raw, descriptionLimit),
		ProjectID:   l.Project.ID(),
		Project:     l.Project.Title,
		Type:        l.Type.TitleOr("Unknown"),
		Status:      l.Status.TitleOr("Unknown"),
		Priority:    l.Priority.TitleOr("Unknown"),
		Assignee:    l.Assignee.TitleOr("Unassigned"),
		Progress:    wp.Progress(),
		CreatedAt:   wp.CreatedAt,
		UpdatedAt:   wp.UpdatedAt,
		StartDate:   wp.StartDate,
		DueDate:     wp.DueDate,
		URL:         e.tr.WorkPackageURL(wp.ID),
	}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
