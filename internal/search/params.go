// Package search validates work package search parameters, runs one
// compiled query against the tracker and normalizes the response into a
// result envelope.
package search

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/HendryAvila/openproject-mcp/internal/errs"
	"github.com/HendryAvila/openproject-mcp/internal/filter"
	"github.com/HendryAvila/openproject-mcp/internal/validate"
)

// ─── Sort & page ────────────────────────────────────────────────────────────

// SortFields is the allow-list of sortable fields.
var SortFields = []string{"id", "subject", "updatedAt", "createdAt", "dueDate", "startDate", "status", "priority", "type"}

// Defaults applied when a parameter is omitted.
const (
	DefaultSortField     = "id"
	DefaultSortDirection = "desc"
	DefaultPageSize      = 100
	MaxPageSize          = 100
)

// SortSpec orders results.
type SortSpec struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

// Validate rejects fields outside the allow-list and directions other
// than asc and desc.
func (s SortSpec) Validate() *errs.ValidationError {
	v := &errs.ValidationError{}
	if !slices.Contains(SortFields, s.Field) {
		v.Add("sort_by", "unknown sort field", "one of: "+strings.Join(SortFields, ", "), s.Field)
	}
	if s.Direction != "asc" && s.Direction != "desc" {
		v.Add("sort_order", "unknown sort direction", "one of: asc, desc", s.Direction)
	}
	return v
}

// Wire encodes the sort as the tracker's sortBy value, [["field","dir"]].
func (s SortSpec) Wire() string {
	b, _ := json.Marshal([][]string{{s.Field, s.Direction}})
	return string(b)
}

// PageSpec selects a window of results by item offset.
type PageSpec struct {
	Size   int `json:"size"`
	Offset int `json:"offset"`
}

// Validate rejects sizes outside 1..100 and negative offsets. Values are
// never clamped.
func (p PageSpec) Validate() *errs.ValidationError {
	v := &errs.ValidationError{}
	if p.Size < 1 || p.Size > MaxPageSize {
		v.Add("page_size", "page size out of range", fmt.Sprintf("1..%d", MaxPageSize), strconv.Itoa(p.Size))
	}
	if p.Offset < 0 {
		v.Add("offset", "offset must not be negative", ">= 0", strconv.Itoa(p.Offset))
	}
	return v
}

// ─── Params ─────────────────────────────────────────────────────────────────

// Params is the full argument set of a work package search. Pointer
// fields distinguish "omitted" from an explicit zero.
type Params struct {
	ProjectID       int      `json:"project_id" validate:"omitempty,gt=0"`
	StatusIDs       []int    `json:"status_ids" validate:"omitempty,dive,gt=0"`
	StatusNames     []string `json:"status_names" validate:"omitempty,dive,notblank"`
	AssigneeID      int      `json:"assignee_id" validate:"omitempty,gt=0"`
	AssigneeEmail   string   `json:"assignee_email" validate:"omitempty,email"`
	TypeIDs         []int    `json:"type_ids" validate:"omitempty,dive,gt=0"`
	TypeNames       []string `json:"type_names" validate:"omitempty,dive,notblank"`
	PriorityIDs     []int    `json:"priority_ids" validate:"omitempty,dive,gt=0"`
	PriorityNames   []string `json:"priority_names" validate:"omitempty,dive,notblank"`
	SubjectContains string   `json:"subject_contains" validate:"max=255"`
	CreatedAfter    string   `json:"created_after" validate:"omitempty,isodate"`
	CreatedBefore   string   `json:"created_before" validate:"omitempty,isodate"`
	DueAfter        string   `json:"due_after" validate:"omitempty,isodate"`
	DueBefore       string   `json:"due_before" validate:"omitempty,isodate"`
	CustomFilters   string   `json:"custom_filters"`
	SortBy          *string  `json:"sort_by"`
	SortOrder       *string  `json:"sort_order"`
	PageSize        *int     `json:"page_size"`
	Offset          *int     `json:"offset"`
}

// Validate checks every parameter and returns one *errs.ValidationError
// listing all violations, or nil. It makes no network calls.
func (p Params) Validate() error {
	v, err := p.Violations()
	if err != nil {
		return err
	}
	return v.Err()
}

// Violations returns every parameter violation, possibly none, so callers
// can merge them with their own input errors. err is set only for a
// failure that is not about the input.
func (p Params) Violations() (*errs.ValidationError, error) {
	v := validate.Struct(p)

	checkRange(v, "created_after", p.CreatedAfter, "created_before", p.CreatedBefore)
	checkRange(v, "due_after", p.DueAfter, "due_before", p.DueBefore)

	v.Merge(p.Sort().Validate())
	v.Merge(p.Page().Validate())

	if _, err := filter.ParseCustom(p.CustomFilters); err != nil {
		var cerr *errs.ValidationError
		if !errors.As(err, &cerr) {
			return nil, err
		}
		v.Merge(cerr)
	}
	return v, nil
}

// checkRange flags after > before when both dates parse.
func checkRange(v *errs.ValidationError, afterName, after, beforeName, before string) {
	if after == "" || before == "" || !validate.IsDate(after) || !validate.IsDate(before) {
		return
	}
	if after > before {
		v.Add(afterName, fmt.Sprintf("%s is after %s", afterName, beforeName),
			"<= "+before, after)
	}
}

// Sort returns the requested order with defaults applied.
func (p Params) Sort() SortSpec {
	s := SortSpec{Field: DefaultSortField, Direction: DefaultSortDirection}
	if p.SortBy != nil {
		s.Field = *p.SortBy
	}
	if p.SortOrder != nil {
		s.Direction = strings.ToLower(*p.SortOrder)
	}
	return s
}

// Page returns the requested window with defaults applied.
func (p Params) Page() PageSpec {
	pg := PageSpec{Size: DefaultPageSize}
	if p.PageSize != nil {
		pg.Size = *p.PageSize
	}
	if p.Offset != nil {
		pg.Offset = *p.Offset
	}
	return pg
}

// FilterInput returns the filter-relevant parameters.
func (p Params) FilterInput() filter.Input {
	return filter.Input{
		ProjectID:       p.ProjectID,
		StatusIDs:       p.StatusIDs,
		StatusNames:     p.StatusNames,
		AssigneeID:      p.AssigneeID,
		AssigneeEmail:   p.AssigneeEmail,
		TypeIDs:         p.TypeIDs,
		TypeNames:       p.TypeNames,
		PriorityIDs:     p.PriorityIDs,
		PriorityNames:   p.PriorityNames,
		SubjectContains: p.SubjectContains,
		CreatedAfter:    p.CreatedAfter,
		CreatedBefore:   p.CreatedBefore,
		DueAfter:        p.DueAfter,
		DueBefore:       p.DueBefore,
		CustomFilters:   p.CustomFilters,
	}
}
