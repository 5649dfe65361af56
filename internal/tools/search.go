package tools

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/openproject-mcp/internal/search"
)

// Searcher runs a validated work package search. *search.Service
// satisfies it.
type Searcher interface {
	Search(ctx context.Context, p search.Params) (*search.Envelope, error)
}

// SearchTool handles the search_work_packages MCP tool.
type SearchTool struct {
	svc Searcher
}

// NewSearchTool creates a SearchTool.
func NewSearchTool(svc Searcher) *SearchTool {
	return &SearchTool{svc: svc}
}

// Definition returns the MCP tool definition for search_work_packages.
func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("search_work_packages",
		mcp.WithDescription(
			"Search work packages across projects with structured filters, sorting and paging. "+
				"All filters are combined with AND. Give each field at most once: ids OR names, "+
				"assignee_id OR assignee_email. Names and e-mails are resolved to ids before the query. "+
				"Every invalid parameter is reported at once. The result echoes the exact filters sent "+
				"(appliedFilters) together with totalCount, pageCount and hasMore.",
		),
		mcp.WithNumber("project_id", mcp.Description("Restrict to one project")),
		mcp.WithArray("status_ids", mcp.Description("Status IDs"), mcp.WithNumberItems()),
		mcp.WithArray("status_names", mcp.Description("Status names, e.g. [\"In progress\"]"), mcp.WithStringItems()),
		mcp.WithNumber("assignee_id", mcp.Description("Assignee user ID")),
		mcp.WithString("assignee_email", mcp.Description("Assignee e-mail, resolved to a user")),
		mcp.WithArray("type_ids", mcp.Description("Type IDs"), mcp.WithNumberItems()),
		mcp.WithArray("type_names", mcp.Description("Type names, e.g. [\"Bug\"]"), mcp.WithStringItems()),
		mcp.WithArray("priority_ids", mcp.Description("Priority IDs"), mcp.WithNumberItems()),
		mcp.WithArray("priority_names", mcp.Description("Priority names"), mcp.WithStringItems()),
		mcp.WithString("subject_contains", mcp.Description("Case-insensitive text the subject must contain")),
		mcp.WithString("created_after", mcp.Description("Created on or after, YYYY-MM-DD")),
		mcp.WithString("created_before", mcp.Description("Created on or before, YYYY-MM-DD")),
		mcp.WithString("due_after", mcp.Description("Due on or after, YYYY-MM-DD")),
		mcp.WithString("due_before", mcp.Description("Due on or before, YYYY-MM-DD")),
		mcp.WithString("custom_filters",
			mcp.Description(
				"Extra criteria as a JSON array in OpenProject filter syntax, e.g. "+
					`[{"version":{"operator":"=","values":["4"]}}]. `+
					"Must not repeat a field set above.",
			),
		),
		mcp.WithString("sort_by",
			mcp.Description("Sort field"),
			mcp.Enum(search.SortFields...),
			mcp.DefaultString(search.DefaultSortField),
		),
		mcp.WithString("sort_order",
			mcp.Description("Sort direction"),
			mcp.Enum("asc", "desc"),
			mcp.DefaultString(search.DefaultSortDirection),
		),
		mcp.WithNumber("page_size",
			mcp.Description("Items per page"),
			mcp.Min(1),
			mcp.Max(search.MaxPageSize),
			mcp.DefaultNumber(search.DefaultPageSize),
		),
		mcp.WithNumber("offset",
			mcp.Description("Number of items to skip"),
			mcp.Min(0),
			mcp.DefaultNumber(0),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

// Handle processes the search_work_packages tool call.
func (t *SearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := newArgs(req)
	p := search.Params{
		ProjectID:       a.Int("project_id"),
		StatusIDs:       a.IntList("status_ids"),
		StatusNames:     a.StringList("status_names"),
		AssigneeID:      a.Int("assignee_id"),
		AssigneeEmail:   a.String("assignee_email"),
		TypeIDs:         a.IntList("type_ids"),
		TypeNames:       a.StringList("type_names"),
		PriorityIDs:     a.IntList("priority_ids"),
		PriorityNames:   a.StringList("priority_names"),
		SubjectContains: a.String("subject_contains"),
		CreatedAfter:    a.String("created_after"),
		CreatedBefore:   a.String("created_before"),
		DueAfter:        a.String("due_after"),
		DueBefore:       a.String("due_before"),
		CustomFilters:   a.rawString("custom_filters"),
		SortBy:          a.OptString("sort_by"),
		SortOrder:       a.OptString("sort_order"),
		PageSize:        a.OptInt("page_size"),
		Offset:          a.OptInt("offset"),
	}
	// Report type errors and value errors together.
	v, err := p.Violations()
	if err != nil {
		return errorResult(err), nil
	}
	a.mergeUnreported(v)
	if err := a.Err(); err != nil {
		return errorResult(err), nil
	}

	env, err := t.svc.Search(ctx, p)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(env)
}

// rawString reads a string argument without trimming. An array or object
// is re-encoded as JSON text.
func (a *args) rawString(key string) string {
	if !a.has(key) {
		return ""
	}
	switch v := a.raw[key].(type) {
	case string:
		return v
	case []any, map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			a.fail(key, "must be a JSON string", "JSON array", v)
			return ""
		}
		return string(b)
	default:
		a.fail(key, "must be a JSON string", "JSON array", a.raw[key])
		return ""
	}
}
