package tools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/openproject-mcp/internal/refdata"
)

// --- get_work_package_types / get_work_package_statuses / get_priorities ---

// RefDataTool serves one cached reference-data set.
type RefDataTool struct {
	ref         ReferenceData
	kind        refdata.Kind
	name        string
	description string
}

// NewTypesTool creates the get_work_package_types tool.
func NewTypesTool(ref ReferenceData) *RefDataTool {
	return &RefDataTool{ref: ref, kind: refdata.KindTypes, name: "get_work_package_types",
		description: "List work package types (Task, Bug, Milestone, ...) with their IDs. Cached."}
}

// NewStatusesTool creates the get_work_package_statuses tool.
func NewStatusesTool(ref ReferenceData) *RefDataTool {
	return &RefDataTool{ref: ref, kind: refdata.KindStatuses, name: "get_work_package_statuses",
		description: "List work package statuses with their IDs and whether they close a work package. Cached."}
}

// NewPrioritiesTool creates the get_priorities tool.
func NewPrioritiesTool(ref ReferenceData) *RefDataTool {
	return &RefDataTool{ref: ref, kind: refdata.KindPriorities, name: "get_priorities",
		description: "List work package priorities with their IDs. Cached."}
}

// Definition returns the MCP tool definition.
func (t *RefDataTool) Definition() mcp.Tool {
	return mcp.NewTool(t.name,
		mcp.WithDescription(t.description),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

// Handle processes the tool call.
func (t *RefDataTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := t.ref.Get(ctx, t.kind)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{
		string(t.kind): items,
		"total":        len(items),
	})
}

// --- refresh_reference_data ---

// RefreshTool handles the refresh_reference_data MCP tool.
type RefreshTool struct {
	ref ReferenceData
}

// NewRefreshTool creates a RefreshTool.
func NewRefreshTool(ref ReferenceData) *RefreshTool {
	return &RefreshTool{ref: ref}
}

// Definition returns the MCP tool definition for refresh_reference_data.
func (t *RefreshTool) Definition() mcp.Tool {
	return mcp.NewTool("refresh_reference_data",
		mcp.WithDescription(
			"Drop cached types, statuses and priorities so the next read fetches them again. "+
				"Use after they were changed in OpenProject.",
		),
		mcp.WithArray("kinds",
			mcp.Description("Sets to refresh; all when omitted"),
			mcp.WithStringItems(mcp.Enum("types", "statuses", "priorities")),
		),
		mcp.WithIdempotentHintAnnotation(true),
	)
}

// Handle processes the refresh_reference_data tool call.
func (t *RefreshTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := newArgs(req)
	names := a.StringList("kinds")
	kinds := make([]refdata.Kind, 0, len(names))
	for _, n := range names {
		k := refdata.Kind(strings.ToLower(n))
		if err := refdata.ValidateKind(k); err != nil {
			a.fail("kinds", "unknown reference data", "types, statuses or priorities", n)
			continue
		}
		kinds = append(kinds, k)
	}
	if err := a.Err(); err != nil {
		return errorResult(err), nil
	}

	if err := t.ref.Refresh(kinds...); err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{
		"message": "Reference data invalidated",
		"cache":   t.ref.Status(),
	})
}
