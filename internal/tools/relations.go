package tools

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/openproject-mcp/internal/openproject"
	"github.com/HendryAvila/openproject-mcp/internal/views"
)

// RelationTypes lists the relation types the tracker accepts.
var RelationTypes = []string{
	"relates", "duplicates", "duplicated", "blocks", "blocked",
	"precedes", "follows", "includes", "partof", "requires", "required",
}

// --- create_work_package_dependency ---

// CreateRelationTool handles the create_work_package_dependency MCP tool.
type CreateRelationTool struct {
	api API
}

// NewCreateRelationTool creates a CreateRelationTool.
func NewCreateRelationTool(api API) *CreateRelationTool {
	return &CreateRelationTool{api: api}
}

// Definition returns the MCP tool definition for create_work_package_dependency.
func (t *CreateRelationTool) Definition() mcp.Tool {
	return mcp.NewTool("create_work_package_dependency",
		mcp.WithDescription(
			"Create a relation between two work packages, e.g. so that one follows "+
				"the other on the Gantt chart. The relation reads "+
				"'<from> <relation_type> <to>'.",
		),
		mcp.WithNumber("from_work_package_id", mcp.Required(), mcp.Description("Work package the relation starts from")),
		mcp.WithNumber("to_work_package_id", mcp.Required(), mcp.Description("Work package the relation points to")),
		mcp.WithString("relation_type",
			mcp.Description("Relation type"),
			mcp.Enum(RelationTypes...),
			mcp.DefaultString("follows"),
		),
		mcp.WithString("description", mcp.Description("Optional note on the relation")),
		mcp.WithNumber("lag",
			mcp.Description("Working days between the predecessor's finish and the successor's start"),
			mcp.Min(0),
			mcp.DefaultNumber(0),
		),
		mcp.WithDestructiveHintAnnotation(false),
	)
}

// Handle processes the create_work_package_dependency tool call.
func (t *CreateRelationTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := newArgs(req)
	in := openproject.NewRelation{
		FromID:      a.ID("from_work_package_id"),
		ToID:        a.ID("to_work_package_id"),
		Type:        strings.ToLower(a.String("relation_type")),
		Description: a.String("description"),
		Lag:         a.Int("lag"),
	}
	if in.Type == "" {
		in.Type = "follows"
	}
	if !slices.Contains(RelationTypes, in.Type) {
		a.fail("relation_type", "unknown relation type", "one of: "+strings.Join(RelationTypes, ", "), in.Type)
	}
	if in.Lag < 0 {
		a.fail("lag", "must not be negative", ">= 0", in.Lag)
	}
	if in.FromID != 0 && in.FromID == in.ToID {
		a.fail("to_work_package_id", "must differ from from_work_package_id", fmt.Sprintf("!= %d", in.FromID), in.ToID)
	}
	if err := a.Err(); err != nil {
		return errorResult(err), nil
	}

	r, err := t.api.CreateRelation(ctx, in)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{
		"message":  fmt.Sprintf("Work package %d %s work package %d", in.FromID, in.Type, in.ToID),
		"relation": views.NewRelation(*r),
	})
}

// --- get_work_package_relations ---

// RelationsTool handles the get_work_package_relations MCP tool.
type RelationsTool struct {
	api API
}

// NewRelationsTool creates a RelationsTool.
func NewRelationsTool(api API) *RelationsTool {
	return &RelationsTool{api: api}
}

// Definition returns the MCP tool definition for get_work_package_relations.
func (t *RelationsTool) Definition() mcp.Tool {
	return mcp.NewTool("get_work_package_relations",
		mcp.WithDescription("List the relations (dependencies) of a work package."),
		mcp.WithNumber("work_package_id", mcp.Required(), mcp.Description("Work package ID")),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

// Handle processes the get_work_package_relations tool call.
func (t *RelationsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := newArgs(req)
	id := a.ID("work_package_id")
	if err := a.Err(); err != nil {
		return errorResult(err), nil
	}

	rels, err := t.api.ListRelations(ctx, id)
	if err != nil {
		return errorResult(err), nil
	}
	out := make([]views.Relation, len(rels))
	for i, r := range rels {
		out[i] = views.NewRelation(r)
	}
	return jsonResult(map[string]any{
		"work_package_id": id,
		"relations":       out,
		"total":           len(out),
	})
}

// --- delete_work_package_relation ---

// DeleteRelationTool handles the delete_work_package_relation MCP tool.
type DeleteRelationTool struct {
	api API
}

// NewDeleteRelationTool creates a DeleteRelationTool.
func NewDeleteRelationTool(api API) *DeleteRelationTool {
	return &DeleteRelationTool{api: api}
}

// Definition returns the MCP tool definition for delete_work_package_relation.
func (t *DeleteRelationTool) Definition() mcp.Tool {
	return mcp.NewTool("delete_work_package_relation",
		mcp.WithDescription("Delete a relation by its ID, see get_work_package_relations."),
		mcp.WithNumber("relation_id", mcp.Required(), mcp.Description("Relation ID")),
		mcp.WithDestructiveHintAnnotation(true),
	)
}

// Handle processes the delete_work_package_relation tool call.
func (t *DeleteRelationTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := newArgs(req)
	id := a.ID("relation_id")
	if err := a.Err(); err != nil {
		return errorResult(err), nil
	}

	if err := t.api.DeleteRelation(ctx, id); err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{
		"message":     fmt.Sprintf("Relation %d deleted", id),
		"relation_id": id,
	})
}
