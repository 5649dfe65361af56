package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/openproject-mcp/internal/views"
)

// --- add_work_package_comment ---

// CommentTool handles the add_work_package_comment MCP tool.
type CommentTool struct {
	api API
}

// NewCommentTool creates a CommentTool.
func NewCommentTool(api API) *CommentTool {
	return &CommentTool{api: api}
}

// Definition returns the MCP tool definition for add_work_package_comment.
func (t *CommentTool) Definition() mcp.Tool {
	return mcp.NewTool("add_work_package_comment",
		mcp.WithDescription("Add a comment to a work package's activity stream."),
		mcp.WithNumber("work_package_id", mcp.Required(), mcp.Description("Work package ID")),
		mcp.WithString("comment", mcp.Required(), mcp.Description("Comment text (markdown)")),
		mcp.WithDestructiveHintAnnotation(false),
	)
}

// Handle processes the add_work_package_comment tool call.
func (t *CommentTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := newArgs(req)
	id := a.ID("work_package_id")
	comment := a.RequiredString("comment")
	if err := a.Err(); err != nil {
		return errorResult(err), nil
	}

	act, err := t.api.AddComment(ctx, id, comment)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{
		"message":  fmt.Sprintf("Comment added to work package %d", id),
		"activity": views.NewActivity(*act),
	})
}

// --- get_work_package_activities ---

// ActivitiesTool handles the get_work_package_activities MCP tool.
type ActivitiesTool struct {
	api API
}

// NewActivitiesTool creates an ActivitiesTool.
func NewActivitiesTool(api API) *ActivitiesTool {
	return &ActivitiesTool{api: api}
}

// Definition returns the MCP tool definition for get_work_package_activities.
func (t *ActivitiesTool) Definition() mcp.Tool {
	return mcp.NewTool("get_work_package_activities",
		mcp.WithDescription("List the activity journal of a work package: comments and field changes."),
		mcp.WithNumber("work_package_id", mcp.Required(), mcp.Description("Work package ID")),
		mcp.WithBoolean("comments_only",
			mcp.Description("Only return entries that carry a comment"),
			mcp.DefaultBool(false),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

// Handle processes the get_work_package_activities tool call.
func (t *ActivitiesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := newArgs(req)
	id := a.ID("work_package_id")
	commentsOnly := a.Bool("comments_only", false)
	if err := a.Err(); err != nil {
		return errorResult(err), nil
	}

	acts, err := t.api.ListActivities(ctx, id)
	if err != nil {
		return errorResult(err), nil
	}
	out := make([]views.Activity, 0, len(acts))
	for _, act := range acts {
		v := views.NewActivity(act)
		if commentsOnly && v.Comment == "" {
			continue
		}
		out = append(out, v)
	}
	return jsonResult(map[string]any{
		"work_package_id": id,
		"activities":      out,
		"total":           len(out),
	})
}
