package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/openproject-mcp/internal/audit"
)

// AuditLog is the read side of the audit store.
type AuditLog interface {
	Recent(ctx context.Context, opts audit.RecentOptions) ([]audit.Entry, error)
	Stats(ctx context.Context) ([]audit.ToolStats, error)
}

// RecentCallsTool handles the recent_tool_calls MCP tool.
type RecentCallsTool struct {
	log AuditLog
}

// NewRecentCallsTool creates a RecentCallsTool.
func NewRecentCallsTool(log AuditLog) *RecentCallsTool {
	return &RecentCallsTool{log: log}
}

// Definition returns the MCP tool definition for recent_tool_calls.
func (t *RecentCallsTool) Definition() mcp.Tool {
	return mcp.NewTool("recent_tool_calls",
		mcp.WithDescription(
			"Show the most recent tool calls of this server, newest first, with outcome, "+
				"error code and duration, plus per-tool totals. Argument values are not stored.",
		),
		mcp.WithString("tool", mcp.Description("Only calls of this tool")),
		mcp.WithBoolean("errors_only", mcp.Description("Only failed calls"), mcp.DefaultBool(false)),
		mcp.WithNumber("limit",
			mcp.Description("Maximum entries to return"),
			mcp.Min(1),
			mcp.Max(audit.DefaultMaxRecent),
			mcp.DefaultNumber(20),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

// Handle processes the recent_tool_calls tool call.
func (t *RecentCallsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := newArgs(req)
	opts := audit.RecentOptions{
		Tool:       a.String("tool"),
		ErrorsOnly: a.Bool("errors_only", false),
		Limit:      a.Int("limit"),
	}
	if opts.Limit < 0 {
		a.fail("limit", "must be positive", ">= 1", opts.Limit)
	}
	if err := a.Err(); err != nil {
		return errorResult(err), nil
	}

	entries, err := t.log.Recent(ctx, opts)
	if err != nil {
		return errorResult(err), nil
	}
	stats, err := t.log.Stats(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	if stats == nil {
		stats = []audit.ToolStats{}
	}
	return jsonResult(map[string]any{
		"calls": entries,
		"stats": stats,
	})
}
