package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/openproject-mcp/internal/views"
)

// usersPageSize bounds get_users; the tracker caps pages at 100.
const usersPageSize = 100

// UsersTool handles the get_users MCP tool.
type UsersTool struct {
	api   API
	users UserResolver
}

// NewUsersTool creates a UsersTool.
func NewUsersTool(api API, users UserResolver) *UsersTool {
	return &UsersTool{api: api, users: users}
}

// Definition returns the MCP tool definition for get_users.
func (t *UsersTool) Definition() mcp.Tool {
	return mcp.NewTool("get_users",
		mcp.WithDescription(
			"List users, or find the one user with a given e-mail address. "+
				"Listing users usually requires admin rights.",
		),
		mcp.WithString("email_filter", mcp.Description("Exact e-mail address to look up")),
		mcp.WithNumber("offset", mcp.Description("Number of users to skip"), mcp.Min(0), mcp.DefaultNumber(0)),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

// Handle processes the get_users tool call.
func (t *UsersTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := newArgs(req)
	var email string
	if a.has("email_filter") {
		email = a.Email("email_filter")
	}
	offset := a.Int("offset")
	if offset < 0 {
		a.fail("offset", "must not be negative", ">= 0", offset)
	}
	if err := a.Err(); err != nil {
		return errorResult(err), nil
	}

	if email != "" {
		u, err := t.users.ResolveUserByEmail(ctx, email)
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(map[string]any{
			"message": fmt.Sprintf("Found user matching '%s'", email),
			"users":   []views.User{views.NewUser(u)},
			"total":   1,
		})
	}

	page, err := t.api.ListUsers(ctx, "", usersPageSize, offset)
	if err != nil {
		return errorResult(err), nil
	}
	elems := page.Elements()
	out := make([]views.User, len(elems))
	for i, u := range elems {
		out[i] = views.NewUser(u)
	}
	return jsonResult(map[string]any{
		"users":    out,
		"total":    page.Total,
		"offset":   offset,
		"has_more": offset+len(elems) < page.Total,
	})
}
