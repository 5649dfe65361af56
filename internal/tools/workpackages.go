package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/openproject-mcp/internal/errs"
	"github.com/HendryAvila/openproject-mcp/internal/openproject"
	"github.com/HendryAvila/openproject-mcp/internal/views"
)

// listDescriptionLimit caps descriptions in list results, in runes.
const listDescriptionLimit = 200

// --- get_work_packages ---

// WorkPackagesTool handles the get_work_packages MCP tool.
type WorkPackagesTool struct {
	api API
}

// NewWorkPackagesTool creates a WorkPackagesTool.
func NewWorkPackagesTool(api API) *WorkPackagesTool {
	return &WorkPackagesTool{api: api}
}

// Definition returns the MCP tool definition for get_work_packages.
func (t *WorkPackagesTool) Definition() mcp.Tool {
	return mcp.NewTool("get_work_packages",
		mcp.WithDescription(
			"List every work package of a project. "+
				"Use search_work_packages to filter, sort or page.",
		),
		mcp.WithNumber("project_id",
			mcp.Required(),
			mcp.Description("Project ID"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

// Handle processes the get_work_packages tool call.
func (t *WorkPackagesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := newArgs(req)
	id := a.ID("project_id")
	if err := a.Err(); err != nil {
		return errorResult(err), nil
	}

	wps, err := t.api.ListProjectWorkPackages(ctx, id)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{
		"project_id":    id,
		"work_packages": views.NewWorkPackages(wps, t.api, listDescriptionLimit),
		"total":         len(wps),
	})
}

// --- get_work_package ---

// WorkPackageTool handles the get_work_package MCP tool.
type WorkPackageTool struct {
	api API
}

// NewWorkPackageTool creates a WorkPackageTool.
func NewWorkPackageTool(api API) *WorkPackageTool {
	return &WorkPackageTool{api: api}
}

// Definition returns the MCP tool definition for get_work_package.
func (t *WorkPackageTool) Definition() mcp.Tool {
	return mcp.NewTool("get_work_package",
		mcp.WithDescription("Get one work package with its full description."),
		mcp.WithNumber("work_package_id",
			mcp.Required(),
			mcp.Description("Work package ID"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

// Handle processes the get_work_package tool call.
func (t *WorkPackageTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := newArgs(req)
	id := a.ID("work_package_id")
	if err := a.Err(); err != nil {
		return errorResult(err), nil
	}

	wp, err := t.api.GetWorkPackage(ctx, id)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{
		"work_package": views.NewWorkPackage(*wp, t.api, 0),
	})
}

// --- create_work_package ---

// CreateWorkPackageTool handles the create_work_package MCP tool.
type CreateWorkPackageTool struct {
	api API
}

// NewCreateWorkPackageTool creates a CreateWorkPackageTool.
func NewCreateWorkPackageTool(api API) *CreateWorkPackageTool {
	return &CreateWorkPackageTool{api: api}
}

// Definition returns the MCP tool definition for create_work_package.
func (t *CreateWorkPackageTool) Definition() mcp.Tool {
	return mcp.NewTool("create_work_package",
		mcp.WithDescription(
			"Create a work package in a project. Set start_date and due_date "+
				"so it shows up on the Gantt chart.",
		),
		mcp.WithNumber("project_id", mcp.Required(), mcp.Description("Project ID")),
		mcp.WithString("subject", mcp.Required(), mcp.Description("Work package title")),
		mcp.WithString("description", mcp.Description("Detailed description (markdown)")),
		mcp.WithNumber("type_id", mcp.Description("Type ID, see get_work_package_types")),
		mcp.WithNumber("status_id", mcp.Description("Status ID, see get_work_package_statuses")),
		mcp.WithNumber("priority_id", mcp.Description("Priority ID, see get_priorities")),
		mcp.WithNumber("assignee_id", mcp.Description("User ID to assign")),
		mcp.WithNumber("parent_id", mcp.Description("Parent work package ID")),
		mcp.WithString("start_date", mcp.Description("Start date, YYYY-MM-DD")),
		mcp.WithString("due_date", mcp.Description("Due date, YYYY-MM-DD")),
		mcp.WithNumber("estimated_hours", mcp.Description("Estimated effort in hours"), mcp.Min(0)),
		mcp.WithDestructiveHintAnnotation(false),
	)
}

// Handle processes the create_work_package tool call.
func (t *CreateWorkPackageTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := newArgs(req)
	in := openproject.NewWorkPackage{
		ProjectID:   a.ID("project_id"),
		Subject:     a.RequiredString("subject"),
		Description: a.String("description"),
		TypeID:      a.OptID("type_id"),
		StatusID:    a.OptID("status_id"),
		PriorityID:  a.OptID("priority_id"),
		AssigneeID:  a.OptID("assignee_id"),
		ParentID:    a.OptID("parent_id"),
		StartDate:   a.Date("start_date"),
		DueDate:     a.Date("due_date"),
	}
	if h := a.OptFloat("estimated_hours"); h != nil {
		if *h < 0 {
			a.fail("estimated_hours", "must not be negative", ">= 0", *h)
		}
		in.EstimatedHours = *h
	}
	checkDateOrder(a.v, "start_date", in.StartDate, in.DueDate)
	if err := a.Err(); err != nil {
		return errorResult(err), nil
	}

	wp, err := t.api.CreateWorkPackage(ctx, in)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{
		"message":      fmt.Sprintf("Work package '%s' created", wp.Subject),
		"work_package": views.NewWorkPackage(*wp, t.api, 0),
	})
}

// checkDateOrder flags field when both dates are set and start is after
// end. Dates are YYYY-MM-DD, so text order is date order.
func checkDateOrder(v *errs.ValidationError, field, start, end string) {
	if start != "" && end != "" && start > end {
		v.Add(field, "must not be after the due date", "<= "+end, start)
	}
}

// --- update_work_package ---

// UpdateWorkPackageTool handles the update_work_package MCP tool.
type UpdateWorkPackageTool struct {
	api API
}

// NewUpdateWorkPackageTool creates an UpdateWorkPackageTool.
func NewUpdateWorkPackageTool(api API) *UpdateWorkPackageTool {
	return &UpdateWorkPackageTool{api: api}
}

// Definition returns the MCP tool definition for update_work_package.
func (t *UpdateWorkPackageTool) Definition() mcp.Tool {
	return mcp.NewTool("update_work_package",
		mcp.WithDescription(
			"Update fields of a work package. Only the fields given are changed. "+
				"The current lock version is fetched automatically; pass an empty "+
				"start_date or due_date to clear it.",
		),
		mcp.WithNumber("work_package_id", mcp.Required(), mcp.Description("Work package ID")),
		mcp.WithString("subject", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description (markdown)")),
		mcp.WithString("start_date", mcp.Description("New start date, YYYY-MM-DD, or empty to clear")),
		mcp.WithString("due_date", mcp.Description("New due date, YYYY-MM-DD, or empty to clear")),
		mcp.WithNumber("assignee_id", mcp.Description("User ID to assign")),
		mcp.WithNumber("status_id", mcp.Description("New status ID")),
		mcp.WithNumber("priority_id", mcp.Description("New priority ID")),
		mcp.WithNumber("type_id", mcp.Description("New type ID")),
		mcp.WithNumber("estimated_hours", mcp.Description("New estimated effort in hours"), mcp.Min(0)),
		mcp.WithIdempotentHintAnnotation(true),
	)
}

// Handle processes the update_work_package tool call.
func (t *UpdateWorkPackageTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := newArgs(req)
	id := a.ID("work_package_id")
	patch := openproject.WorkPackagePatch{
		Subject:        a.OptString("subject"),
		Description:    a.OptString("description"),
		StartDate:      a.OptDate("start_date"),
		DueDate:        a.OptDate("due_date"),
		AssigneeID:     optID(a, "assignee_id"),
		StatusID:       optID(a, "status_id"),
		PriorityID:     optID(a, "priority_id"),
		TypeID:         optID(a, "type_id"),
		EstimatedHours: a.OptFloat("estimated_hours"),
	}
	if patch.Subject != nil && *patch.Subject == "" {
		a.v.Add("subject", "must not be empty", "non-empty string", "")
	}
	if h := patch.EstimatedHours; h != nil && *h < 0 {
		a.fail("estimated_hours", "must not be negative", ">= 0", *h)
	}
	if patch.StartDate != nil && patch.DueDate != nil {
		checkDateOrder(a.v, "start_date", *patch.StartDate, *patch.DueDate)
	}
	if a.Err() == nil && patch.IsEmpty() {
		a.v.Add("fields", "no fields to update",
			"at least one of subject, description, start_date, due_date, assignee_id, status_id, priority_id, type_id, estimated_hours", "")
	}
	if err := a.Err(); err != nil {
		return errorResult(err), nil
	}

	wp, err := t.api.UpdateWorkPackage(ctx, id, patch)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{
		"message":      fmt.Sprintf("Work package %d updated", wp.ID),
		"work_package": views.NewWorkPackage(*wp, t.api, 0),
	})
}

// optID reads an optional positive id as a pointer.
func optID(a *args, key string) *int {
	if !a.has(key) {
		return nil
	}
	n := a.ID(key)
	if n == 0 {
		return nil
	}
	return &n
}

// --- assign_work_package_by_email ---

// UserResolver finds users by e-mail. *refdata.Loader satisfies it.
type UserResolver interface {
	ResolveUserByEmail(ctx context.Context, email string) (openproject.User, error)
}

// AssignByEmailTool handles the assign_work_package_by_email MCP tool.
type AssignByEmailTool struct {
	api   API
	users UserResolver
}

// NewAssignByEmailTool creates an AssignByEmailTool.
func NewAssignByEmailTool(api API, users UserResolver) *AssignByEmailTool {
	return &AssignByEmailTool{api: api, users: users}
}

// Definition returns the MCP tool definition for assign_work_package_by_email.
func (t *AssignByEmailTool) Definition() mcp.Tool {
	return mcp.NewTool("assign_work_package_by_email",
		mcp.WithDescription("Assign a work package to the user with the given e-mail address."),
		mcp.WithNumber("work_package_id", mcp.Required(), mcp.Description("Work package ID")),
		mcp.WithString("assignee_email", mcp.Required(), mcp.Description("E-mail of the user to assign")),
		mcp.WithIdempotentHintAnnotation(true),
	)
}

// Handle processes the assign_work_package_by_email tool call.
func (t *AssignByEmailTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := newArgs(req)
	id := a.ID("work_package_id")
	email := a.Email("assignee_email")
	if err := a.Err(); err != nil {
		return errorResult(err), nil
	}

	user, err := t.users.ResolveUserByEmail(ctx, email)
	if err != nil {
		return errorResult(err), nil
	}
	wp, err := t.api.UpdateWorkPackage(ctx, id, openproject.WorkPackagePatch{AssigneeID: &user.ID})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{
		"message":      fmt.Sprintf("Work package %d assigned to %s", wp.ID, user.Name),
		"assignee":     views.NewUser(user),
		"work_package": views.NewWorkPackage(*wp, t.api, listDescriptionLimit),
	})
}
