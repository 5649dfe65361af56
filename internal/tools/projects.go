package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/openproject-mcp/internal/logger"
	"github.com/HendryAvila/openproject-mcp/internal/openproject"
	"github.com/HendryAvila/openproject-mcp/internal/refdata"
	"github.com/HendryAvila/openproject-mcp/internal/views"
)

// --- get_projects ---

// ProjectsTool handles the get_projects MCP tool.
type ProjectsTool struct {
	api API
}

// NewProjectsTool creates a ProjectsTool.
func NewProjectsTool(api API) *ProjectsTool {
	return &ProjectsTool{api: api}
}

// Definition returns the MCP tool definition for get_projects.
func (t *ProjectsTool) Definition() mcp.Tool {
	return mcp.NewTool("get_projects",
		mcp.WithDescription("List every OpenProject project visible to the configured API key."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

// Handle processes the get_projects tool call.
func (t *ProjectsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projects, err := t.api.ListProjects(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	out := make([]views.Project, len(projects))
	for i, p := range projects {
		out[i] = views.NewProject(p, t.api)
	}
	return jsonResult(map[string]any{
		"projects": out,
		"total":    len(out),
	})
}

// --- create_project ---

// CreateProjectTool handles the create_project MCP tool.
type CreateProjectTool struct {
	api API
}

// NewCreateProjectTool creates a CreateProjectTool.
func NewCreateProjectTool(api API) *CreateProjectTool {
	return &CreateProjectTool{api: api}
}

// Definition returns the MCP tool definition for create_project.
func (t *CreateProjectTool) Definition() mcp.Tool {
	return mcp.NewTool("create_project",
		mcp.WithDescription("Create a new OpenProject project."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Project name"),
		),
		mcp.WithString("description",
			mcp.Description("Project description (markdown)"),
		),
		mcp.WithString("identifier",
			mcp.Description("URL identifier, e.g. 'apollo'. Derived from the name when omitted."),
		),
		mcp.WithNumber("parent_id",
			mcp.Description("Parent project ID for a sub-project"),
		),
		mcp.WithDestructiveHintAnnotation(false),
	)
}

// Handle processes the create_project tool call.
func (t *CreateProjectTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := newArgs(req)
	in := openproject.NewProject{
		Name:        a.RequiredString("name"),
		Description: a.String("description"),
		Identifier:  a.String("identifier"),
		ParentID:    a.OptID("parent_id"),
	}
	if err := a.Err(); err != nil {
		return errorResult(err), nil
	}

	p, err := t.api.CreateProject(ctx, in)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{
		"message": fmt.Sprintf("Project '%s' created", p.Name),
		"project": views.NewProject(*p, t.api),
	})
}

// --- get_project_summary ---

// ReferenceData is the subset of *refdata.Loader the tools use.
type ReferenceData interface {
	Get(ctx context.Context, k refdata.Kind) ([]refdata.Item, error)
	Refresh(kinds ...refdata.Kind) error
	Status() []refdata.Freshness
}

// ProjectSummaryTool handles the get_project_summary MCP tool.
type ProjectSummaryTool struct {
	api API
	ref ReferenceData
	log *logger.Logger
}

// NewProjectSummaryTool creates a ProjectSummaryTool. ref may be nil, in
// which case open and closed counts are left out.
func NewProjectSummaryTool(api API, ref ReferenceData, log *logger.Logger) *ProjectSummaryTool {
	if log == nil {
		log = logger.Nop()
	}
	return &ProjectSummaryTool{api: api, ref: ref, log: log}
}

// Definition returns the MCP tool definition for get_project_summary.
func (t *ProjectSummaryTool) Definition() mcp.Tool {
	return mcp.NewTool("get_project_summary",
		mcp.WithDescription(
			"Summarize a project: work package counts by status, open vs closed, "+
				"assigned vs unassigned, and whether dates are set for a Gantt chart.",
		),
		mcp.WithNumber("project_id",
			mcp.Required(),
			mcp.Description("Project ID"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

// Handle processes the get_project_summary tool call.
func (t *ProjectSummaryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := newArgs(req)
	id := a.ID("project_id")
	if err := a.Err(); err != nil {
		return errorResult(err), nil
	}

	p, err := t.api.GetProject(ctx, id)
	if err != nil {
		return errorResult(err), nil
	}
	wps, err := t.api.ListProjectWorkPackages(ctx, id)
	if err != nil {
		return errorResult(err), nil
	}

	return jsonResult(map[string]any{
		"project": views.NewProject(*p, t.api),
		"summary": views.Summarize(wps, closedStatuses(ctx, t.ref, t.log)),
	})
}

// closedStatuses returns the ids of closed statuses, or nil when they
// cannot be loaded. The summary is still useful without them.
func closedStatuses(ctx context.Context, ref ReferenceData, log *logger.Logger) map[int]bool {
	if ref == nil {
		return nil
	}
	items, err := ref.Get(ctx, refdata.KindStatuses)
	if err != nil {
		logger.C(ctx, log).Warn().Err(err).Msg("statuses unavailable, skipping open/closed counts")
		return nil
	}
	return refdata.ClosedIDs(items)
}

// --- get_project_members ---

// ProjectMembersTool handles the get_project_members MCP tool.
type ProjectMembersTool struct {
	api API
}

// NewProjectMembersTool creates a ProjectMembersTool.
func NewProjectMembersTool(api API) *ProjectMembersTool {
	return &ProjectMembersTool{api: api}
}

// Definition returns the MCP tool definition for get_project_members.
func (t *ProjectMembersTool) Definition() mcp.Tool {
	return mcp.NewTool("get_project_members",
		mcp.WithDescription("List the members of a project with their roles."),
		mcp.WithNumber("project_id",
			mcp.Required(),
			mcp.Description("Project ID"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

// Handle processes the get_project_members tool call.
func (t *ProjectMembersTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := newArgs(req)
	id := a.ID("project_id")
	if err := a.Err(); err != nil {
		return errorResult(err), nil
	}

	ms, err := t.api.ListMemberships(ctx, id)
	if err != nil {
		return errorResult(err), nil
	}
	out := make([]views.Member, len(ms))
	for i, m := range ms {
		out[i] = views.NewMember(m)
	}
	return jsonResult(map[string]any{
		"project_id": id,
		"members":    out,
		"total":      len(out),
	})
}
