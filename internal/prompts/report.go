package prompts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/openproject-mcp/internal/errs"
	"github.com/HendryAvila/openproject-mcp/internal/logger"
	"github.com/HendryAvila/openproject-mcp/internal/views"
)

const (
	reportSampleSize = 10
	summaryDescLimit = 200
)

// --- project_status_report ---

// StatusReportPrompt handles the project_status_report MCP prompt.
type StatusReportPrompt struct {
	api API
	ref ReferenceData
	log *logger.Logger
}

// NewStatusReportPrompt creates a StatusReportPrompt.
func NewStatusReportPrompt(api API, ref ReferenceData, log *logger.Logger) *StatusReportPrompt {
	return &StatusReportPrompt{api: api, ref: ref, log: log}
}

// Definition returns the MCP prompt definition for registration.
func (p *StatusReportPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("project_status_report",
		mcp.WithPromptDescription(
			"Generate a status report for one project: health, completion, "+
				"resource allocation, timeline readiness and next steps.",
		),
		mcp.WithArgument("project_id",
			mcp.ArgumentDescription("ID of the project to report on"),
			mcp.RequiredArgument(),
		),
	)
}

type reportItem struct {
	ID        int    `json:"id"`
	Subject   string `json:"subject"`
	Status    string `json:"status"`
	Assignee  string `json:"assignee"`
	StartDate string `json:"start_date,omitempty"`
	DueDate   string `json:"due_date,omitempty"`
}

// Handle processes the project_status_report prompt request.
func (p *StatusReportPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	id, err := positiveArg(req.Params.Arguments, "project_id", 0, true)
	if err != nil {
		return nil, err
	}
	desc := fmt.Sprintf("Status report for project %d", id)

	project, err := p.api.GetProject(ctx, id)
	if err != nil {
		var terr *errs.TransportError
		if errors.As(err, &terr) && terr.Status == http.StatusNotFound {
			return userMessage(desc, fmt.Sprintf(
				"Error: Project with ID %d not found. Please check the project ID and try again.", id)), nil
		}
		return failure(ctx, p.log, desc, "project status report", err), nil
	}
	wps, err := p.api.ListProjectWorkPackages(ctx, id)
	if err != nil {
		return failure(ctx, p.log, desc, "project status report", err), nil
	}

	sample := make([]reportItem, 0, min(len(wps), reportSampleSize))
	for _, wp := range wps[:min(len(wps), reportSampleSize)] {
		v := views.NewWorkPackage(wp, p.api, 0)
		sample = append(sample, reportItem{
			ID: v.ID, Subject: v.Subject, Status: v.Status, Assignee: v.Assignee,
			StartDate: v.StartDate, DueDate: v.DueDate,
		})
	}

	data, err := indentJSON(map[string]any{
		"project":       views.NewProject(*project, p.api),
		"summary":       views.Summarize(wps, closedStatuses(ctx, p.ref, p.log)),
		"work_packages": sample,
	})
	if err != nil {
		return nil, err
	}

	return userMessage(fmt.Sprintf("Status report for %s", project.Name),
		"Please analyze this project status data and write a status report.\n\n"+
			data+"\n\n"+
			"Cover:\n"+
			"1. Overall project health and progress\n"+
			"2. Completion by status\n"+
			"3. Resource allocation (assigned vs unassigned work)\n"+
			"4. Timeline readiness (work packages with dates)\n"+
			"5. Risks and recommendations\n"+
			"6. Next steps for the project manager",
	), nil
}

// --- work_package_summary ---

// WorkPackageSummaryPrompt handles the work_package_summary MCP prompt.
type WorkPackageSummaryPrompt struct {
	api API
	log *logger.Logger
}

// NewWorkPackageSummaryPrompt creates a WorkPackageSummaryPrompt.
func NewWorkPackageSummaryPrompt(api API, log *logger.Logger) *WorkPackageSummaryPrompt {
	return &WorkPackageSummaryPrompt{api: api, log: log}
}

// Definition returns the MCP prompt definition for registration.
func (p *WorkPackageSummaryPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("work_package_summary",
		mcp.WithPromptDescription(
			"Summarize the work packages of a project, optionally only those in one status.",
		),
		mcp.WithArgument("project_id",
			mcp.ArgumentDescription("ID of the project"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("status_filter",
			mcp.ArgumentDescription("Status name to keep (case-insensitive), or 'all'. Default: all"),
		),
	)
}

// Handle processes the work_package_summary prompt request.
func (p *WorkPackageSummaryPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	id, err := positiveArg(req.Params.Arguments, "project_id", 0, true)
	if err != nil {
		return nil, err
	}
	filter := strings.TrimSpace(req.Params.Arguments["status_filter"])
	if filter == "" {
		filter = "all"
	}
	desc := fmt.Sprintf("Work package summary for project %d", id)

	wps, err := p.api.ListProjectWorkPackages(ctx, id)
	if err != nil {
		return failure(ctx, p.log, desc, "work package summary", err), nil
	}

	items := views.NewWorkPackages(wps, p.api, summaryDescLimit)
	if !strings.EqualFold(filter, "all") {
		kept := items[:0]
		for _, it := range items {
			if strings.EqualFold(it.Status, filter) {
				kept = append(kept, it)
			}
		}
		items = kept
	}

	data, err := indentJSON(items)
	if err != nil {
		return nil, err
	}
	return userMessage(desc, fmt.Sprintf(
		"Please summarize these %d work packages (status filter: %s).\n\n%s\n\n"+
			"Organize the summary by:\n"+
			"1. High-priority items needing attention\n"+
			"2. Items by status\n"+
			"3. Timeline overview and upcoming deadlines\n"+
			"4. Resource allocation\n"+
			"5. Recommendations",
		len(items), filter, data,
	)), nil
}
