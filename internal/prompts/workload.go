package prompts

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/HendryAvila/openproject-mcp/internal/logger"
	"github.com/HendryAvila/openproject-mcp/internal/openproject"
	"github.com/HendryAvila/openproject-mcp/internal/validate"
	"github.com/HendryAvila/openproject-mcp/internal/views"
)

const (
	defaultWorkloadProjects = 5
	workloadFetchLimit      = 4
)

// WorkloadPrompt handles the team_workload_analysis MCP prompt.
type WorkloadPrompt struct {
	api API
	ref ReferenceData
	log *logger.Logger
	now func() time.Time
}

// NewWorkloadPrompt creates a WorkloadPrompt.
func NewWorkloadPrompt(api API, ref ReferenceData, log *logger.Logger) *WorkloadPrompt {
	return &WorkloadPrompt{api: api, ref: ref, log: log, now: time.Now}
}

// Definition returns the MCP prompt definition for registration.
func (p *WorkloadPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("team_workload_analysis",
		mcp.WithPromptDescription(
			"Analyze how work is spread across assignees in one or more projects: "+
				"load, progress, overdue items and rebalancing suggestions.",
		),
		mcp.WithArgument("project_ids",
			mcp.ArgumentDescription(
				fmt.Sprintf("Comma-separated project IDs. Default: the first %d projects", defaultWorkloadProjects),
			),
		),
	)
}

// Handle processes the team_workload_analysis prompt request. Projects
// that cannot be read are skipped and reported.
func (p *WorkloadPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	ids, err := idListArg(req.Params.Arguments, "project_ids")
	if err != nil {
		return nil, err
	}
	const desc = "Team workload analysis"

	if len(ids) == 0 {
		projects, err := p.api.ListProjects(ctx)
		if err != nil {
			return failure(ctx, p.log, desc, "team workload analysis", err), nil
		}
		for _, pr := range projects[:min(len(projects), defaultWorkloadProjects)] {
			ids = append(ids, pr.ID)
		}
	}

	perProject := make([][]openproject.WorkPackage, len(ids))
	failed := make([]error, len(ids))
	var g errgroup.Group
	g.SetLimit(workloadFetchLimit)
	for i, id := range ids {
		g.Go(func() error {
			perProject[i], failed[i] = p.api.ListProjectWorkPackages(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	var all []openproject.WorkPackage
	skipped := []int{}
	for i, wps := range perProject {
		if failed[i] != nil {
			logger.C(ctx, p.log).Warn().Err(failed[i]).Int("project_id", ids[i]).Msg("skipping project in workload analysis")
			skipped = append(skipped, ids[i])
			continue
		}
		all = append(all, wps...)
	}

	today := p.now().Format(validate.DateLayout)
	data, err := indentJSON(map[string]any{
		"projects_analyzed":    len(ids) - len(skipped),
		"projects_skipped":     skipped,
		"total_work_packages":  len(all),
		"as_of":                today,
		"workload_by_assignee": views.WorkloadOf(all, closedStatuses(ctx, p.ref, p.log), today),
	})
	if err != nil {
		return nil, err
	}

	return userMessage(desc, fmt.Sprintf(
		"Please analyze this team workload across %d projects.\n\n%s\n\n"+
			"Cover:\n"+
			"1. **Distribution:** who carries the most work, who has capacity, how even it is\n"+
			"2. **Progress:** completion rates by person, bottlenecks\n"+
			"3. **Risk:** overdue items and overloaded people or projects\n"+
			"4. **Recommendations:** rebalancing, priority changes, process improvements",
		len(ids), data,
	)), nil
}
