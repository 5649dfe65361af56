package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const maxPlannedWorkPackages = 50

// PlanningPrompt handles the project_planning_assistant MCP prompt. It
// needs no tracker data.
type PlanningPrompt struct{}

// NewPlanningPrompt creates a PlanningPrompt.
func NewPlanningPrompt() *PlanningPrompt {
	return &PlanningPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *PlanningPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("project_planning_assistant",
		mcp.WithPromptDescription(
			"Plan a new project as a set of dated, dependent work packages "+
				"ready to create in OpenProject.",
		),
		mcp.WithArgument("project_name",
			mcp.ArgumentDescription("Name of the project to plan"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("work_package_count",
			mcp.ArgumentDescription("Approximate number of work packages. Default: 5"),
		),
	)
}

// Handle processes the project_planning_assistant prompt request.
func (p *PlanningPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := strings.TrimSpace(req.Params.Arguments["project_name"])
	if name == "" {
		return nil, fmt.Errorf("argument project_name is required")
	}
	count, err := positiveArg(req.Params.Arguments, "work_package_count", 5, false)
	if err != nil {
		return nil, err
	}
	if count > maxPlannedWorkPackages {
		return nil, fmt.Errorf("argument work_package_count must be at most %d, got %d", maxPlannedWorkPackages, count)
	}

	return userMessage(fmt.Sprintf("Plan project: %s", name), fmt.Sprintf(
		"I need help planning a new project called %q with about %d work packages.\n\n"+
			"1. **Structure:** split the project into phases with clear deliverables.\n\n"+
			"2. **For each work package, suggest:**\n"+
			"   - An actionable title\n"+
			"   - A short description\n"+
			"   - Estimated duration\n"+
			"   - Dependencies on other work packages\n"+
			"   - Priority\n\n"+
			"3. **Timeline:** order the work by its dependencies, keep buffer time, "+
			"and mark milestones.\n\n"+
			"4. **Resources:** skills needed, likely assignees and external dependencies.\n\n"+
			"Then create the project with `create_project`, the work packages with "+
			"`create_work_package` (with start and due dates), and the dependencies with "+
			"`create_work_package_dependency`, so the Gantt chart shows the schedule.",
		name, count,
	)), nil
}
