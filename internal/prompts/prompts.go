// Package prompts implements the MCP prompts of the server.
//
// MCP prompts are user-triggered templates. Each one gathers live data
// from OpenProject and embeds it, as JSON, in a single user message that
// asks the model for an analysis.
package prompts

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/openproject-mcp/internal/logger"
	"github.com/HendryAvila/openproject-mcp/internal/openproject"
	"github.com/HendryAvila/openproject-mcp/internal/refdata"
)

// API is the slice of the OpenProject client the prompts read from.
type API interface {
	ListProjects(ctx context.Context) ([]openproject.Project, error)
	GetProject(ctx context.Context, id int) (*openproject.Project, error)
	ListProjectWorkPackages(ctx context.Context, projectID int) ([]openproject.WorkPackage, error)
	WorkPackageURL(id int) string
	ProjectURL(p openproject.Project) string
}

// ReferenceData is the cached lookup data. *refdata.Loader satisfies it.
type ReferenceData interface {
	Get(ctx context.Context, k refdata.Kind) ([]refdata.Item, error)
}

// closedStatuses returns the closed status ids, or nil when they cannot
// be loaded.
func closedStatuses(ctx context.Context, ref ReferenceData, log *logger.Logger) map[int]bool {
	if ref == nil {
		return nil
	}
	items, err := ref.Get(ctx, refdata.KindStatuses)
	if err != nil {
		logger.C(ctx, log).Warn().Err(err).Msg("statuses unavailable for prompt")
		return nil
	}
	return refdata.ClosedIDs(items)
}

// userMessage wraps text in a one-message prompt result.
func userMessage(description, text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.NewTextContent(text),
			},
		},
	}
}

// failure reports an upstream error inside the prompt so the model can
// relay it.
func failure(ctx context.Context, log *logger.Logger, description, action string, err error) *mcp.GetPromptResult {
	logger.C(ctx, log).Warn().Err(err).Str("prompt", description).Msg("prompt data unavailable")
	return userMessage(description, fmt.Sprintf("Error generating %s: %v", action, err))
}

func indentJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding prompt data: %w", err)
	}
	return string(data), nil
}

// --- Arguments ---

// Prompt arguments always arrive as strings.

func positiveArg(args map[string]string, name string, def int, required bool) (int, error) {
	raw := strings.TrimSpace(args[name])
	if raw == "" {
		if required {
			return 0, fmt.Errorf("argument %s is required", name)
		}
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("argument %s must be a positive integer, got %q", name, raw)
	}
	return n, nil
}

// idListArg parses "1,2,3" or "[1, 2, 3]".
func idListArg(args map[string]string, name string) ([]int, error) {
	raw := strings.Trim(strings.TrimSpace(args[name]), "[]")
	if raw == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("argument %s must list positive integers, got %q", name, part)
		}
		out = append(out, n)
	}
	return out, nil
}
