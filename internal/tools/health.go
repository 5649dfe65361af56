package tools

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/openproject-mcp/internal/errs"
	"github.com/HendryAvila/openproject-mcp/internal/openproject"
)

// Health states.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Pinger checks that the tracker answers. *openproject.Client satisfies it.
type Pinger interface {
	Ping(ctx context.Context) (*openproject.Root, error)
	BaseURL() string
}

// HealthReport is the result of a connection check.
type HealthReport struct {
	Status             string `json:"status"`
	Message            string `json:"message"`
	Connection         string `json:"openproject_connection"`
	OpenProjectVersion string `json:"openproject_version,omitempty"`
	Instance           string `json:"openproject_instance,omitempty"`
	URL                string `json:"openproject_url"`
	Error              string `json:"error,omitempty"`
}

// CheckHealth pings the tracker. A transport failure is degraded (the
// server runs, the tracker is unreachable); any other failure is unhealthy.
func CheckHealth(ctx context.Context, p Pinger) HealthReport {
	r := HealthReport{URL: p.BaseURL()}
	root, err := p.Ping(ctx)
	var terr *errs.TransportError
	switch {
	case err == nil:
		r.Status = StatusHealthy
		r.Message = "OpenProject MCP server is running and connected"
		r.Connection = "connected"
		r.OpenProjectVersion = root.CoreVersion
		r.Instance = root.InstanceName
	case errors.As(err, &terr):
		r.Status = StatusDegraded
		r.Message = "OpenProject MCP server is running but the OpenProject connection failed"
		r.Connection = "failed"
		r.Error = err.Error()
	default:
		r.Status = StatusUnhealthy
		r.Message = "OpenProject MCP server encountered an error"
		r.Connection = "unknown"
		r.Error = err.Error()
	}
	return r
}

// HealthTool handles the health_check MCP tool.
type HealthTool struct {
	p Pinger
}

// NewHealthTool creates a HealthTool.
func NewHealthTool(p Pinger) *HealthTool {
	return &HealthTool{p: p}
}

// Definition returns the MCP tool definition for health_check.
func (t *HealthTool) Definition() mcp.Tool {
	return mcp.NewTool("health_check",
		mcp.WithDescription("Check that the server is running and can reach OpenProject."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

// Handle processes the health_check tool call. The check result is the
// payload; a failed check is not a tool error.
func (t *HealthTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(CheckHealth(ctx, t.p))
}
