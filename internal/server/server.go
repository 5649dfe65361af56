// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it builds the OpenProject client, the
// reference-data cache, the search service and the audit store, and
// injects them into the tools, prompts and resources that depend on
// their interfaces. No business logic lives here.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/HendryAvila/openproject-mcp/internal/audit"
	"github.com/HendryAvila/openproject-mcp/internal/config"
	"github.com/HendryAvila/openproject-mcp/internal/logger"
	"github.com/HendryAvila/openproject-mcp/internal/openproject"
	"github.com/HendryAvila/openproject-mcp/internal/prompts"
	"github.com/HendryAvila/openproject-mcp/internal/refdata"
	"github.com/HendryAvila/openproject-mcp/internal/resources"
	"github.com/HendryAvila/openproject-mcp/internal/search"
	"github.com/HendryAvila/openproject-mcp/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Server is a configured MCP server with its dependencies.
type Server struct {
	MCP *server.MCPServer

	cfg    config.Config
	log    *logger.Logger
	client *openproject.Client
	ref    *refdata.Loader
	audit  *audit.Store
}

// Option customizes New.
type Option func(*options)

type options struct {
	httpClient *http.Client
}

// WithHTTPClient sets the HTTP client used to reach OpenProject.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// New creates and configures the MCP server with all tools, prompts and
// resources registered.
//
// The audit store is optional: if it cannot be opened the server runs
// without it, recent_tool_calls is not registered and a warning is
// logged. Close must be called on shutdown.
func New(cfg config.Config, log *logger.Logger, opts ...Option) (*Server, error) {
	if log == nil {
		log = logger.Get()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	// --- Create shared dependencies ---

	clientOpts := []openproject.Option{openproject.WithLogger(logger.Named("openproject"))}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, openproject.WithHTTPClient(o.httpClient))
	}
	client, err := NewClient(cfg, clientOpts...)
	if err != nil {
		return nil, err
	}

	ref := refdata.NewLoader(client, refdata.NewCache(cfg.CacheTTL.D(), logger.Named("refdata")), logger.Named("refdata"))
	searcher := search.NewService(client, ref, logger.Named("search"))

	srv := &Server{cfg: cfg, log: log, client: client, ref: ref}

	// Audit is an independent subsystem: tools keep working without it.
	var rec tools.Recorder
	switch {
	case cfg.AuditDisabled:
		log.Info().Msg("audit log disabled by configuration")
	case cfg.AuditDB == "":
		log.Warn().Msg("audit log disabled: no database path")
	default:
		store, err := audit.New(audit.Config{Path: cfg.AuditDB})
		if err != nil {
			log.Warn().Err(err).Msg("audit log disabled")
		} else {
			srv.audit = store
			rec = store
		}
	}

	// --- Create the MCP server ---

	srv.MCP = server.NewMCPServer(
		config.AppName,
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithToolHandlerMiddleware(tools.Middleware(logger.Named("tools"), rec)),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register tools ---

	registerTools(srv.MCP,
		tools.NewHealthTool(client),

		tools.NewProjectsTool(client),
		tools.NewCreateProjectTool(client),
		tools.NewProjectSummaryTool(client, ref, logger.Named("tools")),
		tools.NewProjectMembersTool(client),

		tools.NewWorkPackagesTool(client),
		tools.NewWorkPackageTool(client),
		tools.NewCreateWorkPackageTool(client),
		tools.NewUpdateWorkPackageTool(client),
		tools.NewAssignByEmailTool(client, ref),
		tools.NewSearchTool(searcher),

		tools.NewCreateRelationTool(client),
		tools.NewRelationsTool(client),
		tools.NewDeleteRelationTool(client),

		tools.NewCommentTool(client),
		tools.NewActivitiesTool(client),

		tools.NewUsersTool(client, ref),

		tools.NewTypesTool(ref),
		tools.NewStatusesTool(ref),
		tools.NewPrioritiesTool(ref),
		tools.NewRefreshTool(ref),
	)
	if srv.audit != nil {
		registerTools(srv.MCP, tools.NewRecentCallsTool(srv.audit))
	}

	// --- Register prompts ---

	promptLog := logger.Named("prompts")

	statusReport := prompts.NewStatusReportPrompt(client, ref, promptLog)
	srv.MCP.AddPrompt(statusReport.Definition(), statusReport.Handle)

	wpSummary := prompts.NewWorkPackageSummaryPrompt(client, promptLog)
	srv.MCP.AddPrompt(wpSummary.Definition(), wpSummary.Handle)

	planning := prompts.NewPlanningPrompt()
	srv.MCP.AddPrompt(planning.Definition(), planning.Handle)

	workload := prompts.NewWorkloadPrompt(client, ref, promptLog)
	srv.MCP.AddPrompt(workload.Definition(), workload.Handle)

	// --- Register resources ---

	rh := resources.NewHandler(client, ref)
	srv.MCP.AddResource(rh.ProjectsResource(), rh.HandleProjects)
	srv.MCP.AddResource(rh.ReferenceDataResource(), rh.HandleReferenceData)
	srv.MCP.AddResourceTemplate(rh.ProjectTemplate(), rh.HandleProject)
	srv.MCP.AddResourceTemplate(rh.WorkPackagesTemplate(), rh.HandleWorkPackages)
	srv.MCP.AddResourceTemplate(rh.WorkPackageTemplate(), rh.HandleWorkPackage)
	srv.MCP.AddResourceTemplate(rh.RelationsTemplate(), rh.HandleRelations)

	log.Info().
		Str("openproject_url", cfg.OpenProjectURL).
		Dur("cache_ttl", cfg.CacheTTL.D()).
		Bool("audit", srv.audit != nil).
		Str("version", Version).
		Msg("server configured")
	return srv, nil
}

// NewClient builds the OpenProject client described by cfg.
func NewClient(cfg config.Config, opts ...openproject.Option) (*openproject.Client, error) {
	client, err := openproject.New(openproject.Config{
		BaseURL:    cfg.OpenProjectURL,
		APIKey:     cfg.APIKey,
		HostHeader: cfg.HostHeader,
		Timeout:    cfg.Timeout.D(),
		UserAgent:  config.AppName + "/" + Version,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenProject client: %w", err)
	}
	return client, nil
}

// Client returns the OpenProject client.
func (s *Server) Client() *openproject.Client { return s.client }

// Close releases the audit store and the cache. Safe to call more than once.
func (s *Server) Close() {
	s.ref.Close()
	if s.audit != nil {
		if err := s.audit.Close(); err != nil {
			s.log.Warn().Err(err).Msg("audit store close")
		}
		s.audit = nil
	}
}

// tool is what every tools.*Tool provides.
type tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

func registerTools(s *server.MCPServer, ts ...tool) {
	for _, t := range ts {
		s.AddTool(t.Definition(), t.Handle)
	}
}

// serverInstructions returns the system instructions that tell the model
// how to use the tools effectively.
func serverInstructions() string {
	return `You are connected to an OpenProject instance through this server.

## FINDING THINGS

- Use get_projects to discover project IDs, then get_work_packages or
  search_work_packages to find work.
- search_work_packages combines filters (project, status, assignee, type,
  priority, subject text, date ranges) with AND. Names and e-mail addresses
  are resolved to IDs for you. Use either the *_ids or the *_names form of
  a filter, never both.
- Use get_work_package_types, get_work_package_statuses and get_priorities
  to look up valid IDs. They are cached; call refresh_reference_data after
  they were changed in OpenProject.

## CHANGING THINGS

- update_work_package only sends the fields you pass. An empty string for
  start_date or due_date clears the date.
- A conflict error means the work package changed in the meantime: fetch
  it again and retry.
- Build schedules with create_work_package (start and due dates) and
  create_work_package_dependency (relation "follows" or "precedes", with an
  optional lag in working days) so the Gantt chart reflects the plan.

## ERRORS

Failed tool calls return JSON with a "code" (validation_error,
compilation_error, not_found, transport_error, cache_load_error,
internal_error), a message and, for validation errors, every offending
field. Fix all listed fields before retrying.`
}
