// Package resources implements the MCP resources of the server.
//
// Resources are read-only JSON documents addressed by openproject://
// URIs. Templated URIs carry a numeric id as their last path segment.
package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/HendryAvila/openproject-mcp/internal/errs"
	"github.com/HendryAvila/openproject-mcp/internal/openproject"
	"github.com/HendryAvila/openproject-mcp/internal/refdata"
	"github.com/HendryAvila/openproject-mcp/internal/views"
)

const mimeJSON = "application/json"

// API is the slice of the OpenProject client the resources read from.
type API interface {
	ListProjects(ctx context.Context) ([]openproject.Project, error)
	GetProject(ctx context.Context, id int) (*openproject.Project, error)
	ListProjectWorkPackages(ctx context.Context, projectID int) ([]openproject.WorkPackage, error)
	GetWorkPackage(ctx context.Context, id int) (*openproject.WorkPackage, error)
	ListRelations(ctx context.Context, workPackageID int) ([]openproject.Relation, error)
	WorkPackageURL(id int) string
	ProjectURL(p openproject.Project) string
}

// ReferenceData is the cached lookup data. *refdata.Loader satisfies it.
type ReferenceData interface {
	Get(ctx context.Context, k refdata.Kind) ([]refdata.Item, error)
	Status() []refdata.Freshness
}

// Handler manages the resource endpoints.
type Handler struct {
	api API
	ref ReferenceData
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(api API, ref ReferenceData) *Handler {
	return &Handler{api: api, ref: ref}
}

// --- openproject://projects ---

// ProjectsResource returns the MCP resource definition for the project list.
func (h *Handler) ProjectsResource() mcp.Resource {
	return mcp.NewResource(
		"openproject://projects",
		"OpenProject Projects",
		mcp.WithResourceDescription("All projects visible to the configured API key"),
		mcp.WithMIMEType(mimeJSON),
	)
}

// HandleProjects returns every visible project.
func (h *Handler) HandleProjects(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	projects, err := h.api.ListProjects(ctx)
	if err != nil {
		return errorResource(req.Params.URI, err)
	}
	out := make([]views.Project, len(projects))
	for i, p := range projects {
		out[i] = views.NewProject(p, h.api)
	}
	return jsonResource(req.Params.URI, map[string]any{
		"projects": out,
		"total":    len(out),
	})
}

// --- openproject://reference-data ---

// ReferenceDataResource returns the MCP resource definition for the
// cached types, statuses and priorities.
func (h *Handler) ReferenceDataResource() mcp.Resource {
	return mcp.NewResource(
		"openproject://reference-data",
		"OpenProject Reference Data",
		mcp.WithResourceDescription("Work package types, statuses and priorities with their IDs"),
		mcp.WithMIMEType(mimeJSON),
	)
}

// HandleReferenceData loads the three sets concurrently.
func (h *Handler) HandleReferenceData(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	sets := make([][]refdata.Item, len(refdata.AllKinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, k := range refdata.AllKinds {
		g.Go(func() error {
			items, err := h.ref.Get(gctx, k)
			sets[i] = items
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return errorResource(req.Params.URI, err)
	}

	doc := map[string]any{"cache": h.ref.Status()}
	for i, k := range refdata.AllKinds {
		doc[string(k)] = sets[i]
	}
	return jsonResource(req.Params.URI, doc)
}

// --- openproject://project/{project_id} ---

// ProjectTemplate returns the MCP resource template for one project.
func (h *Handler) ProjectTemplate() mcp.ResourceTemplate {
	return mcp.NewResourceTemplate(
		"openproject://project/{project_id}",
		"OpenProject Project",
		mcp.WithTemplateDescription("One project with its work package count"),
		mcp.WithTemplateMIMEType(mimeJSON),
	)
}

// HandleProject returns one project.
func (h *Handler) HandleProject(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	id, err := idParam(req, "project_id")
	if err != nil {
		return errorResource(req.Params.URI, err)
	}
	p, err := h.api.GetProject(ctx, id)
	if err != nil {
		return errorResource(req.Params.URI, err)
	}
	wps, err := h.api.ListProjectWorkPackages(ctx, id)
	if err != nil {
		return errorResource(req.Params.URI, err)
	}
	return jsonResource(req.Params.URI, map[string]any{
		"project":             views.NewProject(*p, h.api),
		"work_packages_count": len(wps),
	})
}

// --- openproject://work-packages/{project_id} ---

// WorkPackagesTemplate returns the MCP resource template for the work
// packages of one project.
func (h *Handler) WorkPackagesTemplate() mcp.ResourceTemplate {
	return mcp.NewResourceTemplate(
		"openproject://work-packages/{project_id}",
		"OpenProject Work Packages",
		mcp.WithTemplateDescription("All work packages of one project"),
		mcp.WithTemplateMIMEType(mimeJSON),
	)
}

// HandleWorkPackages returns the work packages of one project.
func (h *Handler) HandleWorkPackages(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	id, err := idParam(req, "project_id")
	if err != nil {
		return errorResource(req.Params.URI, err)
	}
	wps, err := h.api.ListProjectWorkPackages(ctx, id)
	if err != nil {
		return errorResource(req.Params.URI, err)
	}
	return jsonResource(req.Params.URI, map[string]any{
		"project_id":    id,
		"work_packages": views.NewWorkPackages(wps, h.api, 0),
		"total":         len(wps),
	})
}

// --- openproject://work-package/{work_package_id} ---

// WorkPackageTemplate returns the MCP resource template for one work package.
func (h *Handler) WorkPackageTemplate() mcp.ResourceTemplate {
	return mcp.NewResourceTemplate(
		"openproject://work-package/{work_package_id}",
		"OpenProject Work Package",
		mcp.WithTemplateDescription("One work package with its full description"),
		mcp.WithTemplateMIMEType(mimeJSON),
	)
}

// HandleWorkPackage returns one work package.
func (h *Handler) HandleWorkPackage(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	id, err := idParam(req, "work_package_id")
	if err != nil {
		return errorResource(req.Params.URI, err)
	}
	wp, err := h.api.GetWorkPackage(ctx, id)
	if err != nil {
		return errorResource(req.Params.URI, err)
	}
	return jsonResource(req.Params.URI, map[string]any{
		"work_package": views.NewWorkPackage(*wp, h.api, 0),
	})
}

// --- openproject://work-package-relations/{work_package_id} ---

// RelationsTemplate returns the MCP resource template for the relations
// of one work package.
func (h *Handler) RelationsTemplate() mcp.ResourceTemplate {
	return mcp.NewResourceTemplate(
		"openproject://work-package-relations/{work_package_id}",
		"OpenProject Work Package Relations",
		mcp.WithTemplateDescription("Relations (dependencies) of one work package"),
		mcp.WithTemplateMIMEType(mimeJSON),
	)
}

// HandleRelations returns the relations of one work package.
func (h *Handler) HandleRelations(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	id, err := idParam(req, "work_package_id")
	if err != nil {
		return errorResource(req.Params.URI, err)
	}
	rels, err := h.api.ListRelations(ctx, id)
	if err != nil {
		return errorResource(req.Params.URI, err)
	}
	out := make([]views.Relation, len(rels))
	for i, r := range rels {
		out[i] = views.NewRelation(r)
	}
	return jsonResource(req.Params.URI, map[string]any{
		"work_package_id": id,
		"relations":       out,
		"total":           len(out),
	})
}

// --- Helpers ---

// idParam reads a positive id from the template arguments, falling back
// to the last segment of the URI.
func idParam(req mcp.ReadResourceRequest, name string) (int, error) {
	var raw string
	switch v := req.Params.Arguments[name].(type) {
	case string:
		raw = v
	case []string:
		if len(v) > 0 {
			raw = v[0]
		}
	}
	if raw == "" {
		uri := strings.TrimRight(req.Params.URI, "/")
		raw = uri[strings.LastIndex(uri, "/")+1:]
	}

	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		v := &errs.ValidationError{}
		v.Add(name, "must be a positive integer", "> 0", raw)
		return 0, v
	}
	return id, nil
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding resource %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: mimeJSON,
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource carrying the error's wire payload.
func errorResource(uri string, err error) ([]mcp.ResourceContents, error) {
	return jsonResource(uri, map[string]any{"error": errs.ToWire(err)})
}
