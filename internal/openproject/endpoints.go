package openproject

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// ─── Projects ───────────────────────────────────────────────────────────────

// ListProjects returns every project visible to the API key.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	return collectAll[Project](ctx, c, "/projects", nil)
}

// GetProject fetches one project.
func (c *Client) GetProject(ctx context.Context, id int) (*Project, error) {
	var p Project
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/projects/%d", id), nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProject creates a project.
func (c *Client) CreateProject(ctx context.Context, in NewProject) (*Project, error) {
	payload := map[string]any{
		"name":        in.Name,
		"description": map[string]string{"raw": in.Description},
	}
	if in.Identifier != "" {
		payload["identifier"] = in.Identifier
	}
	if in.ParentID > 0 {
		payload["_links"] = map[string]Link{"parent": href("projects", in.ParentID)}
	}

	var p Project
	if err := c.do(ctx, http.MethodPost, "/projects", nil, payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ─── Work packages ──────────────────────────────────────────────────────────

// ListProjectWorkPackages returns every work package of a project.
func (c *Client) ListProjectWorkPackages(ctx context.Context, projectID int) ([]WorkPackage, error) {
	return collectAll[WorkPackage](ctx, c, fmt.Sprintf("/projects/%d/work_packages", projectID), nil)
}

// SearchWorkPackages fetches one page of the global work package
// collection.
func (c *Client) SearchWorkPackages(ctx context.Context, q Query) (*Collection[WorkPackage], error) {
	params := url.Values{}
	if q.Filters != "" {
		params.Set("filters", q.Filters)
	}
	if q.SortBy != "" {
		params.Set("sortBy", q.SortBy)
	}
	params.Set("pageSize", strconv.Itoa(q.PageSize))
	params.Set("offset", strconv.Itoa(q.Offset))

	var col Collection[WorkPackage]
	if err := c.do(ctx, http.MethodGet, "/work_packages", params, nil, &col); err != nil {
		return nil, err
	}
	return &col, nil
}

// GetWorkPackage fetches one work package.
func (c *Client) GetWorkPackage(ctx context.Context, id int) (*WorkPackage, error) {
	var wp WorkPackage
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/work_packages/%d", id), nil, nil, &wp); err != nil {
		return nil, err
	}
	return &wp, nil
}

// CreateWorkPackage creates a work package.
func (c *Client) CreateWorkPackage(ctx context.Context, in NewWorkPackage) (*WorkPackage, error) {
	links := map[string]Link{"project": href("projects", in.ProjectID)}
	for name, ref := range map[string]struct {
		kind string
		id   int
	}{
		"type":     {"types", in.TypeID},
		"status":   {"statuses", in.StatusID},
		"priority": {"priorities", in.PriorityID},
		"assignee": {"users", in.AssigneeID},
		"parent":   {"work_packages", in.ParentID},
	} {
		if ref.id > 0 {
			links[name] = href(ref.kind, ref.id)
		}
	}

	payload := map[string]any{"subject": in.Subject, "_links": links}
	if in.Description != "" {
		payload["description"] = map[string]string{"raw": in.Description}
	}
	if in.StartDate != "" {
		payload["startDate"] = in.StartDate
	}
	if in.DueDate != "" {
		payload["dueDate"] = in.DueDate
	}
	if in.EstimatedHours > 0 {
		payload["estimatedTime"] = isoHours(in.EstimatedHours)
	}

	var wp WorkPackage
	if err := c.do(ctx, http.MethodPost, "/work_packages", nil, payload, &wp); err != nil {
		return nil, err
	}
	return &wp, nil
}

// UpdateWorkPackage applies patch using optimistic locking: the current
// lockVersion is fetched first and sent with the change.
func (c *Client) UpdateWorkPackage(ctx context.Context, id int, patch WorkPackagePatch) (*WorkPackage, error) {
	current, err := c.GetWorkPackage(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.LockVersion == nil {
		return nil, fmt.Errorf("work package %d has no lockVersion", id)
	}

	payload := map[string]any{"lockVersion": *current.LockVersion}
	links := map[string]Link{}
	if patch.Subject != nil {
		payload["subject"] = *patch.Subject
	}
	if patch.Description != nil {
		payload["description"] = map[string]string{"raw": *patch.Description}
	}
	if patch.StartDate != nil {
		payload["startDate"] = nullable(*patch.StartDate)
	}
	if patch.DueDate != nil {
		payload["dueDate"] = nullable(*patch.DueDate)
	}
	if patch.EstimatedHours != nil {
		payload["estimatedTime"] = isoHours(*patch.EstimatedHours)
	}
	if patch.AssigneeID != nil {
		links["assignee"] = href("users", *patch.AssigneeID)
	}
	if patch.StatusID != nil {
		links["status"] = href("statuses", *patch.StatusID)
	}
	if patch.PriorityID != nil {
		links["priority"] = href("priorities", *patch.PriorityID)
	}
	if patch.TypeID != nil {
		links["type"] = href("types", *patch.TypeID)
	}
	if len(links) > 0 {
		payload["_links"] = links
	}

	var wp WorkPackage
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/work_packages/%d", id), nil, payload, &wp); err != nil {
		return nil, err
	}
	return &wp, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// isoHours renders hours as an ISO 8601 duration, e.g. 1.5 -> PT1.5H.
func isoHours(h float64) string {
	return "PT" + strconv.FormatFloat(h, 'f', -1, 64) + "H"
}

// ─── Activities ─────────────────────────────────────────────────────────────

// ListActivities returns the journal of a work package.
func (c *Client) ListActivities(ctx context.Context, workPackageID int) ([]Activity, error) {
	return listOnce[Activity](ctx, c, fmt.Sprintf("/work_packages/%d/activities", workPackageID))
}

// AddComment posts a comment to a work package's activity stream.
func (c *Client) AddComment(ctx context.Context, workPackageID int, comment string) (*Activity, error) {
	payload := map[string]any{"comment": map[string]string{"raw": comment}}
	var a Activity
	path := fmt.Sprintf("/work_packages/%d/activities", workPackageID)
	if err := c.do(ctx, http.MethodPost, path, nil, payload, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ─── Relations ──────────────────────────────────────────────────────────────

// ListRelations returns the relations of a work package.
func (c *Client) ListRelations(ctx context.Context, workPackageID int) ([]Relation, error) {
	return listOnce[Relation](ctx, c, fmt.Sprintf("/work_packages/%d/relations", workPackageID))
}

// CreateRelation links in.FromID to in.ToID.
func (c *Client) CreateRelation(ctx context.Context, in NewRelation) (*Relation, error) {
	payload := map[string]any{
		"type":   in.Type,
		"_links": map[string]Link{"to": href("work_packages", in.ToID)},
	}
	if in.Description != "" {
		payload["description"] = in.Description
	}
	if in.Lag != 0 {
		payload["lag"] = in.Lag
	}

	var r Relation
	path := fmt.Sprintf("/work_packages/%d/relations", in.FromID)
	if err := c.do(ctx, http.MethodPost, path, nil, payload, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// DeleteRelation removes a relation.
func (c *Client) DeleteRelation(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/relations/%d", id), nil, nil, nil)
}

// ─── Users and memberships ──────────────────────────────────────────────────

// ListUsers fetches one page of users. filters is encoded filter JSON or
// empty.
func (c *Client) ListUsers(ctx context.Context, filters string, pageSize, offset int) (*Collection[User], error) {
	params := url.Values{}
	if filters != "" {
		params.Set("filters", filters)
	}
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	params.Set("pageSize", strconv.Itoa(pageSize))
	params.Set("offset", strconv.Itoa(offset))

	var col Collection[User]
	if err := c.do(ctx, http.MethodGet, "/users", params, nil, &col); err != nil {
		return nil, err
	}
	return &col, nil
}

// GetUser fetches one user.
func (c *Client) GetUser(ctx context.Context, id int) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/users/%d", id), nil, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ListMemberships returns the memberships of a project.
func (c *Client) ListMemberships(ctx context.Context, projectID int) ([]Membership, error) {
	return collectAll[Membership](ctx, c, fmt.Sprintf("/projects/%d/memberships", projectID), nil)
}

// ─── Reference data ─────────────────────────────────────────────────────────

// ListTypes returns all work package types.
func (c *Client) ListTypes(ctx context.Context) ([]Type, error) {
	return listOnce[Type](ctx, c, "/types")
}

// ListStatuses returns all work package statuses.
func (c *Client) ListStatuses(ctx context.Context) ([]Status, error) {
	return listOnce[Status](ctx, c, "/statuses")
}

// ListPriorities returns all work package priorities.
func (c *Client) ListPriorities(ctx context.Context) ([]Priority, error) {
	return listOnce[Priority](ctx, c, "/priorities")
}
