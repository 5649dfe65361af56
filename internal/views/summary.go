package views

import (
	"slices"
	"strings"

	"github.com/HendryAvila/openproject-mcp/internal/openproject"
)

// Summary aggregates the work packages of one project.
type Summary struct {
	Total           int            `json:"total_work_packages"`
	WithDates       int            `json:"work_packages_with_dates"`
	Assigned        int            `json:"assigned_work_packages"`
	Unassigned      int            `json:"unassigned_work_packages"`
	StatusBreakdown map[string]int `json:"status_breakdown"`
	GanttReady      bool           `json:"gantt_ready"`

	// Open and Closed are only set when the closed statuses are known.
	Open   *int `json:"open_work_packages,omitempty"`
	Closed *int `json:"closed_work_packages,omitempty"`
}

// Summarize counts wps. closed holds the ids of closed statuses; nil
// leaves Open and Closed unset.
func Summarize(wps []openproject.WorkPackage, closed map[int]bool) Summary {
	s := Summary{Total: len(wps), StatusBreakdown: map[string]int{}}
	var nClosed int
	for _, wp := range wps {
		if wp.StartDate != "" || wp.DueDate != "" {
			s.WithDates++
		}
		if wp.Links.Assignee.IsSet() {
			s.Assigned++
		}
		s.StatusBreakdown[wp.Links.Status.TitleOr(Unknown)]++
		if closed[wp.Links.Status.ID()] {
			nClosed++
		}
	}
	s.Unassigned = s.Total - s.Assigned
	s.GanttReady = s.WithDates > 0
	if closed != nil {
		open := s.Total - nClosed
		s.Open, s.Closed = &open, &nClosed
	}
	return s
}

// Workload is one assignee's share of work across projects.
type Workload struct {
	Assignee   string `json:"assignee"`
	Total      int    `json:"total_tasks"`
	InProgress int    `json:"in_progress"`
	Completed  int    `json:"completed"`
	Overdue    int    `json:"overdue"`
	Projects   []int  `json:"projects"`
}

// WorkloadOf groups wps by assignee. today is a YYYY-MM-DD date; open work
// packages due before it count as overdue. closed works as in Summarize;
// when nil, status titles containing "closed" or "done" count as complete.
func WorkloadOf(wps []openproject.WorkPackage, closed map[int]bool, today string) []Workload {
	byName := map[string]*Workload{}
	var order []string
	for _, wp := range wps {
		name := assignee(wp.Links.Assignee)
		w, ok := byName[name]
		if !ok {
			w = &Workload{Assignee: name, Projects: []int{}}
			byName[name] = w
			order = append(order, name)
		}
		w.Total++
		if pid := wp.Links.Project.ID(); pid != 0 && !slices.Contains(w.Projects, pid) {
			w.Projects = append(w.Projects, pid)
		}

		status := strings.ToLower(wp.Links.Status.Title)
		done := closed[wp.Links.Status.ID()]
		if closed == nil {
			done = strings.Contains(status, "closed") || strings.Contains(status, "done")
		}
		switch {
		case done:
			w.Completed++
		case strings.Contains(status, "progress") || strings.Contains(status, "active"):
			w.InProgress++
		}
		if !done && wp.DueDate != "" && wp.DueDate < today {
			w.Overdue++
		}
	}

	out := make([]Workload, len(order))
	for i, name := range order {
		out[i] = *byName[name]
	}
	return out
}
