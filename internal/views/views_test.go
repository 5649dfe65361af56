package views

import (
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/HendryAvila/openproject-mcp/internal/openproject"
)

type linker struct{}

func (linker) WorkPackageURL(id int) string { return "https://op.test/work_packages/" + strconv.Itoa(id) }
func (linker) ProjectURL(p openproject.Project) string {
	return "https://op.test/projects/" + p.Identifier
}

func wp(id int, status openproject.Link, assignee openproject.Link, due string) openproject.WorkPackage {
	w := openproject.WorkPackage{ID: id, Subject: "Item", DueDate: due}
	w.Links.Project = openproject.Link{Href: "/api/v3/projects/3", Title: "Apollo"}
	w.Links.Status = status
	w.Links.Assignee = assignee
	return w
}

var (
	statusNew      = openproject.Link{Href: "/api/v3/statuses/1", Title: "New"}
	statusProgress = openproject.Link{Href: "/api/v3/statuses/7", Title: "In progress"}
	statusClosed   = openproject.Link{Href: "/api/v3/statuses/12", Title: "Closed"}
	statusRejected = openproject.Link{Href: "/api/v3/statuses/14", Title: "Rejected"}
	ada            = openproject.Link{Href: "/api/v3/users/5", Title: "Ada Lovelace"}
	nobody         = openproject.Link{}
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"cut here", 3, "cut..."},
		{"über lang", 4, "über..."},
		{"unlimited", 0, "unlimited"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestNewWorkPackage(t *testing.T) {
	w := wp(42, statusNew, nobody, "")
	w.Description = openproject.Formattable{Raw: "A long description"}

	got := NewWorkPackage(w, linker{}, 6)
	if got.Assignee != Unassigned || got.AssigneeID != 0 {
		t.Errorf("assignee = %q/%d", got.Assignee, got.AssigneeID)
	}
	if got.Description != "A long..." {
		t.Errorf("description = %q", got.Description)
	}
	if got.Type != Unknown || got.ProjectID != 3 || got.StatusID != 1 {
		t.Errorf("links = %+v", got)
	}
	if got.URL != "https://op.test/work_packages/42" {
		t.Errorf("url = %q", got.URL)
	}

	w.Links.Assignee = openproject.Link{Href: "/api/v3/users/9"}
	if got := NewWorkPackage(w, linker{}, 0); got.Assignee != Unknown || got.AssigneeID != 9 {
		t.Errorf("untitled assignee = %q/%d", got.Assignee, got.AssigneeID)
	}
}

func TestSummarize(t *testing.T) {
	wps := []openproject.WorkPackage{
		wp(1, statusNew, ada, "2025-01-10"),
		wp(2, statusClosed, nobody, ""),
		wp(3, statusNew, nobody, ""),
	}

	s := Summarize(wps, nil)
	if s.Total != 3 || s.WithDates != 1 || s.Assigned != 1 || s.Unassigned != 2 || !s.GanttReady {
		t.Errorf("summary = %+v", s)
	}
	if diff := cmp.Diff(map[string]int{"New": 2, "Closed": 1}, s.StatusBreakdown); diff != "" {
		t.Errorf("breakdown mismatch (-want +got):\n%s", diff)
	}
	if s.Open != nil || s.Closed != nil {
		t.Error("open/closed should be unset without closed statuses")
	}

	s = Summarize(wps, map[int]bool{12: true})
	if s.Open == nil || *s.Open != 2 || *s.Closed != 1 {
		t.Errorf("open/closed = %v/%v", s.Open, s.Closed)
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil, map[int]bool{})
	if s.Total != 0 || s.GanttReady || s.StatusBreakdown == nil {
		t.Errorf("summary = %+v", s)
	}
	if s.Open == nil || *s.Open != 0 {
		t.Errorf("open = %v, want 0", s.Open)
	}
}

func TestWorkloadOf(t *testing.T) {
	other := wp(5, statusProgress, ada, "2025-01-01")
	other.Links.Project = openproject.Link{Href: "/api/v3/projects/4", Title: "Gemini"}

	wps := []openproject.WorkPackage{
		wp(1, statusProgress, ada, "2025-03-01"),
		wp(2, statusClosed, ada, "2025-01-01"),
		wp(3, statusNew, nobody, "2025-01-01"),
		wp(4, statusRejected, ada, ""),
		other,
	}

	want := []Workload{
		{Assignee: "Ada Lovelace", Total: 4, InProgress: 2, Completed: 1, Overdue: 1, Projects: []int{3, 4}},
		{Assignee: Unassigned, Total: 1, Overdue: 1, Projects: []int{3}},
	}
	got := WorkloadOf(wps, nil, "2025-02-01")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("workload mismatch (-want +got):\n%s", diff)
	}

	// With known closed statuses the title heuristic is not used.
	got = WorkloadOf(wps, map[int]bool{14: true}, "2025-02-01")
	if got[0].Completed != 1 || got[0].Overdue != 2 {
		t.Errorf("with closed ids = %+v", got[0])
	}
}
