// Package views projects OpenProject API documents into the flat JSON
// shapes returned by tools, resources and prompts.
package views

import (
	"unicode/utf8"

	"github.com/HendryAvila/openproject-mcp/internal/openproject"
)

// Placeholders for unset links.
const (
	Unknown    = "Unknown"
	Unassigned = "Unassigned"
)

// Linker builds browser links. *openproject.Client satisfies it.
type Linker interface {
	WorkPackageURL(id int) string
	ProjectURL(p openproject.Project) string
}

// Truncate shortens s to at most n runes, appending "..." when cut.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}

// --- Projects ---

type Project struct {
	ID          int    `json:"id"`
	Identifier  string `json:"identifier,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
	Public      bool   `json:"public"`
	Status      string `json:"status,omitempty"`
	ParentID    int    `json:"parent_id,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
	URL         string `json:"url"`
}

func NewProject(p openproject.Project, l Linker) Project {
	return Project{
		ID:          p.ID,
		Identifier:  p.Identifier,
		Name:        p.Name,
		Description: p.Description.Raw,
		Active:      p.Active,
		Public:      p.Public,
		Status:      p.Links.Status.Title,
		ParentID:    p.Links.Parent.ID(),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
		URL:         l.ProjectURL(p),
	}
}

// --- Work packages ---

type WorkPackage struct {
	ID             int    `json:"id"`
	Subject        string `json:"subject"`
	Description    string `json:"description"`
	ProjectID      int    `json:"project_id"`
	Project        string `json:"project"`
	Type           string `json:"type"`
	Status         string `json:"status"`
	StatusID       int    `json:"status_id,omitempty"`
	Priority       string `json:"priority"`
	Assignee       string `json:"assignee"`
	AssigneeID     int    `json:"assignee_id,omitempty"`
	ParentID       int    `json:"parent_id,omitempty"`
	StartDate      string `json:"start_date,omitempty"`
	DueDate        string `json:"due_date,omitempty"`
	EstimatedTime  string `json:"estimated_time,omitempty"`
	PercentageDone int    `json:"percentage_done"`
	LockVersion    *int   `json:"lock_version,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
	UpdatedAt      string `json:"updated_at,omitempty"`
	URL            string `json:"url"`
}

// NewWorkPackage projects wp. descLimit caps the description in runes;
// zero keeps it whole.
func NewWorkPackage(wp openproject.WorkPackage, l Linker, descLimit int) WorkPackage {
	ln := wp.Links
	return WorkPackage{
		ID:             wp.ID,
		Subject:        wp.Subject,
		Description:    Truncate(wp.Description.Raw, descLimit),
		ProjectID:      ln.Project.ID(),
		Project:        ln.Project.TitleOr(Unknown),
		Type:           ln.Type.TitleOr(Unknown),
		Status:         ln.Status.TitleOr(Unknown),
		StatusID:       ln.Status.ID(),
		Priority:       ln.Priority.TitleOr(Unknown),
		Assignee:       assignee(ln.Assignee),
		AssigneeID:     ln.Assignee.ID(),
		ParentID:       ln.Parent.ID(),
		StartDate:      wp.StartDate,
		DueDate:        wp.DueDate,
		EstimatedTime:  wp.EstimatedTime,
		PercentageDone: wp.Progress(),
		LockVersion:    wp.LockVersion,
		CreatedAt:      wp.CreatedAt,
		UpdatedAt:      wp.UpdatedAt,
		URL:            l.WorkPackageURL(wp.ID),
	}
}

func NewWorkPackages(wps []openproject.WorkPackage, l Linker, descLimit int) []WorkPackage {
	out := make([]WorkPackage, len(wps))
	for i, wp := range wps {
		out[i] = NewWorkPackage(wp, l, descLimit)
	}
	return out
}

// assignee distinguishes an unset link from one without a title.
func assignee(l openproject.Link) string {
	if !l.IsSet() {
		return Unassigned
	}
	return l.TitleOr(Unknown)
}

// --- Relations ---

// RelationEnd is one side of a relation.
type RelationEnd struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

type Relation struct {
	ID          int         `json:"id"`
	Type        string      `json:"type"`
	ReverseType string      `json:"reverse_type,omitempty"`
	Description string      `json:"description"`
	Lag         int         `json:"lag"`
	From        RelationEnd `json:"from_work_package"`
	To          RelationEnd `json:"to_work_package"`
}

func NewRelation(r openproject.Relation) Relation {
	return Relation{
		ID:          r.ID,
		Type:        r.Type,
		ReverseType: r.ReverseType,
		Description: r.Description,
		Lag:         r.Lag,
		From:        RelationEnd{ID: r.Links.From.ID(), Title: r.Links.From.TitleOr(Unknown)},
		To:          RelationEnd{ID: r.Links.To.ID(), Title: r.Links.To.TitleOr(Unknown)},
	}
}

// --- Activities ---

type Activity struct {
	ID        int      `json:"id"`
	Version   int      `json:"version"`
	Comment   string   `json:"comment"`
	Details   []string `json:"details,omitempty"`
	User      string   `json:"user"`
	UserID    int      `json:"user_id,omitempty"`
	CreatedAt string   `json:"created_at,omitempty"`
}

func NewActivity(a openproject.Activity) Activity {
	out := Activity{
		ID:        a.ID,
		Version:   a.Version,
		Comment:   a.Comment.Raw,
		User:      a.Links.User.TitleOr(Unknown),
		UserID:    a.Links.User.ID(),
		CreatedAt: a.CreatedAt,
	}
	for _, d := range a.Details {
		if d.Raw != "" {
			out.Details = append(out.Details, d.Raw)
		}
	}
	return out
}

// --- Users ---

type User struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Login     string `json:"login,omitempty"`
	Status    string `json:"status,omitempty"`
	Language  string `json:"language,omitempty"`
	Admin     bool   `json:"admin"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func NewUser(u openproject.User) User {
	return User{
		ID:        u.ID,
		Name:      u.Name,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Login:     u.Login,
		Status:    u.Status,
		Language:  u.Language,
		Admin:     u.Admin,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// Member is a project membership.
type Member struct {
	ID          int      `json:"id"`
	PrincipalID int      `json:"principal_id"`
	Principal   string   `json:"principal"`
	Roles       []string `json:"roles"`
	CreatedAt   string   `json:"created_at,omitempty"`
}

func NewMember(m openproject.Membership) Member {
	out := Member{
		ID:          m.ID,
		PrincipalID: m.Links.Principal.ID(),
		Principal:   m.Links.Principal.TitleOr(Unknown),
		Roles:       make([]string, 0, len(m.Links.Roles)),
		CreatedAt:   m.CreatedAt,
	}
	for _, r := range m.Links.Roles {
		out.Roles = append(out.Roles, r.TitleOr(Unknown))
	}
	return out
}
