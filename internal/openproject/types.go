package openproject

// ─── Root ───────────────────────────────────────────────────────────────────

// Root is the API root document, used as a connection check.
type Root struct {
	CoreVersion  string `json:"coreVersion"`
	InstanceName string `json:"instanceName"`
}

// ─── Projects ───────────────────────────────────────────────────────────────

// Project is a tracker project.
type Project struct {
	ID          int         `json:"id"`
	Identifier  string      `json:"identifier"`
	Name        string      `json:"name"`
	Active      bool        `json:"active"`
	Public      bool        `json:"public"`
	Description Formattable `json:"description"`
	CreatedAt   string      `json:"createdAt"`
	UpdatedAt   string      `json:"updatedAt"`
	Links       struct {
		Self   Link `json:"self"`
		Parent Link `json:"parent"`
		Status Link `json:"status"`
	} `json:"_links"`
}

// NewProject is the create payload.
type NewProject struct {
	Name        string
	Identifier  string
	Description string
	ParentID    int
}

// ─── Work packages ──────────────────────────────────────────────────────────

// WorkPackage is a tracker work item.
type WorkPackage struct {
	ID             int         `json:"id"`
	LockVersion    *int        `json:"lockVersion"`
	Subject        string      `json:"subject"`
	Description    Formattable `json:"description"`
	StartDate      string      `json:"startDate"`
	DueDate        string      `json:"dueDate"`
	EstimatedTime  string      `json:"estimatedTime"`
	PercentageDone *int        `json:"percentageDone"`
	DoneRatio      *int        `json:"doneRatio"`
	CreatedAt      string      `json:"createdAt"`
	UpdatedAt      string      `json:"updatedAt"`
	Links          struct {
		Self        Link `json:"self"`
		Project     Link `json:"project"`
		Type        Link `json:"type"`
		Status      Link `json:"status"`
		Priority    Link `json:"priority"`
		Assignee    Link `json:"assignee"`
		Responsible Link `json:"responsible"`
		Author      Link `json:"author"`
		Parent      Link `json:"parent"`
	} `json:"_links"`
}

// Progress returns percentageDone, falling back to the older doneRatio.
func (wp WorkPackage) Progress() int {
	switch {
	case wp.PercentageDone != nil:
		return *wp.PercentageDone
	case wp.DoneRatio != nil:
		return *wp.DoneRatio
	default:
		return 0
	}
}

// NewWorkPackage is the create payload. Zero ids and empty strings are
// left out of the request.
type NewWorkPackage struct {
	ProjectID      int
	Subject        string
	Description    string
	TypeID         int
	StatusID       int
	PriorityID     int
	AssigneeID     int
	ParentID       int
	StartDate      string
	DueDate        string
	EstimatedHours float64
}

// WorkPackagePatch is a partial update. Nil fields are not sent.
type WorkPackagePatch struct {
	Subject        *string
	Description    *string
	StartDate      *string
	DueDate        *string
	AssigneeID     *int
	StatusID       *int
	PriorityID     *int
	TypeID         *int
	EstimatedHours *float64
}

// IsEmpty reports whether the patch changes nothing.
func (p WorkPackagePatch) IsEmpty() bool {
	return p.Subject == nil && p.Description == nil && p.StartDate == nil &&
		p.DueDate == nil && p.AssigneeID == nil && p.StatusID == nil &&
		p.PriorityID == nil && p.TypeID == nil && p.EstimatedHours == nil
}

// Query is the search request for the work package collection. Filters
// and SortBy are already-encoded JSON; an empty Filters is omitted.
type Query struct {
	Filters  string
	SortBy   string
	PageSize int
	Offset   int
}

// ─── Relations ──────────────────────────────────────────────────────────────

// Relation links two work packages.
type Relation struct {
	ID          int    `json:"id"`
	Type        string `json:"type"`
	ReverseType string `json:"reverseType"`
	Description string `json:"description"`
	Lag         int    `json:"lag"`
	Links       struct {
		From Link `json:"from"`
		To   Link `json:"to"`
	} `json:"_links"`
}

// NewRelation is the create payload.
type NewRelation struct {
	FromID      int
	ToID        int
	Type        string
	Description string
	Lag         int
}

// ─── Activities ─────────────────────────────────────────────────────────────

// Activity is one journal entry of a work package.
type Activity struct {
	ID        int           `json:"id"`
	Version   int           `json:"version"`
	Comment   Formattable   `json:"comment"`
	Details   []Formattable `json:"details"`
	CreatedAt string        `json:"createdAt"`
	Links     struct {
		User Link `json:"user"`
	} `json:"_links"`
}

// ─── Users and memberships ──────────────────────────────────────────────────

// User is a tracker principal.
type User struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Login     string `json:"login"`
	Status    string `json:"status"`
	Language  string `json:"language"`
	Admin     bool   `json:"admin"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// Membership is a principal's role assignment in a project.
type Membership struct {
	ID        int    `json:"id"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
	Links     struct {
		Principal Link   `json:"principal"`
		Project   Link   `json:"project"`
		Roles     []Link `json:"roles"`
	} `json:"_links"`
}

// ─── Reference data ─────────────────────────────────────────────────────────

// Type is a work package type.
type Type struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	Position    int    `json:"position"`
	IsDefault   bool   `json:"isDefault"`
	IsMilestone bool   `json:"isMilestone"`
}

// Status is a work package status.
type Status struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Color      string `json:"color"`
	Position   int    `json:"position"`
	IsDefault  bool   `json:"isDefault"`
	IsClosed   bool   `json:"isClosed"`
	IsReadonly bool   `json:"isReadonly"`
}

// Priority is a work package priority.
type Priority struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	Position  int    `json:"position"`
	IsDefault bool   `json:"isDefault"`
	IsActive  bool   `json:"isActive"`
}
