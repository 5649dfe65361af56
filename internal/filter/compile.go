package filter

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/HendryAvila/openproject-mcp/internal/errs"
	"github.com/HendryAvila/openproject-mcp/internal/openproject"
	"github.com/HendryAvila/openproject-mcp/internal/refdata"
)

// Input holds the structured search parameters after validation. Zero
// values mean "not given". Each id/name pair is alternative: giving both
// for the same field is a CompilationError.
type Input struct {
	ProjectID       int
	StatusIDs       []int
	StatusNames     []string
	AssigneeID      int
	AssigneeEmail   string
	TypeIDs         []int
	TypeNames       []string
	PriorityIDs     []int
	PriorityNames   []string
	SubjectContains string
	CreatedAfter    string
	CreatedBefore   string
	DueAfter        string
	DueBefore       string
	CustomFilters   string
}

// Resolver turns human-given values into ids. *refdata.Loader satisfies it.
type Resolver interface {
	ResolveUserByEmail(ctx context.Context, email string) (openproject.User, error)
	ResolveNames(ctx context.Context, k refdata.Kind, names []string) ([]int, error)
}

// Compiler builds filter sets. It only talks to the network through the
// resolver, and only when the input carries names or an e-mail.
type Compiler struct {
	resolver Resolver
}

// NewCompiler returns a Compiler. r may be nil when callers never pass
// names or e-mails.
func NewCompiler(r Resolver) *Compiler {
	return &Compiler{resolver: r}
}

// Compile turns in into a Set. Structured criteria come first in a fixed
// field order, followed by custom criteria in the order given. Nothing is
// partially applied: any error leaves no set.
func (c *Compiler) Compile(ctx context.Context, in Input) (Set, error) {
	var set Set
	add := func(f Field, op Operator, values ...string) error {
		cr, err := NewCriterion(f, op, values...)
		if err != nil {
			return err
		}
		return set.Add(cr)
	}

	if in.ProjectID != 0 {
		if err := add(FieldProject, OpEquals, itoa(in.ProjectID)); err != nil {
			return Set{}, err
		}
	}

	statuses, err := c.ids(ctx, FieldStatus, refdata.KindStatuses, in.StatusIDs, in.StatusNames)
	if err != nil {
		return Set{}, err
	}
	if len(statuses) > 0 {
		if err := add(FieldStatus, OpEquals, statuses...); err != nil {
			return Set{}, err
		}
	}

	assignee, err := c.assignee(ctx, in.AssigneeID, in.AssigneeEmail)
	if err != nil {
		return Set{}, err
	}
	if assignee != "" {
		if err := add(FieldAssignee, OpEquals, assignee); err != nil {
			return Set{}, err
		}
	}

	types, err := c.ids(ctx, FieldType, refdata.KindTypes, in.TypeIDs, in.TypeNames)
	if err != nil {
		return Set{}, err
	}
	if len(types) > 0 {
		if err := add(FieldType, OpEquals, types...); err != nil {
			return Set{}, err
		}
	}

	priorities, err := c.ids(ctx, FieldPriority, refdata.KindPriorities, in.PriorityIDs, in.PriorityNames)
	if err != nil {
		return Set{}, err
	}
	if len(priorities) > 0 {
		if err := add(FieldPriority, OpEquals, priorities...); err != nil {
			return Set{}, err
		}
	}

	if s := strings.TrimSpace(in.SubjectContains); s != "" {
		if err := add(FieldSubject, OpContains, s); err != nil {
			return Set{}, err
		}
	}

	if in.CreatedAfter != "" || in.CreatedBefore != "" {
		low, high, err := DateTimeBounds(in.CreatedAfter, in.CreatedBefore)
		if err != nil {
			return Set{}, &errs.CompilationError{Field: string(FieldCreatedAt), Message: err.Error()}
		}
		if err := add(FieldCreatedAt, OpBetween, low, high); err != nil {
			return Set{}, err
		}
	}

	if in.DueAfter != "" || in.DueBefore != "" {
		if err := add(FieldDueDate, OpBetween, in.DueAfter, in.DueBefore); err != nil {
			return Set{}, err
		}
	}

	custom, err := ParseCustom(in.CustomFilters)
	if err != nil {
		return Set{}, err
	}
	for _, cr := range custom {
		if err := set.Add(cr); err != nil {
			return Set{}, err
		}
	}

	return set, nil
}

// ids returns the deduplicated id strings for one reference-data field,
// resolving names when they are given instead of ids.
func (c *Compiler) ids(ctx context.Context, f Field, k refdata.Kind, ids []int, names []string) ([]string, error) {
	if len(ids) > 0 && len(names) > 0 {
		return nil, &errs.CompilationError{
			Field:   string(f),
			Message: fmt.Sprintf("give either %s ids or %s names, not both", f, f),
		}
	}
	if len(names) > 0 {
		if c.resolver == nil {
			return nil, fmt.Errorf("resolving %s names: no resolver configured", f)
		}
		resolved, err := c.resolver.ResolveNames(ctx, k, names)
		if err != nil {
			return nil, err
		}
		ids = resolved
	}

	out := make([]string, 0, len(ids))
	for _, id := range ids {
		s := itoa(id)
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (c *Compiler) assignee(ctx context.Context, id int, email string) (string, error) {
	email = strings.TrimSpace(email)
	if id != 0 && email != "" {
		return "", &errs.CompilationError{
			Field:   string(FieldAssignee),
			Message: "give either assignee_id or assignee_email, not both",
		}
	}
	if email == "" {
		if id == 0 {
			return "", nil
		}
		return itoa(id), nil
	}
	if c.resolver == nil {
		return "", errors.New("resolving assignee e-mail: no resolver configured")
	}
	u, err := c.resolver.ResolveUserByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	return itoa(u.ID), nil
}

// DateTimeBounds widens calendar dates to a whole-day datetime range:
// after becomes its first second and before its last second, both UTC.
// An empty bound stays empty.
func DateTimeBounds(after, before string) (low, high string, err error) {
	if after != "" {
		d, err := time.Parse(DateLayout, after)
		if err != nil {
			return "", "", fmt.Errorf("%q is not a YYYY-MM-DD date", after)
		}
		low = d.UTC().Format("2006-01-02") + "T00:00:00Z"
	}
	if before != "" {
		d, err := time.Parse(DateLayout, before)
		if err != nil {
			return "", "", fmt.Errorf("%q is not a YYYY-MM-DD date", before)
		}
		high = d.UTC().Format("2006-01-02") + "T23:59:59Z"
	}
	return low, high, nil
}

func itoa(n int) string { return strconv.Itoa(n) }
