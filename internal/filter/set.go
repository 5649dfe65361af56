package filter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/HendryAvila/openproject-mcp/internal/errs"
)

// Date layouts accepted and produced.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = time.RFC3339
)

// Criterion is one filter clause. Custom criteria come from the raw escape
// hatch: their field and operator are passed through unchecked.
type Criterion struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Values   []string `json:"values"`
	Custom   bool     `json:"custom,omitempty"`
}

// NewCriterion builds a checked criterion on a known field.
func NewCriterion(f Field, op Operator, values ...string) (Criterion, error) {
	kind, ok := KindOf(f)
	if !ok {
		return Criterion{}, &errs.CompilationError{Field: string(f), Message: "unknown field"}
	}
	if !kind.Allows(op) {
		return Criterion{}, &errs.CompilationError{
			Field:   string(f),
			Message: fmt.Sprintf("operator %q is not valid for %s fields", op, kind),
		}
	}
	if err := checkValues(f, kind, op, values); err != nil {
		return Criterion{}, err
	}
	return Criterion{Field: string(f), Operator: op, Values: slices.Clone(values)}, nil
}

func checkValues(f Field, kind Kind, op Operator, values []string) error {
	fail := func(msg string, args ...any) error {
		return &errs.CompilationError{Field: string(f), Message: fmt.Sprintf(msg, args...)}
	}

	if op.IsUnary() {
		if len(values) != 0 {
			return fail("operator %q takes no values", op)
		}
		return nil
	}
	if len(values) == 0 {
		return fail("operator %q needs at least one value", op)
	}

	if op == OpBetween {
		if len(values) != 2 {
			return fail("operator %q needs exactly two values, got %d", op, len(values))
		}
		if values[0] == "" && values[1] == "" {
			return fail("date range needs at least one bound")
		}
		layout := DateLayout
		if kind == KindDateTime {
			layout = DateTimeLayout
		}
		var bounds [2]time.Time
		for i, v := range values {
			if v == "" {
				continue
			}
			t, err := time.Parse(layout, v)
			if err != nil {
				return fail("value %q is not a valid %s", v, kind)
			}
			bounds[i] = t
		}
		if values[0] != "" && values[1] != "" && bounds[0].After(bounds[1]) {
			return fail("range start %s is after end %s", values[0], values[1])
		}
		return nil
	}

	for _, v := range values {
		switch kind {
		case KindID:
			if n, err := strconv.Atoi(v); err != nil || n <= 0 {
				return fail("value %q is not a positive identifier", v)
			}
		case KindText:
			if v == "" {
				return fail("text value must not be empty")
			}
		}
	}
	return nil
}

// Set is an ordered, AND-combined list of criteria with at most one
// criterion per field. The zero value is an empty set.
type Set struct {
	criteria []Criterion
}

// Add appends c. A second criterion on the same field is rejected with a
// CompilationError naming the field.
func (s *Set) Add(c Criterion) error {
	key := canonical(c.Field)
	for _, existing := range s.criteria {
		if canonical(existing.Field) == key {
			return &errs.CompilationError{
				Field:   c.Field,
				Message: fmt.Sprintf("more than one criterion on field %q", key),
			}
		}
	}
	c.Values = slices.Clone(c.Values)
	s.criteria = append(s.criteria, c)
	return nil
}

// IsEmpty reports whether the set has no criteria. An empty set matches
// everything; it is not the same as a set that matches nothing.
func (s Set) IsEmpty() bool { return len(s.criteria) == 0 }

// Len returns the number of criteria.
func (s Set) Len() int { return len(s.criteria) }

// Criteria returns a copy of the criteria in order.
func (s Set) Criteria() []Criterion {
	out := make([]Criterion, len(s.criteria))
	for i, c := range s.criteria {
		c.Values = slices.Clone(c.Values)
		out[i] = c
	}
	return out
}

// Get returns the criterion on field name, matching aliases.
func (s Set) Get(name string) (Criterion, bool) {
	key := canonical(name)
	for _, c := range s.criteria {
		if canonical(c.Field) == key {
			return c, true
		}
	}
	return Criterion{}, false
}

type wireClause struct {
	Operator Operator `json:"operator"`
	Values   []string `json:"values"`
}

// Wire encodes the set as the tracker's filter JSON:
// [{"<field>":{"operator":"<op>","values":[...]}}, ...]. An empty set
// encodes as [].
func (s Set) Wire() ([]byte, error) {
	out := make([]map[string]wireClause, len(s.criteria))
	for i, c := range s.criteria {
		vals := c.Values
		if vals == nil {
			vals = []string{}
		}
		out[i] = map[string]wireClause{c.Field: {Operator: c.Operator, Values: vals}}
	}
	// "<>d" must reach the tracker unescaped.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return nil, fmt.Errorf("encoding filter set: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// MarshalJSON encodes the set in wire form.
func (s Set) MarshalJSON() ([]byte, error) { return s.Wire() }

// String returns the wire form, for logs.
func (s Set) String() string {
	b, err := s.Wire()
	if err != nil {
		return "<invalid filter set>"
	}
	return string(b)
}
