// Package filter compiles structured search parameters into the tracker's
// filter wire format.
//
// A Set is an ordered list of criteria combined with AND; the values of
// one criterion are combined with OR. A field appears at most once per
// Set. The wire form is deterministic: the same Set always serializes to
// the same bytes.
package filter

import (
	"fmt"
	"slices"
)

// ─── Fields ─────────────────────────────────────────────────────────────────

// Field is a filterable work package attribute with structured support.
type Field string

const (
	FieldProject   Field = "project"
	FieldStatus    Field = "status"
	FieldAssignee  Field = "assignee"
	FieldType      Field = "type"
	FieldPriority  Field = "priority"
	FieldSubject   Field = "subject"
	FieldCreatedAt Field = "createdAt"
	FieldDueDate   Field = "dueDate"
)

// Kind decides which operators and value formats a field accepts.
type Kind int

const (
	KindID Kind = iota
	KindDate
	KindDateTime
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindID:
		return "identifier"
	case KindDate:
		return "date"
	case KindDateTime:
		return "datetime"
	case KindText:
		return "text"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

var fieldKinds = map[Field]Kind{
	FieldProject:   KindID,
	FieldStatus:    KindID,
	FieldAssignee:  KindID,
	FieldType:      KindID,
	FieldPriority:  KindID,
	FieldSubject:   KindText,
	FieldCreatedAt: KindDateTime,
	FieldDueDate:   KindDate,
}

// KindOf returns the kind of f and whether f is a known field.
func KindOf(f Field) (Kind, bool) {
	k, ok := fieldKinds[f]
	return k, ok
}

// aliases maps alternate spellings seen in raw filters to the canonical
// field, so a custom filter cannot sneak in a second criterion on a field
// the structured parameters already cover.
var aliases = map[string]Field{
	"project":        FieldProject,
	"project_id":     FieldProject,
	"projectId":      FieldProject,
	"status":         FieldStatus,
	"status_id":      FieldStatus,
	"statusId":       FieldStatus,
	"assignee":       FieldAssignee,
	"assigned_to":    FieldAssignee,
	"assigned_to_id": FieldAssignee,
	"assignedTo":     FieldAssignee,
	"type":           FieldType,
	"type_id":        FieldType,
	"typeId":         FieldType,
	"priority":       FieldPriority,
	"priority_id":    FieldPriority,
	"priorityId":     FieldPriority,
	"subject":        FieldSubject,
	"createdAt":      FieldCreatedAt,
	"created_at":     FieldCreatedAt,
	"dueDate":        FieldDueDate,
	"due_date":       FieldDueDate,
}

// canonical returns the key used for duplicate detection.
func canonical(name string) string {
	if f, ok := aliases[name]; ok {
		return string(f)
	}
	return name
}

// ─── Operators ──────────────────────────────────────────────────────────────

// Operator is a tracker filter operator.
type Operator string

const (
	OpEquals      Operator = "="
	OpNotEquals   Operator = "!"
	OpContains    Operator = "~"
	OpNotContains Operator = "!~"
	OpBetween     Operator = "<>d"
	OpAny         Operator = "*"
	OpNone        Operator = "!*"
)

// IsUnary reports whether op takes no values.
func (op Operator) IsUnary() bool {
	return op == OpAny || op == OpNone
}

var kindOperators = map[Kind][]Operator{
	KindID:       {OpEquals, OpNotEquals, OpAny, OpNone},
	KindDate:     {OpBetween, OpAny, OpNone},
	KindDateTime: {OpBetween, OpAny, OpNone},
	KindText:     {OpContains, OpNotContains, OpEquals, OpAny, OpNone},
}

// Allows reports whether op is valid for fields of kind k.
func (k Kind) Allows(op Operator) bool {
	return slices.Contains(kindOperators[k], op)
}
