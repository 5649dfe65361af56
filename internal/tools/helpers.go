// Package tools implements the MCP tool handlers for OpenProject.
//
// Each tool follows the same shape:
//   - a struct holding its dependencies, injected via NewXTool
//   - Definition() returns the mcp.Tool schema
//   - Handle() validates arguments, calls the API and returns a result
//
// Domain failures are returned as error results carrying the JSON wire
// form of the error (see errs.ToWire) with a nil Go error, so the agent
// always gets a machine-readable code.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/HendryAvila/openproject-mcp/internal/errs"
	"github.com/HendryAvila/openproject-mcp/internal/openproject"
	"github.com/HendryAvila/openproject-mcp/internal/validate"
	"github.com/mark3labs/mcp-go/mcp"
)

// API is the subset of *openproject.Client the tools call.
type API interface {
	Ping(ctx context.Context) (*openproject.Root, error)
	BaseURL() string
	ListProjects(ctx context.Context) ([]openproject.Project, error)
	GetProject(ctx context.Context, id int) (*openproject.Project, error)
	CreateProject(ctx context.Context, in openproject.NewProject) (*openproject.Project, error)
	ListProjectWorkPackages(ctx context.Context, projectID int) ([]openproject.WorkPackage, error)
	GetWorkPackage(ctx context.Context, id int) (*openproject.WorkPackage, error)
	CreateWorkPackage(ctx context.Context, in openproject.NewWorkPackage) (*openproject.WorkPackage, error)
	UpdateWorkPackage(ctx context.Context, id int, patch openproject.WorkPackagePatch) (*openproject.WorkPackage, error)
	ListActivities(ctx context.Context, workPackageID int) ([]openproject.Activity, error)
	AddComment(ctx context.Context, workPackageID int, comment string) (*openproject.Activity, error)
	ListRelations(ctx context.Context, workPackageID int) ([]openproject.Relation, error)
	CreateRelation(ctx context.Context, in openproject.NewRelation) (*openproject.Relation, error)
	DeleteRelation(ctx context.Context, id int) error
	ListUsers(ctx context.Context, filters string, pageSize, offset int) (*openproject.Collection[openproject.User], error)
	ListMemberships(ctx context.Context, projectID int) ([]openproject.Membership, error)
	WorkPackageURL(id int) string
	ProjectURL(p openproject.Project) string
}

// --- Results ---

// jsonResult renders v as indented JSON text.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errorResult converts err into an error result with its wire payload.
func errorResult(err error) *mcp.CallToolResult {
	data, mErr := json.MarshalIndent(errs.ToWire(err), "", "  ")
	if mErr != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultError(string(data))
}

// --- Arguments ---

// args reads tool arguments and collects every type violation into one
// ValidationError. JSON numbers arrive as float64; numeric strings are
// accepted too since some clients send them.
type args struct {
	raw map[string]any
	v   *errs.ValidationError
}

func newArgs(req mcp.CallToolRequest) *args {
	raw := req.GetArguments()
	if raw == nil {
		raw = map[string]any{}
	}
	return &args{raw: raw, v: &errs.ValidationError{}}
}

// Err returns the collected violations, or nil.
func (a *args) Err() error { return a.v.Err() }

// mergeUnreported adds the violations of other whose field has no
// violation yet. An argument of the wrong type is read as absent, so a
// second complaint about it would only repeat the first.
func (a *args) mergeUnreported(other *errs.ValidationError) {
	if other == nil {
		return
	}
	seen := make(map[string]bool, len(a.v.Fields))
	for _, f := range a.v.Fields {
		seen[f.Field] = true
	}
	for _, f := range other.Fields {
		if !seen[f.Field] {
			a.v.Fields = append(a.v.Fields, f)
		}
	}
}

// has reports whether key was sent with a non-null value.
func (a *args) has(key string) bool {
	v, ok := a.raw[key]
	return ok && v != nil
}

func (a *args) fail(key, msg, expected string, actual any) {
	a.v.Add(key, msg, expected, fmt.Sprint(actual))
}

// Int returns key as an integer, or 0 when absent.
func (a *args) Int(key string) int {
	if !a.has(key) {
		return 0
	}
	n, ok := toInt(a.raw[key])
	if !ok {
		a.fail(key, "must be an integer", "integer", a.raw[key])
		return 0
	}
	return n
}

// ID returns key as a positive integer and reports it when missing.
func (a *args) ID(key string) int {
	if !a.has(key) {
		a.v.Add(key, "is required", "> 0", "")
		return 0
	}
	n, ok := toInt(a.raw[key])
	if !ok || n <= 0 {
		a.fail(key, "must be a positive integer", "> 0", a.raw[key])
		return 0
	}
	return n
}

// OptID is ID for optional keys: absent yields 0 without a violation.
func (a *args) OptID(key string) int {
	if !a.has(key) {
		return 0
	}
	return a.ID(key)
}

// OptInt returns a pointer to key's integer, nil when absent.
func (a *args) OptInt(key string) *int {
	if !a.has(key) {
		return nil
	}
	n, ok := toInt(a.raw[key])
	if !ok {
		a.fail(key, "must be an integer", "integer", a.raw[key])
		return nil
	}
	return &n
}

// OptFloat returns a pointer to key's number, nil when absent.
func (a *args) OptFloat(key string) *float64 {
	if !a.has(key) {
		return nil
	}
	f, ok := toFloat(a.raw[key])
	if !ok {
		a.fail(key, "must be a number", "number", a.raw[key])
		return nil
	}
	return &f
}

// String returns key trimmed, or "" when absent.
func (a *args) String(key string) string {
	if !a.has(key) {
		return ""
	}
	s, ok := a.raw[key].(string)
	if !ok {
		a.fail(key, "must be a string", "string", a.raw[key])
		return ""
	}
	return strings.TrimSpace(s)
}

// RequiredString is String that reports a blank value.
func (a *args) RequiredString(key string) string {
	s := a.String(key)
	if s == "" && (!a.has(key) || isString(a.raw[key])) {
		a.v.Add(key, "is required", "non-empty string", "")
	}
	return s
}

// OptString returns a pointer to key's string, nil when absent. An empty
// string is kept: for updates it means "clear".
func (a *args) OptString(key string) *string {
	if !a.has(key) {
		return nil
	}
	s := a.String(key)
	if !isString(a.raw[key]) {
		return nil
	}
	return &s
}

// Date is String constrained to YYYY-MM-DD.
func (a *args) Date(key string) string {
	s := a.String(key)
	if s != "" && !validate.IsDate(s) {
		a.fail(key, "must be a calendar date", "YYYY-MM-DD", s)
	}
	return s
}

// OptDate is OptString constrained to YYYY-MM-DD or empty.
func (a *args) OptDate(key string) *string {
	p := a.OptString(key)
	if p != nil && *p != "" && !validate.IsDate(*p) {
		a.fail(key, "must be a calendar date", "YYYY-MM-DD", *p)
	}
	return p
}

// Email is RequiredString constrained to an e-mail address.
func (a *args) Email(key string) string {
	s := a.RequiredString(key)
	if s != "" && !validate.IsEmail(s) {
		a.fail(key, "must be an e-mail address", "email", s)
	}
	return s
}

// Bool returns key as a boolean, or def when absent.
func (a *args) Bool(key string, def bool) bool {
	if !a.has(key) {
		return def
	}
	switch v := a.raw[key].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err == nil {
			return b
		}
	}
	a.fail(key, "must be a boolean", "true or false", a.raw[key])
	return def
}

// IntList accepts a JSON array of integers or a comma-separated string.
func (a *args) IntList(key string) []int {
	if !a.has(key) {
		return nil
	}
	var items []any
	switch v := a.raw[key].(type) {
	case []any:
		items = v
	case []int:
		return append([]int(nil), v...)
	case []float64:
		for _, f := range v {
			items = append(items, f)
		}
	case string:
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
	default:
		a.fail(key, "must be a list of integers", "array of integers", a.raw[key])
		return nil
	}

	out := make([]int, 0, len(items))
	for i, it := range items {
		n, ok := toInt(it)
		if !ok {
			a.fail(fmt.Sprintf("%s[%d]", key, i), "must be an integer", "integer", it)
			continue
		}
		out = append(out, n)
	}
	return out
}

// StringList accepts a JSON array of strings or a comma-separated string.
func (a *args) StringList(key string) []string {
	if !a.has(key) {
		return nil
	}
	switch v := a.raw[key].(type) {
	case []string:
		return trimAll(v)
	case string:
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(v))
		for i, it := range v {
			s, ok := it.(string)
			if !ok {
				a.fail(fmt.Sprintf("%s[%d]", key, i), "must be a string", "string", it)
				continue
			}
			out = append(out, strings.TrimSpace(s))
		}
		return out
	default:
		a.fail(key, "must be a list of strings", "array of strings", a.raw[key])
		return nil
	}
}

func trimAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.TrimSpace(s)
	}
	return out
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toInt(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}
