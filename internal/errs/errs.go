// Package errs defines the error taxonomy shared by the filter, cache and
// query layers, and its machine-readable wire form for tool results.
//
// Every error that reaches the tool boundary is converted with ToWire so
// the calling agent gets a stable code plus the offending fields instead of
// prose only.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Code is the stable, machine-facing error class.
type Code string

const (
	CodeValidation  Code = "validation_error"
	CodeCompilation Code = "compilation_error"
	CodeNotFound    Code = "not_found"
	CodeTransport   Code = "transport_error"
	CodeCacheLoad   Code = "cache_load_error"
	CodeInternal    Code = "internal_error"
)

// FieldError describes one offending input parameter.
type FieldError struct {
	Field    string `json:"field"`
	Message  string `json:"message"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
}

func (f FieldError) String() string {
	if f.Actual != "" {
		return fmt.Sprintf("%s: %s (got %q)", f.Field, f.Message, f.Actual)
	}
	return fmt.Sprintf("%s: %s", f.Field, f.Message)
}

// --- ValidationError ---

// ValidationError aggregates every input violation found before compilation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return fmt.Sprintf("invalid parameters (%d): %s", len(e.Fields), strings.Join(parts, "; "))
}

// Add appends a violation.
func (e *ValidationError) Add(field, message, expected, actual string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message, Expected: expected, Actual: actual})
}

// Merge appends all violations of other. A nil other is ignored.
func (e *ValidationError) Merge(other *ValidationError) {
	if other == nil {
		return
	}
	e.Fields = append(e.Fields, other.Fields...)
}

// Err returns nil when no violation was recorded, so builders can end
// with `return v.Err()`.
func (e *ValidationError) Err() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// --- CompilationError ---

// CompilationError reports a filter combination that cannot be compiled,
// e.g. two criteria on the same field.
type CompilationError struct {
	Field   string
	Message string
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("cannot compile filter on %q: %s", e.Field, e.Message)
}

// --- NotFoundError ---

// NotFoundError reports a lookup that matched nothing.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.Key)
}

// --- TransportError ---

// TransportError is a network or HTTP failure talking to the tracker.
// Status is zero when no response was received.
type TransportError struct {
	Method  string
	Path    string
	Status  int
	Message string
	Details []string
	Err     error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Method, e.Path)
	if e.Status != 0 {
		fmt.Fprintf(&b, " returned %d", e.Status)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *TransportError) Unwrap() error { return e.Err }

// --- CacheLoadError ---

// CacheLoadError wraps a loader failure. All waiters coalesced on the same
// load receive the same *CacheLoadError value.
type CacheLoadError struct {
	Key string
	Err error
}

func (e *CacheLoadError) Error() string {
	return fmt.Sprintf("loading %q: %v", e.Key, e.Err)
}

func (e *CacheLoadError) Unwrap() error { return e.Err }

// --- Wire form ---

// Wire is the JSON payload returned to the agent on failure.
type Wire struct {
	Code    Code         `json:"code"`
	Message string       `json:"message"`
	Status  int          `json:"status,omitempty"`
	Fields  []FieldError `json:"fields,omitempty"`
	Details []string     `json:"details,omitempty"`
}

// CodeOf classifies err. Wrapped errors are unwrapped and the first match
// in ToWire's order wins. A CacheLoadError is always cache_load_error; a
// wrapped TransportError only contributes its status and details.
func CodeOf(err error) Code {
	return ToWire(err).Code
}

// ToWire converts any error into its wire payload.
func ToWire(err error) Wire {
	if err == nil {
		return Wire{}
	}

	var (
		verr *ValidationError
		cerr *CompilationError
		nerr *NotFoundError
		terr *TransportError
		lerr *CacheLoadError
	)
	switch {
	case errors.As(err, &verr):
		return Wire{Code: CodeValidation, Message: err.Error(), Fields: verr.Fields}
	case errors.As(err, &cerr):
		return Wire{
			Code:    CodeCompilation,
			Message: err.Error(),
			Fields:  []FieldError{{Field: cerr.Field, Message: cerr.Message}},
		}
	case errors.As(err, &lerr):
		w := Wire{Code: CodeCacheLoad, Message: err.Error()}
		if errors.As(lerr.Err, &terr) {
			w.Status = terr.Status
			w.Details = terr.Details
		}
		return w
	case errors.As(err, &nerr):
		return Wire{Code: CodeNotFound, Message: err.Error()}
	case errors.As(err, &terr):
		return Wire{Code: CodeTransport, Message: err.Error(), Status: terr.Status, Details: terr.Details}
	default:
		return Wire{Code: CodeInternal, Message: err.Error()}
	}
}
