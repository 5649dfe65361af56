package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCodeOf(t *testing.T) {
	transport := &TransportError{Method: "GET", Path: "/types", Status: 503, Details: []string{"maintenance"}}
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, ""},
		{"plain", errors.New("boom"), CodeInternal},
		{"validation", &ValidationError{Fields: []FieldError{{Field: "page_size"}}}, CodeValidation},
		{"compilation", &CompilationError{Field: "status"}, CodeCompilation},
		{"not found", &NotFoundError{Resource: "user", Key: "x"}, CodeNotFound},
		{"transport", transport, CodeTransport},
		{"wrapped transport", fmt.Errorf("listing: %w", transport), CodeTransport},
		{"cache load over transport", &CacheLoadError{Key: "types", Err: transport}, CodeCacheLoad},
		{"cache load over not found", &CacheLoadError{Key: "types", Err: &NotFoundError{Resource: "type"}}, CodeCacheLoad},
		{"wrapped cache load", fmt.Errorf("refdata: %w", &CacheLoadError{Key: "types", Err: transport}), CodeCacheLoad},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToWire_CacheLoadCarriesTransportStatus(t *testing.T) {
	err := &CacheLoadError{Key: "types", Err: &TransportError{Method: "GET", Path: "/types", Status: 503, Details: []string{"maintenance"}}}
	got := ToWire(err)
	want := Wire{Code: CodeCacheLoad, Message: err.Error(), Status: 503, Details: []string{"maintenance"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("wire (-want +got):\n%s", diff)
	}
}

func TestValidationError_ErrIsNilWhenEmpty(t *testing.T) {
	var nilErr *ValidationError
	if nilErr.Err() != nil {
		t.Error("nil receiver reported an error")
	}
	v := &ValidationError{}
	if v.Err() != nil {
		t.Error("empty error reported an error")
	}
	v.Merge(nil)
	v.Add("offset", "must be >= 0", ">= 0", "-1")
	if CodeOf(v.Err()) != CodeValidation {
		t.Errorf("err = %v", v.Err())
	}
}
