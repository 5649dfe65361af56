package resources

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/openproject-mcp/internal/errs"
	"github.com/HendryAvila/openproject-mcp/internal/openproject"
	"github.com/HendryAvila/openproject-mcp/internal/openproject/optest"
	"github.com/HendryAvila/openproject-mcp/internal/refdata"
)

type readFunc func(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error)

func newHandler(t *testing.T) (*Handler, *optest.Server) {
	t.Helper()
	fake := optest.New(t)
	client := fake.Client(t)
	ref := refdata.NewLoader(client, refdata.NewCache(time.Minute, nil), nil)
	return NewHandler(client, ref), fake
}

// read calls fn and decodes the single JSON document it returns.
func read(t *testing.T, fn readFunc, uri string, args map[string]any) map[string]json.RawMessage {
	t.Helper()
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	req.Params.Arguments = args
	contents, err := fn(context.Background(), req)
	if err != nil {
		t.Fatalf("read %s: %v", uri, err)
	}
	if len(contents) != 1 {
		t.Fatalf("got %d contents, want 1", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("contents type = %T", contents[0])
	}
	if tc.URI != uri || tc.MIMEType != "application/json" {
		t.Errorf("uri/mime = %q/%q", tc.URI, tc.MIMEType)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(tc.Text), &doc); err != nil {
		t.Fatalf("not JSON: %v\n%s", err, tc.Text)
	}
	return doc
}

func intField(t *testing.T, doc map[string]json.RawMessage, key string) int {
	t.Helper()
	var n int
	if err := json.Unmarshal(doc[key], &n); err != nil {
		t.Fatalf("%s: %v", key, err)
	}
	return n
}

func errorCode(t *testing.T, doc map[string]json.RawMessage) errs.Code {
	t.Helper()
	var w errs.Wire
	if err := json.Unmarshal(doc["error"], &w); err != nil {
		t.Fatalf("no error payload: %v", err)
	}
	return w.Code
}

func TestHandleProjects(t *testing.T) {
	h, _ := newHandler(t)
	doc := read(t, h.HandleProjects, "openproject://projects", nil)
	if intField(t, doc, "total") != 1 {
		t.Errorf("total = %s", doc["total"])
	}
}

func TestHandleReferenceData(t *testing.T) {
	h, _ := newHandler(t)
	doc := read(t, h.HandleReferenceData, "openproject://reference-data", nil)
	for _, k := range []string{"types", "statuses", "priorities", "cache"} {
		if _, ok := doc[k]; !ok {
			t.Errorf("missing %q", k)
		}
	}

	h, fake := newHandler(t)
	fake.Lock()
	fake.Fail["GET /priorities"] = http.StatusServiceUnavailable
	fake.Unlock()
	doc = read(t, h.HandleReferenceData, "openproject://reference-data", nil)
	if code := errorCode(t, doc); code != errs.CodeCacheLoad && code != errs.CodeTransport {
		t.Errorf("code = %s", code)
	}
}

func TestHandleProject(t *testing.T) {
	h, fake := newHandler(t)
	fake.SeedWorkPackages(4)

	doc := read(t, h.HandleProject, "openproject://project/3", map[string]any{"project_id": []string{"3"}})
	if intField(t, doc, "work_packages_count") != 4 {
		t.Errorf("count = %s", doc["work_packages_count"])
	}
	var p struct {
		Identifier string `json:"identifier"`
	}
	if err := json.Unmarshal(doc["project"], &p); err != nil || p.Identifier != "apollo" {
		t.Errorf("project = %s", doc["project"])
	}
}

func TestHandleWorkPackages_FallsBackToURI(t *testing.T) {
	h, fake := newHandler(t)
	fake.SeedWorkPackages(2)

	doc := read(t, h.HandleWorkPackages, "openproject://work-packages/3", nil)
	if intField(t, doc, "total") != 2 || intField(t, doc, "project_id") != 3 {
		t.Errorf("doc = %v", doc)
	}
}

func TestHandleWorkPackage(t *testing.T) {
	h, fake := newHandler(t)
	fake.SeedWorkPackages(1)

	doc := read(t, h.HandleWorkPackage, "openproject://work-package/1", map[string]any{"work_package_id": "1"})
	var wp struct {
		ID      int    `json:"id"`
		Subject string `json:"subject"`
	}
	if err := json.Unmarshal(doc["work_package"], &wp); err != nil || wp.ID != 1 || wp.Subject != "Item 1" {
		t.Errorf("work_package = %s", doc["work_package"])
	}

	doc = read(t, h.HandleWorkPackage, "openproject://work-package/77", nil)
	if code := errorCode(t, doc); code != errs.CodeTransport {
		t.Errorf("code = %s, want transport_error", code)
	}
}

func TestHandleRelations(t *testing.T) {
	h, fake := newHandler(t)
	rel := openproject.Relation{ID: 9, Type: "blocks"}
	rel.Links.From = openproject.Link{Href: "/api/v3/work_packages/1", Title: "Item 1"}
	rel.Links.To = openproject.Link{Href: "/api/v3/work_packages/2", Title: "Item 2"}
	fake.Lock()
	fake.Relations[1] = []openproject.Relation{rel}
	fake.Unlock()

	doc := read(t, h.HandleRelations, "openproject://work-package-relations/1", nil)
	if intField(t, doc, "total") != 1 || intField(t, doc, "work_package_id") != 1 {
		t.Errorf("doc = %v", doc)
	}
}

func TestIDParam_Invalid(t *testing.T) {
	h, fake := newHandler(t)
	for _, uri := range []string{"openproject://work-package/abc", "openproject://work-package/0"} {
		doc := read(t, h.HandleWorkPackage, uri, nil)
		if code := errorCode(t, doc); code != errs.CodeValidation {
			t.Errorf("%s: code = %s, want validation_error", uri, code)
		}
	}
	if n := len(fake.Requests()); n != 0 {
		t.Errorf("invalid ids made %d requests", n)
	}
}

func TestDefinitions(t *testing.T) {
	h := NewHandler(nil, nil)
	if got := h.ProjectsResource().URI; got != "openproject://projects" {
		t.Errorf("projects uri = %q", got)
	}
	if got := h.ReferenceDataResource().URI; got != "openproject://reference-data" {
		t.Errorf("reference-data uri = %q", got)
	}
	for _, tmpl := range []mcp.ResourceTemplate{
		h.ProjectTemplate(), h.WorkPackagesTemplate(), h.WorkPackageTemplate(), h.RelationsTemplate(),
	} {
		if tmpl.URITemplate == nil || tmpl.Name == "" {
			t.Errorf("incomplete template: %+v", tmpl)
		}
	}
}
