package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/HendryAvila/openproject-mcp/internal/errs"
	"github.com/HendryAvila/openproject-mcp/internal/filter"
	"github.com/HendryAvila/openproject-mcp/internal/openproject/optest"
	"github.com/HendryAvila/openproject-mcp/internal/refdata"
	"github.com/google/go-cmp/cmp"
)

func ptr[T any](v T) *T { return &v }

func fieldNames(t *testing.T, err error) []string {
	t.Helper()
	var verr *errs.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *errs.ValidationError", err)
	}
	names := make([]string, len(verr.Fields))
	for i, f := range verr.Fields {
		names[i] = f.Field
	}
	sort.Strings(names)
	return names
}

// --- Validation ---

func TestValidate_AcceptsDefaults(t *testing.T) {
	p := Params{}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if diff := cmp.Diff(SortSpec{Field: "id", Direction: "desc"}, p.Sort()); diff != "" {
		t.Errorf("sort (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(PageSpec{Size: 100, Offset: 0}, p.Page()); diff != "" {
		t.Errorf("page (-want +got):\n%s", diff)
	}
}

func TestValidate_ReportsEveryViolation(t *testing.T) {
	p := Params{
		ProjectID:     -1,
		StatusIDs:     []int{1, -2},
		AssigneeEmail: "not-an-email",
		CreatedAfter:  "2024-13-01",
		DueAfter:      "2024-06-01",
		DueBefore:     "2024-05-01",
		CustomFilters: `{"status":{}}`,
		SortBy:        ptr("colour"),
		SortOrder:     ptr("sideways"),
		PageSize:      ptr(0),
		Offset:        ptr(-5),
	}
	got := fieldNames(t, p.Validate())
	want := []string{
		"assignee_email",
		"created_after",
		"custom_filters",
		"due_after",
		"offset",
		"page_size",
		"project_id",
		"sort_by",
		"sort_order",
		"status_ids[1]",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("fields (-want +got):\n%s", diff)
	}
}

func TestViolations_EmptyWhenValid(t *testing.T) {
	v, err := Params{ProjectID: 3, SortBy: ptr("dueDate")}.Violations()
	if err != nil {
		t.Fatalf("Violations: %v", err)
	}
	if v.Err() != nil {
		t.Errorf("violations = %v, want none", v.Err())
	}

	v, err = Params{CustomFilters: "null", PageSize: ptr(0)}.Violations()
	if err != nil {
		t.Fatalf("Violations: %v", err)
	}
	if diff := cmp.Diff([]string{"custom_filters", "page_size"}, fieldNames(t, v.Err())); diff != "" {
		t.Errorf("fields (-want +got):\n%s", diff)
	}
}

func TestValidate_FieldDetails(t *testing.T) {
	err := Params{PageSize: ptr(101), CreatedBefore: "31/01/2024"}.Validate()
	var verr *errs.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *errs.ValidationError", err)
	}

	byField := map[string]errs.FieldError{}
	for _, f := range verr.Fields {
		byField[f.Field] = f
	}
	tests := []struct{ field, expected, actual string }{
		{"page_size", "1..100", "101"},
		{"created_before", "YYYY-MM-DD", "31/01/2024"},
	}
	for _, tt := range tests {
		f := byField[tt.field]
		if f.Expected != tt.expected || f.Actual != tt.actual {
			t.Errorf("%s: expected=%q actual=%q, want %q %q", tt.field, f.Expected, f.Actual, tt.expected, tt.actual)
		}
	}
}

func TestValidate_PageBounds(t *testing.T) {
	tests := []struct {
		name    string
		size    *int
		offset  *int
		wantErr bool
	}{
		{"omitted", nil, nil, false},
		{"min", ptr(1), ptr(0), false},
		{"max", ptr(100), ptr(5000), false},
		{"zero size", ptr(0), nil, true},
		{"too large", ptr(101), nil, true},
		{"negative offset", nil, ptr(-1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Params{PageSize: tt.size, Offset: tt.offset}.Validate()
			switch {
			case tt.wantErr && errs.CodeOf(err) != errs.CodeValidation:
				t.Errorf("err = %v, want a validation error", err)
			case !tt.wantErr && err != nil:
				t.Errorf("Validate: %v", err)
			}
		})
	}
}

func TestValidate_SortDirectionIsCaseInsensitive(t *testing.T) {
	p := Params{SortBy: ptr("dueDate"), SortOrder: ptr("ASC")}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got := p.Sort().Wire(); got != `[["dueDate","asc"]]` {
		t.Errorf("Wire = %s", got)
	}
}

// --- Executor ---

func TestExecute_PagingOverTwelveItems(t *testing.T) {
	fake := optest.New(t)
	fake.SeedWorkPackages(12)
	ex := NewExecutor(fake.Client(t), nil)

	tests := []struct {
		name      string
		page      PageSpec
		wantCount int
		wantMore  bool
		wantFirst int
	}{
		{"first page", PageSpec{Size: 5, Offset: 0}, 5, true, 1},
		{"middle page", PageSpec{Size: 5, Offset: 5}, 5, true, 6},
		{"last page", PageSpec{Size: 5, Offset: 10}, 2, false, 11},
		{"past the end", PageSpec{Size: 5, Offset: 20}, 0, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := ex.Execute(context.Background(), filter.Set{}, SortSpec{Field: "id", Direction: "asc"}, tt.page)
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if env.TotalCount != 12 || env.PageCount != 3 {
				t.Errorf("total = %d, pages = %d; want 12, 3", env.TotalCount, env.PageCount)
			}
			if env.Count != tt.wantCount || len(env.Items) != tt.wantCount {
				t.Fatalf("count = %d, items = %d; want %d", env.Count, len(env.Items), tt.wantCount)
			}
			if env.HasMore != tt.wantMore {
				t.Errorf("HasMore = %v, want %v", env.HasMore, tt.wantMore)
			}
			if env.PageSize != tt.page.Size || env.Offset != tt.page.Offset {
				t.Errorf("page = %d@%d, want %d@%d", env.PageSize, env.Offset, tt.page.Size, tt.page.Offset)
			}
			if tt.wantCount > 0 && env.Items[0].ID != tt.wantFirst {
				t.Errorf("first id = %d, want %d", env.Items[0].ID, tt.wantFirst)
			}

			last, ok := fake.Last("GET", "/work_packages")
			if !ok {
				t.Fatal("no work package request recorded")
			}
			if got := last.Query.Get("pageSize"); got != "5" {
				t.Errorf("pageSize = %s", got)
			}
			if got := last.Query.Get("offset"); got != itoa(tt.page.Offset) {
				t.Errorf("offset = %s, want %d", got, tt.page.Offset)
			}
		})
	}
}

func TestExecute_EmptySetOmitsFilters(t *testing.T) {
	fake := optest.New(t)
	fake.SeedWorkPackages(3)
	ex := NewExecutor(fake.Client(t), nil)

	env, err := ex.Execute(context.Background(), filter.Set{}, SortSpec{Field: "updatedAt", Direction: "desc"}, PageSpec{Size: 10})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !env.AppliedFilters.IsEmpty() {
		t.Errorf("applied filters = %s", env.AppliedFilters)
	}

	last, _ := fake.Last("GET", "/work_packages")
	if last.Query.Has("filters") {
		t.Errorf("filters sent for an empty set: %s", last.Query.Get("filters"))
	}
	if got := last.Query.Get("sortBy"); got != `[["updatedAt","desc"]]` {
		t.Errorf("sortBy = %s", got)
	}

	b, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"appliedFilters":[]`) {
		t.Errorf("envelope = %s", b)
	}
}

func TestExecute_SummarizesItems(t *testing.T) {
	fake := optest.New(t)
	fake.SeedWorkPackages(1)
	long := make([]rune, 250)
	for i := range long {
		long[i] = 'é'
	}
	fake.Lock()
	fake.WorkPackages[0].Description.Raw = string(long)
	fake.WorkPackages[0].DueDate = "2024-07-01"
	fake.Unlock()

	ex := NewExecutor(fake.Client(t), nil)
	env, err := ex.Execute(context.Background(), filter.Set{}, SortSpec{Field: "id", Direction: "asc"}, PageSpec{Size: 1})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(env.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(env.Items))
	}

	it := env.Items[0]
	got := []any{it.ProjectID, it.Type, it.Status, it.Priority, it.Assignee, it.DueDate, it.URL}
	want := []any{3, "Task", "New", "Normal", "Unassigned", "2024-07-01", fake.URL + "/work_packages/1"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("summary (-want +got):\n%s", diff)
	}
	if n := len([]rune(it.Description)); n != 200 {
		t.Errorf("description runes = %d, want 200", n)
	}
}

func TestExecute_RejectsBadSortAndPage(t *testing.T) {
	fake := optest.New(t)
	ex := NewExecutor(fake.Client(t), nil)

	_, err := ex.Execute(context.Background(), filter.Set{}, SortSpec{Field: "colour", Direction: "up"}, PageSpec{Size: 0, Offset: -1})
	if diff := cmp.Diff([]string{"offset", "page_size", "sort_by", "sort_order"}, fieldNames(t, err)); diff != "" {
		t.Errorf("fields (-want +got):\n%s", diff)
	}
	if n := fake.Hits("GET", "/work_packages"); n != 0 {
		t.Errorf("work package requests = %d, want 0", n)
	}
}

func TestExecute_TransportFailure(t *testing.T) {
	fake := optest.New(t)
	fake.Lock()
	fake.Fail["GET /work_packages"] = http.StatusBadGateway
	fake.Unlock()

	ex := NewExecutor(fake.Client(t), nil)
	_, err := ex.Execute(context.Background(), filter.Set{}, SortSpec{Field: "id", Direction: "asc"}, PageSpec{Size: 10})
	var terr *errs.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want *errs.TransportError", err)
	}
	if terr.Status != http.StatusBadGateway {
		t.Errorf("status = %d", terr.Status)
	}
	if n := fake.Hits("GET", "/work_packages"); n != 1 {
		t.Errorf("work package requests = %d, want 1", n)
	}
}

func TestPageCount(t *testing.T) {
	tests := []struct{ total, size, want int }{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{12, 5, 3},
	}
	for _, tt := range tests {
		if got := pageCount(tt.total, tt.size); got != tt.want {
			t.Errorf("pageCount(%d, %d) = %d, want %d", tt.total, tt.size, got, tt.want)
		}
	}
}

// --- Service ---

func newService(t *testing.T) (*Service, *optest.Server) {
	t.Helper()
	fake := optest.New(t)
	client := fake.Client(t)
	loader := refdata.NewLoader(client, refdata.NewCache(time.Minute, nil), nil)
	return NewService(client, loader, nil), fake
}

func TestSearch_InvalidParamsNeverHitTheNetwork(t *testing.T) {
	svc, fake := newService(t)

	_, err := svc.Search(context.Background(), Params{
		StatusNames: []string{"New"},
		DueAfter:    "tomorrow",
	})
	if errs.CodeOf(err) != errs.CodeValidation {
		t.Errorf("err = %v, want a validation error", err)
	}
	if reqs := fake.Requests(); len(reqs) != 0 {
		t.Errorf("requests = %d, want none", len(reqs))
	}
}

func TestSearch_ResolvesNamesAndSendsWire(t *testing.T) {
	svc, fake := newService(t)
	fake.SeedWorkPackages(2)

	env, err := svc.Search(context.Background(), Params{
		ProjectID:     3,
		StatusNames:   []string{"in progress", "Closed"},
		AssigneeEmail: "ada@example.com",
		CreatedAfter:  "2024-01-01",
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	want := `[` +
		`{"project":{"operator":"=","values":["3"]}},` +
		`{"status":{"operator":"=","values":["7","12"]}},` +
		`{"assignee":{"operator":"=","values":["5"]}},` +
		`{"createdAt":{"operator":"<>d","values":["2024-01-01T00:00:00Z",""]}}` +
		`]`
	if got := env.AppliedFilters.String(); got != want {
		t.Errorf("applied filters:\n got %s\nwant %s", got, want)
	}

	last, _ := fake.Last("GET", "/work_packages")
	got := map[string]string{
		"filters":  last.Query.Get("filters"),
		"sortBy":   last.Query.Get("sortBy"),
		"pageSize": last.Query.Get("pageSize"),
	}
	wantQuery := map[string]string{"filters": want, "sortBy": `[["id","desc"]]`, "pageSize": "100"}
	if diff := cmp.Diff(wantQuery, got); diff != "" {
		t.Errorf("query (-want +got):\n%s", diff)
	}
}

func TestSearch_CompilationErrorStopsBeforeQuery(t *testing.T) {
	svc, fake := newService(t)

	_, err := svc.Search(context.Background(), Params{
		ProjectID:     3,
		CustomFilters: `[{"project":{"operator":"=","values":["4"]}}]`,
	})
	if errs.CodeOf(err) != errs.CodeCompilation {
		t.Errorf("err = %v, want a compilation error", err)
	}
	if n := fake.Hits("GET", "/work_packages"); n != 0 {
		t.Errorf("work package requests = %d, want 0", n)
	}
}

func TestSearch_UnknownEmailIsNotFound(t *testing.T) {
	svc, fake := newService(t)

	_, err := svc.Search(context.Background(), Params{AssigneeEmail: "ghost@example.com"})
	if errs.CodeOf(err) != errs.CodeNotFound {
		t.Errorf("err = %v, want not found", err)
	}
	if n := fake.Hits("GET", "/work_packages"); n != 0 {
		t.Errorf("work package requests = %d, want 0", n)
	}
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}
