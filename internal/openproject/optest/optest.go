// Package optest provides an in-memory fake of the OpenProject API for
// tests.
package optest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/HendryAvila/openproject-mcp/internal/openproject"
	"github.com/go-chi/chi/v5"
)

// APIKey is the key the fake accepts.
const APIKey = "0123456789abcdef0123456789abcdef"

// Request is a recorded call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   map[string]any
	Host   string
}

// Server is a fake OpenProject instance. Exported fields may be edited
// between calls; guard concurrent edits with Lock/Unlock.
type Server struct {
	*httptest.Server

	sync.Mutex
	Types        []openproject.Type
	Statuses     []openproject.Status
	Priorities   []openproject.Priority
	Users        []openproject.User
	Projects     []openproject.Project
	WorkPackages []openproject.WorkPackage
	Relations    map[int][]openproject.Relation
	Activities   map[int][]openproject.Activity
	Memberships  map[int][]openproject.Membership

	// Fail maps "METHOD /path" to a status code returned with a HAL error.
	Fail map[string]int

	requests []Request
	nextID   int
}

// New starts a fake seeded with reference data and closes it on cleanup.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		Types: []openproject.Type{
			{ID: 1, Name: "Task", Position: 1, IsDefault: true},
			{ID: 2, Name: "Milestone", Position: 2, IsMilestone: true},
			{ID: 7, Name: "Bug", Position: 3},
		},
		Statuses: []openproject.Status{
			{ID: 1, Name: "New", Position: 1, IsDefault: true},
			{ID: 7, Name: "In progress", Position: 2},
			{ID: 12, Name: "Closed", Position: 3, IsClosed: true},
		},
		Priorities: []openproject.Priority{
			{ID: 8, Name: "Normal", Position: 2, IsDefault: true, IsActive: true},
			{ID: 9, Name: "High", Position: 3, IsActive: true},
		},
		Users: []openproject.User{
			{ID: 5, Name: "Ada Lovelace", Email: "ada@example.com", Login: "ada", Status: "active"},
			{ID: 6, Name: "Alan Turing", Email: "Alan.Turing@example.com", Login: "alan", Status: "active"},
		},
		Projects: []openproject.Project{
			{ID: 3, Identifier: "apollo", Name: "Apollo", Active: true, Description: openproject.Formattable{Raw: "Moon"}},
		},
		Relations:   map[int][]openproject.Relation{},
		Activities:  map[int][]openproject.Activity{},
		Memberships: map[int][]openproject.Membership{},
		Fail:        map[string]int{},
		nextID:      1000,
	}

	r := chi.NewRouter()
	r.Route("/api/v3", func(r chi.Router) {
		r.Use(s.record, s.auth, s.failures)
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, openproject.Root{CoreVersion: "14.6.1", InstanceName: "fake"})
		})
		r.Get("/types", listHandler(s, func() []openproject.Type { return s.Types }))
		r.Get("/statuses", listHandler(s, func() []openproject.Status { return s.Statuses }))
		r.Get("/priorities", listHandler(s, func() []openproject.Priority { return s.Priorities }))
		r.Get("/projects", listHandler(s, func() []openproject.Project { return s.Projects }))
		r.Post("/projects", s.createProject)
		r.Get("/projects/{id}", s.getProject)
		r.Get("/projects/{id}/work_packages", s.projectWorkPackages)
		r.Get("/projects/{id}/memberships", s.memberships)
		r.Get("/work_packages", listHandler(s, func() []openproject.WorkPackage { return s.WorkPackages }))
		r.Post("/work_packages", s.createWorkPackage)
		r.Get("/work_packages/{id}", s.getWorkPackage)
		r.Patch("/work_packages/{id}", s.patchWorkPackage)
		r.Get("/work_packages/{id}/activities", s.activities)
		r.Post("/work_packages/{id}/activities", s.addComment)
		r.Get("/work_packages/{id}/relations", s.relations)
		r.Post("/work_packages/{id}/relations", s.createRelation)
		r.Delete("/relations/{id}", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
		r.Get("/users", s.users)
		r.Get("/users/{id}", s.getUser)
	})

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// Client returns a client pointed at the fake.
func (s *Server) Client(t testing.TB) *openproject.Client {
	t.Helper()
	c, err := openproject.New(openproject.Config{BaseURL: s.URL, APIKey: APIKey})
	if err != nil {
		t.Fatalf("openproject.New: %v", err)
	}
	return c
}

// Requests returns a copy of the recorded calls.
func (s *Server) Requests() []Request {
	s.Lock()
	defer s.Unlock()
	return append([]Request(nil), s.requests...)
}

// Hits counts recorded calls matching method and path.
func (s *Server) Hits(method, path string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// Last returns the most recent call matching method and path.
func (s *Server) Last(method, path string) (Request, bool) {
	reqs := s.Requests()
	for i := len(reqs) - 1; i >= 0; i-- {
		if reqs[i].Method == method && reqs[i].Path == path {
			return reqs[i], true
		}
	}
	return Request{}, false
}

// SeedWorkPackages replaces the work packages with n items, ids 1..n, in
// project 3.
func (s *Server) SeedWorkPackages(n int) {
	s.Lock()
	defer s.Unlock()
	s.WorkPackages = make([]openproject.WorkPackage, n)
	for i := range n {
		wp := openproject.WorkPackage{ID: i + 1, Subject: fmt.Sprintf("Item %d", i+1)}
		lv := 0
		wp.LockVersion = &lv
		wp.Links.Project = openproject.Link{Href: "/api/v3/projects/3", Title: "Apollo"}
		wp.Links.Status = openproject.Link{Href: "/api/v3/statuses/1", Title: "New"}
		wp.Links.Type = openproject.Link{Href: "/api/v3/types/1", Title: "Task"}
		wp.Links.Priority = openproject.Link{Href: "/api/v3/priorities/8", Title: "Normal"}
		s.WorkPackages[i] = wp
	}
}

// ─── Middleware ─────────────────────────────────────────────────────────────

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := Request{Method: r.Method, Path: strings.TrimPrefix(r.URL.Path, "/api/v3"), Query: r.URL.Query(), Host: r.Host}
		if rec.Path == "" {
			rec.Path = "/"
		}
		if r.Body != nil && r.ContentLength != 0 {
			_ = json.NewDecoder(r.Body).Decode(&rec.Body)
		}
		s.Lock()
		s.requests = append(s.requests, rec)
		s.Unlock()
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), bodyKey{}, rec.Body)))
	})
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "apikey" || pass != APIKey {
			writeError(w, http.StatusUnauthorized, "Unauthenticated", "You did not provide the correct credentials.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) failures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + strings.TrimPrefix(r.URL.Path, "/api/v3")
		s.Lock()
		status, ok := s.Fail[key]
		s.Unlock()
		if ok {
			writeError(w, status, "InternalServerError", "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ─── Handlers ───────────────────────────────────────────────────────────────

func listHandler[T any](s *Server, items func() []T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		all := append([]T(nil), items()...)
		s.Unlock()
		writePage(w, r, all)
	}
}

func writePage[T any](w http.ResponseWriter, r *http.Request, all []T) {
	size := len(all)
	offset := 0
	if v := r.URL.Query().Get("pageSize"); v != "" {
		size, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		offset, _ = strconv.Atoi(v)
	}
	page := []T{}
	if offset < len(all) {
		end := min(offset+size, len(all))
		page = all[offset:end]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"_type":     "Collection",
		"total":     len(all),
		"count":     len(page),
		"pageSize":  size,
		"offset":    offset,
		"_embedded": map[string]any{"elements": page},
	})
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	s.Lock()
	defer s.Unlock()
	for _, p := range s.Projects {
		if p.ID == id {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	writeError(w, http.StatusNotFound, "NotFound", "The requested resource could not be found.")
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	body := bodyOf(r)
	name, _ := body["name"].(string)
	if name == "" {
		writeMultiError(w, http.StatusUnprocessableEntity, "Name can't be blank.")
		return
	}
	s.Lock()
	s.nextID++
	p := openproject.Project{ID: s.nextID, Name: name, Active: true}
	p.Identifier, _ = body["identifier"].(string)
	if d, ok := body["description"].(map[string]any); ok {
		p.Description.Raw, _ = d["raw"].(string)
	}
	s.Projects = append(s.Projects, p)
	s.Unlock()
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) projectWorkPackages(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	s.Lock()
	var out []openproject.WorkPackage
	for _, wp := range s.WorkPackages {
		if wp.Links.Project.ID() == id {
			out = append(out, wp)
		}
	}
	s.Unlock()
	writePage(w, r, out)
}

func (s *Server) memberships(w http.ResponseWriter, r *http.Request) {
	s.Lock()
	out := append([]openproject.Membership(nil), s.Memberships[pathID(r)]...)
	s.Unlock()
	writePage(w, r, out)
}

func (s *Server) getWorkPackage(w http.ResponseWriter, r *http.Request) {
	s.Lock()
	defer s.Unlock()
	if wp := s.findWP(pathID(r)); wp != nil {
		writeJSON(w, http.StatusOK, wp)
		return
	}
	writeError(w, http.StatusNotFound, "NotFound", "The requested resource could not be found.")
}

func (s *Server) createWorkPackage(w http.ResponseWriter, r *http.Request) {
	body := bodyOf(r)
	subject, _ := body["subject"].(string)
	s.Lock()
	s.nextID++
	wp := openproject.WorkPackage{ID: s.nextID, Subject: subject}
	lv := 0
	wp.LockVersion = &lv
	wp.StartDate, _ = body["startDate"].(string)
	wp.DueDate, _ = body["dueDate"].(string)
	if links, ok := body["_links"].(map[string]any); ok {
		wp.Links.Project = linkFrom(links["project"])
		wp.Links.Status = linkFrom(links["status"])
		wp.Links.Assignee = linkFrom(links["assignee"])
	}
	s.WorkPackages = append(s.WorkPackages, wp)
	s.Unlock()
	writeJSON(w, http.StatusCreated, wp)
}

func (s *Server) patchWorkPackage(w http.ResponseWriter, r *http.Request) {
	body := bodyOf(r)
	s.Lock()
	defer s.Unlock()
	wp := s.findWP(pathID(r))
	if wp == nil {
		writeError(w, http.StatusNotFound, "NotFound", "The requested resource could not be found.")
		return
	}
	lv, _ := body["lockVersion"].(float64)
	if wp.LockVersion == nil || int(lv) != *wp.LockVersion {
		writeError(w, http.StatusConflict, "UpdateConflict", "The resource you are about to edit was changed in the meantime.")
		return
	}
	if v, ok := body["subject"].(string); ok {
		wp.Subject = v
	}
	if d, ok := body["description"].(map[string]any); ok {
		wp.Description.Raw, _ = d["raw"].(string)
	}
	if v, ok := body["dueDate"].(string); ok {
		wp.DueDate = v
	}
	if v, ok := body["startDate"].(string); ok {
		wp.StartDate = v
	}
	if links, ok := body["_links"].(map[string]any); ok {
		if l, ok := links["assignee"]; ok {
			wp.Links.Assignee = linkFrom(l)
		}
		if l, ok := links["status"]; ok {
			wp.Links.Status = linkFrom(l)
		}
	}
	next := *wp.LockVersion + 1
	wp.LockVersion = &next
	writeJSON(w, http.StatusOK, wp)
}

func (s *Server) activities(w http.ResponseWriter, r *http.Request) {
	s.Lock()
	out := append([]openproject.Activity(nil), s.Activities[pathID(r)]...)
	s.Unlock()
	writePage(w, r, out)
}

func (s *Server) addComment(w http.ResponseWriter, r *http.Request) {
	body := bodyOf(r)
	id := pathID(r)
	s.Lock()
	s.nextID++
	a := openproject.Activity{ID: s.nextID, Version: len(s.Activities[id]) + 1}
	if c, ok := body["comment"].(map[string]any); ok {
		a.Comment.Raw, _ = c["raw"].(string)
	}
	s.Activities[id] = append(s.Activities[id], a)
	s.Unlock()
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) relations(w http.ResponseWriter, r *http.Request) {
	s.Lock()
	out := append([]openproject.Relation(nil), s.Relations[pathID(r)]...)
	s.Unlock()
	writePage(w, r, out)
}

func (s *Server) createRelation(w http.ResponseWriter, r *http.Request) {
	body := bodyOf(r)
	from := pathID(r)
	s.Lock()
	s.nextID++
	rel := openproject.Relation{ID: s.nextID}
	rel.Type, _ = body["type"].(string)
	rel.Description, _ = body["description"].(string)
	if lag, ok := body["lag"].(float64); ok {
		rel.Lag = int(lag)
	}
	rel.Links.From = openproject.Link{Href: fmt.Sprintf("/api/v3/work_packages/%d", from)}
	if links, ok := body["_links"].(map[string]any); ok {
		rel.Links.To = linkFrom(links["to"])
	}
	s.Relations[from] = append(s.Relations[from], rel)
	s.Unlock()
	writeJSON(w, http.StatusCreated, rel)
}

func (s *Server) users(w http.ResponseWriter, r *http.Request) {
	s.Lock()
	all := append([]openproject.User(nil), s.Users...)
	s.Unlock()

	if raw := r.URL.Query().Get("filters"); raw != "" {
		var filters []map[string]struct {
			Operator string   `json:"operator"`
			Values   []string `json:"values"`
		}
		if err := json.Unmarshal([]byte(raw), &filters); err != nil {
			writeError(w, http.StatusBadRequest, "InvalidQuery", "Filters are not valid JSON.")
			return
		}
		for _, f := range filters {
			if crit, ok := f["email"]; ok && len(crit.Values) > 0 {
				var match []openproject.User
				for _, u := range all {
					if strings.EqualFold(u.Email, crit.Values[0]) {
						match = append(match, u)
					}
				}
				all = match
			}
		}
	}
	writePage(w, r, all)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	s.Lock()
	defer s.Unlock()
	for _, u := range s.Users {
		if u.ID == id {
			writeJSON(w, http.StatusOK, u)
			return
		}
	}
	writeError(w, http.StatusNotFound, "NotFound", "The requested resource could not be found.")
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func (s *Server) findWP(id int) *openproject.WorkPackage {
	for i := range s.WorkPackages {
		if s.WorkPackages[i].ID == id {
			return &s.WorkPackages[i]
		}
	}
	return nil
}

type bodyKey struct{}

func bodyOf(r *http.Request) map[string]any {
	if b, ok := r.Context().Value(bodyKey{}).(map[string]any); ok && b != nil {
		return b
	}
	return map[string]any{}
}

func linkFrom(v any) openproject.Link {
	m, ok := v.(map[string]any)
	if !ok {
		return openproject.Link{}
	}
	h, _ := m["href"].(string)
	return openproject.Link{Href: h}
}

func pathID(r *http.Request) int {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/hal+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, id, msg string) {
	writeJSON(w, status, map[string]any{
		"_type":           "Error",
		"errorIdentifier": "urn:openproject-org:api:v3:errors:" + id,
		"message":         msg,
	})
}

func writeMultiError(w http.ResponseWriter, status int, msgs ...string) {
	errors := make([]map[string]any, len(msgs))
	for i, m := range msgs {
		errors[i] = map[string]any{"_type": "Error", "message": m}
	}
	writeJSON(w, status, map[string]any{
		"_type":           "Error",
		"errorIdentifier": "urn:openproject-org:api:v3:errors:MultipleErrors",
		"message":         "Multiple field constraints have been violated.",
		"_embedded":       map[string]any{"errors": errors},
	})
}
