package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/openproject-mcp/internal/config"
	"github.com/HendryAvila/openproject-mcp/internal/logger"
	"github.com/HendryAvila/openproject-mcp/internal/openproject/optest"
)

func testConfig(t *testing.T, fake *optest.Server) config.Config {
	t.Helper()
	cfg := config.Default(nil)
	cfg.OpenProjectURL = fake.URL
	cfg.APIKey = optest.APIKey
	cfg.Timeout = config.Duration(5 * time.Second)
	cfg.CacheTTL = config.Duration(time.Minute)
	cfg.AuditDB = filepath.Join(t.TempDir(), "audit.db")
	return cfg
}

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *optest.Server) {
	t.Helper()
	fake := optest.New(t)
	cfg := testConfig(t, fake)
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := New(cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	return srv, fake
}

var nextID int

// rpc sends one JSON-RPC request and returns its decoded result.
func rpc(t *testing.T, srv *Server, method string, params any) map[string]any {
	t.Helper()
	nextID++
	msg, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      nextID,
		"method":  method,
		"params":  params,
	})
	require.NoError(t, err)

	resp := srv.MCP.HandleMessage(context.Background(), msg)
	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var out struct {
		Result map[string]any `json:"result"`
		Error  map[string]any `json:"error"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Nil(t, out.Error, "rpc %s failed: %s", method, raw)
	return out.Result
}

func initialize(t *testing.T, srv *Server) {
	t.Helper()
	rpc(t, srv, "initialize", map[string]any{
		"protocolVersion": "2025-03-26",
		"clientInfo":      map[string]any{"name": "test", "version": "0"},
		"capabilities":    map[string]any{},
	})
}

func names(t *testing.T, result map[string]any, key, field string) []string {
	t.Helper()
	items, ok := result[key].([]any)
	require.True(t, ok, "%s missing: %v", key, result)
	var out []string
	for _, it := range items {
		out = append(out, fmt.Sprint(it.(map[string]any)[field]))
	}
	slices.Sort(out)
	return out
}

func TestNew_RegistersEverything(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	initialize(t, srv)

	tools := names(t, rpc(t, srv, "tools/list", map[string]any{}), "tools", "name")
	require.Equal(t, []string{
		"add_work_package_comment",
		"assign_work_package_by_email",
		"create_project",
		"create_work_package",
		"create_work_package_dependency",
		"delete_work_package_relation",
		"get_priorities",
		"get_project_members",
		"get_project_summary",
		"get_projects",
		"get_users",
		"get_work_package",
		"get_work_package_activities",
		"get_work_package_relations",
		"get_work_package_statuses",
		"get_work_package_types",
		"get_work_packages",
		"health_check",
		"recent_tool_calls",
		"refresh_reference_data",
		"search_work_packages",
		"update_work_package",
	}, tools)

	prompts := names(t, rpc(t, srv, "prompts/list", map[string]any{}), "prompts", "name")
	require.Equal(t, []string{
		"project_planning_assistant",
		"project_status_report",
		"team_workload_analysis",
		"work_package_summary",
	}, prompts)

	resources := names(t, rpc(t, srv, "resources/list", map[string]any{}), "resources", "uri")
	require.Equal(t, []string{"openproject://projects", "openproject://reference-data"}, resources)

	templates := names(t, rpc(t, srv, "resources/templates/list", map[string]any{}), "resourceTemplates", "uriTemplate")
	require.Len(t, templates, 4)
}

func TestNew_AuditDisabled(t *testing.T) {
	srv, _ := newTestServer(t, func(c *config.Config) { c.AuditDisabled = true })
	initialize(t, srv)

	tools := names(t, rpc(t, srv, "tools/list", map[string]any{}), "tools", "name")
	require.NotContains(t, tools, "recent_tool_calls")

	// Tools still work through the middleware without a recorder.
	res := rpc(t, srv, "tools/call", map[string]any{"name": "get_projects", "arguments": map[string]any{}})
	require.NotEqual(t, true, res["isError"])
}

func TestNew_AuditUnavailableIsNotFatal(t *testing.T) {
	srv, _ := newTestServer(t, func(c *config.Config) {
		// A directory cannot be opened as a database file.
		c.AuditDB = t.TempDir()
	})
	initialize(t, srv)
	tools := names(t, rpc(t, srv, "tools/list", map[string]any{}), "tools", "name")
	require.NotContains(t, tools, "recent_tool_calls")
}

func TestToolCalls_AreAudited(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	initialize(t, srv)

	rpc(t, srv, "tools/call", map[string]any{"name": "get_projects", "arguments": map[string]any{}})
	bad := rpc(t, srv, "tools/call", map[string]any{
		"name":      "get_work_package",
		"arguments": map[string]any{"work_package_id": "nope"},
	})
	require.Equal(t, true, bad["isError"])

	res := rpc(t, srv, "tools/call", map[string]any{
		"name":      "recent_tool_calls",
		"arguments": map[string]any{"errors_only": true},
	})
	content := res["content"].([]any)
	text := content[0].(map[string]any)["text"].(string)

	var got struct {
		Calls []struct {
			Tool      string `json:"tool"`
			ErrorCode string `json:"error_code"`
		} `json:"calls"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &got))
	require.Len(t, got.Calls, 1)
	require.Equal(t, "get_work_package", got.Calls[0].Tool)
	require.Equal(t, "validation_error", got.Calls[0].ErrorCode)
}

func TestHTTPHandler_Healthz(t *testing.T) {
	srv, fake := newTestServer(t, nil)
	ts := httptest.NewServer(srv.HTTPHandler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	var report map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "healthy", report["status"])

	fake.Lock()
	fake.Fail["GET /"] = http.StatusBadGateway
	fake.Unlock()

	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHTTPHandler_CORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ts := httptest.NewServer(srv.HTTPHandler())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodOptions, ts.URL+MCPPath, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServeHTTP_StopsOnCancel(t *testing.T) {
	srv, _ := newTestServer(t, func(c *config.Config) {
		c.Host = "127.0.0.1"
		c.Port = freePort(t)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ServeHTTP(ctx) }()

	addr := "http://" + srv.cfg.Addr() + "/healthz"
	require.Eventually(t, func() bool {
		resp, err := http.Get(addr)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return true
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "ServeHTTP did not return after cancel")
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
