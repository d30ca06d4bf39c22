package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"KOL-Agent/internal/agent"
	"KOL-Agent/internal/auth"
	"KOL-Agent/internal/mcpserver"
	"KOL-Agent/internal/social"
	"KOL-Agent/internal/storage/mysql"
	"KOL-Agent/internal/task"
)

type feedSource struct{ posts []social.Post }

func (f *feedSource) Platform() social.Platform { return social.PlatformRSS }

func (f *feedSource) Fetch(_ context.Context, limit int) ([]social.Post, error) {
	return f.posts[:min(limit, len(f.posts))], nil
}

type fixture struct {
	handler http.Handler
	store   *task.MemoryStore
	history *mysql.MemoryHistoryRepository
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	history, err := mysql.NewMemoryHistoryRepository(t.TempDir())
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	rss := &feedSource{posts: []social.Post{
		{ID: "1", Source: social.PlatformRSS, Text: "$WIF to the moon"},
		{ID: "2", Source: social.PlatformRSS, Text: "$WIF $BONK"},
	}}
	ag := agent.New(agent.Capabilities{RSS: true}, agent.Dependencies{RSS: rss, History: history})

	store := task.NewMemoryStore()
	queue := task.NewMemoryQueue(16)
	t.Cleanup(func() { _ = queue.Close() })
	tasks := task.NewService(store, queue, 2, task.WithToolCatalog(ag.HasTool))

	opts = append([]Option{
		WithTaskService(tasks),
		WithMCPHandler("", mcpserver.New(ag).HTTPHandler()),
	}, opts...)
	srv := NewServer(":0", ag, opts...)
	return &fixture{handler: srv.Handler(), store: store, history: history}
}

func (f *fixture) do(t *testing.T, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func TestHealthAndTools(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status: got %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/tools", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("tools status: got %d", rec.Code)
	}
	list := decode[struct {
		Tools []agent.Descriptor `json:"tools"`
	}](t, rec)
	if len(list.Tools) != 7 {
		t.Fatalf("unexpected tool count: %d", len(list.Tools))
	}
}

func TestInvokeTool(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/tools/"+agent.ToolScrapeTrending, `{"arguments":{"platform":"rss"}}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("invoke status: got %d body %s", rec.Code, rec.Body.String())
	}
	result := decode[agent.ToolResult](t, rec)
	if result.Tool != agent.ToolScrapeTrending {
		t.Fatalf("unexpected tool: %s", result.Tool)
	}
	var payload struct {
		Trending []struct {
			Symbol string `json:"symbol"`
		} `json:"trending"`
	}
	if err := json.Unmarshal(result.Output, &payload); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(payload.Trending) == 0 || payload.Trending[0].Symbol != "$WIF" {
		t.Fatalf("unexpected trending: %+v", payload.Trending)
	}

	records, err := f.history.ListLatest(context.Background(), mysql.HistoryQuery{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(records) != 1 || records[0].Source != SourceAPI {
		t.Fatalf("unexpected history: %+v", records)
	}
}

func TestInvokeToolErrors(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name   string
		path   string
		body   string
		status int
		msg    string
	}{
		{"unknown tool", "/api/v1/tools/nope", "", http.StatusNotFound, "Failed to execute nope: unknown tool: nope"},
		{"capability", "/api/v1/tools/" + agent.ToolPostTweet, `{"arguments":{"text":"gm"}}`, http.StatusForbidden, "Failed to post tweet: Twitter credentials not configured"},
		{"bad json", "/api/v1/tools/" + agent.ToolPostTweet, `{`, http.StatusBadRequest, "invalid JSON body"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, tc.path, tc.body, nil)
			if rec.Code != tc.status {
				t.Fatalf("status: got %d want %d (%s)", rec.Code, tc.status, rec.Body.String())
			}
			body := decode[errorResponse](t, rec)
			if !strings.HasPrefix(body.Error.Message, tc.msg) {
				t.Fatalf("message: got %q want prefix %q", body.Error.Message, tc.msg)
			}
		})
	}
}

func TestTaskEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/tasks", `{"id":"task-1","tool":"scrape_trending_tokens","arguments":{"platform":"rss"}}`, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit status: got %d body %s", rec.Code, rec.Body.String())
	}
	created := decode[task.Task](t, rec)
	if created.ID != "task-1" || created.Status != task.StatusPending || created.MaxRetries != 2 {
		t.Fatalf("unexpected task: %+v", created)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/tasks", `{"tool":"launch_rocket"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown tool status: got %d", rec.Code)
	}
	if body := decode[errorResponse](t, rec); body.Error.Code != string(task.CodeTaskValidation) {
		t.Fatalf("unexpected error code: %+v", body)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/tasks/task-1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("detail status: got %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/tasks/missing", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing status: got %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/tasks?status=pending&tool=scrape_trending_tokens&limit=5", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status: got %d", rec.Code)
	}
	list := decode[struct {
		Tasks []task.Task `json:"tasks"`
		Count int         `json:"count"`
	}](t, rec)
	if list.Count != 1 || list.Tasks[0].ID != "task-1" {
		t.Fatalf("unexpected list: %+v", list)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/tasks?status=bogus", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid status filter: got %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/tasks/stats", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status: got %d", rec.Code)
	}
	stats := decode[task.TaskStats](t, rec)
	if stats.Total != 1 || stats.Pending != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestTasksWithoutServiceUnavailable(t *testing.T) {
	history, _ := mysql.NewMemoryHistoryRepository(t.TempDir())
	ag := agent.New(agent.Capabilities{}, agent.Dependencies{History: history})
	rec := httptest.NewRecorder()
	NewServer(":0", ag).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d", rec.Code)
	}
}

func TestAuthProtectsRoutes(t *testing.T) {
	svc, err := auth.NewService(auth.Config{Mode: auth.ModeJWT, Secret: "api-test-secret-value"})
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	f := newFixture(t, WithAuth(svc))

	if rec := f.do(t, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz should stay public: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/v1/tasks", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: got %d", rec.Code)
	}

	reader, err := svc.IssueToken("reader", []string{auth.PermissionTasksRead}, 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	header := http.Header{"Authorization": {"Bearer " + reader.AccessToken}}
	if rec := f.do(t, http.MethodGet, "/api/v1/tasks", "", header); rec.Code != http.StatusOK {
		t.Fatalf("reader list: got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/tasks", `{"tool":"scrape_trending_tokens"}`, header); rec.Code != http.StatusForbidden {
		t.Fatalf("reader submit: got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/tools/"+agent.ToolScrapeTrending, "", header); rec.Code != http.StatusForbidden {
		t.Fatalf("reader invoke: got %d", rec.Code)
	}
}

func TestMCPMounted(t *testing.T) {
	f := newFixture(t)
	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"0.0.1"}}}`
	header := http.Header{
		"Content-Type": {"application/json"},
		"Accept":       {"application/json, text/event-stream"},
	}
	rec := f.do(t, http.MethodPost, "/mcp", body, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("mcp status: got %d body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), mcpserver.ServerName) {
		t.Fatalf("unexpected initialize response: %s", rec.Body.String())
	}
}
