package kolagent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestNewClientRejectsRelativeURL(t *testing.T) {
	if _, err := NewClient("localhost:8080", nil); err == nil {
		t.Fatal("expected error for url without scheme")
	}
}

func TestInvokeToolSendsBearerToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/tools/scrape_trending_tokens" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			t.Errorf("expected bearer token, got %q", got)
		}
		var body struct {
			Arguments map[string]any `json:"arguments"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Arguments["platform"] != "rss" {
			t.Errorf("unexpected body: %+v (%v)", body, err)
		}
		_ = json.NewEncoder(w).Encode(ToolResult{Tool: "scrape_trending_tokens", Output: json.RawMessage(`{"totalAnalyzed":3}`)})
	})
	client.SetAccessToken("token")

	res, err := client.InvokeTool(context.Background(), "scrape_trending_tokens", map[string]any{"platform": "rss"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	var out struct {
		TotalAnalyzed int `json:"totalAnalyzed"`
	}
	if err := res.Decode(&out); err != nil || out.TotalAnalyzed != 3 {
		t.Fatalf("unexpected output: %+v (%v)", out, err)
	}
}

func TestListToolsWithoutToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("unexpected authorization header")
		}
		_, _ = w.Write([]byte(`{"tools":[{"name":"analyze_sentiment","enabled":true}]}`))
	})
	tools, err := client.ListTools(context.Background())
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "analyze_sentiment" || !tools[0].Enabled {
		t.Fatalf("unexpected tools: %+v", tools)
	}
}

func TestGetTaskError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/tasks/task-404" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"TASK_NOT_FOUND","message":"task not found"}}`))
	})

	_, err := client.GetTask(context.Background(), "task-404")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Code != "TASK_NOT_FOUND" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestSubmitAndWaitForTask(t *testing.T) {
	var polls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/tasks":
			var sub TaskSubmission
			_ = json.NewDecoder(r.Body).Decode(&sub)
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(Task{ID: sub.ID, Tool: sub.Tool, Status: StatusPending, MaxRetries: 3})
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/tasks/task-1":
			task := Task{ID: "task-1", Status: StatusRunning, MaxRetries: 3, Attempts: 1}
			switch polls.Add(1) {
			case 1:
			case 2:
				task.Status = StatusFailed
				task.ErrorCode = "RATE_LIMITED"
			default:
				task.Status = StatusSucceeded
				task.Attempts = 2
				task.Result = json.RawMessage(`{"ok":true}`)
			}
			_ = json.NewEncoder(w).Encode(task)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	submitted, err := client.SubmitTask(context.Background(), TaskSubmission{ID: "task-1", Tool: "post_to_twitter"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if submitted.Status != StatusPending {
		t.Fatalf("unexpected status: %s", submitted.Status)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done, err := client.WaitForTask(ctx, "task-1", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if done.Status != StatusSucceeded || string(done.Result) != `{"ok":true}` {
		t.Fatalf("unexpected task: %+v", done)
	}
	if polls.Load() != 3 {
		t.Fatalf("expected 3 polls, got %d", polls.Load())
	}
}

func TestListTasksQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("status") != "failed,pending" || q.Get("tool") != "draft_thread" || q.Get("limit") != "5" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"tasks":[{"id":"a"},{"id":"b"}],"count":2}`))
	})
	tasks, err := client.ListTasks(context.Background(), ListTasksOptions{
		Statuses: []string{StatusFailed, StatusPending},
		Tool:     "draft_thread",
		Limit:    5,
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}
}
