package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandlerExposesRecordedSeries(t *testing.T) {
	ObserveHTTPRequest("/api/v1/tools", http.MethodPost, http.StatusInternalServerError, 120*time.Millisecond)
	ObserveToolInvocation("scrape_trending_tokens", "success", 2*time.Second)
	ObserveUpstreamError("twitter", "RATE_LIMITED")
	ObserveTaskTransition("succeeded")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		`kolagent_http_requests_total{code="500",handler="/api/v1/tools",method="POST"} 1`,
		`kolagent_http_request_errors_total{handler="/api/v1/tools",method="POST"} 1`,
		`kolagent_tool_invocations_total{outcome="success",tool="scrape_trending_tokens"} 1`,
		`kolagent_tool_duration_seconds_bucket{tool="scrape_trending_tokens",le="2.5"} 1`,
		`kolagent_upstream_errors_total{code="RATE_LIMITED",source="twitter"} 1`,
		`kolagent_task_transitions_total{status="succeeded"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
