package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler()(w, req)
	return w.Body.String()
}

func TestMetrics_RecordRequest(t *testing.T) {
	m := New()

	m.RecordRequest("POST", "/api/download", 200, 3*time.Second)
	m.RecordRequest("POST", "/api/download", 200, 40*time.Second)
	m.RecordRequest("POST", "/api/download", 500, 50*time.Millisecond)

	body := scrape(t, m)

	if !strings.Contains(body, `reelfetch_http_requests_total{endpoint="/api/download",method="POST"} 3`) {
		t.Errorf("expected request count 3, got:\n%s", body)
	}
	if !strings.Contains(body, `reelfetch_http_errors_total{endpoint="/api/download",method="POST",status_class="5xx"} 1`) {
		t.Errorf("expected one 5xx error, got:\n%s", body)
	}
	if !strings.Contains(body, `reelfetch_http_request_duration_seconds_count{endpoint="/api/download",method="POST"} 3`) {
		t.Errorf("expected histogram count, got:\n%s", body)
	}
}

func TestMetrics_ActiveJobs(t *testing.T) {
	m := New()

	m.IncActiveJobs()
	m.IncActiveJobs()
	m.DecActiveJobs()

	if m.ActiveJobs() != 1 {
		t.Errorf("ActiveJobs() = %d, want 1", m.ActiveJobs())
	}
	if body := scrape(t, m); !strings.Contains(body, "reelfetch_download_jobs_active 1") {
		t.Errorf("expected reelfetch_download_jobs_active 1, got:\n%s", body)
	}
}

func TestMetrics_WSConnections(t *testing.T) {
	m := New()

	m.IncWSConnections()
	m.IncWSConnections()
	m.DecWSConnections()

	if body := scrape(t, m); !strings.Contains(body, "reelfetch_websocket_connections_active 1") {
		t.Errorf("expected reelfetch_websocket_connections_active 1, got:\n%s", body)
	}
}

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.IncCounter(JanitorSweeps)
	m.AddCounter(JanitorReclaimed, 3)
	m.AddCounter(JanitorReclaimed, 2)

	if got := m.Counter(JanitorReclaimed); got != 5 {
		t.Errorf("Counter(%s) = %d, want 5", JanitorReclaimed, got)
	}
	if got := m.Counter("never_touched"); got != 0 {
		t.Errorf("unknown counter = %d, want 0", got)
	}

	body := scrape(t, m)
	if !strings.Contains(body, "reelfetch_janitor_sweeps_total 1") {
		t.Errorf("expected janitor sweeps counter, got:\n%s", body)
	}
	if !strings.Contains(body, "# TYPE reelfetch_janitor_reclaimed_files_total counter") {
		t.Errorf("expected TYPE line for counter, got:\n%s", body)
	}
}

func TestPatternEndpoint(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{"GET /api/health", "/api/health"},
		{"POST /api/download", "/api/download"},
		{"/admin/logs", "/admin/logs"},
		{"GET /metrics", "/metrics"},
		{"GET /", StaticEndpoint},
		{"/", StaticEndpoint},
		{"example.com/api/health", "/api/health"},
		{"", UnmatchedEndpoint},
	}

	for _, tt := range tests {
		if got := patternEndpoint(tt.pattern); got != tt.want {
			t.Errorf("patternEndpoint(%q) = %q, want %q", tt.pattern, got, tt.want)
		}
	}
}

func TestMiddleware(t *testing.T) {
	m := New()

	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/detect-platform", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if body := scrape(t, m); !strings.Contains(body, `status_class="4xx"`) {
		t.Errorf("expected 4xx error recorded, got:\n%s", body)
	}
}

func TestMiddleware_LabelsByRoute(t *testing.T) {
	m := New()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/detect-platform", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("GET /admin/logs", func(w http.ResponseWriter, r *http.Request) {})
	handler := Middleware(m)(mux)

	send := func(method, target string) {
		req := httptest.NewRequest(method, target, nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	send(http.MethodPost, "/api/detect-platform")
	send(http.MethodGet, "/admin/logs?password=x")
	for i := 0; i < 50; i++ {
		send(http.MethodGet, fmt.Sprintf("/api/junk-%d", i))
		send(http.MethodGet, fmt.Sprintf("/admin/junk-%d", i))
	}
	// wrong method on a known path is not a series of its own either
	send(http.MethodGet, "/api/detect-platform")

	body := scrape(t, m)
	for _, want := range []string{
		`reelfetch_http_requests_total{endpoint="/api/detect-platform",method="POST"} 1`,
		`reelfetch_http_requests_total{endpoint="/admin/logs",method="GET"} 1`,
		`reelfetch_http_requests_total{endpoint="/other",method="GET"} 101`,
		`reelfetch_http_errors_total{endpoint="/other",method="GET",status_class="4xx"} 101`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %s, got:\n%s", want, body)
		}
	}
	if strings.Contains(body, "junk") {
		t.Errorf("unmatched request paths leaked into labels:\n%s", body)
	}
	if n := strings.Count(body, "reelfetch_http_requests_total{"); n != 3 {
		t.Errorf("got %d request series, want 3", n)
	}
}
