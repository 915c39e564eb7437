package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/reelfetch/reelfetch/internal/download"
	"github.com/reelfetch/reelfetch/internal/metrics"
)

func startHub(t *testing.T) (*Hub, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	hub := NewHub(m)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub, m
}

func dial(t *testing.T, srv *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/progress?id=" + id
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestProgressDelivery(t *testing.T) {
	hub, _ := startHub(t)
	srv := httptest.NewServer(http.HandlerFunc(NewHandler(hub, []string{"*"}, nil).ServeWS))
	defer srv.Close()

	watcher := dial(t, srv, "job-1")
	other := dial(t, srv, "job-2")
	waitFor(t, func() bool { return hub.ClientCount("job-1") == 1 && hub.ClientCount("job-2") == 1 })

	tracker := NewProgressTracker(hub)
	progress := tracker.Func("job-1")
	progress(download.StatusDownloading, 42.5)

	watcher.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg ProgressMessage
	if err := watcher.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	want := ProgressMessage{Type: MessageTypeProgress, ProgressID: "job-1", Status: download.StatusDownloading, Percent: 42.5}
	if msg != want {
		t.Errorf("got %+v, want %+v", msg, want)
	}

	other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if err := other.ReadJSON(&msg); err == nil {
		t.Errorf("client on another id received %+v", msg)
	}
}

func TestConnectionGaugeAndUnregister(t *testing.T) {
	hub, m := startHub(t)
	srv := httptest.NewServer(http.HandlerFunc(NewHandler(hub, []string{"*"}, nil).ServeWS))
	defer srv.Close()

	conn := dial(t, srv, "job-1")
	waitFor(t, func() bool { return hub.ClientCount("job-1") == 1 })

	if body := scrapeMetrics(m); !strings.Contains(body, "reelfetch_websocket_connections_active 1") {
		t.Errorf("expected one active connection, got:\n%s", body)
	}

	conn.Close()
	waitFor(t, func() bool { return hub.ClientCount("job-1") == 0 })
	if body := scrapeMetrics(m); !strings.Contains(body, "reelfetch_websocket_connections_active 0") {
		t.Errorf("expected no active connections, got:\n%s", body)
	}
}

func scrapeMetrics(m *metrics.Metrics) string {
	w := httptest.NewRecorder()
	m.Handler()(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return w.Body.String()
}

func TestServeWS_MissingID(t *testing.T) {
	hub, _ := startHub(t)
	h := NewHandler(hub, []string{"*"}, nil)

	w := httptest.NewRecorder()
	h.ServeWS(w, httptest.NewRequest(http.MethodGet, "/api/ws/progress", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"wildcard", []string{"*"}, "https://evil.example", true},
		{"listed", []string{"https://app.example"}, "https://app.example", true},
		{"unlisted", []string{"https://app.example"}, "https://evil.example", false},
		{"no origin header", []string{"https://app.example"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := originChecker(tt.allowed)(r); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTracker_EmptyIDDisablesProgress(t *testing.T) {
	tracker := NewProgressTracker(NewHub(nil))
	if tracker.Func("") != nil {
		t.Error("expected nil ProgressFunc for empty id")
	}
	var nilTracker *ProgressTracker
	if nilTracker.Func("job-1") != nil {
		t.Error("expected nil ProgressFunc for nil tracker")
	}
	nilTracker.SendError("job-1", "boom")
}

func TestHub_StoppedNeverBlocks(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hub.Run(ctx)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Broadcast(&ProgressMessage{ProgressID: "x"})
		}
		if hub.Register(&Client{progressID: "x", send: make(chan *ProgressMessage)}) {
			t.Error("Register should fail after stop")
		}
		hub.Unregister(&Client{progressID: "x"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub operations blocked after stop")
	}
}
