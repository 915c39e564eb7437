package activity

import (
	"bytes"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/reelfetch/reelfetch/internal/logger"
	"github.com/reelfetch/reelfetch/internal/metrics"
)

func newTestLogger(t *testing.T, now time.Time) (*Logger, *bytes.Buffer) {
	t.Helper()
	var mirror bytes.Buffer
	l := New(t.TempDir(), logger.Discard(), metrics.New())
	l.mirror = &mirror
	l.now = func() time.Time { return now }
	t.Cleanup(func() { l.Close() })
	return l, &mirror
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestLogger_Record(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 30, 45, 0, time.Local)
	l, mirror := newTestLogger(t, now)

	r := httptest.NewRequest("POST", "/api/download", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	r.Header.Set("User-Agent", "curl/8.4.0")

	l.Record(r, DownloadStarted{URL: "https://youtu.be/dQw4w9WgXcQ", Platform: "youtube", Format: "mp3"})

	lines := readLines(t, filepath.Join(l.Dir(), "2024-05-01.log"))
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}

	rec, ok := ParseLine(lines[0])
	if !ok {
		t.Fatalf("ParseLine(%q) failed", lines[0])
	}
	if rec.Timestamp != "2024-05-01 12:30:45" {
		t.Errorf("Timestamp = %q", rec.Timestamp)
	}
	if rec.Fields[0].Key != EventKey || rec.Event() != TagDownloadStart {
		t.Errorf("EVENT must come first, got %+v", rec.Fields[0])
	}

	want := map[string]string{
		"IP":       "203.0.113.7",
		"DEVICE":   "Bot",
		"PLATFORM": "youtube",
		"FORMAT":   "mp3",
		"URL":      "https://youtu.be/dQw4w9WgXcQ",
	}
	for k, v := range want {
		if got := rec.Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}

	if mirror.String() != lines[0]+"\n" {
		t.Errorf("mirror = %q, want the same line", mirror.String())
	}
}

func TestLogger_AppendsAndRotates(t *testing.T) {
	day1 := time.Date(2024, 5, 1, 23, 59, 59, 0, time.Local)
	l, _ := newTestLogger(t, day1)

	l.Record(nil, AdminDenied{})
	l.Record(nil, AdminDenied{Throttled: true})

	l.now = func() time.Time { return day1.Add(2 * time.Second) }
	l.Record(nil, AdminViewed{Date: "2024-05-01"})

	if n := len(readLines(t, filepath.Join(l.Dir(), "2024-05-01.log"))); n != 2 {
		t.Errorf("day one has %d lines, want 2", n)
	}
	if n := len(readLines(t, filepath.Join(l.Dir(), "2024-05-02.log"))); n != 1 {
		t.Errorf("day two has %d lines, want 1", n)
	}
}

func TestLogger_WriteFailureIsSwallowed(t *testing.T) {
	m := metrics.New()
	l := New(filepath.Join(t.TempDir(), "missing", "dir"), logger.Discard(), m)
	l.mirror = nil

	l.Record(nil, PlatformDetected{URL: "u", Platform: "tiktok"})

	if m.Counter(metrics.ActivityWriteFails) != 1 {
		t.Errorf("write failures = %d, want 1", m.Counter(metrics.ActivityWriteFails))
	}
}

func TestDownloadFailed_TruncatesError(t *testing.T) {
	long := strings.Repeat("x", 500)
	fields := DownloadFailed{Err: errors.New(long)}.fields()

	errField := fields[len(fields)-1]
	if errField.Key != "ERROR" || len(errField.Value) != maxErrorLen {
		t.Errorf("ERROR length = %d, want %d", len(errField.Value), maxErrorLen)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		realIP     string
		remoteAddr string
		want       string
	}{
		{"forwarded first entry", "198.51.100.1, 10.0.0.1", "10.0.0.2", "10.0.0.3:1234", "198.51.100.1"},
		{"real ip", "", "198.51.100.2", "10.0.0.3:1234", "198.51.100.2"},
		{"remote addr host", "", "", "198.51.100.3:5555", "198.51.100.3"},
		{"remote addr without port", "", "", "198.51.100.4", "198.51.100.4"},
		{"nothing", "", "", "", "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}
			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPeerIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "198.51.100.3:5555"
	r.Header.Set("X-Forwarded-For", "203.0.113.9")
	r.Header.Set("X-Real-IP", "203.0.113.10")

	if got := PeerIP(r); got != "198.51.100.3" {
		t.Errorf("PeerIP() = %q, want the socket peer", got)
	}
	if got := ClientIP(r); got != "203.0.113.9" {
		t.Errorf("ClientIP() = %q, want the forwarded address", got)
	}

	r.RemoteAddr = ""
	if got := PeerIP(r); got != "Unknown" {
		t.Errorf("PeerIP() without peer = %q, want Unknown", got)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.00 KB"},
		{5 * 1024 * 1024, "5.00 MB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.n); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
