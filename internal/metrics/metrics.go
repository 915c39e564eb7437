// Package metrics keeps in-process counters and renders them in the
// Prometheus text exposition format.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const namespace = "reelfetch"

// Counter names used across the service
const (
	DownloadsStarted   = "downloads_started_total"
	DownloadsSucceeded = "downloads_succeeded_total"
	DownloadsFailed    = "downloads_failed_total"
	BytesStreamed      = "bytes_streamed_total"
	InfoRequests       = "video_info_requests_total"
	InfoCacheHits      = "video_info_cache_hits_total"
	JanitorSweeps      = "janitor_sweeps_total"
	JanitorReclaimed   = "janitor_reclaimed_files_total"
	ArtifactsDeleted   = "artifacts_deleted_total"
	ActivityWriteFails = "activity_write_failures_total"
	AdminDenied        = "admin_login_denied_total"
)

// Metrics holds all application metrics
type Metrics struct {
	mu sync.RWMutex

	requestCount    map[requestKey]*uint64
	requestDuration map[requestKey]*Histogram
	requestErrors   map[errorKey]*uint64

	activeJobs          int64
	activeWSConnections int64

	counters map[string]*uint64

	startTime time.Time
}

type requestKey struct {
	endpoint string
	method   string
}

type errorKey struct {
	requestKey
	class int
}

// Histogram tracks value distributions
type Histogram struct {
	mu         sync.Mutex
	count      uint64
	sum        float64
	buckets    []float64
	bucketVals []uint64
}

// defaultBuckets span fast JSON endpoints up to multi-minute downloads.
var defaultBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300}

// NewHistogram creates a new histogram with default buckets
func NewHistogram() *Histogram {
	return &Histogram{
		buckets:    defaultBuckets,
		bucketVals: make([]uint64, len(defaultBuckets)),
	}
}

// Observe records a value
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, b := range h.buckets {
		if v <= b {
			h.bucketVals[i]++
		}
	}
}

// New creates a new Metrics instance
func New() *Metrics {
	return &Metrics{
		requestCount:    make(map[requestKey]*uint64),
		requestDuration: make(map[requestKey]*Histogram),
		requestErrors:   make(map[errorKey]*uint64),
		counters:        make(map[string]*uint64),
		startTime:       time.Now(),
	}
}

// RecordRequest records one served HTTP request. endpoint is used as the
// label as given, so callers must pass a bounded value such as a route
// pattern, never a raw request path.
func (m *Metrics) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	key := requestKey{endpoint: endpoint, method: method}

	m.mu.Lock()
	count, ok := m.requestCount[key]
	if !ok {
		count = new(uint64)
		m.requestCount[key] = count
		m.requestDuration[key] = NewHistogram()
	}
	hist := m.requestDuration[key]

	var errCount *uint64
	if statusCode >= 400 {
		ek := errorKey{requestKey: key, class: statusCode / 100}
		if errCount = m.requestErrors[ek]; errCount == nil {
			errCount = new(uint64)
			m.requestErrors[ek] = errCount
		}
	}
	m.mu.Unlock()

	atomic.AddUint64(count, 1)
	hist.Observe(duration.Seconds())
	if errCount != nil {
		atomic.AddUint64(errCount, 1)
	}
}

// Endpoint labels for requests that did not hit a specific route.
const (
	StaticEndpoint    = "/static"
	UnmatchedEndpoint = "/other"
)

// patternEndpoint turns the ServeMux pattern that served a request into its
// endpoint label. Only registered routes get their own series; the "/"
// catch-all is the static frontend and an empty pattern means nothing
// matched (404 or 405).
func patternEndpoint(pattern string) string {
	if _, path, ok := strings.Cut(pattern, " "); ok {
		pattern = path
	}
	// host-qualified patterns are not used, but keep only the path
	if i := strings.IndexByte(pattern, '/'); i > 0 {
		pattern = pattern[i:]
	}
	switch pattern {
	case "":
		return UnmatchedEndpoint
	case "/":
		return StaticEndpoint
	default:
		return pattern
	}
}

// IncActiveJobs marks a download job as running
func (m *Metrics) IncActiveJobs() {
	atomic.AddInt64(&m.activeJobs, 1)
}

// DecActiveJobs marks a download job as finished
func (m *Metrics) DecActiveJobs() {
	atomic.AddInt64(&m.activeJobs, -1)
}

// ActiveJobs returns the number of running download jobs
func (m *Metrics) ActiveJobs() int64 {
	return atomic.LoadInt64(&m.activeJobs)
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	atomic.AddInt64(&m.activeWSConnections, 1)
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	atomic.AddInt64(&m.activeWSConnections, -1)
}

// IncCounter increments a named counter
func (m *Metrics) IncCounter(name string) {
	m.AddCounter(name, 1)
}

// AddCounter adds delta to a named counter
func (m *Metrics) AddCounter(name string, delta uint64) {
	m.mu.Lock()
	c, ok := m.counters[name]
	if !ok {
		c = new(uint64)
		m.counters[name] = c
	}
	m.mu.Unlock()
	atomic.AddUint64(c, delta)
}

// Counter returns the current value of a named counter
func (m *Metrics) Counter(name string) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.counters[name]; ok {
		return atomic.LoadUint64(c)
	}
	return 0
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.Write([]byte(m.render()))
	}
}

func (m *Metrics) render() string {
	var sb strings.Builder

	family(&sb, "uptime_seconds", "gauge", "Time since the server started")
	fmt.Fprintf(&sb, "%s_uptime_seconds %f\n\n", namespace, time.Since(m.startTime).Seconds())

	family(&sb, "download_jobs_active", "gauge", "Download jobs currently running yt-dlp")
	fmt.Fprintf(&sb, "%s_download_jobs_active %d\n\n", namespace, atomic.LoadInt64(&m.activeJobs))

	family(&sb, "websocket_connections_active", "gauge", "Active progress WebSocket connections")
	fmt.Fprintf(&sb, "%s_websocket_connections_active %d\n\n", namespace, atomic.LoadInt64(&m.activeWSConnections))

	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.requestCount) > 0 {
		keys := sortedRequestKeys(m.requestCount)

		family(&sb, "http_requests_total", "counter", "Total HTTP requests")
		for _, k := range keys {
			fmt.Fprintf(&sb, "%s_http_requests_total{endpoint=%q,method=%q} %d\n",
				namespace, k.endpoint, k.method, atomic.LoadUint64(m.requestCount[k]))
		}
		sb.WriteString("\n")

		family(&sb, "http_request_duration_seconds", "histogram", "HTTP request latency")
		for _, k := range keys {
			h := m.requestDuration[k]
			h.mu.Lock()
			labels := fmt.Sprintf("endpoint=%q,method=%q", k.endpoint, k.method)
			for i, b := range h.buckets {
				fmt.Fprintf(&sb, "%s_http_request_duration_seconds_bucket{%s,le=\"%g\"} %d\n", namespace, labels, b, h.bucketVals[i])
			}
			fmt.Fprintf(&sb, "%s_http_request_duration_seconds_bucket{%s,le=\"+Inf\"} %d\n", namespace, labels, h.count)
			fmt.Fprintf(&sb, "%s_http_request_duration_seconds_sum{%s} %f\n", namespace, labels, h.sum)
			fmt.Fprintf(&sb, "%s_http_request_duration_seconds_count{%s} %d\n", namespace, labels, h.count)
			h.mu.Unlock()
		}
		sb.WriteString("\n")
	}

	if len(m.requestErrors) > 0 {
		keys := make([]errorKey, 0, len(m.requestErrors))
		for k := range m.requestErrors {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].requestKey != keys[j].requestKey {
				return lessRequestKey(keys[i].requestKey, keys[j].requestKey)
			}
			return keys[i].class < keys[j].class
		})

		family(&sb, "http_errors_total", "counter", "Total HTTP errors by status class")
		for _, k := range keys {
			fmt.Fprintf(&sb, "%s_http_errors_total{endpoint=%q,method=%q,status_class=\"%dxx\"} %d\n",
				namespace, k.endpoint, k.method, k.class, atomic.LoadUint64(m.requestErrors[k]))
		}
		sb.WriteString("\n")
	}

	names := make([]string, 0, len(m.counters))
	for name := range m.counters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		family(&sb, name, "counter", strings.ReplaceAll(strings.TrimSuffix(name, "_total"), "_", " "))
		fmt.Fprintf(&sb, "%s_%s %d\n\n", namespace, name, atomic.LoadUint64(m.counters[name]))
	}

	return sb.String()
}

func family(sb *strings.Builder, name, kind, help string) {
	fmt.Fprintf(sb, "# HELP %s_%s %s\n", namespace, name, help)
	fmt.Fprintf(sb, "# TYPE %s_%s %s\n", namespace, name, kind)
}

func sortedRequestKeys(m map[requestKey]*uint64) []requestKey {
	keys := make([]requestKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return lessRequestKey(keys[i], keys[j]) })
	return keys
}

func lessRequestKey(a, b requestKey) bool {
	if a.endpoint != b.endpoint {
		return a.endpoint < b.endpoint
	}
	return a.method < b.method
}

// Middleware records request count, latency and error class per endpoint.
// The endpoint is the route pattern the ServeMux below it matched, which the
// mux stores on the request it was handed.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			m.RecordRequest(r.Method, patternEndpoint(r.Pattern), wrapped.statusCode, time.Since(start))
		})
	}
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *statusResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack is required by the websocket upgrade.
func (w *statusResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("metrics: underlying ResponseWriter does not implement http.Hijacker")
	}
	return h.Hijack()
}
