package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/reelfetch/reelfetch/internal/ytdlp"
)

// Status represents the health status of a component
type Status string

const (
	StatusOK        Status = "ok"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Message is returned by the basic health check.
const Message = "Multi-Platform Downloader API is running"

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// Response is the /api/health body. Components are only present for deep checks.
type Response struct {
	Status     Status                     `json:"status"`
	Message    string                     `json:"message"`
	Timestamp  string                     `json:"timestamp,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

// Pinger is satisfied by the metadata cache.
type Pinger interface {
	Enabled() bool
	Ping(ctx context.Context) error
}

// Checker performs health checks on the service's dependencies
type Checker struct {
	extractor    ytdlp.Extractor
	downloadsDir string
	cache        Pinger
	checkTimeout time.Duration
}

// CheckerConfig holds configuration for the health checker
type CheckerConfig struct {
	Extractor    ytdlp.Extractor
	DownloadsDir string
	Cache        Pinger
	Timeout      time.Duration
}

// NewChecker creates a new health checker
func NewChecker(cfg *CheckerConfig) *Checker {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		extractor:    cfg.Extractor,
		downloadsDir: cfg.DownloadsDir,
		cache:        cfg.Cache,
		checkTimeout: timeout,
	}
}

// CheckExtractor runs yt-dlp --version. Without it nothing works.
func (c *Checker) CheckExtractor(ctx context.Context) ComponentHealth {
	return c.timed(ctx, StatusUnhealthy, func(ctx context.Context) (string, error) {
		return c.extractor.Version(ctx)
	})
}

// CheckMuxer runs ffmpeg -version. Without it merged video and mp3
// conversion fail but thumbnails and single-stream downloads still work.
func (c *Checker) CheckMuxer(ctx context.Context) ComponentHealth {
	return c.timed(ctx, StatusDegraded, func(ctx context.Context) (string, error) {
		return c.extractor.MuxerVersion(ctx)
	})
}

// CheckDownloadsDir verifies the downloads directory exists and is writable.
func (c *Checker) CheckDownloadsDir(ctx context.Context) ComponentHealth {
	return c.timed(ctx, StatusUnhealthy, func(context.Context) (string, error) {
		info, err := os.Stat(c.downloadsDir)
		if err != nil {
			return "", err
		}
		if !info.IsDir() {
			return "", fmt.Errorf("%s is not a directory", c.downloadsDir)
		}
		f, err := os.CreateTemp(c.downloadsDir, ".healthcheck-*")
		if err != nil {
			return "", err
		}
		f.Close()
		os.Remove(f.Name())
		return "", nil
	})
}

// CheckCache pings Redis. An unconfigured cache is fine.
func (c *Checker) CheckCache(ctx context.Context) ComponentHealth {
	if c.cache == nil || !c.cache.Enabled() {
		return ComponentHealth{Status: StatusOK, Message: "disabled"}
	}
	return c.timed(ctx, StatusDegraded, func(ctx context.Context) (string, error) {
		return "", c.cache.Ping(ctx)
	})
}

// timed runs check under the check timeout. failStatus is what a failure
// means for the service as a whole.
func (c *Checker) timed(ctx context.Context, failStatus Status, check func(context.Context) (string, error)) ComponentHealth {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	msg, err := check(ctx)
	if err != nil {
		return ComponentHealth{
			Status:   failStatus,
			Message:  err.Error(),
			Duration: time.Since(start).String(),
		}
	}
	return ComponentHealth{
		Status:   StatusOK,
		Message:  msg,
		Duration: time.Since(start).String(),
	}
}

// Check performs a basic health check (liveness)
func (c *Checker) Check(ctx context.Context) *Response {
	return &Response{Status: StatusOK, Message: Message}
}

// DeepCheck runs every component check in parallel (readiness).
func (c *Checker) DeepCheck(ctx context.Context) *Response {
	response := &Response{
		Status:     StatusOK,
		Message:    Message,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Components: make(map[string]ComponentHealth),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex

	checks := map[string]func(context.Context) ComponentHealth{
		"extractor":     c.CheckExtractor,
		"muxer":         c.CheckMuxer,
		"downloads_dir": c.CheckDownloadsDir,
		"cache":         c.CheckCache,
	}

	for name, check := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := check(ctx)
			mu.Lock()
			response.Components[name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, comp := range response.Components {
		switch {
		case comp.Status == StatusUnhealthy:
			response.Status = StatusUnhealthy
		case comp.Status == StatusDegraded && response.Status == StatusOK:
			response.Status = StatusDegraded
		}
	}
	return response
}

// Handler provides HTTP handlers for health endpoints
type Handler struct {
	checker   *Checker
	extractor ytdlp.Extractor
}

// NewHandler creates a new health handler
func NewHandler(checker *Checker) *Handler {
	return &Handler{checker: checker, extractor: checker.extractor}
}

// HealthHandler serves GET /api/health; ?deep=true runs the component checks.
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("deep") != "true" {
		writeJSON(w, http.StatusOK, h.checker.Check(r.Context()))
		return
	}

	response := h.checker.DeepCheck(r.Context())
	status := http.StatusOK
	if response.Status == StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

// ToolStatus is the body of the tool check endpoints
type ToolStatus struct {
	Installed bool   `json:"installed"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// CheckYtdlpHandler serves GET /api/check-ytdlp
func (h *Handler) CheckYtdlpHandler(w http.ResponseWriter, r *http.Request) {
	h.toolStatus(w, r, h.extractor.Version, "yt-dlp is not installed")
}

// CheckFfmpegHandler serves GET /api/check-ffmpeg
func (h *Handler) CheckFfmpegHandler(w http.ResponseWriter, r *http.Request) {
	h.toolStatus(w, r, h.extractor.MuxerVersion, "ffmpeg is not installed")
}

func (h *Handler) toolStatus(w http.ResponseWriter, r *http.Request, version func(context.Context) (string, error), notInstalled string) {
	v, err := version(r.Context())
	if err != nil {
		writeJSON(w, http.StatusOK, ToolStatus{Installed: false, Error: notInstalled})
		return
	}
	writeJSON(w, http.StatusOK, ToolStatus{Installed: true, Version: v})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
