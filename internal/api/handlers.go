package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/reelfetch/reelfetch/internal/activity"
	"github.com/reelfetch/reelfetch/internal/cache"
	"github.com/reelfetch/reelfetch/internal/download"
	apperrors "github.com/reelfetch/reelfetch/internal/errors"
	"github.com/reelfetch/reelfetch/internal/logger"
	"github.com/reelfetch/reelfetch/internal/metrics"
	"github.com/reelfetch/reelfetch/internal/platform"
	"github.com/reelfetch/reelfetch/internal/stream"
	"github.com/reelfetch/reelfetch/internal/websocket"
	"github.com/reelfetch/reelfetch/internal/ytdlp"
)

// maxBodyBytes bounds JSON request bodies; they only ever carry a URL and a tag.
const maxBodyBytes = 64 << 10

// Handlers serves the /api endpoints that drive the extraction tool.
type Handlers struct {
	runner      *download.Runner
	streamer    *stream.Streamer
	extractor   ytdlp.Extractor
	cache       *cache.Cache
	activity    *activity.Logger
	progress    *websocket.ProgressTracker
	infoTimeout time.Duration
	log         *logger.Logger
	metrics     *metrics.Metrics
}

// HandlersConfig wires the collaborators. Cache and Progress may be nil.
type HandlersConfig struct {
	Runner      *download.Runner
	Streamer    *stream.Streamer
	Extractor   ytdlp.Extractor
	Cache       *cache.Cache
	Activity    *activity.Logger
	Progress    *websocket.ProgressTracker
	InfoTimeout time.Duration
	Logger      *logger.Logger
	Metrics     *metrics.Metrics
}

func NewHandlers(cfg HandlersConfig) *Handlers {
	if cfg.InfoTimeout <= 0 {
		cfg.InfoTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	return &Handlers{
		runner:      cfg.Runner,
		streamer:    cfg.Streamer,
		extractor:   cfg.Extractor,
		cache:       cfg.Cache,
		activity:    cfg.Activity,
		progress:    cfg.Progress,
		infoTimeout: cfg.InfoTimeout,
		log:         cfg.Logger.WithComponent("api"),
		metrics:     cfg.Metrics,
	}
}

// URLRequest is the body of detect-platform and video-info.
type URLRequest struct {
	URL string `json:"url"`
}

// DownloadRequest is the body of /api/download.
type DownloadRequest struct {
	URL        string `json:"url"`
	Format     string `json:"format"`
	ProgressID string `json:"progress_id,omitempty"`
}

// PlatformResponse is returned by detect-platform.
type PlatformResponse struct {
	Platform platform.Kind `json:"platform"`
	Label    string        `json:"label"`
}

// InfoResponse is returned by video-info and cached as-is.
type InfoResponse struct {
	ytdlp.VideoInfo
	Platform platform.Kind `json:"platform"`
}

func decodeBody(r *http.Request, dst interface{}) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		return apperrors.BadRequest("Invalid request body")
	}
	return nil
}

func (h *Handlers) record(r *http.Request, ev activity.Event) {
	if h.activity != nil {
		h.activity.Record(r, ev)
	}
}

// handle adapts an error-returning handler; server-side failures are logged
// before being written.
func (h *Handlers) handle(fn apperrors.Handler) http.HandlerFunc {
	return apperrors.HandleFunc(func(w http.ResponseWriter, r *http.Request) error {
		err := fn(w, r)
		if err != nil && !apperrors.IsClientError(err) {
			h.log.Error(r.Context(), "request failed", err, map[string]interface{}{"path": r.URL.Path})
		}
		return err
	})
}

// DetectPlatform handles POST /api/detect-platform
func (h *Handlers) DetectPlatform(w http.ResponseWriter, r *http.Request) error {
	var req URLRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	sourceURL := strings.TrimSpace(req.URL)
	if sourceURL == "" {
		return apperrors.BadRequest("URL is required")
	}

	kind := platform.Classify(sourceURL)
	if kind == platform.KindUnknown {
		return apperrors.UnsupportedSource("Unsupported URL")
	}

	h.record(r, activity.PlatformDetected{URL: sourceURL, Platform: string(kind)})
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK,
		PlatformResponse{Platform: kind, Label: platform.Label(kind)})
	return nil
}

// VideoInfo handles POST /api/video-info
func (h *Handlers) VideoInfo(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	var req URLRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	sourceURL := strings.TrimSpace(req.URL)
	kind := platform.Classify(sourceURL)
	if sourceURL == "" || kind == platform.KindUnknown {
		return apperrors.UnsupportedSource("Invalid or unsupported URL")
	}

	h.metrics.IncCounter(metrics.InfoRequests)

	key := cache.Key(sourceURL)
	var cached InfoResponse
	if h.cache.GetJSON(ctx, key, &cached) {
		h.metrics.IncCounter(metrics.InfoCacheHits)
		h.record(r, activity.InfoRequested{URL: sourceURL, Platform: string(kind), Title: cached.Title, Cached: true})
		apperrors.WriteJSON(w, apperrors.GetRequestID(ctx), http.StatusOK, cached)
		return nil
	}

	info, err := ytdlp.GetMetadata(ctx, h.extractor, sourceURL, h.infoTimeout)
	if err != nil {
		h.record(r, activity.InfoFailed{URL: sourceURL, Platform: string(kind), Err: err})
		return extractorFailure("Failed to fetch video information", err)
	}

	resp := InfoResponse{VideoInfo: *info, Platform: kind}
	h.cache.SetJSON(ctx, key, resp)
	h.record(r, activity.InfoRequested{URL: sourceURL, Platform: string(kind), Title: resp.Title})
	apperrors.WriteJSON(w, apperrors.GetRequestID(ctx), http.StatusOK, resp)
	return nil
}

// Download handles POST /api/download. The artifact is streamed back as the
// response body and deleted after a grace delay. Once the first byte is out
// failures can only be logged.
func (h *Handlers) Download(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	start := time.Now()

	var req DownloadRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	spec, err := h.runner.Plan(download.Request{URL: req.URL, Format: req.Format, ProgressID: req.ProgressID})
	switch {
	case errors.Is(err, download.ErrFormatRequired):
		return apperrors.ValidationError("Format is required")
	case download.IsClientError(err):
		return apperrors.UnsupportedSource("Invalid or unsupported URL")
	case err != nil:
		return apperrors.InternalError("Failed to download video").WithCause(err)
	}

	started := activity.DownloadStarted{URL: strings.TrimSpace(req.URL), Platform: string(spec.Platform), Format: string(spec.Format)}
	h.record(r, started)
	failed := func(err error) {
		h.record(r, activity.DownloadFailed{URL: started.URL, Platform: started.Platform, Format: started.Format, Err: err})
		h.progress.SendError(req.ProgressID, err.Error())
	}

	art, err := h.runner.Execute(ctx, spec, h.progress.Func(req.ProgressID))
	if err != nil {
		failed(err)
		if errors.Is(err, download.ErrArtifactNotFound) {
			return apperrors.ArtifactNotFound("File download failed - file not found").WithCause(err)
		}
		return extractorFailure("Failed to download video", err)
	}

	n, err := h.streamer.Stream(w, art)
	switch {
	case errors.Is(err, stream.ErrNotCommitted):
		failed(err)
		return apperrors.StreamError("Failed to stream file").WithCause(err)
	case err != nil:
		// Headers are gone; the client sees a truncated body.
		h.log.Warn(ctx, "stream interrupted", map[string]interface{}{
			"file":  art.Name,
			"bytes": n,
			"error": err.Error(),
		})
		failed(err)
		return nil
	}

	h.streamer.Schedule(art.Path)
	h.record(r, activity.DownloadSucceeded{
		URL:      started.URL,
		Platform: started.Platform,
		Format:   started.Format,
		File:     art.Name,
		Bytes:    n,
		Duration: time.Since(start),
	})
	return nil
}

// extractorFailure reports a failed yt-dlp invocation, telling a run that hit
// its wall-clock limit apart from one that exited with an error.
func extractorFailure(message string, err error) *apperrors.AppError {
	if errors.Is(err, ytdlp.ErrTimeout) {
		return apperrors.ExternalTimeout(message).WithDetails(err.Error()).WithCause(err)
	}
	return apperrors.ExtractorError(message).WithDetails(err.Error()).WithCause(err)
}
