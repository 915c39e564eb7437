package api

import (
	"net/http"
	"os"

	apperrors "github.com/reelfetch/reelfetch/internal/errors"
	"github.com/reelfetch/reelfetch/internal/health"
	"github.com/reelfetch/reelfetch/internal/logger"
	"github.com/reelfetch/reelfetch/internal/logview"
	"github.com/reelfetch/reelfetch/internal/metrics"
	"github.com/reelfetch/reelfetch/internal/middleware"
	"github.com/reelfetch/reelfetch/internal/websocket"
)

// Config holds the router's own settings.
type Config struct {
	StaticDir      string
	AllowedOrigins []string
}

type Router struct {
	mux     *http.ServeMux
	handler http.Handler

	handlers *Handlers
	health   *health.Handler
	ws       *websocket.Handler
	logs     *logview.Handler
	metrics  *metrics.Metrics
	log      *logger.Logger
	cfg      Config
}

func NewRouter(cfg Config, handlers *Handlers, healthHandler *health.Handler, ws *websocket.Handler, logs *logview.Handler, m *metrics.Metrics, log *logger.Logger) *Router {
	if log == nil {
		log = logger.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	r := &Router{
		mux:      http.NewServeMux(),
		handlers: handlers,
		health:   healthHandler,
		ws:       ws,
		logs:     logs,
		metrics:  m,
		log:      log.WithComponent("http"),
		cfg:      cfg,
	}
	r.setupRoutes()
	r.handler = middleware.Chain(r.mux,
		apperrors.RequestIDMiddleware,
		middleware.Recoverer(r.log),
		middleware.Logging(r.log),
		metrics.Middleware(r.metrics),
		middleware.Timing(r.log),
		middleware.CORS(cfg.AllowedOrigins),
		middleware.Gzip,
	)
	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

func (r *Router) setupRoutes() {
	r.mux.HandleFunc("POST /api/detect-platform", r.handlers.handle(r.handlers.DetectPlatform))
	r.mux.HandleFunc("POST /api/video-info", r.handlers.handle(r.handlers.VideoInfo))
	r.mux.HandleFunc("POST /api/download", r.handlers.handle(r.handlers.Download))

	// Health and tool checks
	r.mux.Handle("GET /api/health", middleware.ETag(http.HandlerFunc(r.health.HealthHandler)))
	r.mux.Handle("GET /api/check-ytdlp", middleware.ETag(http.HandlerFunc(r.health.CheckYtdlpHandler)))
	r.mux.Handle("GET /api/check-ffmpeg", middleware.ETag(http.HandlerFunc(r.health.CheckFfmpegHandler)))

	if r.ws != nil {
		r.mux.HandleFunc("GET /api/ws/progress", r.ws.ServeWS)
	}

	r.mux.Handle("GET /metrics", r.metrics.Handler())
	r.mux.Handle("GET /admin/logs", r.logs)

	if info, err := os.Stat(r.cfg.StaticDir); err == nil && info.IsDir() {
		r.mux.Handle("GET /", http.FileServer(http.Dir(r.cfg.StaticDir)))
	}
}
