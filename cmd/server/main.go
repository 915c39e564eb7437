package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reelfetch/reelfetch/internal/activity"
	"github.com/reelfetch/reelfetch/internal/api"
	"github.com/reelfetch/reelfetch/internal/cache"
	"github.com/reelfetch/reelfetch/internal/config"
	"github.com/reelfetch/reelfetch/internal/download"
	"github.com/reelfetch/reelfetch/internal/health"
	"github.com/reelfetch/reelfetch/internal/janitor"
	"github.com/reelfetch/reelfetch/internal/logger"
	"github.com/reelfetch/reelfetch/internal/logview"
	"github.com/reelfetch/reelfetch/internal/metrics"
	"github.com/reelfetch/reelfetch/internal/stream"
	"github.com/reelfetch/reelfetch/internal/websocket"
	"github.com/reelfetch/reelfetch/internal/ytdlp"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg := config.Load()

	log := logger.New(os.Stdout, logger.ParseLevel(cfg.LogLevel), "server")
	logger.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error(context.Background(), "server exited with error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	m := metrics.New()
	extractor := ytdlp.New(ytdlp.Config{YtdlpPath: cfg.YtdlpPath, FfmpegPath: cfg.FfmpegPath})
	logToolVersions(ctx, log, extractor)

	var infoCache *cache.Cache
	if cfg.RedisURL != "" {
		c, err := cache.New(cfg.RedisURL, cfg.InfoCacheTTL, log)
		if err != nil {
			// The cache is an optimisation; run without it.
			log.Warn(ctx, "redis unavailable, metadata cache disabled", map[string]interface{}{"error": err.Error()})
		} else {
			infoCache = c
		}
	}

	act := activity.New(cfg.LogsDir, log, m)
	streamer := stream.New(cfg.DeleteDelay, log, m)
	runner := download.NewRunner(extractor, download.Config{
		Dir:         cfg.DownloadsDir,
		Timeout:     cfg.DownloadTimeout,
		SettleDelay: cfg.SettleDelay,
		MaxOutput:   cfg.MaxOutputBytes,
	}, log, m)
	sweeper := janitor.New(janitor.Config{
		Dir:      cfg.DownloadsDir,
		Interval: cfg.JanitorInterval,
		MaxAge:   cfg.JanitorMaxAge,
	}, log, m)
	hub := websocket.NewHub(m)

	handlers := api.NewHandlers(api.HandlersConfig{
		Runner:      runner,
		Streamer:    streamer,
		Extractor:   extractor,
		Cache:       infoCache,
		Activity:    act,
		Progress:    websocket.NewProgressTracker(hub),
		InfoTimeout: cfg.InfoTimeout,
		Logger:      log,
		Metrics:     m,
	})
	checker := health.NewChecker(&health.CheckerConfig{
		Extractor:    extractor,
		DownloadsDir: cfg.DownloadsDir,
		Cache:        infoCache,
	})
	if cfg.AdminPassword == "" && cfg.AdminPasswordHash == "" {
		log.Warn(ctx, "ADMIN_PASSWORD not set, admin log viewer is locked")
	}
	logs := logview.NewHandler(
		logview.NewStore(cfg.LogsDir),
		logview.NewAuthenticator(cfg.AdminPassword, cfg.AdminPasswordHash),
		act, log, m,
	)
	router := api.NewRouter(
		api.Config{StaticDir: cfg.StaticDir, AllowedOrigins: cfg.AllowedOrigins},
		handlers,
		health.NewHandler(checker),
		websocket.NewHandler(hub, cfg.AllowedOrigins, log),
		logs,
		m,
		log,
	)

	// No WriteTimeout: a download holds the response open for as long as
	// the extraction and the transfer take.
	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Leftovers from a previous run.
	sweeper.Sweep()
	sweeper.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.Run(gctx)
	})

	g.Go(func() error {
		log.Info(gctx, "server listening", map[string]interface{}{
			"addr":          cfg.ServerAddr,
			"downloads_dir": cfg.DownloadsDir,
			"logs_dir":      cfg.LogsDir,
			"cache":         infoCache.Enabled(),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info(context.Background(), "shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if jErr := sweeper.Stop(shutdownCtx); jErr != nil {
			log.Error(shutdownCtx, "janitor stop failed", jErr)
		}
		if sErr := streamer.Stop(shutdownCtx); sErr != nil {
			log.Error(shutdownCtx, "pending deletions not flushed", sErr)
		}
		if aErr := act.Close(); aErr != nil {
			log.Error(shutdownCtx, "activity log close failed", aErr)
		}
		if cErr := infoCache.Close(); cErr != nil {
			log.Error(shutdownCtx, "cache close failed", cErr)
		}
		return err
	})

	return g.Wait()
}

func logToolVersions(ctx context.Context, log *logger.Logger, ex ytdlp.Extractor) {
	if v, err := ex.Version(ctx); err != nil {
		log.Warn(ctx, "yt-dlp not available", map[string]interface{}{"error": err.Error()})
	} else {
		log.Info(ctx, "yt-dlp available", map[string]interface{}{"version": v})
	}
	if v, err := ex.MuxerVersion(ctx); err != nil {
		log.Warn(ctx, "ffmpeg not available", map[string]interface{}{"error": err.Error()})
	} else {
		log.Info(ctx, "ffmpeg available", map[string]interface{}{"version": v})
	}
}
