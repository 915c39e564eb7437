// Package download plans and runs one yt-dlp job per request and locates the
// file it produced.
package download

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/reelfetch/reelfetch/internal/format"
	"github.com/reelfetch/reelfetch/internal/logger"
	"github.com/reelfetch/reelfetch/internal/metrics"
	"github.com/reelfetch/reelfetch/internal/platform"
	"github.com/reelfetch/reelfetch/internal/ytdlp"
)

const (
	DefaultTimeout     = 5 * time.Minute
	DefaultSettleDelay = 500 * time.Millisecond
	DefaultMaxOutput   = 200 * 1024 * 1024
)

// Config holds configuration for the runner
type Config struct {
	Dir         string
	Timeout     time.Duration
	SettleDelay time.Duration
	MaxOutput   int64
}

// Runner turns a Request into an Artifact on disk. Concurrent calls are
// independent; two requests for the same URL produce two artifacts.
type Runner struct {
	extractor ytdlp.Extractor
	registry  *platform.Registry
	cfg       Config
	log       *logger.Logger
	metrics   *metrics.Metrics

	now func() time.Time
}

// NewRunner creates a new runner. Zero config values take the defaults.
func NewRunner(ex ytdlp.Extractor, cfg Config, log *logger.Logger, m *metrics.Metrics) *Runner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.MaxOutput <= 0 {
		cfg.MaxOutput = DefaultMaxOutput
	}
	if log == nil {
		log = logger.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Runner{
		extractor: ex,
		registry:  platform.DefaultRegistry(),
		cfg:       cfg,
		log:       log.WithComponent("download"),
		metrics:   m,
		now:       time.Now,
	}
}

// Plan validates req and builds the job spec. It does not touch the filesystem.
func (r *Runner) Plan(req Request) (*JobSpec, error) {
	sourceURL := strings.TrimSpace(req.URL)
	if sourceURL == "" {
		return nil, ErrInvalidURL
	}
	parsed, err := url.Parse(sourceURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, ErrInvalidURL
	}

	kind := r.registry.Classify(sourceURL)
	if kind == platform.KindUnknown {
		return nil, ErrUnsupportedPlatform
	}

	if strings.TrimSpace(req.Format) == "" {
		return nil, ErrFormatRequired
	}
	f := format.Parse(req.Format)

	now := r.now()
	contentID := r.registry.ExtractContentID(sourceURL, kind, now)
	prefix := fmt.Sprintf("%s_%d", contentID, now.UnixMilli())
	template := filepath.Join(r.cfg.Dir, prefix+".%(ext)s")

	args, ext := commandFor(f, kind, template)

	return &JobSpec{
		Platform:       kind,
		Format:         f,
		ContentID:      contentID,
		CreatedAt:      now,
		Prefix:         prefix,
		OutputTemplate: template,
		Args:           append(args, "--", sourceURL),
		Extension:      ext,
	}, nil
}

// commandFor returns the yt-dlp options (without the URL) and the extension
// the resulting file will carry.
func commandFor(f format.Format, kind platform.Kind, template string) ([]string, string) {
	switch f.Kind() {
	case format.KindThumbnail:
		return []string{"--write-thumbnail", "--skip-download", "--convert-thumbnails", "jpg", "-o", template}, "jpg"
	case format.KindSubtitle:
		return []string{"--write-auto-sub", "--sub-lang", "en", "--skip-download", "--convert-subs", "srt", "-o", template}, "srt"
	case format.KindAudio:
		return []string{"-f", "bestaudio", "-x", "--audio-format", "mp3", "--audio-quality", "0", "-o", template}, "mp3"
	default:
		return []string{"-f", format.ResolveSelection(f, kind), "--merge-output-format", "mp4", "-o", template}, "mp4"
	}
}

// Run executes the job for req and returns the produced artifact. The
// extractor keeps running if the caller's context is cancelled; only the job
// timeout stops it.
func (r *Runner) Run(ctx context.Context, req Request, progress ProgressFunc) (*Artifact, error) {
	spec, err := r.Plan(req)
	if err != nil {
		return nil, err
	}
	return r.Execute(ctx, spec, progress)
}

// Execute runs a previously planned job.
func (r *Runner) Execute(ctx context.Context, spec *JobSpec, progress ProgressFunc) (*Artifact, error) {
	ctx = context.WithoutCancel(ctx)

	inv := ytdlp.Invocation{
		Args:      spec.Args,
		Timeout:   r.cfg.Timeout,
		MaxOutput: r.cfg.MaxOutput,
	}
	if progress != nil {
		inv.Args = withNewline(spec.Args)
		inv.OnLine = func(line string) {
			if pct, status := ytdlp.ParseProgress(line); status != "" {
				progress(status, pct)
			}
		}
	} else {
		progress = func(string, float64) {}
	}

	r.metrics.IncActiveJobs()
	defer r.metrics.DecActiveJobs()
	r.metrics.IncCounter(metrics.DownloadsStarted)

	fields := map[string]interface{}{
		"platform": string(spec.Platform),
		"format":   string(spec.Format),
		"prefix":   spec.Prefix,
	}
	r.log.Info(ctx, "download started", fields)
	progress(StatusStarting, 0)

	start := time.Now()
	if _, err := r.extractor.Extract(ctx, inv); err != nil {
		r.fail(ctx, progress, "extractor failed", err, fields)
		return nil, fmt.Errorf("%w: %w", ErrExtractorFailed, err)
	}

	time.Sleep(r.cfg.SettleDelay)

	path, err := FindArtifact(r.cfg.Dir, spec.Prefix, spec.Extension)
	if err != nil {
		r.fail(ctx, progress, "artifact not found", err, fields)
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		r.fail(ctx, progress, "artifact vanished", err, fields)
		return nil, fmt.Errorf("%w: %w", ErrArtifactNotFound, err)
	}

	r.metrics.IncCounter(metrics.DownloadsSucceeded)
	fields["file"] = info.Name()
	fields["bytes"] = info.Size()
	fields["duration_ms"] = time.Since(start).Milliseconds()
	r.log.Info(ctx, "download finished", fields)
	progress(StatusComplete, 100)

	return &Artifact{
		Path: path,
		Name: info.Name(),
		Size: info.Size(),
		Spec: spec,
	}, nil
}

func (r *Runner) fail(ctx context.Context, progress ProgressFunc, msg string, err error, fields map[string]interface{}) {
	r.metrics.IncCounter(metrics.DownloadsFailed)
	r.log.Error(ctx, msg, err, fields)
	progress(StatusFailed, 0)
}

// withNewline makes yt-dlp print one progress line per update instead of
// redrawing with carriage returns. It is inserted before the "--" separator.
func withNewline(args []string) []string {
	out := make([]string, 0, len(args)+1)
	for i, a := range args {
		if a == "--" {
			out = append(out, "--newline")
			return append(out, args[i:]...)
		}
		out = append(out, a)
	}
	return append(out, "--newline")
}

// FindArtifact returns the first regular file in dir named prefix.*.ext.
// os.ReadDir returns entries sorted by name, so with several candidates the
// lexically smallest wins, e.g. "x.f137.mp4" over "x.mp4".
func FindArtifact(dir, prefix, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrArtifactNotFound, err)
	}

	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix+".") && strings.HasSuffix(name, "."+ext) {
			return filepath.Join(dir, name), nil
		}
	}
	return "", ErrArtifactNotFound
}
