// Package ytdlp is the subprocess boundary: everything that runs yt-dlp or
// ffmpeg goes through the Extractor interface.
package ytdlp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
	"time"
)

const (
	versionTimeout = 10 * time.Second
	maxStderr      = 64 * 1024

	// waitDelay bounds how long Wait blocks on pipes held open by
	// grandchildren after yt-dlp itself was killed.
	waitDelay = 2 * time.Second
)

// Invocation describes one yt-dlp run.
type Invocation struct {
	Args      []string
	Timeout   time.Duration
	MaxOutput int64

	// OnLine, when set, receives every stdout line as it is produced.
	OnLine func(line string)
}

// Extractor runs the external tools. Service is the real implementation;
// tests substitute fakes that record invocations.
type Extractor interface {
	// Extract runs yt-dlp and returns its stdout.
	Extract(ctx context.Context, inv Invocation) ([]byte, error)

	// Version returns the trimmed output of yt-dlp --version.
	Version(ctx context.Context) (string, error)

	// MuxerVersion returns the first line of ffmpeg -version.
	MuxerVersion(ctx context.Context) (string, error)
}

// Config holds the executable paths
type Config struct {
	YtdlpPath  string
	FfmpegPath string
}

// Service runs yt-dlp and ffmpeg with exec.CommandContext. Arguments are
// passed as argv; no shell is involved.
type Service struct {
	cfg Config
}

// New creates a new exec-backed extractor. Missing executables are reported
// lazily by each call rather than here, so the server can start without them.
func New(cfg Config) *Service {
	if cfg.YtdlpPath == "" {
		cfg.YtdlpPath = "yt-dlp"
	}
	if cfg.FfmpegPath == "" {
		cfg.FfmpegPath = "ffmpeg"
	}
	return &Service{cfg: cfg}
}

var _ Extractor = (*Service)(nil)

// Extract runs yt-dlp with inv.Args.
func (s *Service) Extract(ctx context.Context, inv Invocation) ([]byte, error) {
	sourceURL := lastArg(inv.Args)

	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	stdout := &outputWriter{limit: inv.MaxOutput, onLine: inv.OnLine}
	stderr := &outputWriter{limit: maxStderr, truncate: true}

	cmd := exec.CommandContext(ctx, s.cfg.YtdlpPath, inv.Args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	stdout.flush()

	switch {
	case stdout.exceeded:
		return nil, &DownloadError{URL: sourceURL, Message: "output too large", Err: ErrOutputTooLarge}
	case err == nil:
		return stdout.buf.Bytes(), nil
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return nil, &DownloadError{URL: sourceURL, Message: fmt.Sprintf("no result after %s", inv.Timeout), Err: ErrTimeout}
	case ctx.Err() != nil:
		return nil, ctx.Err()
	}
	return nil, categorizeError(sourceURL, err, stderr.buf.String())
}

// Version returns the installed yt-dlp version.
func (s *Service) Version(ctx context.Context) (string, error) {
	out, err := s.runVersion(ctx, s.cfg.YtdlpPath, "--version")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// MuxerVersion returns the first line of ffmpeg's version banner.
func (s *Service) MuxerVersion(ctx context.Context) (string, error) {
	out, err := s.runVersion(ctx, s.cfg.FfmpegPath, "-version")
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(out, "\n")
	return strings.TrimSpace(line), nil
}

func (s *Service) runVersion(ctx context.Context, path string, arg string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, arg).Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", path, ErrToolNotFound)
		}
		return "", fmt.Errorf("%s %s: %w", path, arg, err)
	}
	return string(out), nil
}

// categorizeError converts yt-dlp stderr into specific error types
func categorizeError(sourceURL string, err error, stderr string) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return &DownloadError{URL: sourceURL, Message: "yt-dlp not installed", Err: ErrToolNotFound}
	}

	stderrLower := strings.ToLower(stderr)

	switch {
	case strings.Contains(stderrLower, "video unavailable") ||
		strings.Contains(stderrLower, "this video is unavailable"):
		return &DownloadError{URL: sourceURL, Message: "video unavailable", Err: ErrVideoUnavailable}

	case strings.Contains(stderrLower, "private video") ||
		strings.Contains(stderrLower, "is private"):
		return &DownloadError{URL: sourceURL, Message: "video is private", Err: ErrVideoPrivate}

	case strings.Contains(stderrLower, "age-restricted") ||
		strings.Contains(stderrLower, "sign in to confirm your age"):
		return &DownloadError{URL: sourceURL, Message: "content is age-restricted", Err: ErrAgeRestricted}

	case strings.Contains(stderrLower, "unsupported url") ||
		strings.Contains(stderrLower, "no suitable extractor"):
		return &DownloadError{URL: sourceURL, Message: "url not supported", Err: ErrURLNotSupported}

	case strings.Contains(stderrLower, "unable to download") ||
		strings.Contains(stderrLower, "connection") ||
		strings.Contains(stderrLower, "network"):
		return &DownloadError{URL: sourceURL, Message: "network error", Err: ErrNetworkError}

	default:
		detail := strings.TrimSpace(stderr)
		if detail == "" {
			detail = err.Error()
		}
		return &DownloadError{URL: sourceURL, Message: "download failed", Err: fmt.Errorf("%w: %s", ErrDownloadFailed, detail)}
	}
}

func lastArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[len(args)-1]
}

// outputWriter collects subprocess output up to limit bytes. Past the limit it
// either drops data silently (truncate) or fails the write, which makes exec
// stop copying and the child exit on a broken pipe.
type outputWriter struct {
	buf      bytes.Buffer
	limit    int64
	truncate bool
	exceeded bool

	onLine  func(string)
	pending []byte
}

func (w *outputWriter) Write(p []byte) (int, error) {
	if w.limit > 0 && int64(w.buf.Len()+len(p)) > w.limit {
		if !w.truncate {
			w.exceeded = true
			return 0, ErrOutputTooLarge
		}
		room := int(w.limit) - w.buf.Len()
		if room > 0 {
			w.buf.Write(p[:room])
		}
		return len(p), nil
	}
	w.buf.Write(p)

	if w.onLine != nil {
		w.pending = append(w.pending, p...)
		for {
			i := bytes.IndexByte(w.pending, '\n')
			if i < 0 {
				break
			}
			w.onLine(strings.TrimRight(string(w.pending[:i]), "\r"))
			w.pending = w.pending[i+1:]
		}
	}
	return len(p), nil
}

func (w *outputWriter) flush() {
	if w.onLine != nil && len(w.pending) > 0 {
		w.onLine(strings.TrimRight(string(w.pending), "\r"))
		w.pending = nil
	}
}
