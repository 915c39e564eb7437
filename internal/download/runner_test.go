package download

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/reelfetch/reelfetch/internal/logger"
	"github.com/reelfetch/reelfetch/internal/metrics"
	"github.com/reelfetch/reelfetch/internal/ytdlp"
)

var fixedNow = time.UnixMilli(1700000000000)

// fakeExtractor records invocations and writes the configured files next to
// the -o template, as yt-dlp would.
type fakeExtractor struct {
	mu          sync.Mutex
	invocations []ytdlp.Invocation
	files       []string // suffixes appended to the template prefix, e.g. ".mp4"
	stdout      []string
	err         error
	ctxErr      error
}

func (f *fakeExtractor) Extract(ctx context.Context, inv ytdlp.Invocation) ([]byte, error) {
	f.mu.Lock()
	f.invocations = append(f.invocations, inv)
	f.ctxErr = ctx.Err()
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	for _, line := range f.stdout {
		if inv.OnLine != nil {
			inv.OnLine(line)
		}
	}

	template := argAfter(inv.Args, "-o")
	base := strings.TrimSuffix(template, ".%(ext)s")
	for _, suffix := range f.files {
		if err := os.WriteFile(base+suffix, []byte("data"), 0644); err != nil {
			return nil, err
		}
	}
	return []byte(strings.Join(f.stdout, "\n")), nil
}

func (f *fakeExtractor) Version(context.Context) (string, error)      { return "2024.08.06", nil }
func (f *fakeExtractor) MuxerVersion(context.Context) (string, error) { return "ffmpeg version 6.1", nil }

func argAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func newTestRunner(t *testing.T, ex ytdlp.Extractor) (*Runner, string) {
	t.Helper()
	dir := t.TempDir()
	r := NewRunner(ex, Config{Dir: dir, Timeout: time.Minute}, logger.Discard(), metrics.New())
	r.now = func() time.Time { return fixedNow }
	return r, dir
}

func TestRunner_Plan_Commands(t *testing.T) {
	r, dir := newTestRunner(t, &fakeExtractor{})
	template := filepath.Join(dir, "dQw4w9WgXcQ_1700000000000.%(ext)s")
	url := "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

	tests := []struct {
		format string
		args   []string
		ext    string
	}{
		{
			format: "thumbnail",
			args:   []string{"--write-thumbnail", "--skip-download", "--convert-thumbnails", "jpg", "-o", template, "--", url},
			ext:    "jpg",
		},
		{
			format: "subtitle",
			args:   []string{"--write-auto-sub", "--sub-lang", "en", "--skip-download", "--convert-subs", "srt", "-o", template, "--", url},
			ext:    "srt",
		},
		{
			format: "mp3",
			args:   []string{"-f", "bestaudio", "-x", "--audio-format", "mp3", "--audio-quality", "0", "-o", template, "--", url},
			ext:    "mp3",
		},
		{
			format: "720p",
			args: []string{"-f", "bestvideo[height<=720][ext=mp4]+bestaudio[ext=m4a]/bestvideo[height<=720]+bestaudio/best[height<=720]",
				"--merge-output-format", "mp4", "-o", template, "--", url},
			ext: "mp4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			spec, err := r.Plan(Request{URL: url, Format: tt.format})
			if err != nil {
				t.Fatalf("Plan() error = %v", err)
			}
			if spec.Extension != tt.ext {
				t.Errorf("Extension = %q, want %q", spec.Extension, tt.ext)
			}
			if spec.Prefix != "dQw4w9WgXcQ_1700000000000" {
				t.Errorf("Prefix = %q", spec.Prefix)
			}
			if strings.Join(spec.Args, " ") != strings.Join(tt.args, " ") {
				t.Errorf("Args =\n  %v\nwant\n  %v", spec.Args, tt.args)
			}
		})
	}
}

func TestRunner_Plan_Validation(t *testing.T) {
	r, _ := newTestRunner(t, &fakeExtractor{})

	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{"empty url", Request{URL: "", Format: "mp3"}, ErrInvalidURL},
		{"not http", Request{URL: "ftp://youtube.com/watch?v=dQw4w9WgXcQ", Format: "mp3"}, ErrInvalidURL},
		{"option injection", Request{URL: "--exec=id youtu.be/x", Format: "mp3"}, ErrInvalidURL},
		{"unsupported", Request{URL: "https://example.com/x", Format: "mp3"}, ErrUnsupportedPlatform},
		{"unsupported wins over missing format", Request{URL: "https://example.com/x"}, ErrUnsupportedPlatform},
		{"missing format", Request{URL: "https://tiktok.com/@u/video/12345"}, ErrFormatRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Plan(tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Plan() error = %v, want %v", err, tt.wantErr)
			}
			if !IsClientError(err) {
				t.Errorf("IsClientError(%v) = false", err)
			}
		})
	}
}

func TestRunner_Run_SingleMatch(t *testing.T) {
	ex := &fakeExtractor{files: []string{".mp4"}}
	r, dir := newTestRunner(t, ex)

	art, err := r.Run(context.Background(), Request{URL: "https://tiktok.com/@u/video/12345", Format: "1080p"}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := filepath.Join(dir, "12345_1700000000000.mp4")
	if art.Path != want {
		t.Errorf("Path = %q, want %q", art.Path, want)
	}
	if art.Name != "12345_1700000000000.mp4" || art.Size != 4 {
		t.Errorf("unexpected artifact %+v", art)
	}

	inv := ex.invocations[0]
	if got := argAfter(inv.Args, "-f"); got != "best[ext=mp4]/best" {
		t.Errorf("selection = %q, want best[ext=mp4]/best", got)
	}
	for _, a := range inv.Args {
		if a == "--newline" {
			t.Error("--newline should only be passed when progress is requested")
		}
	}
	if inv.Timeout != time.Minute || inv.MaxOutput != DefaultMaxOutput {
		t.Errorf("Timeout/MaxOutput = %v/%d", inv.Timeout, inv.MaxOutput)
	}
}

func TestRunner_Run_NoMatch(t *testing.T) {
	// yt-dlp "succeeded" but wrote a file with the wrong extension.
	ex := &fakeExtractor{files: []string{".webm"}}
	r, _ := newTestRunner(t, ex)

	_, err := r.Run(context.Background(), Request{URL: "https://youtu.be/dQw4w9WgXcQ", Format: "mp3"}, nil)
	if !errors.Is(err, ErrArtifactNotFound) {
		t.Fatalf("Run() error = %v, want ErrArtifactNotFound", err)
	}
	if errors.Is(err, ErrExtractorFailed) {
		t.Error("not-found must be distinct from extractor failure")
	}
}

func TestRunner_Run_AmbiguousMatchPicksFirstByName(t *testing.T) {
	ex := &fakeExtractor{files: []string{".mp4", ".f137.mp4"}}
	r, dir := newTestRunner(t, ex)

	art, err := r.Run(context.Background(), Request{URL: "https://youtu.be/dQw4w9WgXcQ", Format: "1080p"}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := filepath.Join(dir, "dQw4w9WgXcQ_1700000000000.f137.mp4")
	if art.Path != want {
		t.Errorf("Path = %q, want %q (first in name order)", art.Path, want)
	}
}

func TestRunner_Run_ExtractorFailure(t *testing.T) {
	cause := &ytdlp.DownloadError{URL: "u", Message: "video unavailable", Err: ytdlp.ErrVideoUnavailable}
	ex := &fakeExtractor{err: cause}
	m := metrics.New()
	r := NewRunner(ex, Config{Dir: t.TempDir()}, logger.Discard(), m)

	_, err := r.Run(context.Background(), Request{URL: "https://youtu.be/dQw4w9WgXcQ", Format: "720p"}, nil)
	if !errors.Is(err, ErrExtractorFailed) {
		t.Fatalf("Run() error = %v, want ErrExtractorFailed", err)
	}
	if !errors.Is(err, ytdlp.ErrVideoUnavailable) {
		t.Error("extractor cause should stay reachable through errors.Is")
	}
	if len(ex.invocations) != 1 {
		t.Errorf("extractor called %d times, want exactly 1 (no retry)", len(ex.invocations))
	}
	if m.Counter(metrics.DownloadsFailed) != 1 || m.ActiveJobs() != 0 {
		t.Errorf("failed=%d active=%d", m.Counter(metrics.DownloadsFailed), m.ActiveJobs())
	}
}

func TestRunner_Run_Progress(t *testing.T) {
	ex := &fakeExtractor{
		files: []string{".mp3"},
		stdout: []string{
			"[youtube] Extracting URL",
			"[download]  12.5% of 3.00MiB",
			"[ExtractAudio] Destination: x.mp3",
		},
	}
	r, _ := newTestRunner(t, ex)

	var statuses []string
	progress := func(status string, pct float64) {
		statuses = append(statuses, status)
	}

	if _, err := r.Run(context.Background(), Request{URL: "https://youtu.be/dQw4w9WgXcQ", Format: "mp3"}, progress); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{StatusStarting, StatusDownloading, StatusConverting, StatusComplete}
	if strings.Join(statuses, ",") != strings.Join(want, ",") {
		t.Errorf("statuses = %v, want %v", statuses, want)
	}

	args := ex.invocations[0].Args
	if args[len(args)-3] != "--newline" || args[len(args)-2] != "--" {
		t.Errorf("expected --newline before the URL separator, got %v", args)
	}
}

func TestRunner_Run_DetachedFromCaller(t *testing.T) {
	ex := &fakeExtractor{files: []string{".jpg"}}
	r, _ := newTestRunner(t, ex)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Run(ctx, Request{URL: "https://instagram.com/reel/Cx1abc/", Format: "thumbnail"}, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if ex.ctxErr != nil {
		t.Errorf("extractor saw cancelled context: %v", ex.ctxErr)
	}
}

func TestFindArtifact(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"abc_1.en.srt", "abc_10.srt", "other_1.srt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "abc_1.dir.srt"), 0755); err != nil {
		t.Fatal(err)
	}

	got, err := FindArtifact(dir, "abc_1", "srt")
	if err != nil {
		t.Fatalf("FindArtifact() error = %v", err)
	}
	if filepath.Base(got) != "abc_1.en.srt" {
		t.Errorf("FindArtifact() = %q, want abc_1.en.srt", got)
	}

	if _, err := FindArtifact(dir, "abc_2", "srt"); !errors.Is(err, ErrArtifactNotFound) {
		t.Errorf("missing prefix error = %v, want ErrArtifactNotFound", err)
	}
	if _, err := FindArtifact(filepath.Join(dir, "nope"), "abc_1", "srt"); !errors.Is(err, ErrArtifactNotFound) {
		t.Errorf("missing dir error = %v, want ErrArtifactNotFound", err)
	}
}
