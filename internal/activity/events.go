package activity

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Event tags as written in the EVENT field
const (
	TagDownloadStart   = "DOWNLOAD_START"
	TagDownloadSuccess = "DOWNLOAD_SUCCESS"
	TagDownloadFailed  = "DOWNLOAD_FAILED"
	TagVideoInfo       = "VIDEO_INFO"
	TagVideoInfoFailed = "VIDEO_INFO_FAILED"
	TagPlatformDetect  = "PLATFORM_DETECT"
	TagAdminView       = "ADMIN_VIEW"
	TagAdminDenied     = "ADMIN_DENIED"
)

// maxErrorLen bounds the ERROR field.
const maxErrorLen = 200

// Event is one of the structs below. The set is closed; fields are
// serialised only when the record is written.
type Event interface {
	tag() string
	fields() []Field
}

// DownloadStarted is recorded when a download request passes validation.
type DownloadStarted struct {
	URL      string
	Platform string
	Format   string
}

func (DownloadStarted) tag() string { return TagDownloadStart }
func (e DownloadStarted) fields() []Field {
	return []Field{{"URL", e.URL}, {"PLATFORM", e.Platform}, {"FORMAT", e.Format}}
}

// DownloadSucceeded is recorded once the artifact has been streamed.
type DownloadSucceeded struct {
	URL      string
	Platform string
	Format   string
	File     string
	Bytes    int64
	Duration time.Duration
}

func (DownloadSucceeded) tag() string { return TagDownloadSuccess }
func (e DownloadSucceeded) fields() []Field {
	return []Field{
		{"URL", e.URL},
		{"PLATFORM", e.Platform},
		{"FORMAT", e.Format},
		{"FILE", e.File},
		{"SIZE", formatBytes(e.Bytes)},
		{"DURATION", e.Duration.Round(time.Millisecond).String()},
	}
}

// DownloadFailed is recorded for any download that did not complete.
type DownloadFailed struct {
	URL      string
	Platform string
	Format   string
	Err      error
}

func (DownloadFailed) tag() string { return TagDownloadFailed }
func (e DownloadFailed) fields() []Field {
	return []Field{{"URL", e.URL}, {"PLATFORM", e.Platform}, {"FORMAT", e.Format}, {"ERROR", errorText(e.Err)}}
}

// InfoRequested is recorded for a successful metadata lookup.
type InfoRequested struct {
	URL      string
	Platform string
	Title    string
	Cached   bool
}

func (InfoRequested) tag() string { return TagVideoInfo }
func (e InfoRequested) fields() []Field {
	return []Field{{"URL", e.URL}, {"PLATFORM", e.Platform}, {"TITLE", e.Title}, {"CACHED", fmt.Sprint(e.Cached)}}
}

// InfoFailed is recorded when a metadata lookup fails.
type InfoFailed struct {
	URL      string
	Platform string
	Err      error
}

func (InfoFailed) tag() string { return TagVideoInfoFailed }
func (e InfoFailed) fields() []Field {
	return []Field{{"URL", e.URL}, {"PLATFORM", e.Platform}, {"ERROR", errorText(e.Err)}}
}

// PlatformDetected is recorded for /api/detect-platform.
type PlatformDetected struct {
	URL      string
	Platform string
}

func (PlatformDetected) tag() string { return TagPlatformDetect }
func (e PlatformDetected) fields() []Field {
	return []Field{{"URL", e.URL}, {"PLATFORM", e.Platform}}
}

// AdminViewed is recorded when the dashboard is rendered.
type AdminViewed struct {
	Date   string
	Search string
}

func (AdminViewed) tag() string { return TagAdminView }
func (e AdminViewed) fields() []Field {
	return []Field{{"DATE", e.Date}, {"SEARCH", e.Search}}
}

// AdminDenied is recorded for a wrong or throttled password attempt.
type AdminDenied struct {
	Throttled bool
}

func (AdminDenied) tag() string { return TagAdminDenied }
func (e AdminDenied) fields() []Field {
	return []Field{{"THROTTLED", fmt.Sprint(e.Throttled)}}
}

func errorText(err error) string {
	if err == nil {
		return "-"
	}
	msg := err.Error()
	if len(msg) > maxErrorLen {
		// Cut on a rune boundary.
		cut := maxErrorLen
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	return strings.TrimSpace(msg)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
