package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"time"
)

// maxMetadataOutput bounds --dump-json output.
const maxMetadataOutput = 16 * 1024 * 1024

// Output is the subset of yt-dlp --dump-json we read
type Output struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Uploader   string  `json:"uploader"`
	Channel    string  `json:"channel"`
	Duration   float64 `json:"duration"`
	Thumbnail  string  `json:"thumbnail"`
	Thumbnails []Thumb `json:"thumbnails"`
	ViewCount  int64   `json:"view_count"`
	WebpageURL string  `json:"webpage_url"`
	Extractor  string  `json:"extractor"`
}

// Thumb represents a thumbnail entry
type Thumb struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// VideoInfo is the metadata returned to clients by /api/video-info.
type VideoInfo struct {
	Title     string  `json:"title"`
	Duration  float64 `json:"duration"`
	Thumbnail string  `json:"thumbnail"`
	Uploader  string  `json:"uploader"`
	ViewCount int64   `json:"view_count"`
}

// ToVideoInfo fills in the client-facing defaults for missing fields.
func (o *Output) ToVideoInfo() *VideoInfo {
	info := &VideoInfo{
		Title:     o.Title,
		Duration:  o.Duration,
		Thumbnail: o.Thumbnail,
		Uploader:  o.Uploader,
		ViewCount: o.ViewCount,
	}

	if info.Title == "" {
		info.Title = "Unknown Title"
	}
	if info.Thumbnail == "" && len(o.Thumbnails) > 0 {
		info.Thumbnail = o.Thumbnails[len(o.Thumbnails)-1].URL
	}
	if info.Uploader == "" {
		info.Uploader = o.Channel
	}
	if info.Uploader == "" {
		info.Uploader = "Unknown"
	}
	return info
}

// MetadataArgs returns the argument vector for a metadata-only run. The URL
// follows "--" so it can never be read as an option.
func MetadataArgs(sourceURL string) []string {
	return []string{"--dump-json", "--no-download", "--no-warnings", "--", sourceURL}
}

// GetMetadata retrieves metadata for a URL without downloading. Playlists
// print one object per line; only the first is read.
func GetMetadata(ctx context.Context, ex Extractor, sourceURL string, timeout time.Duration) (*VideoInfo, error) {
	out, err := ex.Extract(ctx, Invocation{
		Args:      MetadataArgs(sourceURL),
		Timeout:   timeout,
		MaxOutput: maxMetadataOutput,
	})
	if err != nil {
		return nil, err
	}

	var o Output
	if err := json.NewDecoder(bytes.NewReader(out)).Decode(&o); err != nil {
		return nil, &DownloadError{URL: sourceURL, Message: "failed to parse metadata", Err: ErrMalformedOutput}
	}
	return o.ToVideoInfo(), nil
}
