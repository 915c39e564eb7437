// Package format maps a requested output format and a platform to a yt-dlp
// selection expression.
package format

import (
	"fmt"
	"strings"

	"github.com/reelfetch/reelfetch/internal/platform"
)

// Format is the output tag a client asks for.
type Format string

const (
	Video1080 Format = "1080p"
	Video720  Format = "720p"
	Audio     Format = "mp3"
	Thumbnail Format = "thumbnail"
	Subtitle  Format = "subtitle"
	Best      Format = "best"
)

// Kind groups formats by the command template that serves them.
type Kind int

const (
	KindVideo Kind = iota
	KindAudio
	KindThumbnail
	KindSubtitle
)

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindThumbnail:
		return "thumbnail"
	case KindSubtitle:
		return "subtitle"
	default:
		return "video"
	}
}

// Parse normalises a wire value. Unknown tags are kept as-is and resolve to
// the generic best-effort selection.
func Parse(s string) Format {
	return Format(strings.ToLower(strings.TrimSpace(s)))
}

// Kind reports which command template serves f.
func (f Format) Kind() Kind {
	switch f {
	case Audio:
		return KindAudio
	case Thumbnail:
		return KindThumbnail
	case Subtitle:
		return KindSubtitle
	default:
		return KindVideo
	}
}

const (
	selectBest      = "best[ext=mp4]/best"
	selectBestAudio = "bestaudio"
	selectM4AAudio  = "bestaudio[ext=m4a]/bestaudio"
)

// ResolveSelection returns the selection expression for f on platform k.
//
// Instagram and TikTok expose a single rendition through yt-dlp, so any video
// request collapses to the best stream and resolution hints are ignored.
// YouTube requests with a height cap prefer a capped mp4+m4a pairing, then any
// capped pairing, then a single capped stream.
func ResolveSelection(f Format, k platform.Kind) string {
	switch k {
	case platform.KindInstagram, platform.KindTikTok:
		if f == Audio {
			return selectBestAudio
		}
		return selectBest
	}

	switch f {
	case Video1080:
		return cappedSelection(1080)
	case Video720:
		return cappedSelection(720)
	case Audio:
		return selectM4AAudio
	default:
		return selectBest
	}
}

func cappedSelection(height int) string {
	return fmt.Sprintf(
		"bestvideo[height<=%[1]d][ext=mp4]+bestaudio[ext=m4a]/bestvideo[height<=%[1]d]+bestaudio/best[height<=%[1]d]",
		height,
	)
}

// SplitFallbacks returns the tiers of a selection expression in preference order.
func SplitFallbacks(expr string) []string {
	if expr == "" {
		return nil
	}
	return strings.Split(expr, "/")
}
