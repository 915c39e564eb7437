// Package platform classifies source URLs by pattern matching. It never
// touches the network.
package platform

import (
	"fmt"
	"time"
)

// Kind identifies the platform a URL belongs to
type Kind string

const (
	KindYouTube       Kind = "youtube"
	KindYouTubeShorts Kind = "youtube_shorts"
	KindInstagram     Kind = "instagram"
	KindTikTok        Kind = "tiktok"
	KindUnknown       Kind = "unknown"
)

var labels = map[Kind]string{
	KindYouTube:       "YouTube",
	KindYouTubeShorts: "YouTube Shorts",
	KindInstagram:     "Instagram",
	KindTikTok:        "TikTok",
}

// Label returns the human-readable platform name, or "" for KindUnknown.
func Label(k Kind) string {
	return labels[k]
}

// IsYouTube reports whether k is one of the YouTube variants.
func (k Kind) IsYouTube() bool {
	return k == KindYouTube || k == KindYouTubeShorts
}

// fallbackPrefix is used to build a synthetic content id when extraction fails.
func fallbackPrefix(k Kind) string {
	switch k {
	case KindYouTube, KindYouTubeShorts:
		return "yt"
	case KindInstagram:
		return "ig"
	case KindTikTok:
		return "tt"
	default:
		return "dl"
	}
}

func syntheticID(k Kind, now time.Time) string {
	return fmt.Sprintf("%s_%d", fallbackPrefix(k), now.UnixMilli())
}

// Classifier recognises the URLs of a single platform.
type Classifier interface {
	// Kind returns the platform this classifier handles
	Kind() Kind

	// Matches reports whether the URL belongs to the platform
	Matches(url string) bool

	// ExtractID returns the platform content id, if the URL carries one
	ExtractID(url string) (string, bool)
}

var defaultRegistry = DefaultRegistry()

// Classify returns the platform of url using the default registry.
func Classify(url string) Kind {
	return defaultRegistry.Classify(url)
}

// IsSupported reports whether url belongs to any supported platform.
func IsSupported(url string) bool {
	return defaultRegistry.Classify(url) != KindUnknown
}

// ExtractContentID returns the content id for url on platform k, falling back
// to a synthetic "{prefix}_{unixMillis}" id. The result is never empty.
func ExtractContentID(url string, k Kind) string {
	return defaultRegistry.ExtractContentID(url, k, time.Now())
}
