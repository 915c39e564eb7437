package platform

import "regexp"

// youtubeIDPattern captures the 11 character video id from watch, shorts and youtu.be URLs.
var youtubeIDPattern = regexp.MustCompile(`(?:youtube\.com/(?:watch\?v=|shorts/)|youtu\.be/)([a-zA-Z0-9_-]{11})`)

// YouTubeClassifier matches regular YouTube watch and youtu.be URLs
type YouTubeClassifier struct {
	pattern *regexp.Regexp
}

// NewYouTubeClassifier creates a new YouTube classifier
func NewYouTubeClassifier() *YouTubeClassifier {
	return &YouTubeClassifier{
		pattern: regexp.MustCompile(`youtube\.com/watch|youtu\.be/`),
	}
}

func (c *YouTubeClassifier) Kind() Kind { return KindYouTube }

func (c *YouTubeClassifier) Matches(url string) bool {
	return c.pattern.MatchString(url)
}

func (c *YouTubeClassifier) ExtractID(url string) (string, bool) {
	return submatch(youtubeIDPattern, url)
}

// YouTubeShortsClassifier matches youtube.com/shorts/ URLs
type YouTubeShortsClassifier struct {
	pattern *regexp.Regexp
}

// NewYouTubeShortsClassifier creates a new YouTube Shorts classifier
func NewYouTubeShortsClassifier() *YouTubeShortsClassifier {
	return &YouTubeShortsClassifier{
		pattern: regexp.MustCompile(`youtube\.com/shorts/`),
	}
}

func (c *YouTubeShortsClassifier) Kind() Kind { return KindYouTubeShorts }

func (c *YouTubeShortsClassifier) Matches(url string) bool {
	return c.pattern.MatchString(url)
}

func (c *YouTubeShortsClassifier) ExtractID(url string) (string, bool) {
	return submatch(youtubeIDPattern, url)
}

func submatch(re *regexp.Regexp, s string) (string, bool) {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 || m[1] == "" {
		return "", false
	}
	return m[1], true
}
