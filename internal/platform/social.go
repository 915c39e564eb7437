package platform

import "regexp"

// InstagramClassifier matches reel, post and IGTV URLs
type InstagramClassifier struct {
	pattern   *regexp.Regexp
	idPattern *regexp.Regexp
}

// NewInstagramClassifier creates a new Instagram classifier
func NewInstagramClassifier() *InstagramClassifier {
	return &InstagramClassifier{
		pattern:   regexp.MustCompile(`instagram\.com/(reel|p|tv)/`),
		idPattern: regexp.MustCompile(`instagram\.com/(?:reel|p|tv)/([A-Za-z0-9_-]+)`),
	}
}

func (c *InstagramClassifier) Kind() Kind { return KindInstagram }

func (c *InstagramClassifier) Matches(url string) bool {
	return c.pattern.MatchString(url)
}

func (c *InstagramClassifier) ExtractID(url string) (string, bool) {
	return submatch(c.idPattern, url)
}

// TikTokClassifier matches any tiktok.com URL; only /video/{digits} URLs carry an id.
type TikTokClassifier struct {
	pattern   *regexp.Regexp
	idPattern *regexp.Regexp
}

// NewTikTokClassifier creates a new TikTok classifier
func NewTikTokClassifier() *TikTokClassifier {
	return &TikTokClassifier{
		pattern:   regexp.MustCompile(`tiktok\.com/`),
		idPattern: regexp.MustCompile(`tiktok\.com/.*/video/(\d+)`),
	}
}

func (c *TikTokClassifier) Kind() Kind { return KindTikTok }

func (c *TikTokClassifier) Matches(url string) bool {
	return c.pattern.MatchString(url)
}

func (c *TikTokClassifier) ExtractID(url string) (string, bool) {
	return submatch(c.idPattern, url)
}
