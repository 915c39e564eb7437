package download

import "errors"

var (
	// ErrInvalidURL indicates the URL is missing or not an http(s) URL
	ErrInvalidURL = errors.New("invalid url")

	// ErrUnsupportedPlatform indicates the URL matches no supported platform
	ErrUnsupportedPlatform = errors.New("unsupported platform")

	// ErrFormatRequired indicates the request named no output format
	ErrFormatRequired = errors.New("format is required")

	// ErrExtractorFailed indicates yt-dlp exited non-zero, timed out or
	// produced too much output. The extractor's own error is wrapped alongside.
	ErrExtractorFailed = errors.New("extractor failed")

	// ErrArtifactNotFound indicates yt-dlp succeeded but left no matching file
	ErrArtifactNotFound = errors.New("artifact not found")
)

// IsClientError reports whether err was caused by the request itself.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidURL) ||
		errors.Is(err, ErrUnsupportedPlatform) ||
		errors.Is(err, ErrFormatRequired)
}
