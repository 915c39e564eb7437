package ytdlp

import "errors"

var (
	// ErrURLNotSupported indicates yt-dlp has no extractor for the URL
	ErrURLNotSupported = errors.New("url not supported")

	// ErrVideoUnavailable indicates the video was removed or never existed
	ErrVideoUnavailable = errors.New("video unavailable")

	// ErrVideoPrivate indicates the video is private
	ErrVideoPrivate = errors.New("video is private")

	// ErrAgeRestricted indicates the content requires a signed-in, age-verified account
	ErrAgeRestricted = errors.New("content is age-restricted")

	// ErrNetworkError indicates yt-dlp could not reach the platform
	ErrNetworkError = errors.New("network error")

	// ErrToolNotFound indicates the executable is not installed or not on PATH
	ErrToolNotFound = errors.New("executable not found")

	// ErrDownloadFailed is the catch-all for a non-zero exit
	ErrDownloadFailed = errors.New("download failed")

	// ErrTimeout indicates the invocation exceeded its wall-clock limit
	ErrTimeout = errors.New("extractor timed out")

	// ErrOutputTooLarge indicates stdout exceeded the invocation's output allowance
	ErrOutputTooLarge = errors.New("extractor output exceeded limit")

	// ErrMalformedOutput indicates --dump-json output could not be decoded
	ErrMalformedOutput = errors.New("malformed extractor output")
)

// DownloadError wraps an extractor failure with the URL it was run against.
type DownloadError struct {
	URL     string
	Message string
	Err     error
}

func (e *DownloadError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}
