package ytdlp

import (
	"strconv"
	"strings"
)

// Progress statuses reported by ParseProgress
const (
	StatusDownloading = "downloading"
	StatusConverting  = "converting"
	StatusFinalizing  = "finalizing"
)

// ParseProgress extracts progress percentage and status from a yt-dlp
// --newline output line. Lines that carry no progress return status "".
func ParseProgress(line string) (percent float64, status string) {
	line = strings.TrimSpace(line)

	// [download]  45.2% of 5.00MiB at 1.00MiB/s ETA 00:03
	switch {
	case strings.HasPrefix(line, "[download]"):
		parts := strings.Fields(line)
		if len(parts) >= 2 && strings.HasSuffix(parts[1], "%") {
			p, err := strconv.ParseFloat(strings.TrimSuffix(parts[1], "%"), 64)
			if err == nil {
				return p, StatusDownloading
			}
		}
	case strings.HasPrefix(line, "[Merger]"),
		strings.HasPrefix(line, "[ExtractAudio]"),
		strings.HasPrefix(line, "[ThumbnailsConvertor]"),
		strings.HasPrefix(line, "[SubtitlesConvertor]"):
		return 100, StatusConverting
	case strings.Contains(line, "Deleting original file"):
		return 100, StatusFinalizing
	}
	return 0, ""
}
