package activity

import (
	"regexp"
	"strings"
)

// Agent is the coarse classification of a User-Agent header.
type Agent struct {
	Browser string
	OS      string
	Device  string
}

const unknown = "Unknown"

var (
	botPattern     = regexp.MustCompile(`(?i)bot|crawler|spider|slurp|curl/|wget/|python-requests|go-http-client`)
	windowsPattern = regexp.MustCompile(`Windows NT (\d+\.\d+)`)
	androidPattern = regexp.MustCompile(`Android (\d+(?:\.\d+)*)`)
	androidModel   = regexp.MustCompile(`Android [^;)]*; ([^;)]+?) Build/`)
	iosPattern     = regexp.MustCompile(`OS (\d+)_(\d+)(?:_\d+)? like Mac OS X`)
	macPattern     = regexp.MustCompile(`Mac OS X (\d+)[_.](\d+)`)
)

var windowsVersions = map[string]string{
	"10.0": "10/11",
	"6.3":  "8.1",
	"6.2":  "8",
	"6.1":  "7",
}

// ParseUserAgent classifies ua. Each test runs in a fixed order so a string
// carrying several tokens (Edge also says Chrome and Safari) resolves to one
// label. Refinements fall back to the bare family name when they fail.
func ParseUserAgent(ua string) Agent {
	if strings.TrimSpace(ua) == "" {
		return Agent{Browser: unknown, OS: unknown, Device: unknown}
	}
	return Agent{
		Browser: browserOf(ua),
		OS:      osOf(ua),
		Device:  deviceOf(ua),
	}
}

func browserOf(ua string) string {
	switch {
	case strings.Contains(ua, "Edg/"), strings.Contains(ua, "Edge/"), strings.Contains(ua, "EdgA/"):
		return "Edge"
	case strings.Contains(ua, "OPR/"), strings.Contains(ua, "Opera"):
		return "Opera"
	case strings.Contains(ua, "SamsungBrowser/"):
		return "Samsung Internet"
	case strings.Contains(ua, "Chrome/"), strings.Contains(ua, "CriOS/"):
		return "Chrome"
	case strings.Contains(ua, "Firefox/"), strings.Contains(ua, "FxiOS/"):
		return "Firefox"
	case strings.Contains(ua, "Safari/"):
		return "Safari"
	default:
		return unknown
	}
}

func osOf(ua string) string {
	switch {
	case strings.Contains(ua, "Windows"):
		if m := windowsPattern.FindStringSubmatch(ua); m != nil {
			if name, ok := windowsVersions[m[1]]; ok {
				return "Windows " + name
			}
			return "Windows NT " + m[1]
		}
		return "Windows"

	case strings.Contains(ua, "Android"):
		name := "Android"
		if m := androidPattern.FindStringSubmatch(ua); m != nil {
			name += " " + m[1]
		}
		if m := androidModel.FindStringSubmatch(ua); m != nil {
			name += " (" + strings.TrimSpace(m[1]) + ")"
		}
		return name

	case strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPad"), strings.Contains(ua, "iPod"):
		if m := iosPattern.FindStringSubmatch(ua); m != nil {
			return "iOS " + m[1] + "." + m[2]
		}
		return "iOS"

	case strings.Contains(ua, "Mac OS X"), strings.Contains(ua, "Macintosh"):
		if m := macPattern.FindStringSubmatch(ua); m != nil {
			return "macOS " + m[1] + "." + m[2]
		}
		return "macOS"

	case strings.Contains(ua, "CrOS"):
		return "ChromeOS"

	case strings.Contains(ua, "Linux"):
		return "Linux"

	default:
		return unknown
	}
}

func deviceOf(ua string) string {
	switch {
	case botPattern.MatchString(ua):
		return "Bot"
	case strings.Contains(ua, "iPad"), strings.Contains(ua, "Tablet"),
		strings.Contains(ua, "Android") && !strings.Contains(ua, "Mobile"):
		return "Tablet"
	case strings.Contains(ua, "Mobi"), strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPod"):
		return "Mobile"
	default:
		return "Desktop"
	}
}
