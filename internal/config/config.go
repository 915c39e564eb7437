package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerAddr string

	DownloadsDir string
	LogsDir      string
	StaticDir    string

	// Admin log viewer secret. AdminPasswordHash (bcrypt) wins when set.
	// With neither set the viewer denies every login.
	AdminPassword     string
	AdminPasswordHash string

	YtdlpPath  string
	FfmpegPath string

	DownloadTimeout time.Duration
	InfoTimeout     time.Duration
	SettleDelay     time.Duration
	DeleteDelay     time.Duration
	MaxOutputBytes  int64

	JanitorInterval time.Duration
	JanitorMaxAge   time.Duration

	RedisURL     string
	InfoCacheTTL time.Duration

	AllowedOrigins []string
	LogLevel       string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first if present; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerAddr:        ":" + getEnvOrDefault("PORT", "3000"),
		DownloadsDir:      getEnvOrDefault("DOWNLOADS_DIR", "./downloads"),
		LogsDir:           getEnvOrDefault("LOGS_DIR", "./logs"),
		StaticDir:         getEnvOrDefault("STATIC_DIR", "./public"),
		AdminPassword:     os.Getenv("ADMIN_PASSWORD"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		YtdlpPath:         getEnvOrDefault("YTDLP_PATH", "yt-dlp"),
		FfmpegPath:        getEnvOrDefault("FFMPEG_PATH", "ffmpeg"),
		DownloadTimeout:   getDurationOrDefault("DOWNLOAD_TIMEOUT", 5*time.Minute),
		InfoTimeout:       getDurationOrDefault("INFO_TIMEOUT", 30*time.Second),
		SettleDelay:       getDurationOrDefault("SETTLE_DELAY", 500*time.Millisecond),
		DeleteDelay:       getDurationOrDefault("DELETE_DELAY", 30*time.Second),
		MaxOutputBytes:    200 * 1024 * 1024,
		JanitorInterval:   getDurationOrDefault("JANITOR_INTERVAL", 30*time.Minute),
		JanitorMaxAge:     getDurationOrDefault("JANITOR_MAX_AGE", time.Hour),
		RedisURL:          os.Getenv("REDIS_URL"),
		InfoCacheTTL:      getDurationOrDefault("INFO_CACHE_TTL", 10*time.Minute),
		AllowedOrigins:    splitList(getEnvOrDefault("ALLOWED_ORIGINS", "*")),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
	}
}

// EnsureDirs creates the downloads and logs directories.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.DownloadsDir, c.LogsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
