package cache

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/reelfetch/reelfetch/internal/logger"
)

type info struct {
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
}

func TestNilCache(t *testing.T) {
	var c *Cache
	ctx := context.Background()

	if c.Enabled() {
		t.Error("nil cache should report disabled")
	}
	var dst info
	if c.GetJSON(ctx, "k", &dst) {
		t.Error("nil cache should always miss")
	}
	if err := c.SetJSON(ctx, "k", info{}); err != nil {
		t.Errorf("SetJSON() on nil cache = %v", err)
	}
	if err := c.Ping(ctx); err == nil {
		t.Error("Ping() on nil cache should fail")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil cache = %v", err)
	}
}

func TestKey(t *testing.T) {
	a := Key("https://youtu.be/dQw4w9WgXcQ")
	b := Key("https://youtu.be/dQw4w9WgXcQ")
	c := Key("https://youtu.be/other")

	if a != b {
		t.Error("Key() must be deterministic")
	}
	if a == c {
		t.Error("different URLs must not share a key")
	}
	if !strings.HasPrefix(a, keyPrefix) || len(a) != len(keyPrefix)+64 {
		t.Errorf("unexpected key %q", a)
	}
}

func TestNew_BadURL(t *testing.T) {
	if _, err := New("not a url", time.Minute, logger.Discard()); err == nil {
		t.Error("expected error for malformed redis URL")
	}
}

func TestCache_RoundTrip(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379/15"
	}

	c, err := New(redisURL, time.Minute, logger.Discard())
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	key := Key("https://youtu.be/test-" + time.Now().Format(time.RFC3339Nano))
	defer c.client.Del(ctx, key)

	var miss info
	if c.GetJSON(ctx, key, &miss) {
		t.Fatal("expected miss before set")
	}

	if err := c.SetJSON(ctx, key, info{Title: "Never Gonna", Duration: 212}); err != nil {
		t.Fatalf("SetJSON() error = %v", err)
	}

	var got info
	if !c.GetJSON(ctx, key, &got) {
		t.Fatal("expected hit after set")
	}
	if got.Title != "Never Gonna" || got.Duration != 212 {
		t.Errorf("got %+v", got)
	}

	if ttl := c.client.TTL(ctx, key).Val(); ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v, want (0, 1m]", ttl)
	}
}
