// Package janitor reclaims artifacts that outlived their request, independent
// of per-request deletion.
package janitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/reelfetch/reelfetch/internal/logger"
	"github.com/reelfetch/reelfetch/internal/metrics"
	"github.com/reelfetch/reelfetch/internal/stream"
)

const (
	DefaultInterval = 30 * time.Minute
	DefaultMaxAge   = time.Hour
)

// Config holds configuration for the janitor
type Config struct {
	Dir      string
	Interval time.Duration
	MaxAge   time.Duration
}

// Result summarises one sweep
type Result struct {
	Scanned int
	Deleted int
	Failed  int
}

// Janitor periodically deletes files older than MaxAge from Dir.
type Janitor struct {
	cfg     Config
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	wg       sync.WaitGroup
	stopChan chan struct{}
	mu       sync.Mutex
	running  bool
}

// New creates a new janitor
func New(cfg Config, log *logger.Logger, m *metrics.Metrics) *Janitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if log == nil {
		log = logger.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Janitor{
		cfg:     cfg,
		log:     log.WithComponent("janitor"),
		metrics: m,
		now:     time.Now,
	}
}

// Sweep deletes every regular file in Dir whose modification time is older
// than MaxAge. Individual failures are logged and counted, never returned.
func (j *Janitor) Sweep() Result {
	ctx := context.Background()
	var res Result

	entries, err := os.ReadDir(j.cfg.Dir)
	if err != nil {
		j.log.Warn(ctx, "sweep could not list directory", map[string]interface{}{
			"dir":   j.cfg.Dir,
			"error": err.Error(),
		})
		return res
	}

	cutoff := j.now().Add(-j.cfg.MaxAge)
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		res.Scanned++

		info, err := e.Info()
		if err != nil {
			// Deleted between listing and stat.
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			res.Failed++
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(j.cfg.Dir, e.Name())
		removed, err := stream.RemoveIfExists(path)
		switch {
		case err != nil:
			res.Failed++
			j.log.Warn(ctx, "failed to delete expired file", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
		case removed:
			res.Deleted++
		}
	}

	j.metrics.IncCounter(metrics.JanitorSweeps)
	j.metrics.AddCounter(metrics.JanitorReclaimed, uint64(res.Deleted))
	if res.Deleted > 0 || res.Failed > 0 {
		j.log.Info(ctx, "sweep complete", map[string]interface{}{
			"scanned": res.Scanned,
			"deleted": res.Deleted,
			"failed":  res.Failed,
		})
	}
	return res
}

// Start runs Sweep every Interval until Stop is called or ctx ends.
// Calling Start on a running janitor does nothing.
func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return
	}
	j.running = true
	j.stopChan = make(chan struct{})

	j.wg.Add(1)
	go j.loop(ctx, j.stopChan)

	j.log.Info(ctx, "janitor started", map[string]interface{}{
		"dir":      j.cfg.Dir,
		"interval": j.cfg.Interval.String(),
		"max_age":  j.cfg.MaxAge.String(),
	})
}

func (j *Janitor) loop(ctx context.Context, stop <-chan struct{}) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep()
		}
	}
}

// Stop halts the periodic sweep and waits for an in-flight sweep to finish.
func (j *Janitor) Stop(ctx context.Context) error {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = false
	close(j.stopChan)
	j.mu.Unlock()

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		j.log.Info(ctx, "janitor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning returns whether the periodic sweep is active
func (j *Janitor) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}
