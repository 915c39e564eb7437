// Package stream sends artifacts to HTTP clients and deletes them afterwards.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/reelfetch/reelfetch/internal/download"
	"github.com/reelfetch/reelfetch/internal/logger"
	"github.com/reelfetch/reelfetch/internal/metrics"
)

// DefaultDeleteDelay gives slow clients time to drain their buffers.
const DefaultDeleteDelay = 30 * time.Second

var (
	// ErrNotCommitted means streaming failed before any byte reached the
	// client; the response is still clean and an error body may be sent.
	ErrNotCommitted = errors.New("stream failed before response was committed")

	// ErrPartial means the client received part of the file. Nothing more
	// may be written to the response.
	ErrPartial = errors.New("stream interrupted after response was committed")
)

// Streamer writes artifacts as attachments and owns their deferred deletion.
type Streamer struct {
	delay   time.Duration
	log     *logger.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	pending map[string]*time.Timer
	stopped bool
}

// New creates a new streamer
func New(delay time.Duration, log *logger.Logger, m *metrics.Metrics) *Streamer {
	if delay <= 0 {
		delay = DefaultDeleteDelay
	}
	if log == nil {
		log = logger.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Streamer{
		delay:   delay,
		log:     log.WithComponent("stream"),
		metrics: m,
		pending: make(map[string]*time.Timer),
	}
}

// Stream copies the artifact to w without buffering it in memory.
func (s *Streamer) Stream(w http.ResponseWriter, art *download.Artifact) (int64, error) {
	f, err := os.Open(art.Path)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrNotCommitted, err)
	}
	defer f.Close()

	size := art.Size
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	h := w.Header()
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": art.Name}))
	h.Set("Content-Type", "application/octet-stream")
	h.Set("Content-Length", strconv.FormatInt(size, 10))

	cw := &countingWriter{w: w}
	n, err := io.Copy(cw, f)
	if err == nil {
		s.metrics.AddCounter(metrics.BytesStreamed, uint64(n))
		return n, nil
	}

	if !cw.committed {
		h.Del("Content-Disposition")
		h.Del("Content-Type")
		h.Del("Content-Length")
		return 0, fmt.Errorf("%w: %w", ErrNotCommitted, err)
	}
	s.metrics.AddCounter(metrics.BytesStreamed, uint64(n))
	return n, fmt.Errorf("%w after %d bytes: %w", ErrPartial, n, err)
}

// countingWriter records whether the response has been committed. It does
// not expose io.ReaderFrom, which keeps the first Write observable.
type countingWriter struct {
	w         io.Writer
	committed bool
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if n > 0 {
		c.committed = true
	}
	return n, err
}

// Schedule deletes path after the grace delay. Scheduling the same path
// twice keeps the first timer.
func (s *Streamer) Schedule(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		go s.remove(path)
		return
	}
	if _, ok := s.pending[path]; ok {
		return
	}

	s.pending[path] = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		delete(s.pending, path)
		s.mu.Unlock()
		s.remove(path)
	})
}

// Pending returns the number of scheduled deletions that have not fired.
func (s *Streamer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Streamer) remove(path string) {
	removed, err := RemoveIfExists(path)
	if err != nil {
		s.log.Warn(context.Background(), "failed to delete artifact", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
		return
	}
	if removed {
		s.metrics.IncCounter(metrics.ArtifactsDeleted)
		s.log.Debug(context.Background(), "artifact deleted", map[string]interface{}{"path": path})
	}
}

// Stop cancels outstanding timers and deletes their files right away.
func (s *Streamer) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	paths := make([]string, 0, len(s.pending))
	for path, t := range s.pending {
		if t.Stop() {
			paths = append(paths, path)
		}
		delete(s.pending, path)
	}
	s.mu.Unlock()

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.remove(path)
	}
	return nil
}

// RemoveIfExists deletes path, reporting whether a file was removed. A file
// that is already gone is not an error.
func RemoveIfExists(path string) (bool, error) {
	if _, err := os.Lstat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
