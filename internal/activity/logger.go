package activity

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/reelfetch/reelfetch/internal/logger"
	"github.com/reelfetch/reelfetch/internal/metrics"
)

// Logger appends records to {dir}/{YYYY-MM-DD}.log and mirrors each line to
// stderr. Writes are serialised; failures are reported to the diagnostics
// logger and never to the caller.
type Logger struct {
	dir     string
	mirror  io.Writer
	diag    *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu       sync.Mutex
	file     *os.File
	fileName string
}

// New creates an activity logger writing under dir.
func New(dir string, diag *logger.Logger, m *metrics.Metrics) *Logger {
	if diag == nil {
		diag = logger.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Logger{
		dir:     dir,
		mirror:  os.Stderr,
		diag:    diag.WithComponent("activity"),
		metrics: m,
		now:     time.Now,
	}
}

// Dir returns the directory the log files live in.
func (l *Logger) Dir() string {
	return l.dir
}

// Record writes ev with the client details taken from r. r may be nil for
// events that have no request.
func (l *Logger) Record(r *http.Request, ev Event) {
	fields := make([]Field, 0, 8)
	fields = append(fields, Field{EventKey, ev.tag()})

	if r != nil {
		agent := ParseUserAgent(r.UserAgent())
		fields = append(fields,
			Field{"IP", ClientIP(r)},
			Field{"BROWSER", agent.Browser},
			Field{"OS", agent.OS},
			Field{"DEVICE", agent.Device},
		)
	}
	fields = append(fields, ev.fields()...)

	l.Write(fields)
}

// Write stamps fields with the current time and appends the line.
func (l *Logger) Write(fields []Field) {
	now := l.now()
	line := FormatLine(Record{Timestamp: now.Format(TimestampLayout), Fields: fields}) + "\n"

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.mirror != nil {
		io.WriteString(l.mirror, line)
	}

	f, err := l.fileFor(now)
	if err == nil {
		_, err = f.WriteString(line)
	}
	if err != nil {
		l.metrics.IncCounter(metrics.ActivityWriteFails)
		l.diag.Error(context.Background(), "failed to write activity log", err, map[string]interface{}{
			"dir": l.dir,
		})
	}
}

// fileFor returns the open file for now's date, rotating at midnight.
// Caller holds l.mu.
func (l *Logger) fileFor(now time.Time) (*os.File, error) {
	name := FileName(now)
	if l.file != nil && l.fileName == name {
		return l.file, nil
	}
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	f, err := os.OpenFile(filepath.Join(l.dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	l.file = f
	l.fileName = name
	return f, nil
}

// Close closes the current file. Later writes reopen it.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.fileName = ""
	return err
}

// ClientIP returns the first X-Forwarded-For entry, then X-Real-IP, then the
// socket peer address, else "Unknown".
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return PeerIP(r)
}

// PeerIP returns the host of the socket peer, ignoring forwarding headers,
// else "Unknown". Anything that limits or blocks by address keys on this,
// since the headers ClientIP prefers are set by the client.
func PeerIP(r *http.Request) string {
	if r.RemoteAddr == "" {
		return unknown
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
