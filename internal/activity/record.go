// Package activity writes the human-readable, date-partitioned activity log
// and parses it back.
//
// One record per line:
//
//	[2024-05-01 12:00:00] EVENT=DOWNLOAD_SUCCESS | IP=1.2.3.4 | PLATFORM=youtube | FORMAT=mp3
package activity

import (
	"strings"
	"time"
)

const (
	// TimestampLayout is the layout inside the leading brackets.
	TimestampLayout = "2006-01-02 15:04:05"

	// DateLayout names the per-day files.
	DateLayout = "2006-01-02"

	// FileExt is the suffix of every log file.
	FileExt = ".log"

	// EventKey is always the first field of a record.
	EventKey = "EVENT"

	fieldSep = " | "
)

// Field is one KEY=VALUE token
type Field struct {
	Key   string
	Value string
}

// Record is a parsed or about-to-be-written log line.
type Record struct {
	Timestamp string
	Fields    []Field
}

// Get returns the value for key, or "" when absent.
func (r Record) Get(key string) string {
	for _, f := range r.Fields {
		if f.Key == key {
			return f.Value
		}
	}
	return ""
}

// Event returns the EVENT field.
func (r Record) Event() string {
	return r.Get(EventKey)
}

// Map returns the fields keyed by name.
func (r Record) Map() map[string]string {
	m := make(map[string]string, len(r.Fields))
	for _, f := range r.Fields {
		m[f.Key] = f.Value
	}
	return m
}

// FileName returns the log file name for the calendar day of t.
func FileName(t time.Time) string {
	return t.Format(DateLayout) + FileExt
}

// FormatLine renders r as a single log line without the trailing newline.
func FormatLine(r Record) string {
	var sb strings.Builder
	sb.WriteByte('[')
	sb.WriteString(r.Timestamp)
	sb.WriteString("] ")
	for i, f := range r.Fields {
		if i > 0 {
			sb.WriteString(fieldSep)
		}
		sb.WriteString(sanitizeKey(f.Key))
		sb.WriteByte('=')
		sb.WriteString(sanitizeValue(f.Value))
	}
	return sb.String()
}

// ParseLine reverses FormatLine. It reports false for lines that are not
// records, such as blank lines or text written by something else.
//
// The round trip is lossy where FormatLine sanitised a value: an empty or
// blank value comes back as "-", "|" comes back as "/" and line breaks as
// spaces. Readers must treat "-" as "not recorded".
func ParseLine(line string) (Record, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "[") {
		return Record{}, false
	}
	end := strings.IndexByte(line, ']')
	if end < 0 {
		return Record{}, false
	}

	rec := Record{Timestamp: line[1:end]}
	for _, token := range strings.Split(line[end+1:], "|") {
		key, value, ok := strings.Cut(strings.TrimSpace(token), "=")
		if !ok || key == "" {
			continue
		}
		rec.Fields = append(rec.Fields, Field{Key: key, Value: strings.TrimSpace(value)})
	}
	if len(rec.Fields) == 0 {
		return Record{}, false
	}
	return rec, true
}

// sanitizeValue keeps a value on one line and out of the separator's way.
func sanitizeValue(v string) string {
	v = strings.NewReplacer("|", "/", "\r", " ", "\n", " ").Replace(v)
	v = strings.TrimSpace(v)
	if v == "" {
		return "-"
	}
	return v
}

func sanitizeKey(k string) string {
	k = strings.ToUpper(strings.TrimSpace(k))
	return strings.NewReplacer("=", "_", "|", "_", " ", "_", "\r", "", "\n", "").Replace(k)
}
