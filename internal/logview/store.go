// Package logview reads the activity log back for the admin dashboard.
package logview

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/reelfetch/reelfetch/internal/activity"
)

// ErrInvalidDate indicates a date that is not YYYY-MM-DD
var ErrInvalidDate = errors.New("invalid date")

// maxLineSize bounds a single log line.
const maxLineSize = 1024 * 1024

// Store lists and loads the per-day activity files in a directory.
type Store struct {
	dir string
}

// NewStore creates a store over dir
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// ValidDate reports whether s is a calendar date in YYYY-MM-DD form.
func ValidDate(s string) bool {
	_, err := time.Parse(activity.DateLayout, s)
	return err == nil
}

// Dates returns the dates that have a log file, most recent first.
func (s *Store) Dates() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var dates []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		date, ok := strings.CutSuffix(e.Name(), activity.FileExt)
		if ok && ValidDate(date) {
			dates = append(dates, date)
		}
	}
	// ISO dates sort lexically.
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}

// Load returns the records for date, most recent first. When search is set
// only lines containing it, compared with Unicode case folding, are kept.
// Lines that do not parse as records are skipped. A date with no file yields
// no records and no error.
func (s *Store) Load(date, search string) ([]activity.Record, error) {
	if !ValidDate(date) {
		return nil, ErrInvalidDate
	}

	f, err := os.Open(filepath.Join(s.dir, date+activity.FileExt))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(search))

	var records []activity.Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		if needle != "" && !strings.Contains(fold.String(line), needle) {
			continue
		}
		if rec, ok := activity.ParseLine(line); ok {
			records = append(records, rec)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// Stats are the dashboard's summary counters
type Stats struct {
	Total     int
	Successes int
	Failures  int
	UniqueIPs int
}

// Summarize counts events, download outcomes and distinct client addresses.
func Summarize(records []activity.Record) Stats {
	ips := make(map[string]struct{})
	stats := Stats{Total: len(records)}

	for _, r := range records {
		switch r.Event() {
		case activity.TagDownloadSuccess:
			stats.Successes++
		case activity.TagDownloadFailed:
			stats.Failures++
		}
		if ip := r.Get("IP"); ip != "" && ip != "-" {
			ips[ip] = struct{}{}
		}
	}
	stats.UniqueIPs = len(ips)
	return stats
}
