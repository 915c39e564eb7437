package logview

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"sort"
	"strings"

	"github.com/reelfetch/reelfetch/internal/activity"
	"github.com/reelfetch/reelfetch/internal/logger"
	"github.com/reelfetch/reelfetch/internal/metrics"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

// columns shown in their own table cells; everything else goes to Details.
var columns = map[string]bool{
	activity.EventKey: true,
	"IP":              true,
	"PLATFORM":        true,
	"FORMAT":          true,
	"BROWSER":         true,
	"OS":              true,
	"DEVICE":          true,
}

// Row is one table row on the dashboard
type Row struct {
	Time     string
	Event    string
	IP       string
	Platform string
	Format   string
	Browser  string
	OS       string
	Device   string
	Details  string
}

type pageData struct {
	Message  string
	Password string
	Dates    []string
	Date     string
	Search   string
	Stats    Stats
	Rows     []Row
}

// Handler serves GET /admin/logs.
type Handler struct {
	store    *Store
	auth     *Authenticator
	activity *activity.Logger
	log      *logger.Logger
	metrics  *metrics.Metrics
	tmpl     *template.Template
}

// NewHandler creates a new log viewer handler
func NewHandler(store *Store, auth *Authenticator, act *activity.Logger, log *logger.Logger, m *metrics.Metrics) *Handler {
	if log == nil {
		log = logger.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	funcMap := template.FuncMap{
		"eventClass": eventClass,
	}
	tmpl := template.Must(template.New("logview").Funcs(funcMap).ParseFS(templateFS, "templates/*.gohtml"))

	return &Handler{
		store:    store,
		auth:     auth,
		activity: act,
		log:      log.WithComponent("logview"),
		metrics:  m,
		tmpl:     tmpl,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	password := q.Get("password")

	if password == "" {
		h.render(w, r, http.StatusOK, "login.gohtml", pageData{})
		return
	}

	switch h.auth.Check(activity.PeerIP(r), password) {
	case Throttled:
		h.deny(r, true)
		h.render(w, r, http.StatusTooManyRequests, "login.gohtml", pageData{
			Message: "Too many failed attempts. Try again later.",
		})
		return
	case Denied:
		h.deny(r, false)
		h.render(w, r, http.StatusOK, "login.gohtml", pageData{Message: "Invalid password"})
		return
	}

	dates, err := h.store.Dates()
	if err != nil {
		h.log.Error(r.Context(), "failed to list log files", err)
	}

	date := q.Get("date")
	if !ValidDate(date) {
		date = ""
	}
	if date == "" && len(dates) > 0 {
		date = dates[0]
	}
	search := strings.TrimSpace(q.Get("search"))

	var records []activity.Record
	if date != "" {
		records, err = h.store.Load(date, search)
		if err != nil {
			h.log.Error(r.Context(), "failed to read log file", err, map[string]interface{}{"date": date})
		}
	}

	if h.activity != nil {
		h.activity.Record(r, activity.AdminViewed{Date: date, Search: search})
	}

	h.render(w, r, http.StatusOK, "dashboard.gohtml", pageData{
		Password: password,
		Dates:    dates,
		Date:     date,
		Search:   search,
		Stats:    Summarize(records),
		Rows:     toRows(records),
	})
}

func (h *Handler) deny(r *http.Request, throttled bool) {
	h.metrics.IncCounter(metrics.AdminDenied)
	if h.activity != nil {
		h.activity.Record(r, activity.AdminDenied{Throttled: throttled})
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := h.tmpl.ExecuteTemplate(w, name, data); err != nil {
		h.log.Error(context.WithoutCancel(r.Context()), "failed to render template", err, map[string]interface{}{"template": name})
	}
}

func toRows(records []activity.Record) []Row {
	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		var extra []string
		for _, f := range rec.Fields {
			if !columns[f.Key] {
				extra = append(extra, f.Key+"="+f.Value)
			}
		}
		sort.Strings(extra)

		rows = append(rows, Row{
			Time:     rec.Timestamp,
			Event:    rec.Event(),
			IP:       rec.Get("IP"),
			Platform: rec.Get("PLATFORM"),
			Format:   rec.Get("FORMAT"),
			Browser:  rec.Get("BROWSER"),
			OS:       rec.Get("OS"),
			Device:   rec.Get("DEVICE"),
			Details:  strings.Join(extra, ", "),
		})
	}
	return rows
}

func eventClass(event string) string {
	switch {
	case strings.HasSuffix(event, "_SUCCESS"):
		return "ok"
	case strings.HasSuffix(event, "_FAILED"), strings.HasSuffix(event, "_DENIED"):
		return "bad"
	default:
		return "info"
	}
}
