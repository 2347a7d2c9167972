// Package review provides a read-only operations console over the
// notification log: recent sends, permanently failed rows and a preview of
// each message template rendered with sample variables.
package review

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"tripwatch/internal/notify"
	"tripwatch/internal/registry"
	"tripwatch/internal/storage"
	"tripwatch/internal/trip"
)

//go:embed templates/*.html
var templateFiles embed.FS

const (
	// scanLimit bounds the log window the console works from. Failed rows
	// older than the window fall off the page, which is fine: the console
	// is a triage view, not an archive.
	scanLimit   = 500
	recentShown = 50
)

// Server serves the review UI. Mount its Router under the ops mux.
type Server struct {
	store storage.Store
	reg   *registry.Registry
	log   zerolog.Logger
	tmpl  *template.Template
}

// Config wires the review server.
type Config struct {
	Store    storage.Store
	Registry *registry.Registry // nil means the default registry
	Log      zerolog.Logger
}

// New creates a review server and parses the embedded templates.
func New(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		cfg.Registry = registry.Default()
	}
	tmpl, err := template.ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse review templates: %w", err)
	}
	return &Server{
		store: cfg.Store,
		reg:   cfg.Registry,
		log:   cfg.Log,
		tmpl:  tmpl,
	}, nil
}

// Router returns the console routes: the dashboard, per-type template
// previews and a JSON view of the log for scripting.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", s.handleIndex)
	r.Get("/templates/{type}", s.handlePreview)
	r.Get("/api/notifications", s.handleNotificationsJSON)
	return r
}

type indexData struct {
	Recent []storage.Notification
	Failed []storage.Notification
	Types  []trip.NotificationType
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.RecentNotifications(r.Context(), scanLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := indexData{Types: s.reg.Types()}
	for _, n := range rows {
		if len(data.Recent) < recentShown {
			data.Recent = append(data.Recent, n)
		}
		if n.State == trip.NotifStateFailed && n.Attempts >= notify.MaxSendAttempts {
			data.Failed = append(data.Failed, n)
		}
	}

	s.render(w, "index.html", data)
}

type slotVar struct {
	Slot  int
	Value string
}

type previewData struct {
	Type string
	Vars []slotVar
	Body string
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	typ := trip.NotificationType(chi.URLParam(r, "type"))
	rnd, ok := s.reg.ByType(typ)
	if !ok {
		http.Error(w, "unknown template type", http.StatusNotFound)
		return
	}
	smp, ok := rnd.(registry.Previewable)
	if !ok {
		http.Error(w, "template has no sample input", http.StatusNotFound)
		return
	}

	vars := rnd.Vars(smp.Sample())
	data := previewData{Type: string(typ), Body: rnd.Render(vars)}
	for i, v := range vars {
		data.Vars = append(data.Vars, slotVar{Slot: i + 1, Value: v})
	}

	s.render(w, "preview.html", data)
}

func (s *Server) handleNotificationsJSON(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := recentShown
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		limit = n
	}

	rows, err := s.store.RecentNotifications(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// State lives in every row anyway, so the filter runs here instead of
	// growing the store interface for one console endpoint.
	if state := q.Get("state"); state != "" {
		filtered := rows[:0]
		for _, n := range rows {
			if string(n.State) == state {
				filtered = append(filtered, n)
			}
		}
		rows = filtered
	}
	if rows == nil {
		rows = []storage.Notification{}
	}

	writeJSON(w, rows)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		s.log.Error().Err(err).Str("template", name).Msg("render failed")
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
