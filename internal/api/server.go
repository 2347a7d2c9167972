// Package api serves the REST API agencies and the itinerary generator talk
// to: trip registration, trip inspection and the itinerary callbacks.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"tripwatch/internal/flightdata"
	"tripwatch/internal/storage"
)

const shutdownGrace = 10 * time.Second

// Publisher emits bus events. *bus.Bus satisfies it; nil disables
// publishing, in which case the daemon's catch-up sweeps pick new trips up
// from the shared store.
type Publisher interface {
	Publish(subject string, data any) error
}

// StatsSource supplies provider client counters for the stats endpoint.
// Satisfied by *flightdata.Client.
type StatsSource interface {
	Stats() flightdata.Stats
}

// ItineraryCompleter finishes an itinerary end to end: mark the row ready
// and notify the client. Satisfied by *orchestrator.Orchestrator. When nil
// the ready handler marks the row itself and leaves the notification to the
// daemon via the bus.
type ItineraryCompleter interface {
	ItineraryReady(ctx context.Context, tripID, content string) error
}

// Config holds the API server settings.
type Config struct {
	Addr        string // listen address, e.g. ":8080"
	AuthEnabled bool
	APIKeys     []string

	Store       storage.Store
	Bus         Publisher
	Flights     StatsSource
	Itineraries ItineraryCompleter
	Clock       clockwork.Clock // nil means the real clock
	Log         zerolog.Logger
}

// Server is the REST API server.
type Server struct {
	cfg     Config
	store   storage.Store
	valid   *validator.Validate
	apiKeys map[string]bool
	clock   clockwork.Clock
	log     zerolog.Logger
}

// New builds a Server from cfg.
func New(cfg Config) *Server {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	keys := make(map[string]bool)
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = true
		}
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	// Report violations under the JSON field names clients actually sent.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Server{
		cfg:     cfg,
		store:   cfg.Store,
		valid:   v,
		apiKeys: keys,
		clock:   cfg.Clock,
		log:     cfg.Log.With().Str("component", "api").Logger(),
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info().Str("addr", s.cfg.Addr).Bool("auth", s.cfg.AuthEnabled).Msg("api listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shCtx)
}

// Router returns the configured router, also used directly by tests and for
// embedding in the daemon.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.requestLogger)
	r.Use(corsMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)

		r.Group(func(r chi.Router) {
			if s.cfg.AuthEnabled {
				r.Use(s.authMiddleware)
			}
			r.Post("/trips", s.handleCreateTrip)
			r.Get("/trips", s.handleListTrips)
			r.Get("/trips/{trip_id}", s.handleGetTrip)
			r.Get("/trips/{trip_id}/history", s.handleTripHistory)
			r.Get("/trips/{trip_id}/notifications", s.handleTripNotifications)
			r.Post("/itineraries/{trip_id}", s.handleEnqueueItinerary)
			r.Post("/itineraries/{trip_id}/ready", s.handleItineraryReady)
		})
	})

	return r
}

// requestLogger writes one structured line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

// corsMiddleware adds CORS headers for browser access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authMiddleware validates API key authentication.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if apiKey == "" {
			writeError(w, http.StatusUnauthorized, "API key required")
			return
		}
		if !s.apiKeys[apiKey] {
			writeError(w, http.StatusForbidden, "invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   s.clock.Now().UTC().Format(time.RFC3339),
	})
}

// statsResponse is a point-in-time operational snapshot.
type statsResponse struct {
	ActiveTrips int               `json:"active_trips"`
	Provider    *flightdata.Stats `json:"provider,omitempty"`
	Time        string            `json:"time"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.CountActiveTrips(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := statsResponse{
		ActiveTrips: n,
		Time:        s.clock.Now().UTC().Format(time.RFC3339),
	}
	if s.cfg.Flights != nil {
		st := s.cfg.Flights.Stats()
		resp.Provider = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
