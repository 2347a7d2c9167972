package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"tripwatch/internal/airport"
	"tripwatch/internal/bus"
	"tripwatch/internal/poller"
	"tripwatch/internal/storage"
	"tripwatch/internal/trip"
	"tripwatch/internal/validate"
)

// Departure layouts accepted from clients, tried in order. Both are naive
// wall clocks; the zone comes from the origin airport.
var departureLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// createTripRequest is the POST /trips body. The departure is the wall
// clock at the origin airport; storage is always UTC.
type createTripRequest struct {
	ClientName        string            `json:"client_name" validate:"required,min=2,max=120"`
	WhatsApp          string            `json:"whatsapp" validate:"required"`
	FlightNumber      string            `json:"flight_number" validate:"required"`
	Origin            string            `json:"origin_iata" validate:"required,len=3,alpha"`
	Destination       string            `json:"destination_iata" validate:"required,len=3,alpha"`
	DepartureDate     string            `json:"departure_date" validate:"required"`
	ClientDescription string            `json:"client_description" validate:"omitempty,max=500"`
	AgencyID          string            `json:"agency_id" validate:"omitempty,max=64"`
	Metadata          map[string]string `json:"metadata"`
}

// tripCreatedResponse is the 201 body for a registered trip.
type tripCreatedResponse struct {
	TripID       string     `json:"trip_id"`
	Status       string     `json:"status"`
	NextCheckAt  *time.Time `json:"next_check_at"`
	DepartureUTC time.Time  `json:"departure_utc"`
}

// fieldErrors is the 422 body: one message per offending field.
type fieldErrors struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

func invalidField(w http.ResponseWriter, field, msg string) {
	writeJSON(w, http.StatusUnprocessableEntity, fieldErrors{
		Error:  "validation failed",
		Fields: map[string]string{field: msg},
	})
}

func (s *Server) handleCreateTrip(w http.ResponseWriter, r *http.Request) {
	var req createTripRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if err := s.valid.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = "failed " + fe.Tag() + " check"
			}
			writeJSON(w, http.StatusUnprocessableEntity, fieldErrors{
				Error:  "validation failed",
				Fields: fields,
			})
			return
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	whatsapp, err := validate.NormalizePhone(req.WhatsApp)
	if err != nil {
		invalidField(w, "whatsapp", "not an E.164 phone number")
		return
	}
	ident, err := validate.NormalizeIdent(req.FlightNumber)
	if err != nil {
		invalidField(w, "flight_number", "not a flight ident")
		return
	}

	origin := strings.ToUpper(req.Origin)
	destination := strings.ToUpper(req.Destination)
	if _, ok := airport.Lookup(origin); !ok {
		invalidField(w, "origin_iata", "unknown airport code")
		return
	}
	if _, ok := airport.Lookup(destination); !ok {
		invalidField(w, "destination_iata", "unknown airport code")
		return
	}

	local, err := parseDeparture(req.DepartureDate)
	if err != nil {
		invalidField(w, "departure_date", "not a local ISO 8601 date-time")
		return
	}
	departureUTC := airport.LocalToUTC(local, origin)

	metadata := make(map[string]string, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	if req.ClientDescription != "" {
		metadata["client_description"] = req.ClientDescription
	}

	now := s.clock.Now().UTC()
	tr := &trip.Trip{
		AgencyID:     req.AgencyID,
		ClientName:   strings.TrimSpace(req.ClientName),
		WhatsApp:     whatsapp,
		FlightNumber: ident,
		Origin:       origin,
		Destination:  destination,
		DepartureUTC: departureUTC,
		Status:       trip.StatusActive,
		Metadata:     metadata,
	}
	// The first poll slot is booked at registration so the response can
	// say when tracking starts; onboarding fills in the rest.
	if d, ok := poller.NextCheckDelay(now, tr); ok {
		at := now.Add(d)
		tr.NextCheckAt = &at
	}

	if err := s.store.CreateTrip(r.Context(), tr); err != nil {
		if storage.IsDuplicateTrip(err) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.log.Error().Err(err).Msg("create trip failed")
		writeError(w, http.StatusInternalServerError, "could not store trip")
		return
	}

	s.publish(bus.SubjectTripCreated, bus.TripEvent{
		TripID:       tr.ID,
		FlightNumber: tr.FlightNumber,
		Status:       string(tr.Status),
	})
	s.log.Info().Str("trip_id", tr.ID).Str("flight", tr.FlightNumber).
		Str("origin", origin).Str("destination", destination).
		Time("departure_utc", departureUTC).Msg("trip registered")

	writeJSON(w, http.StatusCreated, tripCreatedResponse{
		TripID:       tr.ID,
		Status:       string(tr.Status),
		NextCheckAt:  tr.NextCheckAt,
		DepartureUTC: tr.DepartureUTC,
	})
}

func parseDeparture(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range departureLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// tripResponse pairs the trip row with its latest provider snapshot.
type tripResponse struct {
	Trip   *trip.Trip           `json:"trip"`
	Latest *trip.FlightSnapshot `json:"latest_status,omitempty"`
}

func (s *Server) handleGetTrip(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "trip_id")
	tr, err := s.store.GetTrip(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tr == nil {
		writeError(w, http.StatusNotFound, "trip not found")
		return
	}

	latest, err := s.store.GetLatestStatus(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tripResponse{Trip: tr, Latest: latest})
}

func (s *Server) handleListTrips(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := storage.ListParams{
		AgencyID:     q.Get("agency_id"),
		Status:       q.Get("status"),
		FlightNumber: q.Get("flight_number"),
		Limit:        intParam(q.Get("limit"), 0),
		Offset:       intParam(q.Get("offset"), 0),
	}

	trips, err := s.store.ListTrips(r.Context(), p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"trips": trips,
		"count": len(trips),
	})
}

func (s *Server) handleTripHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "trip_id")
	tr, err := s.store.GetTrip(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tr == nil {
		writeError(w, http.StatusNotFound, "trip not found")
		return
	}

	limit := intParam(r.URL.Query().Get("limit"), 50)
	hist, err := s.store.GetStatusHistory(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"trip_id": id,
		"history": hist,
	})
}

func (s *Server) handleTripNotifications(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "trip_id")
	tr, err := s.store.GetTrip(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tr == nil {
		writeError(w, http.StatusNotFound, "trip not found")
		return
	}

	log, err := s.store.GetNotificationHistory(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"trip_id":       id,
		"notifications": log,
	})
}

// handleEnqueueItinerary asks the external generator for a document now,
// ahead of the scheduled launch.
func (s *Server) handleEnqueueItinerary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "trip_id")
	tr, err := s.store.GetTrip(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tr == nil {
		writeError(w, http.StatusNotFound, "trip not found")
		return
	}

	if err := s.store.CreateItinerary(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.publish(bus.SubjectItineraryGenerate, bus.ItineraryEvent{
		TripID:      id,
		Destination: tr.Destination,
	})

	writeJSON(w, http.StatusCreated, map[string]string{
		"trip_id": id,
		"status":  "pending",
	})
}

// handleItineraryReady is the generator's completion callback.
func (s *Server) handleItineraryReady(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "trip_id")
	tr, err := s.store.GetTrip(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tr == nil {
		writeError(w, http.StatusNotFound, "trip not found")
		return
	}

	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if s.cfg.Itineraries != nil {
		if err := s.cfg.Itineraries.ItineraryReady(r.Context(), id, body.Content); err != nil {
			s.log.Error().Err(err).Str("trip_id", id).Msg("itinerary completion failed")
			writeError(w, http.StatusInternalServerError, "could not complete itinerary")
			return
		}
	} else {
		if err := s.store.MarkItineraryReady(r.Context(), id, body.Content); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		// The daemon picks the event up and sends ITINERARY_READY.
		s.publish(bus.SubjectItineraryReady, bus.ItineraryEvent{
			TripID:  id,
			Content: body.Content,
		})
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"trip_id": id,
		"status":  "ready",
	})
}

func (s *Server) publish(subject string, data any) {
	if s.cfg.Bus == nil {
		return
	}
	if err := s.cfg.Bus.Publish(subject, data); err != nil {
		s.log.Warn().Err(err).Str("subject", subject).Msg("publish failed")
	}
}

func intParam(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
