// Package trip defines the domain types shared across the engine: registered
// trips, provider flight snapshots and the notification taxonomy.
package trip

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a registered trip.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Trip is a client's registered flight, the unit everything else hangs off.
// Departure is always stored as a UTC instant; the origin IATA code carries
// enough information to recover local time.
type Trip struct {
	ID           string    `json:"id"`
	AgencyID     string    `json:"agency_id,omitempty"`
	ClientName   string    `json:"client_name"`
	WhatsApp     string    `json:"whatsapp"`
	FlightNumber string    `json:"flight_number"`
	Origin       string    `json:"origin"`
	Destination  string    `json:"destination"`
	DepartureUTC time.Time `json:"departure_utc"`
	Status       Status    `json:"status"`

	// Denormalized view of the latest snapshot, refreshed each poll cycle.
	LastFlightStatus string     `json:"last_flight_status,omitempty"`
	Gate             string     `json:"gate,omitempty"`
	EstimatedOut     *time.Time `json:"estimated_out,omitempty"`
	EstimatedIn      *time.Time `json:"estimated_in,omitempty"`

	Metadata    map[string]string `json:"metadata,omitempty"`
	NextCheckAt *time.Time        `json:"next_check_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// DepartureDay returns the UTC midnight of the departure instant. Two trips
// for the same contact and flight number collide when this value matches.
func (t *Trip) DepartureDay() time.Time {
	d := t.DepartureUTC.UTC()
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// Active reports whether the trip still participates in polling and sweeps.
func (t *Trip) Active() bool { return t.Status == StatusActive }

// HotelAddress returns the hotel address from trip metadata, if the agency
// provided one at registration.
func (t *Trip) HotelAddress() string { return t.Metadata["hotel_address"] }

// Notes returns free-form agency notes from trip metadata.
func (t *Trip) Notes() string { return t.Metadata["notes"] }

// FlightSnapshot is the normalized view of one provider response for a flight
// on a date. Optional fields are pointers; absent means the provider did not
// report them, which is different from a zero value.
type FlightSnapshot struct {
	Ident           string     `json:"ident"`
	Status          string     `json:"status"`
	Origin          string     `json:"origin"`
	Destination     string     `json:"destination"`
	OriginCity      string     `json:"origin_city,omitempty"`
	DestinationCity string     `json:"destination_city,omitempty"`
	GateOrigin      *string    `json:"gate_origin,omitempty"`
	GateDestination *string    `json:"gate_destination,omitempty"`
	ScheduledOut    *time.Time `json:"scheduled_out,omitempty"`
	EstimatedOut    *time.Time `json:"estimated_out,omitempty"`
	ActualOut       *time.Time `json:"actual_out,omitempty"`
	ScheduledIn     *time.Time `json:"scheduled_in,omitempty"`
	EstimatedIn     *time.Time `json:"estimated_in,omitempty"`
	ActualIn        *time.Time `json:"actual_in,omitempty"`
	ProgressPercent *int       `json:"progress_percent,omitempty"`
	Cancelled       bool       `json:"cancelled"`
	Diverted        bool       `json:"diverted"`
	RecordedAt      time.Time  `json:"recorded_at"`
}

// Landed reports whether the snapshot carries any arrival signal. Providers
// disagree on which field lands first, so the three signals are OR'd: an
// Arrived status, 100% progress, or an actual gate arrival older than
// landedAge.
func (s *FlightSnapshot) Landed(now time.Time, landedAge time.Duration) bool {
	if strings.EqualFold(strings.TrimSpace(s.Status), "Arrived") {
		return true
	}
	if s.ProgressPercent != nil && *s.ProgressPercent >= 100 {
		return true
	}
	if s.ActualIn != nil && now.Sub(*s.ActualIn) > landedAge {
		return true
	}
	return false
}

// GateOriginValue returns the origin gate or "" when unknown.
func (s *FlightSnapshot) GateOriginValue() string {
	if s.GateOrigin == nil {
		return ""
	}
	return *s.GateOrigin
}

// NotificationType names a WhatsApp template. The values are wire-stable:
// they feed idempotency keys and the notification log.
type NotificationType string

const (
	NotifReservationConfirmation NotificationType = "RESERVATION_CONFIRMATION"
	NotifReminder24h             NotificationType = "REMINDER_24H"
	NotifDelayed                 NotificationType = "DELAYED"
	NotifGateChange              NotificationType = "GATE_CHANGE"
	NotifCancelled               NotificationType = "CANCELLED"
	NotifBoarding                NotificationType = "BOARDING"
	NotifLandingWelcome          NotificationType = "LANDING_WELCOME"
	NotifItineraryReady          NotificationType = "ITINERARY_READY"
)

// NotificationState tracks a log row through the send pipeline.
type NotificationState string

const (
	NotifStatePending NotificationState = "PENDING"
	NotifStateSent    NotificationState = "SENT"
	NotifStateFailed  NotificationState = "FAILED"
)
