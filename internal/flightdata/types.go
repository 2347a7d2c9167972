package flightdata

import (
	"time"

	"tripwatch/internal/trip"
)

// flightsResponse is the provider's paged envelope. With max_pages=1 only the
// first page is ever requested.
type flightsResponse struct {
	Flights  []Flight `json:"flights"`
	NumPages int      `json:"num_pages"`
}

// Flight is the provider's wire representation of one flight instance.
// Optional fields are pointers: absent and zero mean different things for
// gates and times.
type Flight struct {
	Ident           string   `json:"ident"`
	IdentIATA       *string  `json:"ident_iata"`
	FlightNumber    *string  `json:"flight_number"`
	Operator        *string  `json:"operator"`
	Status          string   `json:"status"`
	Origin          *Airport `json:"origin"`
	Destination     *Airport `json:"destination"`
	GateOrigin      *string  `json:"gate_origin"`
	GateDestination *string  `json:"gate_destination"`

	ScheduledOut *time.Time `json:"scheduled_out"`
	EstimatedOut *time.Time `json:"estimated_out"`
	ActualOut    *time.Time `json:"actual_out"`
	ScheduledOn  *time.Time `json:"scheduled_on"`
	EstimatedOn  *time.Time `json:"estimated_on"`
	ActualOn     *time.Time `json:"actual_on"`
	ScheduledIn  *time.Time `json:"scheduled_in"`
	EstimatedIn  *time.Time `json:"estimated_in"`
	ActualIn     *time.Time `json:"actual_in"`

	ProgressPercent *int `json:"progress_percent"`
	Cancelled       bool `json:"cancelled"`
	Diverted        bool `json:"diverted"`

	RouteDistance *int    `json:"route_distance"`
	AircraftType  *string `json:"aircraft_type"`
}

// Airport is the provider's airport reference inside a flight.
type Airport struct {
	Code     *string `json:"code"`
	CodeIATA *string `json:"code_iata"`
	Name     *string `json:"name"`
	City     *string `json:"city"`
	Timezone *string `json:"timezone"`
}

func (a *Airport) iata() string {
	if a == nil {
		return ""
	}
	if a.CodeIATA != nil && *a.CodeIATA != "" {
		return *a.CodeIATA
	}
	if a.Code != nil {
		return *a.Code
	}
	return ""
}

func (a *Airport) city() string {
	if a == nil || a.City == nil {
		return ""
	}
	return *a.City
}

// Normalize converts a wire flight into the engine's snapshot form. The
// provider reports runway times as "on"; when the gate arrival ("in") is
// absent the "on" estimate stands in for it, so the rest of the engine only
// ever reasons about "in".
func Normalize(f *Flight, recordedAt time.Time) *trip.FlightSnapshot {
	s := &trip.FlightSnapshot{
		Ident:           f.Ident,
		Status:          f.Status,
		Origin:          f.Origin.iata(),
		Destination:     f.Destination.iata(),
		OriginCity:      f.Origin.city(),
		DestinationCity: f.Destination.city(),
		GateOrigin:      f.GateOrigin,
		GateDestination: f.GateDestination,
		ScheduledOut:    f.ScheduledOut,
		EstimatedOut:    f.EstimatedOut,
		ActualOut:       f.ActualOut,
		ScheduledIn:     f.ScheduledIn,
		EstimatedIn:     f.EstimatedIn,
		ActualIn:        f.ActualIn,
		ProgressPercent: f.ProgressPercent,
		Cancelled:       f.Cancelled,
		Diverted:        f.Diverted,
		RecordedAt:      recordedAt.UTC(),
	}
	if s.EstimatedIn == nil && f.EstimatedOn != nil {
		s.EstimatedIn = f.EstimatedOn
	}
	if s.ActualIn == nil && f.ActualOn != nil {
		s.ActualIn = f.ActualOn
	}
	if s.ScheduledIn == nil && f.ScheduledOn != nil {
		s.ScheduledIn = f.ScheduledOn
	}
	return s
}

// IdentIATAOrIdent prefers the IATA ident when the provider reports both.
func (f *Flight) IdentIATAOrIdent() string {
	if f.IdentIATA != nil && *f.IdentIATA != "" {
		return *f.IdentIATA
	}
	return f.Ident
}
