// Package delayed renders the departure delay message.
package delayed

import (
	"time"

	"tripwatch/internal/airport"
	"tripwatch/internal/registry"
	"tripwatch/internal/trip"
)

const body = "Hola {{1}}, tu vuelo {{2}} fue reprogramado.\n" +
	"🕐 Nueva hora de salida: {{3}}\n" +
	"Te avisaremos si hay más cambios."

// pendingEstimate fills the time slot when the provider flags the delay
// before publishing a new estimate.
const pendingEstimate = "por confirmar"

// Renderer builds DELAYED messages.
type Renderer struct{}

func init() {
	registry.Register(&Renderer{})
}

func (r *Renderer) Type() trip.NotificationType { return trip.NotifDelayed }

func (r *Renderer) Vars(in registry.Input) []string {
	t := in.Trip
	return []string{
		t.ClientName,
		t.FlightNumber,
		NewDepartureLocal(in.NewDeparture, t.Origin, t.Destination),
	}
}

func (r *Renderer) Render(vars []string) string { return registry.Fill(body, vars) }

// NewDepartureLocal formats a revised departure as the origin wall clock
// followed by the destination wall clock, e.g. "00:00 (03:00 LHR)". The
// destination clock matters to whoever is waiting on the other end.
func NewDepartureLocal(estimated *time.Time, origin, destination string) string {
	if estimated == nil {
		return pendingEstimate
	}
	return airport.FormatClockLocal(*estimated, origin) +
		" (" + airport.FormatClockLocal(*estimated, destination) + " " + destination + ")"
}

// Sample feeds the review console preview.
func (r *Renderer) Sample() registry.Input {
	est := time.Date(2025, 12, 2, 3, 0, 0, 0, time.UTC)
	return registry.Input{
		Trip: &trip.Trip{
			ClientName:   "Ana",
			FlightNumber: "BA246",
			Origin:       "EZE",
			Destination:  "LHR",
			DepartureUTC: time.Date(2025, 12, 2, 2, 30, 0, 0, time.UTC),
		},
		NewDeparture: &est,
	}
}
