// Package boarding renders the boarding call message.
package boarding

import (
	"time"

	"tripwatch/internal/registry"
	"tripwatch/internal/trip"
)

const body = "📢 ¡Embarque abierto para tu vuelo {{1}}!\n" +
	"🚪 Puerta: {{2}}\n" +
	"¡Buen viaje!"

// noGate is the gate slot fallback when no gate has been published yet.
const noGate = "Ver pantallas del aeropuerto"

// Renderer builds BOARDING messages.
type Renderer struct{}

func init() {
	registry.Register(&Renderer{})
}

func (r *Renderer) Type() trip.NotificationType { return trip.NotifBoarding }

func (r *Renderer) Vars(in registry.Input) []string {
	gate := in.Trip.Gate
	if gate == "" {
		gate = noGate
	}
	return []string{in.Trip.FlightNumber, gate}
}

func (r *Renderer) Render(vars []string) string { return registry.Fill(body, vars) }

// Sample feeds the review console preview.
func (r *Renderer) Sample() registry.Input {
	return registry.Input{Trip: &trip.Trip{
		ClientName:   "Ana",
		FlightNumber: "IB6842",
		Origin:       "EZE",
		Destination:  "MAD",
		Gate:         "D16",
		DepartureUTC: time.Date(2025, 12, 1, 22, 50, 0, 0, time.UTC),
	}}
}
