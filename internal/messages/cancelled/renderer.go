// Package cancelled renders the flight cancellation message.
package cancelled

import (
	"time"

	"tripwatch/internal/registry"
	"tripwatch/internal/trip"
)

const body = "Hola {{1}}, lamentamos informarte que tu vuelo {{2}} fue cancelado. ❌\n" +
	"Nuestro equipo ya está buscando alternativas y te contactará a la brevedad."

// Renderer builds CANCELLED messages.
type Renderer struct{}

func init() {
	registry.Register(&Renderer{})
}

func (r *Renderer) Type() trip.NotificationType { return trip.NotifCancelled }

func (r *Renderer) Vars(in registry.Input) []string {
	return []string{in.Trip.ClientName, in.Trip.FlightNumber}
}

func (r *Renderer) Render(vars []string) string { return registry.Fill(body, vars) }

// Sample feeds the review console preview.
func (r *Renderer) Sample() registry.Input {
	return registry.Input{Trip: &trip.Trip{
		ClientName:   "Ana",
		FlightNumber: "IB6842",
		Origin:       "EZE",
		Destination:  "MAD",
		DepartureUTC: time.Date(2025, 12, 1, 22, 50, 0, 0, time.UTC),
	}}
}
