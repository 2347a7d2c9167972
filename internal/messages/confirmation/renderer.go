// Package confirmation renders the reservation confirmation message sent
// right after a trip is registered.
package confirmation

import (
	"time"

	"tripwatch/internal/airport"
	"tripwatch/internal/registry"
	"tripwatch/internal/trip"
)

const body = "¡Hola {{1}}! 🎉 Tu reserva está confirmada.\n\n" +
	"✈️ Vuelo {{2}}\n" +
	"📍 {{3}} → {{4}}\n" +
	"🕐 Salida: {{5}} (hora local)\n\n" +
	"Te avisaremos ante cualquier cambio en tu vuelo."

// Renderer builds RESERVATION_CONFIRMATION messages.
type Renderer struct{}

func init() {
	registry.Register(&Renderer{})
}

func (r *Renderer) Type() trip.NotificationType { return trip.NotifReservationConfirmation }

func (r *Renderer) Vars(in registry.Input) []string {
	t := in.Trip
	return []string{
		t.ClientName,
		t.FlightNumber,
		t.Origin,
		t.Destination,
		airport.FormatHumanLocal(t.DepartureUTC, t.Origin),
	}
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
