// Package landing renders the welcome message sent after arrival.
package landing

import (
	"time"

	"tripwatch/internal/airport"
	"tripwatch/internal/registry"
	"tripwatch/internal/trip"
)

const body = "¡Bienvenido/a a {{2}}, {{1}}! 🛬\n" +
	"Esperamos que hayas tenido un buen vuelo.\n" +
	"🏨 Tu alojamiento: {{3}}\n" +
	"Cualquier cosa que necesites, escríbenos por aquí."

// noHotel fills the address slot when the agency loaded no hotel.
const noHotel = "consulta los detalles con tu agencia"

// Renderer builds LANDING_WELCOME messages.
type Renderer struct{}

func init() {
	registry.Register(&Renderer{})
}

func (r *Renderer) Type() trip.NotificationType { return trip.NotifLandingWelcome }

func (r *Renderer) Vars(in registry.Input) []string {
	t := in.Trip
	hotel := t.HotelAddress()
	if hotel == "" {
		hotel = noHotel
	}
	return []string{t.ClientName, airport.City(t.Destination), hotel}
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
		Metadata:     map[string]string{"hotel_address": "Hotel Palacio, Gran Vía 12"},
	}}
}
