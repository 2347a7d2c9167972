// Package itinerary renders the itinerary ready message.
package itinerary

import (
	"time"

	"tripwatch/internal/registry"
	"tripwatch/internal/trip"
)

const body = "¡Hola {{1}}! 📋 Tu itinerario personalizado para {{2}} ya está listo.\n" +
	"Pídemelo por aquí cuando quieras verlo."

// Renderer builds ITINERARY_READY messages.
type Renderer struct{}

func init() {
	registry.Register(&Renderer{})
}

func (r *Renderer) Type() trip.NotificationType { return trip.NotifItineraryReady }

func (r *Renderer) Vars(in registry.Input) []string {
	return []string{in.Trip.ClientName, in.Trip.Destination}
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
