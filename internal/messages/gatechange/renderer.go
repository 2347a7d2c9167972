// Package gatechange renders the departure gate reassignment message.
package gatechange

import (
	"time"

	"tripwatch/internal/registry"
	"tripwatch/internal/trip"
)

const body = "Hola {{1}}, atención: tu vuelo {{2}} cambió de puerta de embarque.\n" +
	"🚪 Nueva puerta: {{3}}"

// Renderer builds GATE_CHANGE messages.
type Renderer struct{}

func init() {
	registry.Register(&Renderer{})
}

func (r *Renderer) Type() trip.NotificationType { return trip.NotifGateChange }

func (r *Renderer) Vars(in registry.Input) []string {
	return []string{in.Trip.ClientName, in.Trip.FlightNumber, in.NewGate}
}

func (r *Renderer) Render(vars []string) string { return registry.Fill(body, vars) }

// Sample feeds the review console preview.
func (r *Renderer) Sample() registry.Input {
	return registry.Input{
		Trip: &trip.Trip{
			ClientName:   "Ana",
			FlightNumber: "IB6842",
			Origin:       "EZE",
			Destination:  "MAD",
			DepartureUTC: time.Date(2025, 12, 1, 22, 50, 0, 0, time.UTC),
		},
		NewGate: "D19",
	}
}
