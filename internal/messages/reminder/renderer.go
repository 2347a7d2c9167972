// Package reminder renders the 24 hours before departure reminder.
package reminder

import (
	"time"

	"tripwatch/internal/airport"
	"tripwatch/internal/registry"
	"tripwatch/internal/trip"
)

const body = "¡Hola {{1}}! ⏰ Tu vuelo sale mañana desde {{2}}.\n\n" +
	"🕐 Salida: {{3}} (hora local)\n" +
	"🌤️ Clima en {{5}}: {{4}}\n\n" +
	"{{6}}\n\n" +
	"¡Buen viaje!"

// defaultAdvice fills the additional info slot when the agency left no notes.
const defaultAdvice = "Recuerda llegar al aeropuerto con al menos 3 horas de anticipación."

// Renderer builds REMINDER_24H messages.
type Renderer struct{}

func init() {
	registry.Register(&Renderer{})
}

func (r *Renderer) Type() trip.NotificationType { return trip.NotifReminder24h }

func (r *Renderer) Vars(in registry.Input) []string {
	t := in.Trip
	info := t.Notes()
	if info == "" {
		info = defaultAdvice
	}
	return []string{
		t.ClientName,
		t.Origin,
		airport.FormatHumanLocal(t.DepartureUTC, t.Origin),
		in.Weather,
		t.Destination,
		info,
	}
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
		Weather: "18°C, parcialmente nublado",
	}
}
