package reminder

import (
	"testing"
	"time"

	"tripwatch/internal/registry"
	"tripwatch/internal/trip"
)

func TestRendererVars(t *testing.T) {
	r := &Renderer{}

	vars := r.Vars(registry.Input{
		Trip: &trip.Trip{
			ClientName:   "Ana",
			Origin:       "EZE",
			Destination:  "MAD",
			DepartureUTC: time.Date(2025, 12, 1, 22, 50, 0, 0, time.UTC),
			Metadata:     map[string]string{"notes": "Equipaje: solo de mano."},
		},
		Weather: "18°C, despejado",
	})

	want := []string{
		"Ana", "EZE", "01 Dec 2025 19:50", "18°C, despejado", "MAD",
		"Equipaje: solo de mano.",
	}
	if len(vars) != len(want) {
		t.Fatalf("got %d vars, want %d", len(vars), len(want))
	}
	for i := range want {
		if vars[i] != want[i] {
			t.Errorf("vars[%d] = %q, want %q", i, vars[i], want[i])
		}
	}
}

func TestRendererDefaultAdvice(t *testing.T) {
	r := &Renderer{}

	vars := r.Vars(registry.Input{Trip: &trip.Trip{
		ClientName:   "Ana",
		Origin:       "EZE",
		Destination:  "MAD",
		DepartureUTC: time.Date(2025, 12, 1, 22, 50, 0, 0, time.UTC),
	}})
	if vars[5] != defaultAdvice {
		t.Errorf("vars[5] = %q, want the default advice line", vars[5])
	}
}
