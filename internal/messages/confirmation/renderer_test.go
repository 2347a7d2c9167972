package confirmation

import (
	"strings"
	"testing"
	"time"

	"tripwatch/internal/registry"
	"tripwatch/internal/trip"
)

func TestRendererVars(t *testing.T) {
	r := &Renderer{}

	// 22:50 UTC is 19:50 at Ezeiza.
	vars := r.Vars(registry.Input{Trip: &trip.Trip{
		ClientName:   "Ana Torres",
		FlightNumber: "IB6842",
		Origin:       "EZE",
		Destination:  "MAD",
		DepartureUTC: time.Date(2025, 12, 1, 22, 50, 0, 0, time.UTC),
	}})

	want := []string{"Ana Torres", "IB6842", "EZE", "MAD", "01 Dec 2025 19:50"}
	if len(vars) != len(want) {
		t.Fatalf("got %d vars, want %d", len(vars), len(want))
	}
	for i := range want {
		if vars[i] != want[i] {
			t.Errorf("vars[%d] = %q, want %q", i, vars[i], want[i])
		}
	}

	msg := r.Render(vars)
	if !strings.Contains(msg, "Ana Torres") || !strings.Contains(msg, "EZE → MAD") {
		t.Errorf("rendered message missing variables: %q", msg)
	}
}
