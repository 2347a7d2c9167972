package boarding

import (
	"strings"
	"testing"

	"tripwatch/internal/registry"
	"tripwatch/internal/trip"
)

func TestRendererVars(t *testing.T) {
	r := &Renderer{}

	vars := r.Vars(registry.Input{Trip: &trip.Trip{FlightNumber: "IB6842", Gate: "D16"}})
	if len(vars) != 2 || vars[0] != "IB6842" || vars[1] != "D16" {
		t.Errorf("vars = %v, want [IB6842 D16]", vars)
	}
}

func TestRendererGateFallback(t *testing.T) {
	r := &Renderer{}

	vars := r.Vars(registry.Input{Trip: &trip.Trip{FlightNumber: "IB6842"}})
	if vars[1] != "Ver pantallas del aeropuerto" {
		t.Errorf("vars[1] = %q, want the airport screens fallback", vars[1])
	}

	msg := r.Render(vars)
	if !strings.Contains(msg, "Ver pantallas del aeropuerto") {
		t.Errorf("rendered message missing fallback: %q", msg)
	}
}
