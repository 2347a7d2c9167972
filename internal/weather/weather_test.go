package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const madridJSON = `{
  "daily": {
    "time": ["2025-12-02"],
    "weather_code": [2],
    "temperature_2m_max": [17.3],
    "temperature_2m_min": [7.6]
  }
}`

func TestForecast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("latitude") == "" || q.Get("longitude") == "" {
			t.Errorf("missing coordinates in query: %v", q)
		}
		if q.Get("daily") != "weather_code,temperature_2m_max,temperature_2m_min" {
			t.Errorf("daily = %q", q.Get("daily"))
		}
		if q.Get("start_date") != "2025-12-02" || q.Get("end_date") != "2025-12-02" {
			t.Errorf("date range = %q..%q", q.Get("start_date"), q.Get("end_date"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(madridJSON))
	}))
	defer srv.Close()

	o := NewOpenMeteo(Config{BaseURL: srv.URL})

	// 23:30 UTC on Dec 1 is already Dec 2 in Madrid.
	at := time.Date(2025, 12, 1, 23, 30, 0, 0, time.UTC)
	got := o.Forecast(context.Background(), "MAD", at)
	want := "Parcialmente nublado, 8°C a 17°C"
	if got != want {
		t.Errorf("Forecast() = %q, want %q", got, want)
	}
}

func TestForecastRetriesOnce(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(madridJSON))
	}))
	defer srv.Close()

	o := NewOpenMeteo(Config{BaseURL: srv.URL})
	got := o.Forecast(context.Background(), "MAD", time.Date(2025, 12, 2, 10, 0, 0, 0, time.UTC))
	if got == "" {
		t.Error("Forecast() = \"\", want a line after one retry")
	}
	if hits.Load() != 2 {
		t.Errorf("hits = %d, want 2", hits.Load())
	}
}

func TestForecastFailureIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	o := NewOpenMeteo(Config{BaseURL: srv.URL})
	if got := o.Forecast(context.Background(), "MAD", time.Now()); got != "" {
		t.Errorf("Forecast() = %q, want empty on persistent failure", got)
	}
}

func TestForecastUnknownAirport(t *testing.T) {
	o := NewOpenMeteo(Config{BaseURL: "http://127.0.0.1:0"})
	if got := o.Forecast(context.Background(), "XXX", time.Now()); got != "" {
		t.Errorf("Forecast() = %q, want empty for unknown airport", got)
	}
}

func TestForecastDayMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(madridJSON))
	}))
	defer srv.Close()

	o := NewOpenMeteo(Config{BaseURL: srv.URL})
	// Asking for Dec 25; the canned answer only covers Dec 2.
	got := o.Forecast(context.Background(), "MAD", time.Date(2025, 12, 25, 10, 0, 0, 0, time.UTC))
	if got != "" {
		t.Errorf("Forecast() = %q, want empty when the day is missing", got)
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{0, "Despejado"},
		{3, "Nublado"},
		{61, "Lluvia"},
		{95, "Tormenta"},
		{42, ""},
	}
	for _, tt := range tests {
		if got := describe(tt.code); got != tt.want {
			t.Errorf("describe(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestStatic(t *testing.T) {
	s := Static{Line: "Despejado, 10°C a 20°C"}
	if got := s.Forecast(context.Background(), "EZE", time.Now()); got != "Despejado, 10°C a 20°C" {
		t.Errorf("Static.Forecast() = %q", got)
	}
}
