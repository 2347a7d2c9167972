package poller

import (
	"testing"
	"time"

	"tripwatch/internal/trip"
)

func timePtr(t time.Time) *time.Time { return &t }

func TestNextCheckDelay(t *testing.T) {
	now := time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		trip   trip.Trip
		want   time.Duration
		wantOK bool
	}{
		{
			name:   "thirty hours out",
			trip:   trip.Trip{DepartureUTC: now.Add(30 * time.Hour), LastFlightStatus: "Scheduled"},
			want:   6 * time.Hour,
			wantOK: true,
		},
		{
			name:   "just under 24 hours",
			trip:   trip.Trip{DepartureUTC: now.Add(23*time.Hour + 59*time.Minute), LastFlightStatus: "Scheduled"},
			want:   time.Hour,
			wantOK: true,
		},
		{
			name:   "five hours out",
			trip:   trip.Trip{DepartureUTC: now.Add(5 * time.Hour), LastFlightStatus: "Scheduled"},
			want:   time.Hour,
			wantOK: true,
		},
		{
			name:   "two hours out",
			trip:   trip.Trip{DepartureUTC: now.Add(2 * time.Hour), LastFlightStatus: "Delayed"},
			want:   15 * time.Minute,
			wantOK: true,
		},
		{
			name:   "departed six hours ago",
			trip:   trip.Trip{DepartureUTC: now.Add(-6 * time.Hour), LastFlightStatus: "En Route"},
			want:   30 * time.Minute,
			wantOK: true,
		},
		{
			name:   "departed thirteen hours ago",
			trip:   trip.Trip{DepartureUTC: now.Add(-13 * time.Hour), LastFlightStatus: "En Route"},
			wantOK: false,
		},
		{
			name:   "arrived",
			trip:   trip.Trip{DepartureUTC: now.Add(-2 * time.Hour), LastFlightStatus: "Arrived"},
			wantOK: false,
		},
		{
			name:   "cancelled",
			trip:   trip.Trip{DepartureUTC: now.Add(10 * time.Hour), LastFlightStatus: "Cancelled"},
			wantOK: false,
		},
		{
			name: "estimate pushes the flight closer",
			trip: trip.Trip{
				DepartureUTC:     now.Add(30 * time.Hour),
				EstimatedOut:     timePtr(now.Add(3 * time.Hour)),
				LastFlightStatus: "Delayed",
			},
			want:   15 * time.Minute,
			wantOK: true,
		},
		{
			name:   "no status yet",
			trip:   trip.Trip{DepartureUTC: now.Add(48 * time.Hour)},
			want:   6 * time.Hour,
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NextCheckDelay(now, &tt.trip)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("delay = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAfterFailure(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		ok   bool
		want time.Duration
	}{
		{"caps a far cadence", 6 * time.Hour, true, 10 * time.Minute},
		{"keeps a short cadence", 15 * time.Minute, true, 15 * time.Minute},
		{"keeps a thirty minute cadence", 30 * time.Minute, true, 30 * time.Minute},
		{"stopped trip retries at cap", 0, false, 10 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AfterFailure(tt.d, tt.ok); got != tt.want {
				t.Errorf("AfterFailure(%v, %v) = %v, want %v", tt.d, tt.ok, got, tt.want)
			}
		})
	}
}
