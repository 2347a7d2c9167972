package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"tripwatch/internal/storage"
	"tripwatch/internal/trip"
)

func TestInflight(t *testing.T) {
	f := inflight{held: make(map[string]struct{})}

	if !f.tryAcquire("trip-1") {
		t.Fatal("first acquire refused")
	}
	if f.tryAcquire("trip-1") {
		t.Error("second acquire of a held key succeeded")
	}
	if !f.tryAcquire("trip-2") {
		t.Error("acquire of a different key refused")
	}
	f.release("trip-1")
	if !f.tryAcquire("trip-1") {
		t.Error("acquire after release refused")
	}
}

func TestEngineProcessesDueTrips(t *testing.T) {
	st, err := storage.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	now := time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)

	for _, fl := range []string{"AR1140", "IB6842"} {
		tr := &trip.Trip{
			ClientName:   "Ana Torres",
			WhatsApp:     "+5491155551234",
			FlightNumber: fl,
			Origin:       "EZE",
			Destination:  "MAD",
			DepartureUTC: now.Add(26 * time.Hour),
			Status:       trip.StatusActive,
		}
		if err := st.CreateTrip(ctx, tr); err != nil {
			t.Fatalf("CreateTrip() error = %v", err)
		}
		due := now.Add(-time.Minute)
		if err := st.UpdateNextCheckAt(ctx, tr.ID, &due); err != nil {
			t.Fatalf("UpdateNextCheckAt() error = %v", err)
		}
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	cycled := make(chan string, 8)

	e := New(Config{
		Store: st,
		Cycle: func(_ context.Context, tr *trip.Trip) error {
			mu.Lock()
			seen[tr.FlightNumber]++
			mu.Unlock()
			cycled <- tr.ID
			return nil
		},
		ShutdownGrace: time.Second,
		Clock:         clock,
		Log:           zerolog.Nop(),
	})

	runCtx, cancel := context.WithCancel(ctx)
	runDone := make(chan error, 1)
	go func() { runDone <- e.Run(runCtx) }()

	// The startup scan picks both trips up without any clock advance.
	for i := 0; i < 2; i++ {
		select {
		case <-cycled:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for cycles")
		}
	}

	cancel()
	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	if seen["AR1140"] != 1 || seen["IB6842"] != 1 {
		t.Errorf("cycle counts = %v, want one per trip", seen)
	}
}
