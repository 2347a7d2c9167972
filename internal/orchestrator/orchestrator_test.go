package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"tripwatch/internal/bus"
	"tripwatch/internal/flightdata"
	_ "tripwatch/internal/messages"
	"tripwatch/internal/notify"
	"tripwatch/internal/storage"
	"tripwatch/internal/trip"
)

// fakeSender records every delivered notification.
type fakeSender struct {
	mu   sync.Mutex
	sent []storage.Notification
}

func (f *fakeSender) Send(_ context.Context, n *storage.Notification) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, *n)
	return "SM001", nil
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeSender) sentTypes() []trip.NotificationType {
	f.mu.Lock()
	defer f.mu.Unlock()
	var types []trip.NotificationType
	for _, n := range f.sent {
		types = append(types, n.Type)
	}
	return types
}

// fakeFlights serves the snapshot or error configured for the next fetch.
type fakeFlights struct {
	mu   sync.Mutex
	snap *trip.FlightSnapshot
	err  error
}

func (f *fakeFlights) GetFlightStatus(_ context.Context, _ string, _ time.Time) (*trip.FlightSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s := *f.snap
	return &s, nil
}

func (f *fakeFlights) set(s *trip.FlightSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap, f.err = s, nil
}

func (f *fakeFlights) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// fakeBus counts published events per subject.
type fakeBus struct {
	mu     sync.Mutex
	counts map[string]int
}

func newFakeBus() *fakeBus { return &fakeBus{counts: make(map[string]int)} }

func (f *fakeBus) Publish(subject string, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[subject]++
	return nil
}

func (f *fakeBus) count(subject string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[subject]
}

type fixture struct {
	orch    *Orchestrator
	store   storage.Store
	sender  *fakeSender
	flights *fakeFlights
	bus     *fakeBus
	clock   *clockwork.FakeClock
}

func setup(t *testing.T, now time.Time) *fixture {
	t.Helper()

	st, err := storage.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	clk := clockwork.NewFakeClockAt(now)
	sender := &fakeSender{}
	fb := newFakeBus()
	d := notify.New(notify.Config{
		Store:  st,
		Sender: sender,
		Clock:  clk,
		Log:    zerolog.Nop(),
	})
	fl := &fakeFlights{}
	orch := New(Config{
		Store:      st,
		Flights:    fl,
		Dispatcher: d,
		Bus:        fb,
		Clock:      clk,
		Log:        zerolog.Nop(),
	})
	return &fixture{orch: orch, store: st, sender: sender, flights: fl, bus: fb, clock: clk}
}

func (fx *fixture) makeTrip(t *testing.T, departure time.Time) *trip.Trip {
	t.Helper()
	tr := &trip.Trip{
		ClientName:   "Ana Torres",
		WhatsApp:     "+5491155551234",
		FlightNumber: "BA246",
		Origin:       "EZE",
		Destination:  "LHR",
		DepartureUTC: departure,
		Status:       trip.StatusActive,
	}
	if err := fx.store.CreateTrip(context.Background(), tr); err != nil {
		t.Fatalf("CreateTrip() error = %v", err)
	}
	return tr
}

func (fx *fixture) snap(status string) *trip.FlightSnapshot {
	return &trip.FlightSnapshot{
		Ident:       "BA246",
		Status:      status,
		Origin:      "EZE",
		Destination: "LHR",
		RecordedAt:  fx.clock.Now().UTC(),
	}
}

// tick runs one poll cycle against the given snapshot.
func (fx *fixture) tick(t *testing.T, tr *trip.Trip, s *trip.FlightSnapshot) {
	t.Helper()
	fx.flights.set(s)
	if err := fx.orch.OnPollTick(context.Background(), tr); err != nil {
		t.Fatalf("OnPollTick() error = %v", err)
	}
}

func TestOnTripCreatedFarOut(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC)
	fx := setup(t, now)
	tr := fx.makeTrip(t, now.Add(72*time.Hour))

	if err := fx.orch.OnTripCreated(ctx, tr); err != nil {
		t.Fatalf("OnTripCreated() error = %v", err)
	}
	// A duplicate trigger, as when the catch-up sweep races the bus consumer.
	if err := fx.orch.OnTripCreated(ctx, tr); err != nil {
		t.Fatalf("OnTripCreated() retrigger error = %v", err)
	}

	if got := fx.sender.sentCount(); got != 1 {
		t.Fatalf("sent %d messages, want 1 confirmation", got)
	}
	if fx.sender.sent[0].Type != trip.NotifReservationConfirmation {
		t.Errorf("sent type = %s, want %s", fx.sender.sent[0].Type, trip.NotifReservationConfirmation)
	}

	// 72 h out lands in the 1-7 day launch bucket.
	jobs, err := fx.store.ClaimDueJobs(ctx, now.Add(31*time.Minute), 10)
	if err != nil {
		t.Fatalf("ClaimDueJobs() error = %v", err)
	}
	if len(jobs) != 1 || jobs[0].Kind != storage.JobItineraryLaunch {
		t.Fatalf("claimed %+v, want one itinerary launch", jobs)
	}

	got, err := fx.store.GetTrip(ctx, tr.ID)
	if err != nil {
		t.Fatalf("GetTrip() error = %v", err)
	}
	if got.NextCheckAt == nil || !got.NextCheckAt.Equal(now.Add(6*time.Hour)) {
		t.Errorf("next_check_at = %v, want %v", got.NextCheckAt, now.Add(6*time.Hour))
	}
}

func TestOnTripCreatedInsideReminderWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC)
	fx := setup(t, now)
	tr := fx.makeTrip(t, now.Add(20*time.Hour))

	if err := fx.orch.OnTripCreated(ctx, tr); err != nil {
		t.Fatalf("OnTripCreated() error = %v", err)
	}

	// Inside 24 h both the launch (5 min) and the reminder (1 min) are due
	// within minutes of registration.
	jobs, err := fx.store.ClaimDueJobs(ctx, now.Add(6*time.Minute), 10)
	if err != nil {
		t.Fatalf("ClaimDueJobs() error = %v", err)
	}
	kinds := make(map[string]bool)
	for _, j := range jobs {
		kinds[j.Kind] = true
	}
	if !kinds[storage.JobItineraryLaunch] || !kinds[storage.JobImmediateReminder] {
		t.Fatalf("claimed kinds = %v, want itinerary launch and immediate reminder", kinds)
	}

	got, err := fx.store.GetTrip(ctx, tr.ID)
	if err != nil {
		t.Fatalf("GetTrip() error = %v", err)
	}
	if got.NextCheckAt == nil || !got.NextCheckAt.Equal(now.Add(time.Hour)) {
		t.Errorf("next_check_at = %v, want %v", got.NextCheckAt, now.Add(time.Hour))
	}
}

// TestPollCycleDelayPingPong walks the documented estimate sequence
// 02:30 -> null -> 02:30 -> 03:00 -> 03:00 and expects exactly one delay
// message, for the net 02:30 -> 03:00 move.
func TestPollCycleDelayPingPong(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC)
	fx := setup(t, now)
	tr := fx.makeTrip(t, time.Date(2025, 12, 2, 2, 30, 0, 0, time.UTC))

	est1 := time.Date(2025, 12, 2, 2, 30, 0, 0, time.UTC)
	est2 := time.Date(2025, 12, 2, 3, 0, 0, 0, time.UTC)

	s := fx.snap("Scheduled")
	s.EstimatedOut = &est1
	fx.tick(t, tr, s)

	fx.clock.Advance(5 * time.Minute)
	fx.tick(t, tr, fx.snap("Scheduled"))

	fx.clock.Advance(5 * time.Minute)
	s = fx.snap("Scheduled")
	s.EstimatedOut = &est1
	fx.tick(t, tr, s)

	fx.clock.Advance(5 * time.Minute)
	s = fx.snap("Delayed")
	s.EstimatedOut = &est2
	fx.tick(t, tr, s)

	fx.clock.Advance(5 * time.Minute)
	s = fx.snap("Delayed")
	s.EstimatedOut = &est2
	fx.tick(t, tr, s)

	if got := fx.sender.sentCount(); got != 1 {
		t.Fatalf("sent %d messages, want exactly 1 delay: %v", got, fx.sender.sentTypes())
	}
	sent := fx.sender.sent[0]
	if sent.Type != trip.NotifDelayed {
		t.Errorf("sent type = %s, want %s", sent.Type, trip.NotifDelayed)
	}
	if len(sent.Variables) != 3 || sent.Variables[2] != "00:00 (03:00 LHR)" {
		t.Errorf("variables = %v, want new departure 00:00 (03:00 LHR)", sent.Variables)
	}

	hist, err := fx.store.GetStatusHistory(ctx, tr.ID, 10)
	if err != nil {
		t.Fatalf("GetStatusHistory() error = %v", err)
	}
	if len(hist) != 5 {
		t.Errorf("history rows = %d, want 5", len(hist))
	}
}

func TestPollCycleGateChange(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 12, 1, 22, 0, 0, 0, time.UTC)
	fx := setup(t, now)
	tr := fx.makeTrip(t, time.Date(2025, 12, 2, 2, 30, 0, 0, time.UTC))

	d16, d19 := "D16", "D19"

	s := fx.snap("On Time")
	s.GateOrigin = &d16
	fx.tick(t, tr, s)

	fx.clock.Advance(15 * time.Minute)
	s = fx.snap("On Time")
	s.GateOrigin = &d19
	fx.tick(t, tr, s)

	// Same gate again, then a provider dropout, then the gate comes back.
	// None of these are reassignments.
	for _, gate := range []*string{&d19, nil, &d19} {
		fx.clock.Advance(15 * time.Minute)
		s = fx.snap("On Time")
		s.GateOrigin = gate
		fx.tick(t, tr, s)
	}

	if got := fx.sender.sentCount(); got != 1 {
		t.Fatalf("sent %d messages, want exactly 1 gate change: %v", got, fx.sender.sentTypes())
	}
	last, err := fx.store.LastNotificationOfType(ctx, tr.ID, trip.NotifGateChange)
	if err != nil {
		t.Fatalf("LastNotificationOfType() error = %v", err)
	}
	if last == nil || last.Extra["gate"] != "D19" {
		t.Errorf("gate change row = %+v, want extra gate D19", last)
	}
}

func TestPollCycleCancelledStopsTrip(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC)
	fx := setup(t, now)
	tr := fx.makeTrip(t, time.Date(2025, 12, 2, 2, 30, 0, 0, time.UTC))

	fx.tick(t, tr, fx.snap("Scheduled"))

	fx.clock.Advance(time.Hour)
	s := fx.snap("Cancelled")
	s.Cancelled = true
	fx.tick(t, tr, s)

	if types := fx.sender.sentTypes(); len(types) != 1 || types[0] != trip.NotifCancelled {
		t.Fatalf("sent = %v, want one CANCELLED", types)
	}

	got, err := fx.store.GetTrip(ctx, tr.ID)
	if err != nil {
		t.Fatalf("GetTrip() error = %v", err)
	}
	if got.Status != trip.StatusCancelled {
		t.Errorf("trip status = %s, want %s", got.Status, trip.StatusCancelled)
	}
	if got.NextCheckAt != nil {
		t.Errorf("next_check_at = %v, want nil", got.NextCheckAt)
	}
	if fx.bus.count(bus.SubjectTripUpdated) == 0 {
		t.Error("no trip.updated event published")
	}

	due, err := fx.store.GetTripsDueForPoll(ctx, fx.clock.Now().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("GetTripsDueForPoll() error = %v", err)
	}
	if len(due) != 0 {
		t.Errorf("cancelled trip still due for poll: %+v", due)
	}
}

func TestPollCycleLandedArrival(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 12, 2, 10, 0, 0, 0, time.UTC)
	fx := setup(t, now)
	tr := fx.makeTrip(t, now.Add(-10*time.Hour))

	fx.tick(t, tr, fx.snap("En Route"))

	fx.clock.Advance(30 * time.Minute)
	fx.tick(t, tr, fx.snap("Arrived"))

	if types := fx.sender.sentTypes(); len(types) != 1 || types[0] != trip.NotifLandingWelcome {
		t.Fatalf("sent = %v, want one LANDING_WELCOME", types)
	}

	got, err := fx.store.GetTrip(ctx, tr.ID)
	if err != nil {
		t.Fatalf("GetTrip() error = %v", err)
	}
	if got.Status != trip.StatusCompleted {
		t.Errorf("trip status = %s, want %s", got.Status, trip.StatusCompleted)
	}
	if got.NextCheckAt != nil {
		t.Errorf("next_check_at = %v, want nil in the same cycle", got.NextCheckAt)
	}
}

func TestPollCycleLandedByActualIn(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 12, 2, 10, 0, 0, 0, time.UTC)
	fx := setup(t, now)
	tr := fx.makeTrip(t, now.Add(-10*time.Hour))

	fx.tick(t, tr, fx.snap("En Route"))

	// The provider never flips to Arrived but reports the aircraft at the
	// gate 35 minutes ago.
	fx.clock.Advance(30 * time.Minute)
	s := fx.snap("En Route")
	in := fx.clock.Now().UTC().Add(-35 * time.Minute)
	s.ActualIn = &in
	fx.tick(t, tr, s)

	if types := fx.sender.sentTypes(); len(types) != 1 || types[0] != trip.NotifLandingWelcome {
		t.Fatalf("sent = %v, want one LANDING_WELCOME", types)
	}
	got, err := fx.store.GetTrip(ctx, tr.ID)
	if err != nil {
		t.Fatalf("GetTrip() error = %v", err)
	}
	if got.Status != trip.StatusCompleted || got.NextCheckAt != nil {
		t.Errorf("trip = status %s next_check %v, want completed and nil", got.Status, got.NextCheckAt)
	}
}

// TestPollCycleFirstEstimateSilent pins the initial-estimate rule: the
// provider publishing its first concrete departure time is not a delay.
func TestPollCycleFirstEstimateSilent(t *testing.T) {
	now := time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC)
	fx := setup(t, now)
	tr := fx.makeTrip(t, time.Date(2025, 12, 2, 2, 30, 0, 0, time.UTC))

	fx.tick(t, tr, fx.snap("Scheduled"))

	fx.clock.Advance(time.Hour)
	est := time.Date(2025, 12, 2, 2, 30, 0, 0, time.UTC)
	s := fx.snap("Scheduled")
	s.EstimatedOut = &est
	fx.tick(t, tr, s)

	if got := fx.sender.sentCount(); got != 0 {
		t.Errorf("sent %d messages, want 0: %v", got, fx.sender.sentTypes())
	}
}

func TestPollCycleProviderErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantErr   bool
		wantDelay time.Duration
	}{
		{
			name:      "transient shortens the cadence",
			err:       &flightdata.TransientError{Err: errors.New("connection reset")},
			wantErr:   true,
			wantDelay: 10 * time.Minute,
		},
		{
			name:      "not found keeps the normal cadence",
			err:       &flightdata.NotFoundError{Ident: "BA246", Date: "2025-12-02"},
			wantErr:   false,
			wantDelay: time.Hour,
		},
		{
			name:      "permanent waits for the normal slot",
			err:       &flightdata.PermanentError{Status: 401, Body: "revoked key"},
			wantErr:   true,
			wantDelay: time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC)
			fx := setup(t, now)
			tr := fx.makeTrip(t, now.Add(20*time.Hour))

			fx.flights.fail(tt.err)
			err := fx.orch.OnPollTick(ctx, tr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("OnPollTick() error = %v, wantErr %v", err, tt.wantErr)
			}

			got, gerr := fx.store.GetTrip(ctx, tr.ID)
			if gerr != nil {
				t.Fatalf("GetTrip() error = %v", gerr)
			}
			want := now.Add(tt.wantDelay)
			if got.NextCheckAt == nil || !got.NextCheckAt.Equal(want) {
				t.Errorf("next_check_at = %v, want %v", got.NextCheckAt, want)
			}
			if fx.sender.sentCount() != 0 {
				t.Errorf("sent %d messages on a failed fetch", fx.sender.sentCount())
			}
		})
	}
}

func TestItineraryReady(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC)
	fx := setup(t, now)
	tr := fx.makeTrip(t, now.Add(48*time.Hour))

	if err := fx.orch.ItineraryReady(ctx, tr.ID, "Día 1: City tour por Londres"); err != nil {
		t.Fatalf("ItineraryReady() error = %v", err)
	}

	it, err := fx.store.GetItinerary(ctx, tr.ID)
	if err != nil {
		t.Fatalf("GetItinerary() error = %v", err)
	}
	if it == nil || it.Status != "ready" || it.Content != "Día 1: City tour por Londres" {
		t.Errorf("itinerary = %+v, want ready with content", it)
	}

	if types := fx.sender.sentTypes(); len(types) != 1 || types[0] != trip.NotifItineraryReady {
		t.Errorf("sent = %v, want one ITINERARY_READY", types)
	}

	if err := fx.orch.ItineraryReady(ctx, "nope", ""); err == nil {
		t.Error("ItineraryReady() on unknown trip returned nil error")
	}
}
