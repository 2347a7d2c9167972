package storage

import (
	"context"
	"testing"
	"time"

	"tripwatch/internal/trip"
)

func setupTestStore(t *testing.T) *SQLiteDB {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testTrip(whatsapp, flight string, departure time.Time) *trip.Trip {
	return &trip.Trip{
		ClientName:   "Ana Torres",
		WhatsApp:     whatsapp,
		FlightNumber: flight,
		Origin:       "EZE",
		Destination:  "MAD",
		DepartureUTC: departure,
	}
}

func strPtr(s string) *string       { return &s }
func intPtr(i int) *int             { return &i }
func timePtr(t time.Time) *time.Time { return &t }

func TestCreateTripGeneratesID(t *testing.T) {
	db := setupTestStore(t)
	ctx := context.Background()

	tr := testTrip("+5491155550001", "IB6842", time.Date(2025, 12, 1, 14, 30, 0, 0, time.UTC))
	if err := db.CreateTrip(ctx, tr); err != nil {
		t.Fatalf("create trip: %v", err)
	}
	if tr.ID == "" {
		t.Error("expected generated ID, got empty")
	}
	if tr.Status != trip.StatusActive {
		t.Errorf("status = %q, want %q", tr.Status, trip.StatusActive)
	}

	got, err := db.GetTrip(ctx, tr.ID)
	if err != nil {
		t.Fatalf("get trip: %v", err)
	}
	if got == nil {
		t.Fatal("expected trip, got nil")
	}
	if got.FlightNumber != "IB6842" {
		t.Errorf("flight_number = %q, want IB6842", got.FlightNumber)
	}
	if !got.DepartureUTC.Equal(tr.DepartureUTC) {
		t.Errorf("departure = %v, want %v", got.DepartureUTC, tr.DepartureUTC)
	}
}

func TestCreateTripDuplicate(t *testing.T) {
	db := setupTestStore(t)
	ctx := context.Background()
	departure := time.Date(2025, 12, 1, 14, 30, 0, 0, time.UTC)

	first := testTrip("+5491155550002", "AA123", departure)
	if err := db.CreateTrip(ctx, first); err != nil {
		t.Fatalf("create trip: %v", err)
	}

	// Same contact, flight and UTC day, different time of day.
	dup := testTrip("+5491155550002", "AA123", departure.Add(2*time.Hour))
	err := db.CreateTrip(ctx, dup)
	if !IsDuplicateTrip(err) {
		t.Fatalf("expected duplicate trip error, got %v", err)
	}

	// Next day is a different trip.
	nextDay := testTrip("+5491155550002", "AA123", departure.Add(24*time.Hour))
	if err := db.CreateTrip(ctx, nextDay); err != nil {
		t.Fatalf("create next-day trip: %v", err)
	}

	// Completing the first trip frees the slot for re-registration.
	if err := db.UpdateTripStatus(ctx, first.ID, trip.StatusCompleted); err != nil {
		t.Fatalf("update status: %v", err)
	}
	again := testTrip("+5491155550002", "AA123", departure)
	if err := db.CreateTrip(ctx, again); err != nil {
		t.Fatalf("create after completion: %v", err)
	}
}

func TestGetTripNotFound(t *testing.T) {
	db := setupTestStore(t)

	got, err := db.GetTrip(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing trip, got %+v", got)
	}
}

func TestListTripsFilters(t *testing.T) {
	db := setupTestStore(t)
	ctx := context.Background()
	departure := time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)

	a := testTrip("+5491155550003", "AA123", departure)
	a.AgencyID = "viajes-sur"
	b := testTrip("+5491155550004", "IB6842", departure)
	b.AgencyID = "viajes-sur"
	c := testTrip("+5491155550005", "AA123", departure)
	for _, tr := range []*trip.Trip{a, b, c} {
		if err := db.CreateTrip(ctx, tr); err != nil {
			t.Fatalf("create trip: %v", err)
		}
	}
	if err := db.UpdateTripStatus(ctx, c.ID, trip.StatusCancelled); err != nil {
		t.Fatalf("update status: %v", err)
	}

	byAgency, err := db.ListTrips(ctx, ListParams{AgencyID: "viajes-sur"})
	if err != nil {
		t.Fatalf("list by agency: %v", err)
	}
	if len(byAgency) != 2 {
		t.Errorf("agency list = %d trips, want 2", len(byAgency))
	}

	byStatus, err := db.ListTrips(ctx, ListParams{Status: string(trip.StatusActive)})
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if len(byStatus) != 2 {
		t.Errorf("active list = %d trips, want 2", len(byStatus))
	}

	byFlight, err := db.ListTrips(ctx, ListParams{FlightNumber: "AA123", Status: string(trip.StatusActive)})
	if err != nil {
		t.Fatalf("list by flight: %v", err)
	}
	if len(byFlight) != 1 {
		t.Errorf("flight list = %d trips, want 1", len(byFlight))
	}

	limited, err := db.ListTrips(ctx, ListParams{Limit: 1})
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limited list = %d trips, want 1", len(limited))
	}
}

func TestGetTripsDueForPoll(t *testing.T) {
	db := setupTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 11, 30, 12, 0, 0, 0, time.UTC)

	due := testTrip("+5491155550010", "AA123", now.Add(24*time.Hour))
	due.NextCheckAt = timePtr(now.Add(-5 * time.Minute))

	dueLater := testTrip("+5491155550011", "AA124", now.Add(24*time.Hour))
	dueLater.NextCheckAt = timePtr(now.Add(-1 * time.Minute))

	notYet := testTrip("+5491155550012", "AA125", now.Add(24*time.Hour))
	notYet.NextCheckAt = timePtr(now.Add(10 * time.Minute))

	unscheduled := testTrip("+5491155550013", "AA126", now.Add(24*time.Hour))

	farFuture := testTrip("+5491155550014", "AA127", now.Add(70*24*time.Hour))
	farFuture.NextCheckAt = timePtr(now.Add(-5 * time.Minute))

	longGone := testTrip("+5491155550015", "AA128", now.Add(-72*time.Hour))
	longGone.NextCheckAt = timePtr(now.Add(-5 * time.Minute))

	completed := testTrip("+5491155550016", "AA129", now.Add(24*time.Hour))
	completed.NextCheckAt = timePtr(now.Add(-5 * time.Minute))

	for _, tr := range []*trip.Trip{due, dueLater, notYet, unscheduled, farFuture, longGone, completed} {
		if err := db.CreateTrip(ctx, tr); err != nil {
			t.Fatalf("create trip %s: %v", tr.FlightNumber, err)
		}
	}
	if err := db.UpdateTripStatus(ctx, completed.ID, trip.StatusCompleted); err != nil {
		t.Fatalf("update status: %v", err)
	}

	got, err := db.GetTripsDueForPoll(ctx, now)
	if err != nil {
		t.Fatalf("get due trips: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("due trips = %d, want 2", len(got))
	}
	// Earliest next_check_at first.
	if got[0].ID != due.ID || got[1].ID != dueLater.ID {
		t.Errorf("due order = [%s %s], want [%s %s]", got[0].FlightNumber, got[1].FlightNumber,
			due.FlightNumber, dueLater.FlightNumber)
	}
}

func TestTripsDepartingBetween(t *testing.T) {
	db := setupTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 11, 30, 12, 0, 0, 0, time.UTC)

	inside := testTrip("+5491155550020", "AA123", now.Add(24*time.Hour))
	before := testTrip("+5491155550021", "AA124", now.Add(22*time.Hour))
	atEnd := testTrip("+5491155550022", "AA125", now.Add(25*time.Hour))
	for _, tr := range []*trip.Trip{inside, before, atEnd} {
		if err := db.CreateTrip(ctx, tr); err != nil {
			t.Fatalf("create trip: %v", err)
		}
	}

	// Half-open window: the trip sitting exactly on the upper bound stays out.
	got, err := db.TripsDepartingBetween(ctx, now.Add(23*time.Hour), now.Add(25*time.Hour))
	if err != nil {
		t.Fatalf("departing between: %v", err)
	}
	if len(got) != 1 || got[0].ID != inside.ID {
		t.Errorf("got %d trips, want exactly the 24h one", len(got))
	}
}

func TestTripsCreatedWithoutConfirmation(t *testing.T) {
	db := setupTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 11, 30, 12, 0, 0, 0, time.UTC)

	confirmed := testTrip("+5491155550030", "AA123", now.Add(24*time.Hour))
	confirmed.CreatedAt = now.Add(-10 * time.Minute)
	missed := testTrip("+5491155550031", "AA124", now.Add(24*time.Hour))
	missed.CreatedAt = now.Add(-10 * time.Minute)
	fresh := testTrip("+5491155550032", "AA125", now.Add(24*time.Hour))
	fresh.CreatedAt = now.Add(-30 * time.Second)
	for _, tr := range []*trip.Trip{confirmed, missed, fresh} {
		if err := db.CreateTrip(ctx, tr); err != nil {
			t.Fatalf("create trip: %v", err)
		}
	}

	err := db.LogNotification(ctx, &Notification{
		TripID:         confirmed.ID,
		Type:           trip.NotifReservationConfirmation,
		IdempotencyKey: "abc123",
		Recipient:      confirmed.WhatsApp,
	})
	if err != nil {
		t.Fatalf("log notification: %v", err)
	}

	got, err := db.TripsCreatedWithoutConfirmation(ctx, now.Add(-1*time.Minute))
	if err != nil {
		t.Fatalf("without confirmation: %v", err)
	}
	if len(got) != 1 || got[0].ID != missed.ID {
		t.Fatalf("got %d trips, want only the unconfirmed old one", len(got))
	}
}

func TestUpdateTripFromSnapshot(t *testing.T) {
	db := setupTestStore(t)
	ctx := context.Background()
	departure := time.Date(2025, 12, 1, 14, 30, 0, 0, time.UTC)

	tr := testTrip("+5491155550040", "AA123", departure)
	if err := db.CreateTrip(ctx, tr); err != nil {
		t.Fatalf("create trip: %v", err)
	}

	estOut := departure.Add(20 * time.Minute)
	estIn := departure.Add(11 * time.Hour)
	snap := &trip.FlightSnapshot{
		Status:       "Delayed",
		GateOrigin:   strPtr("D19"),
		EstimatedOut: &estOut,
		EstimatedIn:  &estIn,
	}
	if err := db.UpdateTripFromSnapshot(ctx, tr.ID, snap); err != nil {
		t.Fatalf("update from snapshot: %v", err)
	}

	got, err := db.GetTrip(ctx, tr.ID)
	if err != nil {
		t.Fatalf("get trip: %v", err)
	}
	if got.LastFlightStatus != "Delayed" {
		t.Errorf("last_flight_status = %q, want Delayed", got.LastFlightStatus)
	}
	if got.Gate != "D19" {
		t.Errorf("gate = %q, want D19", got.Gate)
	}
	if got.EstimatedOut == nil || !got.EstimatedOut.Equal(estOut) {
		t.Errorf("estimated_out = %v, want %v", got.EstimatedOut, estOut)
	}
	if got.EstimatedIn == nil || !got.EstimatedIn.Equal(estIn) {
		t.Errorf("estimated_in = %v, want %v", got.EstimatedIn, estIn)
	}
}

func TestUpdateNextCheckAt(t *testing.T) {
	db := setupTestStore(t)
	ctx := context.Background()

	tr := testTrip("+5491155550041", "AA123", time.Date(2025, 12, 1, 14, 30, 0, 0, time.UTC))
	if err := db.CreateTrip(ctx, tr); err != nil {
		t.Fatalf("create trip: %v", err)
	}

	at := time.Date(2025, 11, 30, 18, 0, 0, 0, time.UTC)
	if err := db.UpdateNextCheckAt(ctx, tr.ID, &at); err != nil {
		t.Fatalf("set next check: %v", err)
	}
	got, _ := db.GetTrip(ctx, tr.ID)
	if got.NextCheckAt == nil || !got.NextCheckAt.Equal(at) {
		t.Errorf("next_check_at = %v, want %v", got.NextCheckAt, at)
	}

	if err := db.UpdateNextCheckAt(ctx, tr.ID, nil); err != nil {
		t.Fatalf("clear next check: %v", err)
	}
	got, _ = db.GetTrip(ctx, tr.ID)
	if got.NextCheckAt != nil {
		t.Errorf("next_check_at = %v, want nil after clear", got.NextCheckAt)
	}
}

func TestStatusHistoryRoundTrip(t *testing.T) {
	db := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 12, 1, 14, 0, 0, 0, time.UTC)

	tr := testTrip("+5491155550050", "AA123", base.Add(30*time.Minute))
	if err := db.CreateTrip(ctx, tr); err != nil {
		t.Fatalf("create trip: %v", err)
	}

	latest, err := db.GetLatestStatus(ctx, tr.ID)
	if err != nil {
		t.Fatalf("latest on empty history: %v", err)
	}
	if latest != nil {
		t.Fatalf("expected nil latest, got %+v", latest)
	}

	first := &trip.FlightSnapshot{
		Ident: "AA123", Status: "Scheduled",
		Origin: "JFK", Destination: "LAX",
		OriginCity: "New York", DestinationCity: "Los Angeles",
		GateOrigin:   strPtr("D16"),
		ScheduledOut: timePtr(base.Add(30 * time.Minute)),
		EstimatedOut: timePtr(base.Add(30 * time.Minute)),
		RecordedAt:   base,
	}
	if err := db.AppendFlightStatus(ctx, tr.ID, first, `{"status":"Scheduled"}`); err != nil {
		t.Fatalf("append first: %v", err)
	}

	second := &trip.FlightSnapshot{
		Ident: "AA123", Status: "Delayed",
		Origin: "JFK", Destination: "LAX",
		OriginCity: "New York", DestinationCity: "Los Angeles",
		GateOrigin:      strPtr("D19"),
		ScheduledOut:    timePtr(base.Add(30 * time.Minute)),
		EstimatedOut:    timePtr(base.Add(50 * time.Minute)),
		ProgressPercent: intPtr(0),
		RecordedAt:      base.Add(5 * time.Minute),
	}
	if err := db.AppendFlightStatus(ctx, tr.ID, second, `{"status":"Delayed"}`); err != nil {
		t.Fatalf("append second: %v", err)
	}

	latest, err = db.GetLatestStatus(ctx, tr.ID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == nil {
		t.Fatal("expected latest snapshot, got nil")
	}
	if latest.Status != "Delayed" {
		t.Errorf("latest status = %q, want Delayed", latest.Status)
	}
	if latest.GateOrigin == nil || *latest.GateOrigin != "D19" {
		t.Errorf("latest gate = %v, want D19", latest.GateOrigin)
	}
	if latest.EstimatedOut == nil || !latest.EstimatedOut.Equal(base.Add(50*time.Minute)) {
		t.Errorf("latest estimated_out = %v, want %v", latest.EstimatedOut, base.Add(50*time.Minute))
	}
	if latest.ProgressPercent == nil || *latest.ProgressPercent != 0 {
		t.Errorf("latest progress = %v, want 0", latest.ProgressPercent)
	}
	if latest.GateDestination != nil {
		t.Errorf("gate_destination = %v, want nil", latest.GateDestination)
	}

	history, err := db.GetStatusHistory(ctx, tr.ID, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history = %d records, want 2", len(history))
	}
	if history[0].Snapshot.Status != "Delayed" || history[1].Snapshot.Status != "Scheduled" {
		t.Errorf("history order = [%s %s], want newest first", history[0].Snapshot.Status, history[1].Snapshot.Status)
	}
	if history[0].RawJSON != `{"status":"Delayed"}` {
		t.Errorf("raw_json = %q", history[0].RawJSON)
	}
	if !history[0].RecordedAt.Equal(base.Add(5 * time.Minute)) {
		t.Errorf("recorded_at = %v, want %v", history[0].RecordedAt, base.Add(5*time.Minute))
	}
}

func TestLogNotificationIdempotency(t *testing.T) {
	db := setupTestStore(t)
	ctx := context.Background()

	tr := testTrip("+5491155550060", "AA123", time.Date(2025, 12, 1, 14, 30, 0, 0, time.UTC))
	if err := db.CreateTrip(ctx, tr); err != nil {
		t.Fatalf("create trip: %v", err)
	}

	n := &Notification{
		TripID:         tr.ID,
		Type:           trip.NotifDelayed,
		IdempotencyKey: "a1b2c3d4e5f60718",
		Recipient:      tr.WhatsApp,
		Body:           "Hola Ana",
		Variables:      []string{"Ana", "AA123", "15:20"},
		Extra:          map[string]string{"estimated_out": "2025-12-01T15:20:00Z"},
	}
	if err := db.LogNotification(ctx, n); err != nil {
		t.Fatalf("log notification: %v", err)
	}
	if n.ID == 0 {
		t.Error("expected assigned ID")
	}
	if n.State != trip.NotifStatePending {
		t.Errorf("state = %q, want PENDING", n.State)
	}

	again := &Notification{
		TripID:         tr.ID,
		Type:           trip.NotifDelayed,
		IdempotencyKey: "a1b2c3d4e5f60718",
		Recipient:      tr.WhatsApp,
	}
	err := db.LogNotification(ctx, again)
	if !IsAlreadyLogged(err) {
		t.Fatalf("expected already-logged error, got %v", err)
	}

	got, err := db.LookupNotification(ctx, tr.ID, "a1b2c3d4e5f60718")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got == nil {
		t.Fatal("expected notification, got nil")
	}
	if len(got.Variables) != 3 || got.Variables[2] != "15:20" {
		t.Errorf("variables = %v", got.Variables)
	}
	if got.Extra["estimated_out"] != "2025-12-01T15:20:00Z" {
		t.Errorf("extra = %v", got.Extra)
	}

	missing, err := db.LookupNotification(ctx, tr.ID, "ffffffffffffffff")
	if err != nil {
		t.Fatalf("lookup missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown key, got %+v", missing)
	}
}

func TestNotificationStateFlow(t *testing.T) {
	db := setupTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)

	tr := testTrip("+5491155550061", "AA123", now.Add(4*time.Hour))
	if err := db.CreateTrip(ctx, tr); err != nil {
		t.Fatalf("create trip: %v", err)
	}
	n := &Notification{TripID: tr.ID, Type: trip.NotifBoarding, IdempotencyKey: "key1", Recipient: tr.WhatsApp}
	if err := db.LogNotification(ctx, n); err != nil {
		t.Fatalf("log: %v", err)
	}

	// First attempt fails and schedules a retry.
	if err := db.MarkNotificationRetry(ctx, n.ID, now.Add(2*time.Second), "twilio: 503"); err != nil {
		t.Fatalf("mark retry: %v", err)
	}
	got, _ := db.LookupNotification(ctx, tr.ID, "key1")
	if got.State != trip.NotifStateFailed {
		t.Errorf("state = %q, want FAILED", got.State)
	}
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", got.Attempts)
	}
	if got.NextRetryAt == nil {
		t.Fatal("expected next_retry_at")
	}
	if got.LastError != "twilio: 503" {
		t.Errorf("last_error = %q", got.LastError)
	}

	due, err := db.PendingRetries(ctx, now.Add(time.Minute), 5, 10)
	if err != nil {
		t.Fatalf("pending retries: %v", err)
	}
	if len(due) != 1 || due[0].ID != n.ID {
		t.Fatalf("pending retries = %d rows, want the failed one", len(due))
	}

	// Attempt cap filters it out.
	capped, err := db.PendingRetries(ctx, now.Add(time.Minute), 1, 10)
	if err != nil {
		t.Fatalf("pending retries capped: %v", err)
	}
	if len(capped) != 0 {
		t.Errorf("capped retries = %d rows, want 0", len(capped))
	}

	// Success clears the retry schedule.
	sentAt := now.Add(3 * time.Second)
	if err := db.UpdateNotificationState(ctx, n.ID, trip.NotifStateSent, &sentAt, "SM42", ""); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	got, _ = db.LookupNotification(ctx, tr.ID, "key1")
	if got.State != trip.NotifStateSent {
		t.Errorf("state = %q, want SENT", got.State)
	}
	if got.SentAt == nil || !got.SentAt.Equal(sentAt) {
		t.Errorf("sent_at = %v, want %v", got.SentAt, sentAt)
	}
	if got.ProviderID != "SM42" {
		t.Errorf("provider_id = %q, want SM42", got.ProviderID)
	}
	if got.NextRetryAt != nil {
		t.Errorf("next_retry_at = %v, want nil after send", got.NextRetryAt)
	}

	due, _ = db.PendingRetries(ctx, now.Add(time.Hour), 5, 10)
	if len(due) != 0 {
		t.Errorf("pending retries after send = %d rows, want 0", len(due))
	}
}

func TestLastNotificationOfType(t *testing.T) {
	db := setupTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)

	tr := testTrip("+5491155550062", "AA123", now.Add(4*time.Hour))
	if err := db.CreateTrip(ctx, tr); err != nil {
		t.Fatalf("create trip: %v", err)
	}

	none, err := db.LastNotificationOfType(ctx, tr.ID, trip.NotifDelayed)
	if err != nil {
		t.Fatalf("last of type empty: %v", err)
	}
	if none != nil {
		t.Fatalf("expected nil, got %+v", none)
	}

	older := &Notification{TripID: tr.ID, Type: trip.NotifDelayed, IdempotencyKey: "d1",
		Recipient: tr.WhatsApp, CreatedAt: now.Add(-30 * time.Minute)}
	newer := &Notification{TripID: tr.ID, Type: trip.NotifDelayed, IdempotencyKey: "d2",
		Recipient: tr.WhatsApp, CreatedAt: now.Add(-5 * time.Minute)}
	other := &Notification{TripID: tr.ID, Type: trip.NotifGateChange, IdempotencyKey: "g1",
		Recipient: tr.WhatsApp, CreatedAt: now}
	for _, n := range []*Notification{older, newer, other} {
		if err := db.LogNotification(ctx, n); err != nil {
			t.Fatalf("log: %v", err)
		}
	}

	got, err := db.LastNotificationOfType(ctx, tr.ID, trip.NotifDelayed)
	if err != nil {
		t.Fatalf("last of type: %v", err)
	}
	if got == nil || got.IdempotencyKey != "d2" {
		t.Errorf("last delayed = %+v, want key d2", got)
	}

	history, err := db.GetNotificationHistory(ctx, tr.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("history = %d rows, want 3", len(history))
	}
	if history[0].IdempotencyKey != "d1" {
		t.Errorf("history order starts with %q, want d1 (oldest first)", history[0].IdempotencyKey)
	}
}

func TestScheduleJobIdempotent(t *testing.T) {
	db := setupTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)

	j := &Job{TripID: "trip-1", Kind: "itinerary_launch", RunAt: now.Add(-time.Minute),
		Payload: map[string]string{"trip_id": "trip-1"}}
	if err := db.ScheduleJob(ctx, j); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if j.ID == 0 {
		t.Error("expected assigned job ID")
	}

	// Same kind for the same trip while one is still pending: no-op.
	dup := &Job{TripID: "trip-1", Kind: "itinerary_launch", RunAt: now.Add(time.Hour)}
	if err := db.ScheduleJob(ctx, dup); err != nil {
		t.Fatalf("schedule dup: %v", err)
	}

	jobs, err := db.ClaimDueJobs(ctx, now, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("claimed %d jobs, want 1", len(jobs))
	}
	if jobs[0].State != JobStateRunning {
		t.Errorf("state = %q, want running", jobs[0].State)
	}
	if jobs[0].Payload["trip_id"] != "trip-1" {
		t.Errorf("payload = %v", jobs[0].Payload)
	}

	// Once the pending slot is consumed a new job of the kind can be planted.
	if err := db.CompleteJob(ctx, jobs[0].ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	fresh := &Job{TripID: "trip-1", Kind: "itinerary_launch", RunAt: now.Add(-time.Second)}
	if err := db.ScheduleJob(ctx, fresh); err != nil {
		t.Fatalf("schedule fresh: %v", err)
	}
	if fresh.ID == 0 {
		t.Error("expected new job ID after completion")
	}
}

func TestClaimDueJobs(t *testing.T) {
	db := setupTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)

	due := &Job{TripID: "trip-1", Kind: "immediate_reminder", RunAt: now.Add(-time.Minute)}
	future := &Job{TripID: "trip-2", Kind: "immediate_reminder", RunAt: now.Add(time.Hour)}
	for _, j := range []*Job{due, future} {
		if err := db.ScheduleJob(ctx, j); err != nil {
			t.Fatalf("schedule: %v", err)
		}
	}

	jobs, err := db.ClaimDueJobs(ctx, now, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(jobs) != 1 || jobs[0].TripID != "trip-1" {
		t.Fatalf("claimed %d jobs, want only the due one", len(jobs))
	}

	// A freshly running job is not handed out again.
	again, err := db.ClaimDueJobs(ctx, now, 10)
	if err != nil {
		t.Fatalf("claim again: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("reclaimed %d jobs, want 0", len(again))
	}

	// A worker that died mid-run leaves the job stuck in running; after the
	// stale horizon it is handed out again.
	stale := now.Add(-2 * jobStaleAfter)
	if _, err := db.db.ExecContext(ctx,
		`UPDATE scheduled_jobs SET updated_at = ? WHERE id = ?`, fmtTime(stale), jobs[0].ID); err != nil {
		t.Fatalf("backdate job: %v", err)
	}
	reclaimed, err := db.ClaimDueJobs(ctx, now, 10)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if len(reclaimed) != 1 || reclaimed[0].ID != jobs[0].ID {
		t.Fatalf("reclaimed %d jobs, want the stale one", len(reclaimed))
	}
}

func TestJobRescheduleAndFail(t *testing.T) {
	db := setupTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)

	j := &Job{TripID: "trip-1", Kind: "deferred_notification", RunAt: now.Add(-time.Minute)}
	if err := db.ScheduleJob(ctx, j); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	jobs, _ := db.ClaimDueJobs(ctx, now, 10)
	if len(jobs) != 1 {
		t.Fatalf("claimed %d jobs, want 1", len(jobs))
	}

	retryAt := now.Add(30 * time.Second)
	if err := db.RescheduleJob(ctx, jobs[0].ID, retryAt, "store unavailable"); err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	// Not due before the retry instant.
	early, _ := db.ClaimDueJobs(ctx, now.Add(10*time.Second), 10)
	if len(early) != 0 {
		t.Fatalf("claimed %d jobs before retry due, want 0", len(early))
	}

	later, _ := db.ClaimDueJobs(ctx, retryAt.Add(time.Second), 10)
	if len(later) != 1 {
		t.Fatalf("claimed %d jobs after retry due, want 1", len(later))
	}
	if later[0].Attempts != 1 {
		t.Errorf("attempts = %d, want 1", later[0].Attempts)
	}
	if later[0].LastError != "store unavailable" {
		t.Errorf("last_error = %q", later[0].LastError)
	}

	if err := db.FailJob(ctx, later[0].ID, "gave up"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	afterFail, _ := db.ClaimDueJobs(ctx, retryAt.Add(time.Hour), 10)
	if len(afterFail) != 0 {
		t.Fatalf("claimed %d jobs after fail, want 0", len(afterFail))
	}
}

func TestItineraryLifecycle(t *testing.T) {
	db := setupTestStore(t)
	ctx := context.Background()

	tr := testTrip("+5491155550070", "AA123", time.Date(2025, 12, 1, 14, 30, 0, 0, time.UTC))
	if err := db.CreateTrip(ctx, tr); err != nil {
		t.Fatalf("create trip: %v", err)
	}

	got, err := db.GetItinerary(ctx, tr.ID)
	if err != nil {
		t.Fatalf("get empty: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil itinerary, got %+v", got)
	}

	if err := db.CreateItinerary(ctx, tr.ID); err != nil {
		t.Fatalf("create itinerary: %v", err)
	}
	// Second create is a no-op.
	if err := db.CreateItinerary(ctx, tr.ID); err != nil {
		t.Fatalf("create itinerary again: %v", err)
	}

	got, err = db.GetItinerary(ctx, tr.ID)
	if err != nil {
		t.Fatalf("get pending: %v", err)
	}
	if got == nil || got.Status != "pending" {
		t.Fatalf("itinerary = %+v, want pending", got)
	}

	if err := db.MarkItineraryReady(ctx, tr.ID, "Día 1: Madrid centro"); err != nil {
		t.Fatalf("mark ready: %v", err)
	}
	got, err = db.GetItinerary(ctx, tr.ID)
	if err != nil {
		t.Fatalf("get ready: %v", err)
	}
	if got.Status != "ready" {
		t.Errorf("status = %q, want ready", got.Status)
	}
	if got.Content != "Día 1: Madrid centro" {
		t.Errorf("content = %q", got.Content)
	}
	if got.ReadyAt == nil {
		t.Error("expected ready_at to be set")
	}
}

func TestAgencyAndPlaces(t *testing.T) {
	db := setupTestStore(t)
	ctx := context.Background()

	a := Agency{ID: "viajes-sur", Name: "Viajes del Sur", WhatsAppFrom: "+14155238886"}
	if err := db.UpsertAgency(ctx, a); err != nil {
		t.Fatalf("upsert agency: %v", err)
	}
	a.Name = "Viajes del Sur SRL"
	if err := db.UpsertAgency(ctx, a); err != nil {
		t.Fatalf("upsert agency update: %v", err)
	}

	got, err := db.GetAgency(ctx, "viajes-sur")
	if err != nil {
		t.Fatalf("get agency: %v", err)
	}
	if got == nil || got.Name != "Viajes del Sur SRL" {
		t.Fatalf("agency = %+v, want updated name", got)
	}

	hotelID, err := db.AddAgencyPlace(ctx, AgencyPlace{
		AgencyID: "viajes-sur", Kind: "hotel", Name: "Hotel Plaza",
		Address: "Gran Vía 84", City: "Madrid",
	})
	if err != nil {
		t.Fatalf("add place: %v", err)
	}
	if hotelID == 0 {
		t.Error("expected place ID")
	}
	if _, err := db.AddAgencyPlace(ctx, AgencyPlace{
		AgencyID: "viajes-sur", Kind: "restaurant", Name: "Casa Lucio", City: "Madrid",
	}); err != nil {
		t.Fatalf("add second place: %v", err)
	}

	hotels, err := db.ListAgencyPlaces(ctx, "viajes-sur", "hotel")
	if err != nil {
		t.Fatalf("list hotels: %v", err)
	}
	if len(hotels) != 1 || hotels[0].Address != "Gran Vía 84" {
		t.Errorf("hotels = %+v, want the one hotel", hotels)
	}

	all, err := db.ListAgencyPlaces(ctx, "viajes-sur", "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("places = %d, want 2", len(all))
	}
}

func TestDocumentsAndConversations(t *testing.T) {
	db := setupTestStore(t)
	ctx := context.Background()

	tr := testTrip("+5491155550080", "AA123", time.Date(2025, 12, 1, 14, 30, 0, 0, time.UTC))
	if err := db.CreateTrip(ctx, tr); err != nil {
		t.Fatalf("create trip: %v", err)
	}

	id, err := db.AddDocument(ctx, Document{
		TripID: tr.ID, Kind: "boarding_pass", Filename: "aa123.pdf",
		URL: "https://files.example.com/aa123.pdf",
	})
	if err != nil {
		t.Fatalf("add document: %v", err)
	}
	if id == 0 {
		t.Error("expected document ID")
	}

	docs, err := db.ListDocuments(ctx, tr.ID)
	if err != nil {
		t.Fatalf("list documents: %v", err)
	}
	if len(docs) != 1 || docs[0].Filename != "aa123.pdf" {
		t.Errorf("documents = %+v", docs)
	}

	base := time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC)
	out := ConversationMessage{TripID: tr.ID, Direction: "out", Body: "Hola Ana", CreatedAt: base}
	in := ConversationMessage{TripID: tr.ID, Direction: "in", Body: "Gracias!", CreatedAt: base.Add(time.Minute)}
	for _, m := range []ConversationMessage{out, in} {
		if err := db.LogConversation(ctx, m); err != nil {
			t.Fatalf("log conversation: %v", err)
		}
	}

	msgs, err := db.GetConversation(ctx, tr.ID, 10)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if msgs[0].Body != "Gracias!" || msgs[0].Direction != "in" {
		t.Errorf("newest message = %+v, want the inbound reply", msgs[0])
	}
}

func TestCountActiveTrips(t *testing.T) {
	db := setupTestStore(t)
	ctx := context.Background()
	departure := time.Date(2025, 12, 1, 14, 30, 0, 0, time.UTC)

	a := testTrip("+5491155550090", "AA123", departure)
	b := testTrip("+5491155550091", "AA124", departure)
	for _, tr := range []*trip.Trip{a, b} {
		if err := db.CreateTrip(ctx, tr); err != nil {
			t.Fatalf("create trip: %v", err)
		}
	}
	if err := db.UpdateTripStatus(ctx, b.ID, trip.StatusCompleted); err != nil {
		t.Fatalf("update status: %v", err)
	}

	n, err := db.CountActiveTrips(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("active trips = %d, want 1", n)
	}
}
