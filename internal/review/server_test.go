package review

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	_ "tripwatch/internal/messages"
	"tripwatch/internal/notify"
	"tripwatch/internal/storage"
	"tripwatch/internal/trip"
)

func setup(t *testing.T) (*Server, storage.Store) {
	t.Helper()
	st, err := storage.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	s, err := New(Config{Store: st, Log: zerolog.Nop()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s, st
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func logRow(t *testing.T, st storage.Store, n storage.Notification) {
	t.Helper()
	if err := st.LogNotification(context.Background(), &n); err != nil {
		t.Fatalf("LogNotification() error = %v", err)
	}
}

func TestIndexShowsRecentAndFailed(t *testing.T) {
	s, st := setup(t)

	logRow(t, st, storage.Notification{
		TripID: "trip-ok", Type: trip.NotifBoarding, IdempotencyKey: "k1",
		State: trip.NotifStateSent, Recipient: "+5491155551234",
	})
	logRow(t, st, storage.Notification{
		TripID: "trip-bad", Type: trip.NotifDelayed, IdempotencyKey: "k2",
		State: trip.NotifStateFailed, Recipient: "+5491144440000",
		Attempts: notify.MaxSendAttempts, LastError: "twilio: 500",
	})

	rec := get(t, s, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "trip-ok") {
		t.Errorf("index missing recent row, body:\n%s", body)
	}
	if !strings.Contains(body, "Permanently failed (1)") {
		t.Errorf("index missing failed section header, body:\n%s", body)
	}
	if !strings.Contains(body, "twilio: 500") {
		t.Errorf("index missing failed row error, body:\n%s", body)
	}
}

func TestIndexFailedExcludesRetryable(t *testing.T) {
	s, st := setup(t)

	// Two attempts left: still in the retry loop, not parked.
	logRow(t, st, storage.Notification{
		TripID: "trip-retry", Type: trip.NotifDelayed, IdempotencyKey: "k1",
		State: trip.NotifStateFailed, Recipient: "+5491155551234",
		Attempts: notify.MaxSendAttempts - 2, LastError: "timeout",
	})

	rec := get(t, s, "/")
	if got := rec.Body.String(); !strings.Contains(got, "Permanently failed (0)") {
		t.Errorf("retryable row counted as permanent, body:\n%s", got)
	}
}

func TestPreviewRendersSample(t *testing.T) {
	s, _ := setup(t)

	rec := get(t, s, "/templates/REMINDER_24H")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Tu vuelo sale mañana") {
		t.Errorf("preview missing rendered body, got:\n%s", body)
	}
	if strings.Contains(body, "{{1}}") {
		t.Errorf("preview left unfilled slots in body:\n%s", body)
	}

	if rec := get(t, s, "/templates/NOT_A_TYPE"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown type status = %d, want 404", rec.Code)
	}
}

func TestPreviewAllRegisteredTypes(t *testing.T) {
	s, _ := setup(t)

	for _, typ := range s.reg.Types() {
		rec := get(t, s, "/templates/"+string(typ))
		if rec.Code != http.StatusOK {
			t.Errorf("preview %s status = %d, want 200", typ, rec.Code)
		}
	}
}

func TestNotificationsJSONStateFilter(t *testing.T) {
	s, st := setup(t)

	logRow(t, st, storage.Notification{
		TripID: "t1", Type: trip.NotifBoarding, IdempotencyKey: "k1",
		State: trip.NotifStateSent, Recipient: "+5491155551234",
	})
	logRow(t, st, storage.Notification{
		TripID: "t2", Type: trip.NotifDelayed, IdempotencyKey: "k2",
		State: trip.NotifStateFailed, Recipient: "+5491144440000",
	})

	rec := get(t, s, "/api/notifications?state=FAILED")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var rows []storage.Notification
	if err := json.NewDecoder(rec.Body).Decode(&rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 1 || rows[0].TripID != "t2" {
		t.Errorf("filtered rows = %+v, want just t2", rows)
	}
}
