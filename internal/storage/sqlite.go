package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"tripwatch/internal/trip"
)

// SQLiteDB implements Store on a single SQLite file. It carries both the
// mutable state and the status history, trading the ClickHouse analytics
// surface for zero external services.
type SQLiteDB struct {
	db *sql.DB
}

// OpenSQLite opens or creates a SQLite database at the given path and
// ensures the schema. ":memory:" gives a throwaway in-process database.
func OpenSQLite(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent access.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %s: %w", p, err)
		}
	}

	if err := createSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// Close closes the database connection.
func (d *SQLiteDB) Close() error {
	return d.db.Close()
}

// Ping checks the database connection.
func (d *SQLiteDB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func createSQLiteSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS agencies (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		whatsapp_from TEXT,
		created_at    TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agency_places (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		agency_id TEXT NOT NULL REFERENCES agencies(id) ON DELETE CASCADE,
		kind      TEXT NOT NULL,
		name      TEXT NOT NULL,
		address   TEXT,
		city      TEXT,
		notes     TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_agency_places_agency ON agency_places(agency_id, kind);

	CREATE TABLE IF NOT EXISTS trips (
		id                 TEXT PRIMARY KEY,
		agency_id          TEXT,
		client_name        TEXT NOT NULL,
		whatsapp           TEXT NOT NULL,
		flight_number      TEXT NOT NULL,
		origin             TEXT NOT NULL,
		destination        TEXT NOT NULL,
		departure_utc      TEXT NOT NULL,
		departure_day      TEXT NOT NULL,
		status             TEXT NOT NULL DEFAULT 'active',
		last_flight_status TEXT,
		gate               TEXT,
		estimated_out      TEXT,
		estimated_in       TEXT,
		metadata           TEXT,
		next_check_at      TEXT,
		created_at         TEXT NOT NULL,
		updated_at         TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_trips_active_dup
		ON trips(whatsapp, flight_number, departure_day) WHERE status = 'active';
	CREATE INDEX IF NOT EXISTS idx_trips_due ON trips(next_check_at) WHERE status = 'active';
	CREATE INDEX IF NOT EXISTS idx_trips_departure ON trips(departure_utc);

	CREATE TABLE IF NOT EXISTS flight_status_history (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		trip_id          TEXT NOT NULL,
		ident            TEXT NOT NULL DEFAULT '',
		status           TEXT NOT NULL DEFAULT '',
		origin           TEXT NOT NULL DEFAULT '',
		destination      TEXT NOT NULL DEFAULT '',
		origin_city      TEXT NOT NULL DEFAULT '',
		destination_city TEXT NOT NULL DEFAULT '',
		gate_origin      TEXT,
		gate_destination TEXT,
		scheduled_out    TEXT,
		estimated_out    TEXT,
		actual_out       TEXT,
		scheduled_in     TEXT,
		estimated_in     TEXT,
		actual_in        TEXT,
		progress_percent INTEGER,
		cancelled        INTEGER NOT NULL DEFAULT 0,
		diverted         INTEGER NOT NULL DEFAULT 0,
		raw_json         TEXT,
		recorded_at      TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_trip ON flight_status_history(trip_id, recorded_at);

	CREATE TABLE IF NOT EXISTS notifications_log (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		trip_id         TEXT NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
		type            TEXT NOT NULL,
		idempotency_key TEXT NOT NULL,
		state           TEXT NOT NULL DEFAULT 'PENDING',
		recipient       TEXT NOT NULL,
		body            TEXT,
		variables       TEXT,
		extra           TEXT,
		attempts        INTEGER NOT NULL DEFAULT 0,
		next_retry_at   TEXT,
		sent_at         TEXT,
		provider_id     TEXT,
		last_error      TEXT,
		created_at      TEXT NOT NULL,
		updated_at      TEXT NOT NULL,
		UNIQUE (trip_id, idempotency_key)
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_trip ON notifications_log(trip_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_notifications_type ON notifications_log(trip_id, type, created_at);
	CREATE INDEX IF NOT EXISTS idx_notifications_retry ON notifications_log(state, next_retry_at);

	CREATE TABLE IF NOT EXISTS scheduled_jobs (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		trip_id    TEXT,
		kind       TEXT NOT NULL,
		run_at     TEXT NOT NULL,
		payload    TEXT,
		state      TEXT NOT NULL DEFAULT 'pending',
		attempts   INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_pending_once
		ON scheduled_jobs(trip_id, kind) WHERE state = 'pending';
	CREATE INDEX IF NOT EXISTS idx_jobs_due ON scheduled_jobs(run_at) WHERE state = 'pending';

	CREATE TABLE IF NOT EXISTS itineraries (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		trip_id    TEXT NOT NULL UNIQUE REFERENCES trips(id) ON DELETE CASCADE,
		status     TEXT NOT NULL DEFAULT 'pending',
		content    TEXT,
		created_at TEXT NOT NULL,
		ready_at   TEXT
	);

	CREATE TABLE IF NOT EXISTS documents (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		trip_id    TEXT NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
		kind       TEXT NOT NULL,
		filename   TEXT NOT NULL,
		url        TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_trip ON documents(trip_id);

	CREATE TABLE IF NOT EXISTS conversations (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		trip_id    TEXT NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
		direction  TEXT NOT NULL,
		body       TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_conversations_trip ON conversations(trip_id, created_at);
	`

	_, err := db.Exec(schema)
	return err
}

const tripColumns = `id, agency_id, client_name, whatsapp, flight_number, origin, destination,
	departure_utc, status, last_flight_status, gate, estimated_out, estimated_in,
	metadata, next_check_at, created_at, updated_at`

// CreateTrip inserts a new trip, generating an ID when the caller left it
// empty. A second active trip for the same contact, flight number and UTC
// departure day reports DuplicateTripError.
func (d *SQLiteDB) CreateTrip(ctx context.Context, t *trip.Trip) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = trip.StatusActive
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	metadata, _ := json.Marshal(t.Metadata)

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO trips (id, agency_id, client_name, whatsapp, flight_number, origin, destination,
			departure_utc, departure_day, status, last_flight_status, gate, estimated_out, estimated_in,
			metadata, next_check_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, nullStr(t.AgencyID), t.ClientName, t.WhatsApp, t.FlightNumber, t.Origin, t.Destination,
		fmtTime(t.DepartureUTC), t.DepartureDay().Format("2006-01-02"), string(t.Status),
		nullStr(t.LastFlightStatus), nullStr(t.Gate), nullTime(t.EstimatedOut), nullTime(t.EstimatedIn),
		string(metadata), nullTime(t.NextCheckAt), fmtTime(t.CreatedAt), fmtTime(t.UpdatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return &DuplicateTripError{WhatsApp: t.WhatsApp, FlightNumber: t.FlightNumber, Day: t.DepartureDay()}
		}
		return fmt.Errorf("insert trip: %w", err)
	}
	return nil
}

// GetTrip retrieves a trip by ID.
func (d *SQLiteDB) GetTrip(ctx context.Context, id string) (*trip.Trip, error) {
	t, err := scanSQLiteTrip(d.db.QueryRowContext(ctx,
		`SELECT `+tripColumns+` FROM trips WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// ListTrips retrieves trips matching the filter, newest first.
func (d *SQLiteDB) ListTrips(ctx context.Context, p ListParams) ([]trip.Trip, error) {
	var conditions []string
	var args []any

	if p.AgencyID != "" {
		conditions = append(conditions, "agency_id = ?")
		args = append(args, p.AgencyID)
	}
	if p.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, p.Status)
	}
	if p.FlightNumber != "" {
		conditions = append(conditions, "flight_number = ?")
		args = append(args, p.FlightNumber)
	}

	query := `SELECT ` + tripColumns + ` FROM trips`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	limit := 100
	if p.Limit > 0 {
		limit = p.Limit
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d", limit, p.Offset)

	return d.queryTrips(ctx, query, args...)
}

// GetTripsDueForPoll retrieves active trips whose next check has come due and
// whose departure sits inside the polling window.
func (d *SQLiteDB) GetTripsDueForPoll(ctx context.Context, now time.Time) ([]trip.Trip, error) {
	return d.queryTrips(ctx, `
		SELECT `+tripColumns+` FROM trips
		WHERE status = 'active' AND next_check_at IS NOT NULL AND next_check_at <= ?
			AND departure_utc >= ? AND departure_utc <= ?
		ORDER BY next_check_at
	`, fmtTime(now), fmtTime(now.Add(-pollWindowPast)), fmtTime(now.Add(pollWindowFuture)))
}

// TripsDepartingBetween retrieves active trips departing in [from, to).
func (d *SQLiteDB) TripsDepartingBetween(ctx context.Context, from, to time.Time) ([]trip.Trip, error) {
	return d.queryTrips(ctx, `
		SELECT `+tripColumns+` FROM trips
		WHERE status = 'active' AND departure_utc >= ? AND departure_utc < ?
		ORDER BY departure_utc
	`, fmtTime(from), fmtTime(to))
}

// TripsCreatedWithoutConfirmation retrieves active trips created at or before
// olderThan that have no reservation confirmation logged yet.
func (d *SQLiteDB) TripsCreatedWithoutConfirmation(ctx context.Context, olderThan time.Time) ([]trip.Trip, error) {
	return d.queryTrips(ctx, `
		SELECT `+tripColumns+` FROM trips t
		WHERE t.status = 'active' AND t.created_at <= ?
			AND NOT EXISTS (
				SELECT 1 FROM notifications_log n
				WHERE n.trip_id = t.id AND n.type = ?
			)
		ORDER BY t.created_at
	`, fmtTime(olderThan), string(trip.NotifReservationConfirmation))
}

// UpdateTripFromSnapshot refreshes the denormalized status fields on the trip row.
func (d *SQLiteDB) UpdateTripFromSnapshot(ctx context.Context, id string, snap *trip.FlightSnapshot) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE trips SET last_flight_status = ?, gate = ?, estimated_out = ?, estimated_in = ?, updated_at = ?
		WHERE id = ?
	`, nullStr(snap.Status), nullStr(snap.GateOriginValue()), nullTime(snap.EstimatedOut),
		nullTime(snap.EstimatedIn), fmtTime(time.Now().UTC()), id)
	return err
}

// UpdateNextCheckAt stores the next poll instant; nil clears it, removing the
// trip from the polling rotation.
func (d *SQLiteDB) UpdateNextCheckAt(ctx context.Context, id string, at *time.Time) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE trips SET next_check_at = ?, updated_at = ? WHERE id = ?`,
		nullTime(at), fmtTime(time.Now().UTC()), id)
	return err
}

// UpdateTripStatus transitions the trip lifecycle state.
func (d *SQLiteDB) UpdateTripStatus(ctx context.Context, id string, status trip.Status) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE trips SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), fmtTime(time.Now().UTC()), id)
	return err
}

// CountActiveTrips returns the number of trips still in rotation.
func (d *SQLiteDB) CountActiveTrips(ctx context.Context) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trips WHERE status = 'active'`).Scan(&n)
	return n, err
}

func (d *SQLiteDB) queryTrips(ctx context.Context, query string, args ...any) ([]trip.Trip, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trips: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var trips []trip.Trip
	for rows.Next() {
		t, err := scanSQLiteTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trip: %w", err)
		}
		trips = append(trips, *t)
	}
	return trips, rows.Err()
}

func scanSQLiteTrip(sc rowScanner) (*trip.Trip, error) {
	var t trip.Trip
	var agencyID, lastStatus, gate, metadata sql.NullString
	var estOut, estIn, nextCheck sql.NullString
	var status, departure, createdAt, updatedAt string

	err := sc.Scan(&t.ID, &agencyID, &t.ClientName, &t.WhatsApp, &t.FlightNumber, &t.Origin, &t.Destination,
		&departure, &status, &lastStatus, &gate, &estOut, &estIn,
		&metadata, &nextCheck, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	t.Status = trip.Status(status)
	t.DepartureUTC = parseTime(departure)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	t.AgencyID = agencyID.String
	t.LastFlightStatus = lastStatus.String
	t.Gate = gate.String
	t.EstimatedOut = parseNullTime(estOut)
	t.EstimatedIn = parseNullTime(estIn)
	t.NextCheckAt = parseNullTime(nextCheck)
	if metadata.Valid && metadata.String != "" {
		_ = json.Unmarshal([]byte(metadata.String), &t.Metadata)
	}
	return &t, nil
}

const historyColumns = `id, trip_id, ident, status, origin, destination, origin_city, destination_city,
	gate_origin, gate_destination, scheduled_out, estimated_out, actual_out,
	scheduled_in, estimated_in, actual_in, progress_percent, cancelled, diverted, raw_json, recorded_at`

// AppendFlightStatus appends one provider snapshot to the history.
func (d *SQLiteDB) AppendFlightStatus(ctx context.Context, tripID string, snap *trip.FlightSnapshot, raw string) error {
	recordedAt := snap.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO flight_status_history (trip_id, ident, status, origin, destination, origin_city, destination_city,
			gate_origin, gate_destination, scheduled_out, estimated_out, actual_out,
			scheduled_in, estimated_in, actual_in, progress_percent, cancelled, diverted, raw_json, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, tripID, snap.Ident, snap.Status, snap.Origin, snap.Destination, snap.OriginCity, snap.DestinationCity,
		nullStrPtr(snap.GateOrigin), nullStrPtr(snap.GateDestination),
		nullTime(snap.ScheduledOut), nullTime(snap.EstimatedOut), nullTime(snap.ActualOut),
		nullTime(snap.ScheduledIn), nullTime(snap.EstimatedIn), nullTime(snap.ActualIn),
		nullIntPtr(snap.ProgressPercent), boolInt(snap.Cancelled), boolInt(snap.Diverted),
		nullStr(raw), fmtTime(recordedAt))
	if err != nil {
		return fmt.Errorf("insert status: %w", err)
	}
	return nil
}

// GetLatestStatus retrieves the most recent snapshot for a trip, or nil when
// nothing has been recorded yet.
func (d *SQLiteDB) GetLatestStatus(ctx context.Context, tripID string) (*trip.FlightSnapshot, error) {
	records, err := d.GetStatusHistory(ctx, tripID, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0].Snapshot, nil
}

// GetStatusHistory retrieves snapshots for a trip, newest first.
func (d *SQLiteDB) GetStatusHistory(ctx context.Context, tripID string, limit int) ([]StatusRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+historyColumns+` FROM flight_status_history
		WHERE trip_id = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?
	`, tripID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []StatusRecord
	for rows.Next() {
		rec, err := scanSQLiteStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func scanSQLiteStatus(sc rowScanner) (*StatusRecord, error) {
	var rec StatusRecord
	var gateO, gateD, rawJSON sql.NullString
	var schedOut, estOut, actOut, schedIn, estIn, actIn sql.NullString
	var progress sql.NullInt64
	var cancelled, diverted int
	var recordedAt string

	err := sc.Scan(&rec.ID, &rec.TripID, &rec.Snapshot.Ident, &rec.Snapshot.Status,
		&rec.Snapshot.Origin, &rec.Snapshot.Destination, &rec.Snapshot.OriginCity, &rec.Snapshot.DestinationCity,
		&gateO, &gateD, &schedOut, &estOut, &actOut, &schedIn, &estIn, &actIn,
		&progress, &cancelled, &diverted, &rawJSON, &recordedAt)
	if err != nil {
		return nil, err
	}

	rec.Snapshot.GateOrigin = strPtrOf(gateO)
	rec.Snapshot.GateDestination = strPtrOf(gateD)
	rec.Snapshot.ScheduledOut = parseNullTime(schedOut)
	rec.Snapshot.EstimatedOut = parseNullTime(estOut)
	rec.Snapshot.ActualOut = parseNullTime(actOut)
	rec.Snapshot.ScheduledIn = parseNullTime(schedIn)
	rec.Snapshot.EstimatedIn = parseNullTime(estIn)
	rec.Snapshot.ActualIn = parseNullTime(actIn)
	if progress.Valid {
		p := int(progress.Int64)
		rec.Snapshot.ProgressPercent = &p
	}
	rec.Snapshot.Cancelled = cancelled == 1
	rec.Snapshot.Diverted = diverted == 1
	rec.RecordedAt = parseTime(recordedAt)
	rec.Snapshot.RecordedAt = rec.RecordedAt
	rec.RawJSON = rawJSON.String
	return &rec, nil
}

const notificationColumns = `id, trip_id, type, idempotency_key, state, recipient, body, variables, extra,
	attempts, next_retry_at, sent_at, provider_id, last_error, created_at, updated_at`

// LogNotification inserts a PENDING log row, filling n.ID. A row already
// holding the same (trip, idempotency key) reports AlreadyLoggedError.
func (d *SQLiteDB) LogNotification(ctx context.Context, n *Notification) error {
	if n.State == "" {
		n.State = trip.NotifStatePending
	}
	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now

	variables, _ := json.Marshal(n.Variables)
	extra, _ := json.Marshal(n.Extra)

	res, err := d.db.ExecContext(ctx, `
		INSERT INTO notifications_log (trip_id, type, idempotency_key, state, recipient, body, variables, extra,
			attempts, next_retry_at, sent_at, provider_id, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.TripID, string(n.Type), n.IdempotencyKey, string(n.State), n.Recipient, nullStr(n.Body),
		string(variables), string(extra), n.Attempts, nullTime(n.NextRetryAt), nullTime(n.SentAt),
		nullStr(n.ProviderID), nullStr(n.LastError), fmtTime(n.CreatedAt), fmtTime(n.UpdatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return &AlreadyLoggedError{TripID: n.TripID, Key: n.IdempotencyKey}
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	n.ID, err = res.LastInsertId()
	return err
}

// UpdateNotificationState transitions a log row to SENT or FAILED. Any
// scheduled retry is cleared; use MarkNotificationRetry to arm one.
func (d *SQLiteDB) UpdateNotificationState(ctx context.Context, id int64, state trip.NotificationState, sentAt *time.Time, providerID, lastError string) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE notifications_log
		SET state = ?, sent_at = ?, provider_id = ?, last_error = ?, next_retry_at = NULL, updated_at = ?
		WHERE id = ?
	`, string(state), nullTime(sentAt), nullStr(providerID), nullStr(lastError), fmtTime(time.Now().UTC()), id)
	return err
}

// MarkNotificationRetry records a failed attempt and schedules the next one.
func (d *SQLiteDB) MarkNotificationRetry(ctx context.Context, id int64, nextRetryAt time.Time, lastError string) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE notifications_log
		SET state = 'FAILED', attempts = attempts + 1, next_retry_at = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`, fmtTime(nextRetryAt), nullStr(lastError), fmtTime(time.Now().UTC()), id)
	return err
}

// LookupNotification retrieves a log row by trip and idempotency key.
func (d *SQLiteDB) LookupNotification(ctx context.Context, tripID, key string) (*Notification, error) {
	n, err := scanSQLiteNotification(d.db.QueryRowContext(ctx, `
		SELECT `+notificationColumns+` FROM notifications_log
		WHERE trip_id = ? AND idempotency_key = ?
	`, tripID, key))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return n, err
}

// GetNotificationHistory retrieves all log rows for a trip in send order.
func (d *SQLiteDB) GetNotificationHistory(ctx context.Context, tripID string) ([]Notification, error) {
	return d.queryNotifications(ctx, `
		SELECT `+notificationColumns+` FROM notifications_log
		WHERE trip_id = ?
		ORDER BY created_at, id
	`, tripID)
}

// LastNotificationOfType retrieves the most recent log row of one type for a
// trip, or nil when none exists.
func (d *SQLiteDB) LastNotificationOfType(ctx context.Context, tripID string, typ trip.NotificationType) (*Notification, error) {
	n, err := scanSQLiteNotification(d.db.QueryRowContext(ctx, `
		SELECT `+notificationColumns+` FROM notifications_log
		WHERE trip_id = ? AND type = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, tripID, string(typ)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return n, err
}

// PendingRetries retrieves FAILED rows whose retry has come due.
func (d *SQLiteDB) PendingRetries(ctx context.Context, now time.Time, maxAttempts, limit int) ([]Notification, error) {
	return d.queryNotifications(ctx, `
		SELECT `+notificationColumns+` FROM notifications_log
		WHERE state = 'FAILED' AND next_retry_at IS NOT NULL AND next_retry_at <= ? AND attempts < ?
		ORDER BY next_retry_at
		LIMIT ?
	`, fmtTime(now), maxAttempts, limit)
}

// RecentNotifications retrieves the newest log rows across all trips.
func (d *SQLiteDB) RecentNotifications(ctx context.Context, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	return d.queryNotifications(ctx, `
		SELECT `+notificationColumns+` FROM notifications_log
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
}

func (d *SQLiteDB) queryNotifications(ctx context.Context, query string, args ...any) ([]Notification, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var notifications []Notification
	for rows.Next() {
		n, err := scanSQLiteNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, *n)
	}
	return notifications, rows.Err()
}

func scanSQLiteNotification(sc rowScanner) (*Notification, error) {
	var n Notification
	var typ, state, createdAt, updatedAt string
	var body, variables, extra, nextRetry, sentAt, providerID, lastError sql.NullString

	err := sc.Scan(&n.ID, &n.TripID, &typ, &n.IdempotencyKey, &state, &n.Recipient, &body, &variables, &extra,
		&n.Attempts, &nextRetry, &sentAt, &providerID, &lastError, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	n.Type = trip.NotificationType(typ)
	n.State = trip.NotificationState(state)
	n.Body = body.String
	n.ProviderID = providerID.String
	n.LastError = lastError.String
	n.NextRetryAt = parseNullTime(nextRetry)
	n.SentAt = parseNullTime(sentAt)
	n.CreatedAt = parseTime(createdAt)
	n.UpdatedAt = parseTime(updatedAt)
	if variables.Valid && variables.String != "" {
		_ = json.Unmarshal([]byte(variables.String), &n.Variables)
	}
	if extra.Valid && extra.String != "" {
		_ = json.Unmarshal([]byte(extra.String), &n.Extra)
	}
	return &n, nil
}

const jobColumns = `id, trip_id, kind, run_at, payload, state, attempts, last_error, created_at, updated_at`

// ScheduleJob inserts a pending job, filling j.ID. A pending job of the same
// kind for the same trip already on the books makes this a no-op.
func (d *SQLiteDB) ScheduleJob(ctx context.Context, j *Job) error {
	now := time.Now().UTC()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	j.State = JobStatePending

	payload, _ := json.Marshal(j.Payload)

	res, err := d.db.ExecContext(ctx, `
		INSERT INTO scheduled_jobs (trip_id, kind, run_at, payload, state, attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'pending', ?, ?, ?)
		ON CONFLICT (trip_id, kind) WHERE state = 'pending' DO NOTHING
	`, nullStr(j.TripID), j.Kind, fmtTime(j.RunAt), string(payload), j.Attempts,
		fmtTime(j.CreatedAt), fmtTime(j.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 1 {
		j.ID, _ = res.LastInsertId()
	}
	return nil
}

// ClaimDueJobs moves due pending jobs to running and returns them. Jobs stuck
// in running past the stale horizon are reclaimed too.
func (d *SQLiteDB) ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM scheduled_jobs
		WHERE (state = 'pending' AND run_at <= ?) OR (state = 'running' AND updated_at <= ?)
		ORDER BY run_at
		LIMIT ?
	`, fmtTime(now), fmtTime(now.Add(-jobStaleAfter)), limit)
	if err != nil {
		return nil, fmt.Errorf("query due jobs: %w", err)
	}

	var jobs []Job
	for rows.Next() {
		j, err := scanSQLiteJob(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	claimed := fmtTime(now)
	for i := range jobs {
		if _, err := d.db.ExecContext(ctx,
			`UPDATE scheduled_jobs SET state = 'running', updated_at = ? WHERE id = ?`,
			claimed, jobs[i].ID); err != nil {
			return nil, fmt.Errorf("claim job %d: %w", jobs[i].ID, err)
		}
		jobs[i].State = JobStateRunning
	}
	return jobs, nil
}

// CompleteJob marks a job done.
func (d *SQLiteDB) CompleteJob(ctx context.Context, id int64) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE scheduled_jobs SET state = 'done', updated_at = ? WHERE id = ?`,
		fmtTime(time.Now().UTC()), id)
	return err
}

// RescheduleJob returns a failed run to pending with a later due time.
func (d *SQLiteDB) RescheduleJob(ctx context.Context, id int64, runAt time.Time, lastError string) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE scheduled_jobs
		SET state = 'pending', run_at = ?, attempts = attempts + 1, last_error = ?, updated_at = ?
		WHERE id = ?
	`, fmtTime(runAt), nullStr(lastError), fmtTime(time.Now().UTC()), id)
	return err
}

// FailJob parks a job permanently after its retries ran out.
func (d *SQLiteDB) FailJob(ctx context.Context, id int64, lastError string) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE scheduled_jobs SET state = 'failed', last_error = ?, updated_at = ? WHERE id = ?
	`, nullStr(lastError), fmtTime(time.Now().UTC()), id)
	return err
}

func scanSQLiteJob(sc rowScanner) (*Job, error) {
	var j Job
	var tripID, payload, lastError sql.NullString
	var runAt, createdAt, updatedAt string

	err := sc.Scan(&j.ID, &tripID, &j.Kind, &runAt, &payload, &j.State, &j.Attempts,
		&lastError, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	j.TripID = tripID.String
	j.LastError = lastError.String
	j.RunAt = parseTime(runAt)
	j.CreatedAt = parseTime(createdAt)
	j.UpdatedAt = parseTime(updatedAt)
	if payload.Valid && payload.String != "" {
		_ = json.Unmarshal([]byte(payload.String), &j.Payload)
	}
	return &j, nil
}

// CreateItinerary registers a pending itinerary for a trip. Idempotent.
func (d *SQLiteDB) CreateItinerary(ctx context.Context, tripID string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO itineraries (trip_id, status, created_at) VALUES (?, 'pending', ?)
		ON CONFLICT (trip_id) DO NOTHING
	`, tripID, fmtTime(time.Now().UTC()))
	return err
}

// MarkItineraryReady stores the generated content and flips the status.
func (d *SQLiteDB) MarkItineraryReady(ctx context.Context, tripID, content string) error {
	now := fmtTime(time.Now().UTC())
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO itineraries (trip_id, status, content, created_at, ready_at)
		VALUES (?, 'ready', ?, ?, ?)
		ON CONFLICT (trip_id) DO UPDATE SET status = 'ready', content = excluded.content, ready_at = excluded.ready_at
	`, tripID, content, now, now)
	return err
}

// GetItinerary retrieves the itinerary for a trip, or nil when none exists.
func (d *SQLiteDB) GetItinerary(ctx context.Context, tripID string) (*Itinerary, error) {
	var it Itinerary
	var content, readyAt sql.NullString
	var createdAt string

	err := d.db.QueryRowContext(ctx, `
		SELECT id, trip_id, status, content, created_at, ready_at FROM itineraries WHERE trip_id = ?
	`, tripID).Scan(&it.ID, &it.TripID, &it.Status, &content, &createdAt, &readyAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	it.Content = content.String
	it.CreatedAt = parseTime(createdAt)
	it.ReadyAt = parseNullTime(readyAt)
	return &it, nil
}

// UpsertAgency inserts or updates an agency.
func (d *SQLiteDB) UpsertAgency(ctx context.Context, a Agency) error {
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO agencies (id, name, whatsapp_from, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, whatsapp_from = excluded.whatsapp_from
	`, a.ID, a.Name, nullStr(a.WhatsAppFrom), fmtTime(createdAt))
	return err
}

// GetAgency retrieves an agency by ID, or nil when none exists.
func (d *SQLiteDB) GetAgency(ctx context.Context, id string) (*Agency, error) {
	var a Agency
	var from sql.NullString
	var createdAt string

	err := d.db.QueryRowContext(ctx,
		`SELECT id, name, whatsapp_from, created_at FROM agencies WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &from, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	a.WhatsAppFrom = from.String
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

// AddAgencyPlace stores a curated place for an agency.
func (d *SQLiteDB) AddAgencyPlace(ctx context.Context, p AgencyPlace) (int64, error) {
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO agency_places (agency_id, kind, name, address, city, notes) VALUES (?, ?, ?, ?, ?, ?)
	`, p.AgencyID, p.Kind, p.Name, nullStr(p.Address), nullStr(p.City), nullStr(p.Notes))
	if err != nil {
		return 0, fmt.Errorf("insert place: %w", err)
	}
	return res.LastInsertId()
}

// ListAgencyPlaces retrieves curated places for an agency, optionally
// filtered by kind.
func (d *SQLiteDB) ListAgencyPlaces(ctx context.Context, agencyID, kind string) ([]AgencyPlace, error) {
	query := `SELECT id, agency_id, kind, name, address, city, notes FROM agency_places WHERE agency_id = ?`
	args := []any{agencyID}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY kind, name`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query places: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var places []AgencyPlace
	for rows.Next() {
		var p AgencyPlace
		var address, city, notes sql.NullString
		if err := rows.Scan(&p.ID, &p.AgencyID, &p.Kind, &p.Name, &address, &city, &notes); err != nil {
			return nil, fmt.Errorf("scan place: %w", err)
		}
		p.Address = address.String
		p.City = city.String
		p.Notes = notes.String
		places = append(places, p)
	}
	return places, rows.Err()
}

// AddDocument attaches a travel document to a trip.
func (d *SQLiteDB) AddDocument(ctx context.Context, doc Document) (int64, error) {
	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO documents (trip_id, kind, filename, url, created_at) VALUES (?, ?, ?, ?, ?)
	`, doc.TripID, doc.Kind, doc.Filename, nullStr(doc.URL), fmtTime(createdAt))
	if err != nil {
		return 0, fmt.Errorf("insert document: %w", err)
	}
	return res.LastInsertId()
}

// ListDocuments retrieves documents attached to a trip.
func (d *SQLiteDB) ListDocuments(ctx context.Context, tripID string) ([]Document, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, trip_id, kind, filename, url, created_at FROM documents
		WHERE trip_id = ? ORDER BY created_at, id
	`, tripID)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var documents []Document
	for rows.Next() {
		var doc Document
		var url sql.NullString
		var createdAt string
		if err := rows.Scan(&doc.ID, &doc.TripID, &doc.Kind, &doc.Filename, &url, &createdAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc.URL = url.String
		doc.CreatedAt = parseTime(createdAt)
		documents = append(documents, doc)
	}
	return documents, rows.Err()
}

// LogConversation appends one exchanged WhatsApp message.
func (d *SQLiteDB) LogConversation(ctx context.Context, m ConversationMessage) error {
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO conversations (trip_id, direction, body, created_at) VALUES (?, ?, ?, ?)
	`, m.TripID, m.Direction, m.Body, fmtTime(createdAt))
	return err
}

// GetConversation retrieves the newest messages for a trip.
func (d *SQLiteDB) GetConversation(ctx context.Context, tripID string, limit int) ([]ConversationMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, trip_id, direction, body, created_at FROM conversations
		WHERE trip_id = ? ORDER BY created_at DESC, id DESC LIMIT ?
	`, tripID, limit)
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []ConversationMessage
	for rows.Next() {
		var m ConversationMessage
		var createdAt string
		if err := rows.Scan(&m.ID, &m.TripID, &m.Direction, &m.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = parseTime(createdAt)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// Times are stored as RFC3339 UTC strings so lexicographic order matches
// chronological order in comparisons.
func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullStrPtr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func strPtrOf(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullIntPtr(n *int) any {
	if n == nil {
		return nil
	}
	return int64(*n)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
