package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tripwatch/internal/trip"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// PostgresDB holds the mutable state: trips, notifications, jobs,
// itineraries and agency data. Status history lives in ClickHouse; the
// combined DB type routes it there.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool to PostgreSQL.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresDB, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	// Test the connection.
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Close closes the PostgreSQL connection pool.
func (d *PostgresDB) Close() {
	d.pool.Close()
}

// Ping checks the database connection.
func (d *PostgresDB) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

// CreateSchema creates the PostgreSQL tables.
func (d *PostgresDB) CreateSchema(ctx context.Context) error {
	schema := `
	-- Travel agencies operating on the platform
	CREATE TABLE IF NOT EXISTS agencies (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		whatsapp_from TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	-- Curated agency places (hotels, restaurants) used in welcome messages
	CREATE TABLE IF NOT EXISTS agency_places (
		id        BIGSERIAL PRIMARY KEY,
		agency_id TEXT NOT NULL REFERENCES agencies(id) ON DELETE CASCADE,
		kind      TEXT NOT NULL,
		name      TEXT NOT NULL,
		address   TEXT,
		city      TEXT,
		notes     TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_agency_places_agency ON agency_places(agency_id, kind);

	-- Monitored trips
	CREATE TABLE IF NOT EXISTS trips (
		id                 TEXT PRIMARY KEY,
		agency_id          TEXT,
		client_name        TEXT NOT NULL,
		whatsapp           TEXT NOT NULL,
		flight_number      TEXT NOT NULL,
		origin             TEXT NOT NULL,
		destination        TEXT NOT NULL,
		departure_utc      TIMESTAMPTZ NOT NULL,
		departure_day      DATE NOT NULL,
		status             TEXT NOT NULL DEFAULT 'active',
		last_flight_status TEXT,
		gate               TEXT,
		estimated_out      TIMESTAMPTZ,
		estimated_in       TIMESTAMPTZ,
		metadata           JSONB,
		next_check_at      TIMESTAMPTZ,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_trips_departure ON trips(departure_utc);

	-- Outbound WhatsApp messages, one row per notification
	CREATE TABLE IF NOT EXISTS notifications_log (
		id              BIGSERIAL PRIMARY KEY,
		trip_id         TEXT NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
		type            TEXT NOT NULL,
		idempotency_key TEXT NOT NULL,
		state           TEXT NOT NULL DEFAULT 'PENDING',
		recipient       TEXT NOT NULL,
		body            TEXT,
		variables       JSONB,
		extra           JSONB,
		attempts        INTEGER NOT NULL DEFAULT 0,
		next_retry_at   TIMESTAMPTZ,
		sent_at         TIMESTAMPTZ,
		provider_id     TEXT,
		last_error      TEXT,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (trip_id, idempotency_key)
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_trip ON notifications_log(trip_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_notifications_type ON notifications_log(trip_id, type, created_at);
	CREATE INDEX IF NOT EXISTS idx_notifications_retry ON notifications_log(state, next_retry_at);

	-- Durable one-shot jobs
	CREATE TABLE IF NOT EXISTS scheduled_jobs (
		id         BIGSERIAL PRIMARY KEY,
		trip_id    TEXT,
		kind       TEXT NOT NULL,
		run_at     TIMESTAMPTZ NOT NULL,
		payload    JSONB,
		state      TEXT NOT NULL DEFAULT 'pending',
		attempts   INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	-- Generated itineraries, one per trip
	CREATE TABLE IF NOT EXISTS itineraries (
		id         BIGSERIAL PRIMARY KEY,
		trip_id    TEXT NOT NULL UNIQUE REFERENCES trips(id) ON DELETE CASCADE,
		status     TEXT NOT NULL DEFAULT 'pending',
		content    TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		ready_at   TIMESTAMPTZ
	);

	-- Travel documents attached to trips
	CREATE TABLE IF NOT EXISTS documents (
		id         BIGSERIAL PRIMARY KEY,
		trip_id    TEXT NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
		kind       TEXT NOT NULL,
		filename   TEXT NOT NULL,
		url        TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_documents_trip ON documents(trip_id);

	-- WhatsApp conversation log
	CREATE TABLE IF NOT EXISTS conversations (
		id         BIGSERIAL PRIMARY KEY,
		trip_id    TEXT NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
		direction  TEXT NOT NULL,
		body       TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_conversations_trip ON conversations(trip_id, created_at);
	`

	_, err := d.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	// Partial indexes go separately. The two unique ones back the
	// duplicate-trip check and the one-pending-job-per-kind guarantee, so
	// failures here are not ignorable.
	partials := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_trips_active_dup ON trips(whatsapp, flight_number, departure_day) WHERE status = 'active'`,
		`CREATE INDEX IF NOT EXISTS idx_trips_due ON trips(next_check_at) WHERE status = 'active'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_pending_once ON scheduled_jobs(trip_id, kind) WHERE state = 'pending'`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_due ON scheduled_jobs(run_at) WHERE state = 'pending'`,
	}
	for _, stmt := range partials {
		if _, err := d.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}

	return nil
}

// isUniqueViolation reports whether err is a unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateTrip inserts a new trip, generating an ID when the caller left it
// empty. A second active trip for the same contact, flight number and UTC
// departure day reports DuplicateTripError.
func (d *PostgresDB) CreateTrip(ctx context.Context, t *trip.Trip) error {
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

	_, err := d.pool.Exec(ctx, `
		INSERT INTO trips (id, agency_id, client_name, whatsapp, flight_number, origin, destination,
			departure_utc, departure_day, status, last_flight_status, gate, estimated_out, estimated_in,
			metadata, next_check_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, t.ID, nullStr(t.AgencyID), t.ClientName, t.WhatsApp, t.FlightNumber, t.Origin, t.Destination,
		t.DepartureUTC, t.DepartureDay(), string(t.Status), nullStr(t.LastFlightStatus), nullStr(t.Gate),
		t.EstimatedOut, t.EstimatedIn, metadata, t.NextCheckAt, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return &DuplicateTripError{WhatsApp: t.WhatsApp, FlightNumber: t.FlightNumber, Day: t.DepartureDay()}
		}
		return fmt.Errorf("insert trip: %w", err)
	}
	return nil
}

// GetTrip retrieves a trip by ID.
func (d *PostgresDB) GetTrip(ctx context.Context, id string) (*trip.Trip, error) {
	t, err := scanPGTrip(d.pool.QueryRow(ctx,
		`SELECT `+tripColumns+` FROM trips WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// ListTrips retrieves trips matching the filter, newest first.
func (d *PostgresDB) ListTrips(ctx context.Context, p ListParams) ([]trip.Trip, error) {
	var conditions []string
	var args []any

	if p.AgencyID != "" {
		args = append(args, p.AgencyID)
		conditions = append(conditions, fmt.Sprintf("agency_id = $%d", len(args)))
	}
	if p.Status != "" {
		args = append(args, string(p.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if p.FlightNumber != "" {
		args = append(args, p.FlightNumber)
		conditions = append(conditions, fmt.Sprintf("flight_number = $%d", len(args)))
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
func (d *PostgresDB) GetTripsDueForPoll(ctx context.Context, now time.Time) ([]trip.Trip, error) {
	return d.queryTrips(ctx, `
		SELECT `+tripColumns+` FROM trips
		WHERE status = 'active' AND next_check_at IS NOT NULL AND next_check_at <= $1
			AND departure_utc >= $2 AND departure_utc <= $3
		ORDER BY next_check_at
	`, now, now.Add(-pollWindowPast), now.Add(pollWindowFuture))
}

// TripsDepartingBetween retrieves active trips departing in [from, to).
func (d *PostgresDB) TripsDepartingBetween(ctx context.Context, from, to time.Time) ([]trip.Trip, error) {
	return d.queryTrips(ctx, `
		SELECT `+tripColumns+` FROM trips
		WHERE status = 'active' AND departure_utc >= $1 AND departure_utc < $2
		ORDER BY departure_utc
	`, from, to)
}

// TripsCreatedWithoutConfirmation retrieves active trips created at or before
// olderThan that have no reservation confirmation logged yet.
func (d *PostgresDB) TripsCreatedWithoutConfirmation(ctx context.Context, olderThan time.Time) ([]trip.Trip, error) {
	return d.queryTrips(ctx, `
		SELECT `+tripColumns+` FROM trips t
		WHERE t.status = 'active' AND t.created_at <= $1
			AND NOT EXISTS (
				SELECT 1 FROM notifications_log n
				WHERE n.trip_id = t.id AND n.type = $2
			)
		ORDER BY t.created_at
	`, olderThan, string(trip.NotifReservationConfirmation))
}

// UpdateTripFromSnapshot refreshes the denormalized status fields on the trip row.
func (d *PostgresDB) UpdateTripFromSnapshot(ctx context.Context, id string, snap *trip.FlightSnapshot) error {
	_, err := d.pool.Exec(ctx, `
		UPDATE trips SET last_flight_status = $1, gate = $2, estimated_out = $3, estimated_in = $4, updated_at = $5
		WHERE id = $6
	`, nullStr(snap.Status), nullStr(snap.GateOriginValue()), snap.EstimatedOut, snap.EstimatedIn,
		time.Now().UTC(), id)
	return err
}

// UpdateNextCheckAt stores the next poll instant; nil clears it, removing the
// trip from the polling rotation.
func (d *PostgresDB) UpdateNextCheckAt(ctx context.Context, id string, at *time.Time) error {
	_, err := d.pool.Exec(ctx,
		`UPDATE trips SET next_check_at = $1, updated_at = $2 WHERE id = $3`,
		at, time.Now().UTC(), id)
	return err
}

// UpdateTripStatus transitions the trip lifecycle state.
func (d *PostgresDB) UpdateTripStatus(ctx context.Context, id string, status trip.Status) error {
	_, err := d.pool.Exec(ctx,
		`UPDATE trips SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id)
	return err
}

// CountActiveTrips returns the number of trips still in rotation.
func (d *PostgresDB) CountActiveTrips(ctx context.Context) (int, error) {
	var n int
	err := d.pool.QueryRow(ctx, `SELECT COUNT(*) FROM trips WHERE status = 'active'`).Scan(&n)
	return n, err
}

func (d *PostgresDB) queryTrips(ctx context.Context, query string, args ...any) ([]trip.Trip, error) {
	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trips: %w", err)
	}
	defer rows.Close()

	var trips []trip.Trip
	for rows.Next() {
		t, err := scanPGTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trip: %w", err)
		}
		trips = append(trips, *t)
	}
	return trips, rows.Err()
}

func scanPGTrip(sc rowScanner) (*trip.Trip, error) {
	var t trip.Trip
	var status string
	var agencyID, lastStatus, gate *string
	var metadata []byte

	err := sc.Scan(&t.ID, &agencyID, &t.ClientName, &t.WhatsApp, &t.FlightNumber, &t.Origin, &t.Destination,
		&t.DepartureUTC, &status, &lastStatus, &gate, &t.EstimatedOut, &t.EstimatedIn,
		&metadata, &t.NextCheckAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	t.Status = trip.Status(status)
	if agencyID != nil {
		t.AgencyID = *agencyID
	}
	if lastStatus != nil {
		t.LastFlightStatus = *lastStatus
	}
	if gate != nil {
		t.Gate = *gate
	}
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &t.Metadata)
	}
	return &t, nil
}

// LogNotification inserts a PENDING log row, filling n.ID. A row already
// holding the same (trip, idempotency key) reports AlreadyLoggedError.
func (d *PostgresDB) LogNotification(ctx context.Context, n *Notification) error {
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

	err := d.pool.QueryRow(ctx, `
		INSERT INTO notifications_log (trip_id, type, idempotency_key, state, recipient, body, variables, extra,
			attempts, next_retry_at, sent_at, provider_id, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`, n.TripID, string(n.Type), n.IdempotencyKey, string(n.State), n.Recipient, nullStr(n.Body),
		variables, extra, n.Attempts, n.NextRetryAt, n.SentAt, nullStr(n.ProviderID), nullStr(n.LastError),
		n.CreatedAt, n.UpdatedAt).Scan(&n.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return &AlreadyLoggedError{TripID: n.TripID, Key: n.IdempotencyKey}
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// UpdateNotificationState transitions a log row to SENT or FAILED. Any
// scheduled retry is cleared; use MarkNotificationRetry to arm one.
func (d *PostgresDB) UpdateNotificationState(ctx context.Context, id int64, state trip.NotificationState, sentAt *time.Time, providerID, lastError string) error {
	_, err := d.pool.Exec(ctx, `
		UPDATE notifications_log
		SET state = $1, sent_at = $2, provider_id = $3, last_error = $4, next_retry_at = NULL, updated_at = $5
		WHERE id = $6
	`, string(state), sentAt, nullStr(providerID), nullStr(lastError), time.Now().UTC(), id)
	return err
}

// MarkNotificationRetry records a failed attempt and schedules the next one.
func (d *PostgresDB) MarkNotificationRetry(ctx context.Context, id int64, nextRetryAt time.Time, lastError string) error {
	_, err := d.pool.Exec(ctx, `
		UPDATE notifications_log
		SET state = 'FAILED', attempts = attempts + 1, next_retry_at = $1, last_error = $2, updated_at = $3
		WHERE id = $4
	`, nextRetryAt, nullStr(lastError), time.Now().UTC(), id)
	return err
}

// LookupNotification retrieves a log row by trip and idempotency key.
func (d *PostgresDB) LookupNotification(ctx context.Context, tripID, key string) (*Notification, error) {
	n, err := scanPGNotification(d.pool.QueryRow(ctx, `
		SELECT `+notificationColumns+` FROM notifications_log
		WHERE trip_id = $1 AND idempotency_key = $2
	`, tripID, key))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return n, err
}

// GetNotificationHistory retrieves all log rows for a trip in send order.
func (d *PostgresDB) GetNotificationHistory(ctx context.Context, tripID string) ([]Notification, error) {
	return d.queryNotifications(ctx, `
		SELECT `+notificationColumns+` FROM notifications_log
		WHERE trip_id = $1
		ORDER BY created_at, id
	`, tripID)
}

// LastNotificationOfType retrieves the most recent log row of one type for a
// trip, or nil when none exists.
func (d *PostgresDB) LastNotificationOfType(ctx context.Context, tripID string, typ trip.NotificationType) (*Notification, error) {
	n, err := scanPGNotification(d.pool.QueryRow(ctx, `
		SELECT `+notificationColumns+` FROM notifications_log
		WHERE trip_id = $1 AND type = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, tripID, string(typ)))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return n, err
}

// PendingRetries retrieves FAILED rows whose retry has come due.
func (d *PostgresDB) PendingRetries(ctx context.Context, now time.Time, maxAttempts, limit int) ([]Notification, error) {
	return d.queryNotifications(ctx, `
		SELECT `+notificationColumns+` FROM notifications_log
		WHERE state = 'FAILED' AND next_retry_at IS NOT NULL AND next_retry_at <= $1 AND attempts < $2
		ORDER BY next_retry_at
		LIMIT $3
	`, now, maxAttempts, limit)
}

// RecentNotifications retrieves the newest log rows across all trips.
func (d *PostgresDB) RecentNotifications(ctx context.Context, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	return d.queryNotifications(ctx, `
		SELECT `+notificationColumns+` FROM notifications_log
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
}

func (d *PostgresDB) queryNotifications(ctx context.Context, query string, args ...any) ([]Notification, error) {
	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []Notification
	for rows.Next() {
		n, err := scanPGNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, *n)
	}
	return notifications, rows.Err()
}

func scanPGNotification(sc rowScanner) (*Notification, error) {
	var n Notification
	var typ, state string
	var body, providerID, lastError *string
	var variables, extra []byte

	err := sc.Scan(&n.ID, &n.TripID, &typ, &n.IdempotencyKey, &state, &n.Recipient, &body, &variables, &extra,
		&n.Attempts, &n.NextRetryAt, &n.SentAt, &providerID, &lastError, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}

	n.Type = trip.NotificationType(typ)
	n.State = trip.NotificationState(state)
	if body != nil {
		n.Body = *body
	}
	if providerID != nil {
		n.ProviderID = *providerID
	}
	if lastError != nil {
		n.LastError = *lastError
	}
	if len(variables) > 0 {
		_ = json.Unmarshal(variables, &n.Variables)
	}
	if len(extra) > 0 {
		_ = json.Unmarshal(extra, &n.Extra)
	}
	return &n, nil
}

// ScheduleJob inserts a pending job, filling j.ID. A pending job of the same
// kind for the same trip already on the books makes this a no-op.
func (d *PostgresDB) ScheduleJob(ctx context.Context, j *Job) error {
	now := time.Now().UTC()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	j.State = JobStatePending

	payload, _ := json.Marshal(j.Payload)

	err := d.pool.QueryRow(ctx, `
		INSERT INTO scheduled_jobs (trip_id, kind, run_at, payload, state, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'pending', $5, $6, $7)
		ON CONFLICT (trip_id, kind) WHERE state = 'pending' DO NOTHING
		RETURNING id
	`, nullStr(j.TripID), j.Kind, j.RunAt, payload, j.Attempts, j.CreatedAt, j.UpdatedAt).Scan(&j.ID)
	if err == pgx.ErrNoRows {
		// Conflicted with an existing pending job; nothing inserted.
		return nil
	}
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// ClaimDueJobs atomically moves due pending jobs to running and returns them.
// SKIP LOCKED keeps concurrent claimers from grabbing the same rows. Jobs
// stuck in running past the stale horizon are reclaimed too.
func (d *PostgresDB) ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.pool.Query(ctx, `
		UPDATE scheduled_jobs SET state = 'running', updated_at = $1
		WHERE id IN (
			SELECT id FROM scheduled_jobs
			WHERE (state = 'pending' AND run_at <= $1) OR (state = 'running' AND updated_at <= $2)
			ORDER BY run_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns+`
	`, now, now.Add(-jobStaleAfter), limit)
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanPGJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// CompleteJob marks a job done.
func (d *PostgresDB) CompleteJob(ctx context.Context, id int64) error {
	_, err := d.pool.Exec(ctx,
		`UPDATE scheduled_jobs SET state = 'done', updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), id)
	return err
}

// RescheduleJob returns a failed run to pending with a later due time.
func (d *PostgresDB) RescheduleJob(ctx context.Context, id int64, runAt time.Time, lastError string) error {
	_, err := d.pool.Exec(ctx, `
		UPDATE scheduled_jobs
		SET state = 'pending', run_at = $1, attempts = attempts + 1, last_error = $2, updated_at = $3
		WHERE id = $4
	`, runAt, nullStr(lastError), time.Now().UTC(), id)
	return err
}

// FailJob parks a job permanently after its retries ran out.
func (d *PostgresDB) FailJob(ctx context.Context, id int64, lastError string) error {
	_, err := d.pool.Exec(ctx,
		`UPDATE scheduled_jobs SET state = 'failed', last_error = $1, updated_at = $2 WHERE id = $3`,
		nullStr(lastError), time.Now().UTC(), id)
	return err
}

func scanPGJob(sc rowScanner) (*Job, error) {
	var j Job
	var tripID, lastError *string
	var payload []byte

	err := sc.Scan(&j.ID, &tripID, &j.Kind, &j.RunAt, &payload, &j.State, &j.Attempts,
		&lastError, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if tripID != nil {
		j.TripID = *tripID
	}
	if lastError != nil {
		j.LastError = *lastError
	}
	if len(payload) > 0 {
		_ = json.Unmarshal(payload, &j.Payload)
	}
	return &j, nil
}

// CreateItinerary registers a pending itinerary for a trip. Idempotent.
func (d *PostgresDB) CreateItinerary(ctx context.Context, tripID string) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO itineraries (trip_id, status, created_at) VALUES ($1, 'pending', $2)
		ON CONFLICT (trip_id) DO NOTHING
	`, tripID, time.Now().UTC())
	return err
}

// MarkItineraryReady stores the generated content and flips the status.
func (d *PostgresDB) MarkItineraryReady(ctx context.Context, tripID, content string) error {
	now := time.Now().UTC()
	_, err := d.pool.Exec(ctx, `
		INSERT INTO itineraries (trip_id, status, content, created_at, ready_at)
		VALUES ($1, 'ready', $2, $3, $3)
		ON CONFLICT (trip_id) DO UPDATE SET
			status = 'ready',
			content = EXCLUDED.content,
			ready_at = EXCLUDED.ready_at
	`, tripID, content, now)
	return err
}

// GetItinerary retrieves the itinerary for a trip, or nil when none exists.
func (d *PostgresDB) GetItinerary(ctx context.Context, tripID string) (*Itinerary, error) {
	var it Itinerary
	var content *string

	err := d.pool.QueryRow(ctx, `
		SELECT id, trip_id, status, content, created_at, ready_at FROM itineraries WHERE trip_id = $1
	`, tripID).Scan(&it.ID, &it.TripID, &it.Status, &content, &it.CreatedAt, &it.ReadyAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if content != nil {
		it.Content = *content
	}
	return &it, nil
}

// UpsertAgency inserts or updates an agency.
func (d *PostgresDB) UpsertAgency(ctx context.Context, a Agency) error {
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := d.pool.Exec(ctx, `
		INSERT INTO agencies (id, name, whatsapp_from, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			whatsapp_from = EXCLUDED.whatsapp_from
	`, a.ID, a.Name, nullStr(a.WhatsAppFrom), createdAt)
	return err
}

// GetAgency retrieves an agency by ID, or nil when none exists.
func (d *PostgresDB) GetAgency(ctx context.Context, id string) (*Agency, error) {
	var a Agency
	var from *string

	err := d.pool.QueryRow(ctx,
		`SELECT id, name, whatsapp_from, created_at FROM agencies WHERE id = $1`, id).
		Scan(&a.ID, &a.Name, &from, &a.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if from != nil {
		a.WhatsAppFrom = *from
	}
	return &a, nil
}

// AddAgencyPlace stores a curated place for an agency.
func (d *PostgresDB) AddAgencyPlace(ctx context.Context, p AgencyPlace) (int64, error) {
	var id int64
	err := d.pool.QueryRow(ctx, `
		INSERT INTO agency_places (agency_id, kind, name, address, city, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, p.AgencyID, p.Kind, p.Name, nullStr(p.Address), nullStr(p.City), nullStr(p.Notes)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert place: %w", err)
	}
	return id, nil
}

// ListAgencyPlaces retrieves curated places for an agency, optionally
// filtered by kind.
func (d *PostgresDB) ListAgencyPlaces(ctx context.Context, agencyID, kind string) ([]AgencyPlace, error) {
	query := `SELECT id, agency_id, kind, name, address, city, notes FROM agency_places WHERE agency_id = $1`
	args := []any{agencyID}
	if kind != "" {
		query += ` AND kind = $2`
		args = append(args, kind)
	}
	query += ` ORDER BY kind, name`

	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query places: %w", err)
	}
	defer rows.Close()

	var places []AgencyPlace
	for rows.Next() {
		var p AgencyPlace
		var address, city, notes *string
		if err := rows.Scan(&p.ID, &p.AgencyID, &p.Kind, &p.Name, &address, &city, &notes); err != nil {
			return nil, fmt.Errorf("scan place: %w", err)
		}
		if address != nil {
			p.Address = *address
		}
		if city != nil {
			p.City = *city
		}
		if notes != nil {
			p.Notes = *notes
		}
		places = append(places, p)
	}
	return places, rows.Err()
}

// AddDocument attaches a travel document to a trip.
func (d *PostgresDB) AddDocument(ctx context.Context, doc Document) (int64, error) {
	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var id int64
	err := d.pool.QueryRow(ctx, `
		INSERT INTO documents (trip_id, kind, filename, url, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, doc.TripID, doc.Kind, doc.Filename, nullStr(doc.URL), createdAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert document: %w", err)
	}
	return id, nil
}

// ListDocuments retrieves documents attached to a trip.
func (d *PostgresDB) ListDocuments(ctx context.Context, tripID string) ([]Document, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, trip_id, kind, filename, url, created_at FROM documents
		WHERE trip_id = $1 ORDER BY created_at, id
	`, tripID)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var documents []Document
	for rows.Next() {
		var doc Document
		var url *string
		if err := rows.Scan(&doc.ID, &doc.TripID, &doc.Kind, &doc.Filename, &url, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if url != nil {
			doc.URL = *url
		}
		documents = append(documents, doc)
	}
	return documents, rows.Err()
}

// LogConversation appends one exchanged WhatsApp message.
func (d *PostgresDB) LogConversation(ctx context.Context, m ConversationMessage) error {
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := d.pool.Exec(ctx, `
		INSERT INTO conversations (trip_id, direction, body, created_at) VALUES ($1, $2, $3, $4)
	`, m.TripID, m.Direction, m.Body, createdAt)
	return err
}

// GetConversation retrieves the newest messages for a trip.
func (d *PostgresDB) GetConversation(ctx context.Context, tripID string, limit int) ([]ConversationMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.pool.Query(ctx, `
		SELECT id, trip_id, direction, body, created_at FROM conversations
		WHERE trip_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2
	`, tripID, limit)
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	defer rows.Close()

	var messages []ConversationMessage
	for rows.Next() {
		var m ConversationMessage
		if err := rows.Scan(&m.ID, &m.TripID, &m.Direction, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
