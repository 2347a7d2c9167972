// Package storage persists trips, flight status history, the notification
// log and durable one-shot jobs. Two backends implement Store: DB pairs
// PostgreSQL (mutable state) with ClickHouse (append-only history), and
// SQLiteDB keeps everything in a single file for small deployments and tests.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tripwatch/internal/trip"
)

// Job states for the scheduled_jobs table.
const (
	JobStatePending = "pending"
	JobStateRunning = "running"
	JobStateDone    = "done"
	JobStateFailed  = "failed"
)

// Job kinds understood by the scheduler's claim loop.
const (
	JobItineraryLaunch      = "itinerary_launch"
	JobImmediateReminder    = "immediate_reminder"
	JobDeferredNotification = "deferred_notification"
)

// Stale running jobs are reclaimed after this long, covering a worker that
// died between claim and completion.
const jobStaleAfter = 10 * time.Minute

// Departure window around now that keeps a trip eligible for polling. Trips
// outside it stay registered but are not polled.
const (
	pollWindowPast   = 48 * time.Hour
	pollWindowFuture = 60 * 24 * time.Hour
)

// rowScanner is satisfied by *sql.Row, *sql.Rows, pgx.Row and pgx.Rows, so
// one scan helper serves both single-row and multi-row queries.
type rowScanner interface {
	Scan(dest ...any) error
}

// DuplicateTripError reports an attempt to register a trip that already has
// an active row for the same contact, flight number and UTC departure day.
type DuplicateTripError struct {
	WhatsApp     string
	FlightNumber string
	Day          time.Time
}

func (e *DuplicateTripError) Error() string {
	return fmt.Sprintf("active trip already exists for %s on %s %s",
		e.WhatsApp, e.FlightNumber, e.Day.Format("2006-01-02"))
}

// IsDuplicateTrip reports whether err is a DuplicateTripError.
func IsDuplicateTrip(err error) bool {
	var dup *DuplicateTripError
	return errors.As(err, &dup)
}

// AlreadyLoggedError reports a second insert of the same idempotency key for
// a trip. The first row won; the caller should treat the send as handled.
type AlreadyLoggedError struct {
	TripID string
	Key    string
}

func (e *AlreadyLoggedError) Error() string {
	return fmt.Sprintf("notification %s already logged for trip %s", e.Key, e.TripID)
}

// IsAlreadyLogged reports whether err is an AlreadyLoggedError.
func IsAlreadyLogged(err error) bool {
	var al *AlreadyLoggedError
	return errors.As(err, &al)
}

// ListParams filters ListTrips.
type ListParams struct {
	AgencyID     string
	Status       string
	FlightNumber string
	Limit        int // default 100
	Offset       int
}

// StatusRecord is one appended provider snapshot with its raw payload.
type StatusRecord struct {
	ID         int64               `json:"id"`
	TripID     string              `json:"trip_id"`
	Snapshot   trip.FlightSnapshot `json:"snapshot"`
	RawJSON    string              `json:"raw_json,omitempty"`
	RecordedAt time.Time           `json:"recorded_at"`
}

// Notification is one row of the notification audit log.
type Notification struct {
	ID             int64                  `json:"id"`
	TripID         string                 `json:"trip_id"`
	Type           trip.NotificationType  `json:"type"`
	IdempotencyKey string                 `json:"idempotency_key"`
	State          trip.NotificationState `json:"state"`
	Recipient      string                 `json:"recipient"`
	Body           string                 `json:"body,omitempty"`
	Variables      []string               `json:"variables,omitempty"`
	Extra          map[string]string      `json:"extra,omitempty"`
	Attempts       int                    `json:"attempts"`
	NextRetryAt    *time.Time             `json:"next_retry_at,omitempty"`
	SentAt         *time.Time             `json:"sent_at,omitempty"`
	ProviderID     string                 `json:"provider_id,omitempty"`
	LastError      string                 `json:"last_error,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// Job is a durable one-shot unit of work executed by the scheduler: itinerary
// launches, immediate reminders and quiet-hours deferrals survive restarts as
// rows rather than in-process timers.
type Job struct {
	ID        int64             `json:"id"`
	TripID    string            `json:"trip_id,omitempty"`
	Kind      string            `json:"kind"`
	RunAt     time.Time         `json:"run_at"`
	Payload   map[string]string `json:"payload,omitempty"`
	State     string            `json:"state"`
	Attempts  int               `json:"attempts"`
	LastError string            `json:"last_error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Itinerary is the generated travel itinerary for a trip.
type Itinerary struct {
	ID        int64      `json:"id"`
	TripID    string     `json:"trip_id"`
	Status    string     `json:"status"` // pending | ready
	Content   string     `json:"content,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ReadyAt   *time.Time `json:"ready_at,omitempty"`
}

// Agency is a travel agency operating trips through the service.
type Agency struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	WhatsAppFrom string    `json:"whatsapp_from,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// AgencyPlace is an agency-curated venue surfaced in welcome messages and
// itineraries: hotels, restaurants, activities.
type AgencyPlace struct {
	ID       int64  `json:"id"`
	AgencyID string `json:"agency_id"`
	Kind     string `json:"kind"`
	Name     string `json:"name"`
	Address  string `json:"address,omitempty"`
	City     string `json:"city,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// Document is a travel document attached to a trip.
type Document struct {
	ID        int64     `json:"id"`
	TripID    string    `json:"trip_id"`
	Kind      string    `json:"kind"`
	Filename  string    `json:"filename"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationMessage is one WhatsApp message exchanged with a client.
type ConversationMessage struct {
	ID        int64     `json:"id"`
	TripID    string    `json:"trip_id"`
	Direction string    `json:"direction"` // in | out
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the persistence contract shared by the API server, the polling
// engine, the dispatcher and the scheduler. Single-row getters return
// (nil, nil) when the row does not exist.
type Store interface {
	// Trips.
	CreateTrip(ctx context.Context, t *trip.Trip) error
	GetTrip(ctx context.Context, id string) (*trip.Trip, error)
	ListTrips(ctx context.Context, p ListParams) ([]trip.Trip, error)
	GetTripsDueForPoll(ctx context.Context, now time.Time) ([]trip.Trip, error)
	TripsDepartingBetween(ctx context.Context, from, to time.Time) ([]trip.Trip, error)
	TripsCreatedWithoutConfirmation(ctx context.Context, olderThan time.Time) ([]trip.Trip, error)
	UpdateTripFromSnapshot(ctx context.Context, id string, snap *trip.FlightSnapshot) error
	UpdateNextCheckAt(ctx context.Context, id string, at *time.Time) error
	UpdateTripStatus(ctx context.Context, id string, status trip.Status) error
	CountActiveTrips(ctx context.Context) (int, error)

	// Flight status history (append-only).
	AppendFlightStatus(ctx context.Context, tripID string, snap *trip.FlightSnapshot, raw string) error
	GetLatestStatus(ctx context.Context, tripID string) (*trip.FlightSnapshot, error)
	GetStatusHistory(ctx context.Context, tripID string, limit int) ([]StatusRecord, error)

	// Notification log.
	LogNotification(ctx context.Context, n *Notification) error
	UpdateNotificationState(ctx context.Context, id int64, state trip.NotificationState, sentAt *time.Time, providerID, lastError string) error
	MarkNotificationRetry(ctx context.Context, id int64, nextRetryAt time.Time, lastError string) error
	LookupNotification(ctx context.Context, tripID, key string) (*Notification, error)
	GetNotificationHistory(ctx context.Context, tripID string) ([]Notification, error)
	LastNotificationOfType(ctx context.Context, tripID string, typ trip.NotificationType) (*Notification, error)
	PendingRetries(ctx context.Context, now time.Time, maxAttempts, limit int) ([]Notification, error)
	RecentNotifications(ctx context.Context, limit int) ([]Notification, error)

	// Durable jobs.
	ScheduleJob(ctx context.Context, j *Job) error
	ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]Job, error)
	CompleteJob(ctx context.Context, id int64) error
	RescheduleJob(ctx context.Context, id int64, runAt time.Time, lastError string) error
	FailJob(ctx context.Context, id int64, lastError string) error

	// Itineraries.
	CreateItinerary(ctx context.Context, tripID string) error
	MarkItineraryReady(ctx context.Context, tripID, content string) error
	GetItinerary(ctx context.Context, tripID string) (*Itinerary, error)

	// Agencies and curated places.
	UpsertAgency(ctx context.Context, a Agency) error
	GetAgency(ctx context.Context, id string) (*Agency, error)
	AddAgencyPlace(ctx context.Context, p AgencyPlace) (int64, error)
	ListAgencyPlaces(ctx context.Context, agencyID, kind string) ([]AgencyPlace, error)

	// Documents and conversation log.
	AddDocument(ctx context.Context, d Document) (int64, error)
	ListDocuments(ctx context.Context, tripID string) ([]Document, error)
	LogConversation(ctx context.Context, m ConversationMessage) error
	GetConversation(ctx context.Context, tripID string, limit int) ([]ConversationMessage, error)

	Ping(ctx context.Context) error
	Close() error
}
