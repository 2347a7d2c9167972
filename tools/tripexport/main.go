// Package main exports a trip's full timeline from a tripwatch SQLite
// database to JSON: the trip row, every stored flight snapshot, the
// notification log and the itinerary. Useful when an agency asks what the
// client was told and when.
package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

// TripExport is the complete JSON document for one trip.
type TripExport struct {
	Trip          TripRow           `json:"trip"`
	StatusHistory []StatusRow       `json:"status_history"`
	Notifications []NotificationRow `json:"notifications"`
	Itinerary     *ItineraryRow     `json:"itinerary,omitempty"`
}

// TripRow mirrors the trips table.
type TripRow struct {
	ID               string  `json:"id"`
	AgencyID         *string `json:"agency_id,omitempty"`
	ClientName       string  `json:"client_name"`
	WhatsApp         string  `json:"whatsapp"`
	FlightNumber     string  `json:"flight_number"`
	Origin           string  `json:"origin"`
	Destination      string  `json:"destination"`
	DepartureUTC     string  `json:"departure_utc"`
	Status           string  `json:"status"`
	LastFlightStatus *string `json:"last_flight_status,omitempty"`
	Gate             *string `json:"gate,omitempty"`
	EstimatedOut     *string `json:"estimated_out,omitempty"`
	EstimatedIn      *string `json:"estimated_in,omitempty"`
	Metadata         *string `json:"metadata,omitempty"`
	NextCheckAt      *string `json:"next_check_at,omitempty"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
}

// StatusRow mirrors one flight_status_history row.
type StatusRow struct {
	Status          string  `json:"status"`
	GateOrigin      *string `json:"gate_origin,omitempty"`
	GateDestination *string `json:"gate_destination,omitempty"`
	ScheduledOut    *string `json:"scheduled_out,omitempty"`
	EstimatedOut    *string `json:"estimated_out,omitempty"`
	ActualOut       *string `json:"actual_out,omitempty"`
	EstimatedIn     *string `json:"estimated_in,omitempty"`
	ActualIn        *string `json:"actual_in,omitempty"`
	ProgressPercent *int    `json:"progress_percent,omitempty"`
	Cancelled       bool    `json:"cancelled,omitempty"`
	Diverted        bool    `json:"diverted,omitempty"`
	RecordedAt      string  `json:"recorded_at"`
}

// NotificationRow mirrors one notifications_log row.
type NotificationRow struct {
	Type       string  `json:"type"`
	State      string  `json:"state"`
	Recipient  string  `json:"recipient"`
	Body       *string `json:"body,omitempty"`
	Attempts   int     `json:"attempts"`
	SentAt     *string `json:"sent_at,omitempty"`
	ProviderID *string `json:"provider_id,omitempty"`
	LastError  *string `json:"last_error,omitempty"`
	CreatedAt  string  `json:"created_at"`
}

// ItineraryRow mirrors the itineraries row.
type ItineraryRow struct {
	Status    string  `json:"status"`
	Content   *string `json:"content,omitempty"`
	CreatedAt string  `json:"created_at"`
	ReadyAt   *string `json:"ready_at,omitempty"`
}

func main() {
	dbPath := flag.String("db", "tripwatch.db", "SQLite database file")
	tripID := flag.String("trip", "", "Trip ID to export")
	list := flag.Bool("list", false, "List recent trips instead of exporting")
	output := flag.String("output", "", "Output JSON file (default: stdout)")
	pretty := flag.Bool("pretty", true, "Pretty-print JSON output")
	flag.Parse()

	db, err := sql.Open("sqlite3", *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if *list {
		listTrips(db)
		return
	}

	if *tripID == "" {
		fmt.Fprintln(os.Stderr, "Error: -trip is required (use -list to find one)")
		os.Exit(1)
	}

	export, err := exportTrip(db, *tripID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error exporting trip: %v\n", err)
		os.Exit(1)
	}

	var data []byte
	if *pretty {
		data, err = json.MarshalIndent(export, "", "  ")
	} else {
		data, err = json.Marshal(export)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "JSON encode error: %v\n", err)
		os.Exit(1)
	}

	if *output != "" {
		if err := os.WriteFile(*output, append(data, '\n'), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Wrote trip %s to %s\n", *tripID, *output)
		return
	}
	fmt.Println(string(data))
}

func listTrips(db *sql.DB) {
	rows, err := db.Query(`
		SELECT id, flight_number, client_name, departure_utc, status
		FROM trips ORDER BY created_at DESC LIMIT 50
	`)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing trips: %v\n", err)
		os.Exit(1)
	}
	defer rows.Close()

	fmt.Printf("%-36s %-8s %-20s %-20s %s\n", "ID", "Flight", "Client", "Departure (UTC)", "Status")
	for rows.Next() {
		var id, flight, client, dep, status string
		if err := rows.Scan(&id, &flight, &client, &dep, &status); err != nil {
			fmt.Fprintf(os.Stderr, "Scan error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%-36s %-8s %-20s %-20s %s\n", id, flight, client, dep, status)
	}
	if err := rows.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Row error: %v\n", err)
		os.Exit(1)
	}
}

func exportTrip(db *sql.DB, tripID string) (*TripExport, error) {
	out := &TripExport{}

	err := db.QueryRow(`
		SELECT id, agency_id, client_name, whatsapp, flight_number, origin, destination,
			departure_utc, status, last_flight_status, gate, estimated_out, estimated_in,
			metadata, next_check_at, created_at, updated_at
		FROM trips WHERE id = ?
	`, tripID).Scan(
		&out.Trip.ID, &out.Trip.AgencyID, &out.Trip.ClientName, &out.Trip.WhatsApp,
		&out.Trip.FlightNumber, &out.Trip.Origin, &out.Trip.Destination,
		&out.Trip.DepartureUTC, &out.Trip.Status, &out.Trip.LastFlightStatus,
		&out.Trip.Gate, &out.Trip.EstimatedOut, &out.Trip.EstimatedIn,
		&out.Trip.Metadata, &out.Trip.NextCheckAt, &out.Trip.CreatedAt, &out.Trip.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("trip %s not found", tripID)
	}
	if err != nil {
		return nil, fmt.Errorf("query trip: %w", err)
	}

	if out.StatusHistory, err = queryHistory(db, tripID); err != nil {
		return nil, err
	}
	if out.Notifications, err = queryNotifications(db, tripID); err != nil {
		return nil, err
	}
	if out.Itinerary, err = queryItinerary(db, tripID); err != nil {
		return nil, err
	}
	return out, nil
}

func queryHistory(db *sql.DB, tripID string) ([]StatusRow, error) {
	rows, err := db.Query(`
		SELECT status, gate_origin, gate_destination, scheduled_out, estimated_out,
			actual_out, estimated_in, actual_in, progress_percent, cancelled, diverted,
			recorded_at
		FROM flight_status_history WHERE trip_id = ? ORDER BY recorded_at, id
	`, tripID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var history []StatusRow
	for rows.Next() {
		var r StatusRow
		var cancelled, diverted int
		if err := rows.Scan(&r.Status, &r.GateOrigin, &r.GateDestination,
			&r.ScheduledOut, &r.EstimatedOut, &r.ActualOut, &r.EstimatedIn, &r.ActualIn,
			&r.ProgressPercent, &cancelled, &diverted, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		r.Cancelled = cancelled != 0
		r.Diverted = diverted != 0
		history = append(history, r)
	}
	return history, rows.Err()
}

func queryNotifications(db *sql.DB, tripID string) ([]NotificationRow, error) {
	rows, err := db.Query(`
		SELECT type, state, recipient, body, attempts, sent_at, provider_id, last_error, created_at
		FROM notifications_log WHERE trip_id = ? ORDER BY created_at, id
	`, tripID)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []NotificationRow
	for rows.Next() {
		var r NotificationRow
		if err := rows.Scan(&r.Type, &r.State, &r.Recipient, &r.Body, &r.Attempts,
			&r.SentAt, &r.ProviderID, &r.LastError, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, r)
	}
	return notifications, rows.Err()
}

func queryItinerary(db *sql.DB, tripID string) (*ItineraryRow, error) {
	var r ItineraryRow
	err := db.QueryRow(`
		SELECT status, content, created_at, ready_at FROM itineraries WHERE trip_id = ?
	`, tripID).Scan(&r.Status, &r.Content, &r.CreatedAt, &r.ReadyAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query itinerary: %w", err)
	}
	return &r, nil
}
