package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"tripwatch/internal/trip"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// ClickHouseDB holds the append-only flight status history. Every provider
// snapshot lands here; nothing is ever updated or deleted.
type ClickHouseDB struct {
	conn driver.Conn
}

// OpenClickHouse opens a connection to ClickHouse.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	// Test the connection.
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (d *ClickHouseDB) Close() error {
	return d.conn.Close()
}

// Ping checks the ClickHouse connection.
func (d *ClickHouseDB) Ping(ctx context.Context) error {
	return d.conn.Ping(ctx)
}

// CreateSchema creates the ClickHouse tables.
func (d *ClickHouseDB) CreateSchema(ctx context.Context) error {
	err := d.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS flight_status_history (
			id               UInt64,
			trip_id          String,
			ident            LowCardinality(String),
			status           LowCardinality(String),
			origin           LowCardinality(String),
			destination      LowCardinality(String),
			origin_city      String,
			destination_city String,
			gate_origin      Nullable(String),
			gate_destination Nullable(String),
			scheduled_out    Nullable(DateTime64(3)),
			estimated_out    Nullable(DateTime64(3)),
			actual_out       Nullable(DateTime64(3)),
			scheduled_in     Nullable(DateTime64(3)),
			estimated_in     Nullable(DateTime64(3)),
			actual_in        Nullable(DateTime64(3)),
			progress_percent Nullable(Int64),
			cancelled        Bool,
			diverted         Bool,
			raw_json         String,
			recorded_at      DateTime64(3)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(recorded_at)
		ORDER BY (trip_id, recorded_at, id)
		SETTINGS index_granularity = 8192
	`)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// AppendFlightStatus appends one provider snapshot to the history.
func (d *ClickHouseDB) AppendFlightStatus(ctx context.Context, tripID string, snap *trip.FlightSnapshot, raw string) error {
	recordedAt := snap.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	var progress *int64
	if snap.ProgressPercent != nil {
		p := int64(*snap.ProgressPercent)
		progress = &p
	}

	err := d.conn.Exec(ctx, `
		INSERT INTO flight_status_history (id, trip_id, ident, status, origin, destination, origin_city, destination_city,
			gate_origin, gate_destination, scheduled_out, estimated_out, actual_out,
			scheduled_in, estimated_in, actual_in, progress_percent, cancelled, diverted, raw_json, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, uint64(time.Now().UnixNano()), tripID, snap.Ident, snap.Status, snap.Origin, snap.Destination,
		snap.OriginCity, snap.DestinationCity, snap.GateOrigin, snap.GateDestination,
		snap.ScheduledOut, snap.EstimatedOut, snap.ActualOut,
		snap.ScheduledIn, snap.EstimatedIn, snap.ActualIn,
		progress, snap.Cancelled, snap.Diverted, raw, recordedAt)
	if err != nil {
		return fmt.Errorf("insert status: %w", err)
	}
	return nil
}

// GetLatestStatus retrieves the most recent snapshot for a trip, or nil when
// nothing has been recorded yet.
func (d *ClickHouseDB) GetLatestStatus(ctx context.Context, tripID string) (*trip.FlightSnapshot, error) {
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
func (d *ClickHouseDB) GetStatusHistory(ctx context.Context, tripID string, limit int) ([]StatusRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.conn.Query(ctx, `
		SELECT `+historyColumns+` FROM flight_status_history
		WHERE trip_id = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?
	`, tripID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var records []StatusRecord
	for rows.Next() {
		rec, err := scanCHStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func scanCHStatus(sc rowScanner) (*StatusRecord, error) {
	var rec StatusRecord
	var id uint64
	var progress *int64

	err := sc.Scan(&id, &rec.TripID, &rec.Snapshot.Ident, &rec.Snapshot.Status,
		&rec.Snapshot.Origin, &rec.Snapshot.Destination, &rec.Snapshot.OriginCity, &rec.Snapshot.DestinationCity,
		&rec.Snapshot.GateOrigin, &rec.Snapshot.GateDestination,
		&rec.Snapshot.ScheduledOut, &rec.Snapshot.EstimatedOut, &rec.Snapshot.ActualOut,
		&rec.Snapshot.ScheduledIn, &rec.Snapshot.EstimatedIn, &rec.Snapshot.ActualIn,
		&progress, &rec.Snapshot.Cancelled, &rec.Snapshot.Diverted, &rec.RawJSON, &rec.RecordedAt)
	if err != nil {
		return nil, err
	}

	rec.ID = int64(id)
	if progress != nil {
		p := int(*progress)
		rec.Snapshot.ProgressPercent = &p
	}
	rec.Snapshot.RecordedAt = rec.RecordedAt
	return &rec, nil
}
