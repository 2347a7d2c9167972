package storage

import (
	"context"
	"fmt"

	"tripwatch/internal/trip"
)

// Config selects and configures the storage backend.
type Config struct {
	// Backend is "sqlite" or "postgres". The postgres backend also needs
	// ClickHouse for the status history.
	Backend    string
	SQLitePath string
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
}

// DefaultConfig returns a configuration with default local development settings.
func DefaultConfig() Config {
	return Config{
		Backend:    "sqlite",
		SQLitePath: "tripwatch.db",
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "tripwatch",
			User:     "tripwatch",
			Password: "tripwatch",
		},
		ClickHouse: ClickHouseConfig{
			Host:     "localhost",
			Port:     9000,
			Database: "tripwatch",
			User:     "default",
			Password: "",
		},
	}
}

// DB pairs PostgreSQL for mutable state with ClickHouse for the append-only
// status history. Everything except the history methods goes to Postgres.
type DB struct {
	*PostgresDB
	CH *ClickHouseDB
}

var (
	_ Store = (*DB)(nil)
	_ Store = (*SQLiteDB)(nil)
)

// Open opens the configured backend and ensures its schema.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "sqlite":
		db, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return db, nil

	case "postgres":
		pg, err := OpenPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if err := pg.CreateSchema(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("postgres schema: %w", err)
		}

		ch, err := OpenClickHouse(ctx, cfg.ClickHouse)
		if err != nil {
			pg.Close()
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		if err := ch.CreateSchema(ctx); err != nil {
			pg.Close()
			_ = ch.Close()
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}

		return &DB{PostgresDB: pg, CH: ch}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// AppendFlightStatus routes history writes to ClickHouse.
func (d *DB) AppendFlightStatus(ctx context.Context, tripID string, snap *trip.FlightSnapshot, raw string) error {
	return d.CH.AppendFlightStatus(ctx, tripID, snap, raw)
}

// GetLatestStatus routes history reads to ClickHouse.
func (d *DB) GetLatestStatus(ctx context.Context, tripID string) (*trip.FlightSnapshot, error) {
	return d.CH.GetLatestStatus(ctx, tripID)
}

// GetStatusHistory routes history reads to ClickHouse.
func (d *DB) GetStatusHistory(ctx context.Context, tripID string, limit int) ([]StatusRecord, error) {
	return d.CH.GetStatusHistory(ctx, tripID, limit)
}

// Ping checks both database connections.
func (d *DB) Ping(ctx context.Context) error {
	if err := d.PostgresDB.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if err := d.CH.Ping(ctx); err != nil {
		return fmt.Errorf("clickhouse: %w", err)
	}
	return nil
}

// Close closes both database connections.
func (d *DB) Close() error {
	var errs []error
	if d.CH != nil {
		if err := d.CH.Close(); err != nil {
			errs = append(errs, fmt.Errorf("clickhouse: %w", err))
		}
	}
	if d.PostgresDB != nil {
		d.PostgresDB.Close()
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
