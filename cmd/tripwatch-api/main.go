// Package main provides the tripwatch REST API server.
//
// This is the public-facing half of the system: travel agencies register
// trips and query their state here. Trip creation writes the row and
// publishes trip.created on NATS; the engine daemon consumes the event and
// runs the onboarding flow. Without NATS the daemon's catch-up sweep finds
// new trips in the shared store, so the bus is optional.
//
// Usage:
//
//	tripwatch-api [options]
//
// Options:
//
//	-port N              HTTP port (default: 8080, env: API_PORT)
//	-auth                Enable API key authentication
//	-api-keys KEYS       Comma-separated list of valid API keys (env: API_KEYS)
//	-storage BACKEND     sqlite or postgres (default: sqlite, env: STORAGE_BACKEND)
//	-sqlite-path PATH    SQLite database file (default: tripwatch.db, env: SQLITE_PATH)
//	-pg-host HOST        PostgreSQL host (default: localhost, env: POSTGRES_HOST)
//	-pg-port PORT        PostgreSQL port (default: 5432, env: POSTGRES_PORT)
//	-pg-database DB      PostgreSQL database (default: tripwatch, env: POSTGRES_DATABASE)
//	-pg-user USER        PostgreSQL user (default: tripwatch, env: POSTGRES_USER)
//	-pg-password PASS    PostgreSQL password (default: tripwatch, env: POSTGRES_PASSWORD)
//	-ch-host HOST        ClickHouse host (default: localhost, env: CLICKHOUSE_HOST)
//	-ch-port PORT        ClickHouse native port (default: 9000, env: CLICKHOUSE_PORT)
//	-ch-database DB      ClickHouse database (default: tripwatch, env: CLICKHOUSE_DATABASE)
//	-ch-user USER        ClickHouse user (default: default, env: CLICKHOUSE_USER)
//	-ch-password PASS    ClickHouse password (env: CLICKHOUSE_PASSWORD)
//	-nats-url URL        NATS server URL; empty disables the bus (env: NATS_URL)
//	-log-level LEVEL     zerolog level (default: info, env: LOG_LEVEL)
//	-log-json            JSON log output instead of console
//
// API Endpoints:
//
//	POST /api/v1/trips
//	    Register a trip. Departure date-time is local to the origin airport.
//
//	GET /api/v1/trips
//	    List trips. Filters: agency_id, status, flight_number, limit, offset.
//
//	GET /api/v1/trips/{trip_id}
//	    Trip row plus the latest flight snapshot.
//
//	GET /api/v1/trips/{trip_id}/history
//	    Flight status history, newest first.
//
//	GET /api/v1/trips/{trip_id}/notifications
//	    Notification log for the trip.
//
//	POST /api/v1/itineraries/{trip_id}
//	    Enqueue itinerary generation.
//
//	POST /api/v1/itineraries/{trip_id}/ready
//	    Generator callback: store the content and trigger the client message.
//
//	GET /api/v1/health
//	GET /api/v1/stats
//
// Authentication:
//
//	When -auth is enabled, requests must include an API key via:
//	  - X-API-Key header
//	  - Authorization: Bearer <key> header
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"

	"tripwatch/internal/api"
	"tripwatch/internal/bus"
	"tripwatch/internal/storage"
)

func main() {
	port := flag.Int("port", envOrDefaultInt("API_PORT", 8080), "HTTP port for the API server")
	authEnabled := flag.Bool("auth", false, "Enable API key authentication")
	apiKeys := flag.String("api-keys", envOrDefault("API_KEYS", ""), "Comma-separated list of valid API keys (when auth enabled)")

	storageBackend := flag.String("storage", envOrDefault("STORAGE_BACKEND", "sqlite"), "Storage backend: sqlite or postgres")
	sqlitePath := flag.String("sqlite-path", envOrDefault("SQLITE_PATH", "tripwatch.db"), "SQLite database file")
	pgHost := flag.String("pg-host", envOrDefault("POSTGRES_HOST", "localhost"), "PostgreSQL host")
	pgPort := flag.Int("pg-port", envOrDefaultInt("POSTGRES_PORT", 5432), "PostgreSQL port")
	pgDB := flag.String("pg-database", envOrDefault("POSTGRES_DATABASE", "tripwatch"), "PostgreSQL database")
	pgUser := flag.String("pg-user", envOrDefault("POSTGRES_USER", "tripwatch"), "PostgreSQL user")
	pgPassword := flag.String("pg-password", envOrDefault("POSTGRES_PASSWORD", "tripwatch"), "PostgreSQL password")
	chHost := flag.String("ch-host", envOrDefault("CLICKHOUSE_HOST", "localhost"), "ClickHouse host")
	chPort := flag.Int("ch-port", envOrDefaultInt("CLICKHOUSE_PORT", 9000), "ClickHouse native port")
	chDB := flag.String("ch-database", envOrDefault("CLICKHOUSE_DATABASE", "tripwatch"), "ClickHouse database")
	chUser := flag.String("ch-user", envOrDefault("CLICKHOUSE_USER", "default"), "ClickHouse user")
	chPassword := flag.String("ch-password", envOrDefault("CLICKHOUSE_PASSWORD", ""), "ClickHouse password")

	natsURL := flag.String("nats-url", envOrDefault("NATS_URL", ""), "NATS server URL; empty disables the bus")

	logLevel := flag.String("log-level", envOrDefault("LOG_LEVEL", "info"), "Log level")
	logJSON := flag.Bool("log-json", false, "JSON log output instead of console")
	flag.Parse()

	log := setupLogger(*logLevel, *logJSON)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, storage.Config{
		Backend:    *storageBackend,
		SQLitePath: *sqlitePath,
		Postgres: storage.PostgresConfig{
			Host: *pgHost, Port: *pgPort, Database: *pgDB,
			User: *pgUser, Password: *pgPassword,
		},
		ClickHouse: storage.ClickHouseConfig{
			Host: *chHost, Port: *chPort, Database: *chDB,
			User: *chUser, Password: *chPassword,
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("storage open failed")
	}
	defer func() { _ = store.Close() }()

	cfg := api.Config{
		Addr:        fmt.Sprintf(":%d", *port),
		AuthEnabled: *authEnabled,
		APIKeys:     splitKeys(*apiKeys),
		Store:       store,
		Log:         log,
	}

	if *natsURL != "" {
		b, err := bus.Connect(bus.Config{URL: *natsURL, Name: "tripwatch-api"}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("nats connect failed")
		}
		defer b.Close()
		cfg.Bus = b
	} else {
		log.Info().Msg("no nats url configured, relying on the daemon's catch-up sweep")
	}

	if err := api.New(cfg).Run(ctx); err != nil {
		log.Error().Err(err).Msg("api server exited with error")
		os.Exit(1)
	}
	log.Info().Msg("api server stopped")
}

func setupLogger(level string, jsonOut bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	if jsonOut {
		return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
	}
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

func splitKeys(s string) []string {
	if s == "" {
		return nil
	}
	keys := strings.Split(s, ",")
	for i := range keys {
		keys[i] = strings.TrimSpace(keys[i])
	}
	return keys
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
