// Package main runs the tripwatch engine daemon.
//
// The daemon owns the flight lifecycle for every registered trip: it polls
// the flight-data provider on a tightening cadence, detects status, gate and
// departure-time changes, sends the WhatsApp notifications, runs the periodic
// sweeps (reminder, boarding, landing, confirmation catch-up), executes
// durable one-shot jobs and retries failed sends. Trip registrations arrive
// over NATS from the API binary, or are picked up by the catch-up sweep when
// no bus is configured.
//
// Usage:
//
//	tripwatch [options]
//
// Options:
//
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
//	-provider-url URL    Flight data API base URL (env: FLIGHT_PROVIDER_URL)
//	-provider-key KEY    Flight data API key (env: FLIGHT_PROVIDER_KEY)
//	-nats-url URL        NATS server URL; empty disables the bus (env: NATS_URL)
//	-twilio-sid SID      Twilio account SID (env: TWILIO_ACCOUNT_SID)
//	-twilio-token TOKEN  Twilio auth token (env: TWILIO_AUTH_TOKEN)
//	-whatsapp-from NUM   WhatsApp business number (env: WHATSAPP_FROM)
//	-content-sids LIST   TYPE=SID pairs, comma separated (env: TWILIO_CONTENT_SIDS)
//	-dry-run             Log outbound messages instead of sending them
//	-scan-interval DUR   Poll scan interval (default: 1m)
//	-workers N           Poll worker pool size (default: 8)
//	-ops-addr ADDR       Ops HTTP listen address (default: :9090, env: OPS_ADDR)
//	-log-level LEVEL     zerolog level (default: info, env: LOG_LEVEL)
//	-log-json            JSON log output instead of console
//	-log-file PATH       Also write logs to a rotating file (env: LOG_FILE)
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"tripwatch/internal/bus"
	"tripwatch/internal/flightdata"
	_ "tripwatch/internal/messages"
	"tripwatch/internal/metrics"
	"tripwatch/internal/notify"
	"tripwatch/internal/orchestrator"
	"tripwatch/internal/poller"
	"tripwatch/internal/review"
	"tripwatch/internal/scheduler"
	"tripwatch/internal/storage"
	"tripwatch/internal/trip"
	"tripwatch/internal/weather"
)

const opsShutdownGrace = 5 * time.Second

func main() {
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

	providerURL := flag.String("provider-url", envOrDefault("FLIGHT_PROVIDER_URL", ""), "Flight data API base URL")
	providerKey := flag.String("provider-key", envOrDefault("FLIGHT_PROVIDER_KEY", ""), "Flight data API key")

	natsURL := flag.String("nats-url", envOrDefault("NATS_URL", ""), "NATS server URL; empty disables the bus")

	twilioSID := flag.String("twilio-sid", envOrDefault("TWILIO_ACCOUNT_SID", ""), "Twilio account SID")
	twilioToken := flag.String("twilio-token", envOrDefault("TWILIO_AUTH_TOKEN", ""), "Twilio auth token")
	whatsappFrom := flag.String("whatsapp-from", envOrDefault("WHATSAPP_FROM", ""), "WhatsApp business number")
	contentSIDs := flag.String("content-sids", envOrDefault("TWILIO_CONTENT_SIDS", ""), "TYPE=SID pairs, comma separated")
	dryRun := flag.Bool("dry-run", false, "Log outbound messages instead of sending them")

	scanInterval := flag.Duration("scan-interval", time.Minute, "Poll scan interval")
	workers := flag.Int("workers", 8, "Poll worker pool size")
	opsAddr := flag.String("ops-addr", envOrDefault("OPS_ADDR", ":9090"), "Ops HTTP listen address")

	logLevel := flag.String("log-level", envOrDefault("LOG_LEVEL", "info"), "Log level")
	logJSON := flag.Bool("log-json", false, "JSON log output instead of console")
	logFile := flag.String("log-file", envOrDefault("LOG_FILE", ""), "Also write logs to a rotating file")
	flag.Parse()

	log := setupLogger(*logLevel, *logJSON, *logFile)
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
	log.Info().Str("backend", *storageBackend).Msg("storage ready")

	m := metrics.New()

	flights := flightdata.New(flightdata.Config{
		BaseURL: *providerURL,
		APIKey:  *providerKey,
		Metrics: m,
		Log:     log,
	})

	var sender notify.Sender
	if *dryRun {
		sender = notify.NewLogSender(log)
		log.Warn().Msg("dry-run mode: notifications go to the log, not to clients")
	} else {
		sender = notify.NewTwilioSender(notify.TwilioConfig{
			AccountSID:  *twilioSID,
			AuthToken:   *twilioToken,
			From:        *whatsappFrom,
			ContentSIDs: parseContentSIDs(*contentSIDs),
		}, log)
	}

	var b *bus.Bus
	if *natsURL != "" {
		b, err = bus.Connect(bus.Config{URL: *natsURL, Name: "tripwatch-daemon"}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("nats connect failed")
		}
		defer b.Close()
	} else {
		log.Info().Msg("no nats url configured, running without the bus")
	}

	// A nil *bus.Bus must never reach an interface field: the interface
	// would be non-nil and every publish would panic.
	notifyCfg := notify.Config{
		Store:   store,
		Sender:  sender,
		Weather: weather.NewOpenMeteo(weather.Config{Log: log}),
		Metrics: m,
		Log:     log,
	}
	if b != nil {
		notifyCfg.Bus = b
	}
	dispatcher := notify.New(notifyCfg)
	retry := notify.NewRetryService(notifyCfg)

	orchCfg := orchestrator.Config{
		Store:      store,
		Flights:    flights,
		Dispatcher: dispatcher,
		Log:        log,
	}
	if b != nil {
		orchCfg.Bus = b
	}
	orch := orchestrator.New(orchCfg)

	engine := poller.New(poller.Config{
		Store:        store,
		Cycle:        orch.OnPollTick,
		ScanInterval: *scanInterval,
		Workers:      *workers,
		Metrics:      m,
		Log:          log,
	})

	schedCfg := scheduler.Config{
		Store:         store,
		Dispatcher:    dispatcher,
		OnTripCreated: orch.OnTripCreated,
		Metrics:       m,
		Log:           log,
	}
	if b != nil {
		schedCfg.Bus = b
	}
	sched := scheduler.New(schedCfg)

	if b != nil {
		if err := orch.ConsumeBus(b); err != nil {
			log.Fatal().Err(err).Msg("bus subscriptions failed")
		}
	}

	reviewSrv, err := review.New(review.Config{Store: store, Log: log})
	if err != nil {
		log.Fatal().Err(err).Msg("review console failed")
	}

	var ready atomic.Bool
	ready.Store(true)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(gctx) })
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return retry.Run(gctx) })
	g.Go(func() error {
		return runOps(gctx, *opsAddr, opsHandler(store, flights, m, reviewSrv, &ready), log)
	})
	g.Go(func() error {
		<-gctx.Done()
		ready.Store(false)
		orch.OnShutdown()
		return nil
	})

	log.Info().Str("ops_addr", *opsAddr).Msg("tripwatch daemon started")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("daemon exited with error")
		os.Exit(1)
	}
	log.Info().Msg("tripwatch daemon stopped")
}

// opsHandler builds the operations mux: liveness, readiness, prometheus
// metrics, a cheap stats snapshot and the review console.
func opsHandler(store storage.Store, flights *flightdata.Client, m *metrics.Metrics, reviewSrv *review.Server, ready *atomic.Bool) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintln(w, "ok")
	})
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		active, _ := store.CountActiveTrips(r.Context())
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			ActiveTrips int              `json:"active_trips"`
			Provider    flightdata.Stats `json:"provider"`
			Time        time.Time        `json:"time"`
		}{active, flights.Stats(), time.Now().UTC()})
	})
	mux.Handle("/review/", http.StripPrefix("/review", reviewSrv.Router()))

	return mux
}

// runOps serves the ops mux until ctx is cancelled.
func runOps(ctx context.Context, addr string, h http.Handler, log zerolog.Logger) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}

	log.Info().Str("addr", addr).Msg("ops endpoint listening")
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return fmt.Errorf("ops server: %w", err)
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), opsShutdownGrace)
		defer cancel()
		_ = srv.Shutdown(sctx)
		return nil
	}
}

func setupLogger(level string, jsonOut bool, file string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var w io.Writer = os.Stderr
	if !jsonOut {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	if file != "" {
		w = zerolog.MultiLevelWriter(w, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    100, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		})
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// parseContentSIDs parses "TYPE=SID,TYPE=SID" into the template map.
func parseContentSIDs(s string) map[trip.NotificationType]string {
	out := make(map[trip.NotificationType]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		out[trip.NotificationType(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return out
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
