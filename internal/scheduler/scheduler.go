// Package scheduler owns the time-driven side of the engine: periodic sweeps
// that catch what the event-driven paths miss, and a durable job queue for
// work that must survive restarts (itinerary launches, immediate reminders,
// quiet-hours deferrals).
package scheduler

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"tripwatch/internal/metrics"
	"tripwatch/internal/registry"
	"tripwatch/internal/storage"
	"tripwatch/internal/trip"
)

const (
	defaultClaimInterval = 30 * time.Second
	sweepTimeout         = 2 * time.Minute
	claimBatch           = 50
)

// Dispatcher sends one notification through the outbound pipeline. Satisfied
// by *notify.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, t *trip.Trip, typ trip.NotificationType, in registry.Input) error
}

// Publisher pushes an event onto the bus. nil means no bus is connected.
type Publisher interface {
	Publish(subject string, data any) error
}

// Config wires the scheduler. Store and Dispatcher are required; the rest
// defaults to production values.
type Config struct {
	Store      storage.Store
	Dispatcher Dispatcher
	Bus        Publisher

	// OnTripCreated runs the full on-created flow for trips the catch-up
	// sweep finds. When unset the sweep sends the confirmation only.
	OnTripCreated func(ctx context.Context, t *trip.Trip) error

	ClaimInterval time.Duration
	Clock         clockwork.Clock
	Metrics       *metrics.Metrics
	Log           zerolog.Logger
}

// Scheduler runs the sweeps and the job claim loop.
type Scheduler struct {
	store         storage.Store
	dispatcher    Dispatcher
	bus           Publisher
	onTripCreated func(ctx context.Context, t *trip.Trip) error
	claimEvery    time.Duration
	clock         clockwork.Clock
	metrics       *metrics.Metrics
	log           zerolog.Logger
}

// New builds a scheduler, filling config defaults.
func New(cfg Config) *Scheduler {
	if cfg.ClaimInterval <= 0 {
		cfg.ClaimInterval = defaultClaimInterval
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		store:         cfg.Store,
		dispatcher:    cfg.Dispatcher,
		bus:           cfg.Bus,
		onTripCreated: cfg.OnTripCreated,
		claimEvery:    cfg.ClaimInterval,
		clock:         clock,
		metrics:       cfg.Metrics,
		log:           cfg.Log.With().Str("component", "scheduler").Logger(),
	}
}

// Run registers the cron sweeps and drives the job claim loop until ctx is
// cancelled. Sweeps run detached from Run's cancellation so one in flight
// during shutdown finishes its writes.
func (s *Scheduler) Run(ctx context.Context) error {
	cr := cron.New()
	add := func(spec, name string, fn func(context.Context, time.Time)) {
		_, err := cr.AddFunc(spec, func() {
			swCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sweepTimeout)
			defer cancel()
			fn(swCtx, s.clock.Now().UTC())
		})
		if err != nil {
			s.log.Error().Err(err).Str("sweep", name).Str("spec", spec).Msg("cron registration failed")
		}
	}
	add("0 * * * *", "reminder_24h", s.ReminderSweep)
	add("*/5 * * * *", "boarding", s.BoardingSweep)
	add("*/30 * * * *", "landing_welcome", s.LandingSweep)
	add("*/2 * * * *", "confirmation_catchup", s.ConfirmationSweep)
	cr.Start()
	s.log.Info().Dur("claim_interval", s.claimEvery).Msg("scheduler started")

	ticker := s.clock.NewTicker(s.claimEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			<-cr.Stop().Done()
			s.log.Info().Msg("scheduler stopped")
			return nil
		case <-ticker.Chan():
			s.ClaimJobs(ctx, s.clock.Now().UTC())
		}
	}
}
