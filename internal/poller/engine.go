package poller

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"tripwatch/internal/metrics"
	"tripwatch/internal/storage"
	"tripwatch/internal/trip"
)

// CycleFunc runs one full status check for a trip: fetch, detect, persist,
// notify, reschedule. The engine logs and counts the error; it never stops
// the loop over one trip.
type CycleFunc func(ctx context.Context, t *trip.Trip) error

// Config configures the engine. Zero values get production defaults.
type Config struct {
	Store storage.Store
	Cycle CycleFunc

	ScanInterval  time.Duration // default 1 min
	Workers       int           // default 8
	CycleTimeout  time.Duration // per-cycle budget, default 2 min
	ShutdownGrace time.Duration // drain budget after stop, default 30 s

	Clock   clockwork.Clock
	Metrics *metrics.Metrics
	Log     zerolog.Logger
}

// Engine owns the scan loop and the worker pool.
type Engine struct {
	cfg      Config
	clock    clockwork.Clock
	log      zerolog.Logger
	inflight inflight
}

// New builds an engine, filling config defaults.
func New(cfg Config) *Engine {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = time.Minute
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = 2 * time.Minute
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 30 * time.Second
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{
		cfg:      cfg,
		clock:    clock,
		log:      cfg.Log.With().Str("component", "poller").Logger(),
		inflight: inflight{held: make(map[string]struct{})},
	}
}

// Run scans for due trips until ctx is cancelled, then drains in-flight
// cycles within the shutdown grace.
func (e *Engine) Run(ctx context.Context) error {
	work := make(chan trip.Trip)

	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			e.runWorker(ctx, n, work)
		}(i + 1)
	}

	e.log.Info().Int("workers", e.cfg.Workers).Dur("scan_interval", e.cfg.ScanInterval).Msg("poller started")

	ticker := e.clock.NewTicker(e.cfg.ScanInterval)
	defer ticker.Stop()

	e.scan(ctx, work)
scanLoop:
	for {
		select {
		case <-ctx.Done():
			break scanLoop
		case <-ticker.Chan():
			e.scan(ctx, work)
		}
	}

	close(work)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.log.Info().Msg("poller drained")
	case <-time.After(e.cfg.ShutdownGrace):
		e.log.Warn().Dur("grace", e.cfg.ShutdownGrace).Msg("poller shutdown grace exceeded")
	}
	return nil
}

// scan finds due trips and feeds the pool. A trip whose previous cycle is
// still running is skipped; it comes due again at the next scan.
func (e *Engine) scan(ctx context.Context, work chan<- trip.Trip) {
	now := e.clock.Now().UTC()

	if count, err := e.cfg.Store.CountActiveTrips(ctx); err == nil {
		e.cfg.Metrics.SetActiveTrips(count)
	}

	due, err := e.cfg.Store.GetTripsDueForPoll(ctx, now)
	if err != nil {
		e.log.Error().Err(err).Msg("due trip scan failed")
		return
	}
	if len(due) == 0 {
		return
	}
	e.log.Debug().Int("due", len(due)).Msg("scan found due trips")

	for _, t := range due {
		if !e.inflight.tryAcquire(t.ID) {
			e.log.Debug().Str("trip_id", t.ID).Msg("cycle still running, skipped")
			continue
		}
		select {
		case work <- t:
		case <-ctx.Done():
			e.inflight.release(t.ID)
			return
		}
	}
}

func (e *Engine) runWorker(ctx context.Context, n int, work <-chan trip.Trip) {
	for t := range work {
		e.runCycle(ctx, n, t)
	}
}

// runCycle executes one cycle under its own budget. The cycle context is
// detached from Run's cancellation so an in-flight cycle finishes its writes
// during shutdown instead of aborting halfway.
func (e *Engine) runCycle(ctx context.Context, n int, t trip.Trip) {
	defer e.inflight.release(t.ID)

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.CycleTimeout)
	defer cancel()

	start := e.clock.Now()
	err := e.cfg.Cycle(cctx, &t)
	elapsed := e.clock.Now().Sub(start)

	if err != nil {
		e.cfg.Metrics.PollCycle("error", elapsed)
		e.log.Error().Err(err).Str("trip_id", t.ID).Str("flight", t.FlightNumber).
			Int("worker", n).Msg("poll cycle failed")
		return
	}
	e.cfg.Metrics.PollCycle("ok", elapsed)
}

// inflight is the per-trip keyed lock: a held entry means a cycle for that
// trip is running somewhere in the pool.
type inflight struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func (f *inflight) tryAcquire(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.held[id]; busy {
		return false
	}
	f.held[id] = struct{}{}
	return true
}

func (f *inflight) release(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, id)
}
