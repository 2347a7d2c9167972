// Package orchestrator ties the engine together. It owns the two entry
// points everything else calls into: OnTripCreated runs a trip's onboarding
// after registration, and OnPollTick runs one full poll cycle for a due
// trip. The poller, the scheduler and the bus consumers all funnel here so
// the sequencing rules live in one place.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"tripwatch/internal/bus"
	"tripwatch/internal/detect"
	"tripwatch/internal/flightdata"
	"tripwatch/internal/poller"
	"tripwatch/internal/registry"
	"tripwatch/internal/scheduler"
	"tripwatch/internal/storage"
	"tripwatch/internal/trip"
)

const (
	// immediateReminderDelay is how long after registration the reminder
	// fires for trips created inside the 24 h window. The small gap keeps
	// the confirmation message first on the client's phone.
	immediateReminderDelay = 1 * time.Minute

	// reminderWindow is the departure horizon inside which the hourly
	// sweep may already have passed the trip by.
	reminderWindow = 24 * time.Hour

	// landedAfter is how old an actual gate arrival has to be before the
	// flight counts as landed. Providers sometimes report actual_in while
	// the aircraft is still taxiing.
	landedAfter = 30 * time.Minute

	// consumeTimeout bounds the work done for one bus message.
	consumeTimeout = 30 * time.Second
)

// FlightSource fetches provider snapshots. Satisfied by *flightdata.Client.
type FlightSource interface {
	GetFlightStatus(ctx context.Context, flightNumber string, date time.Time) (*trip.FlightSnapshot, error)
}

// Dispatcher sends one notification through the idempotent pipeline.
// Satisfied by *notify.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, t *trip.Trip, typ trip.NotificationType, in registry.Input) error
}

// Publisher emits egress events. *bus.Bus satisfies it; nil disables egress.
type Publisher interface {
	Publish(subject string, data any) error
}

// Config wires the orchestrator.
type Config struct {
	Store      storage.Store
	Flights    FlightSource
	Dispatcher Dispatcher
	Detector   *detect.Detector // nil builds one from Log
	Bus        Publisher
	Clock      clockwork.Clock // nil means the real clock
	Log        zerolog.Logger
}

// Orchestrator sequences onboarding, poll cycles and itinerary completion.
type Orchestrator struct {
	store      storage.Store
	flights    FlightSource
	dispatcher Dispatcher
	detector   *detect.Detector
	bus        Publisher
	clock      clockwork.Clock
	log        zerolog.Logger

	subs []*nats.Subscription
}

// New builds an Orchestrator from cfg.
func New(cfg Config) *Orchestrator {
	if cfg.Detector == nil {
		cfg.Detector = detect.New(cfg.Log)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Orchestrator{
		store:      cfg.Store,
		flights:    cfg.Flights,
		dispatcher: cfg.Dispatcher,
		detector:   cfg.Detector,
		bus:        cfg.Bus,
		clock:      cfg.Clock,
		log:        cfg.Log.With().Str("component", "orchestrator").Logger(),
	}
}

// OnTripCreated runs a freshly registered trip's onboarding: the
// confirmation message, the durable itinerary launch job, an immediate
// reminder when the trip was registered inside the 24 h window, and the
// first poll slot. Both the trip.created consumer and the catch-up sweep
// call this; repeats collapse on the notification idempotency key and the
// one-pending-job-per-kind constraint.
func (o *Orchestrator) OnTripCreated(ctx context.Context, t *trip.Trip) error {
	if !t.Active() {
		return nil
	}
	now := o.clock.Now().UTC()
	log := o.log.With().Str("trip_id", t.ID).Str("flight", t.FlightNumber).Logger()

	if err := o.dispatcher.Dispatch(ctx, t, trip.NotifReservationConfirmation, registry.Input{}); err != nil {
		return fmt.Errorf("confirmation: %w", err)
	}

	until := t.DepartureUTC.Sub(now)
	launch := &storage.Job{
		TripID: t.ID,
		Kind:   storage.JobItineraryLaunch,
		RunAt:  now.Add(scheduler.ItineraryLaunchDelay(until)),
	}
	if err := o.store.ScheduleJob(ctx, launch); err != nil {
		return fmt.Errorf("schedule itinerary launch: %w", err)
	}

	if until > 0 && until <= reminderWindow {
		reminder := &storage.Job{
			TripID: t.ID,
			Kind:   storage.JobImmediateReminder,
			RunAt:  now.Add(immediateReminderDelay),
		}
		if err := o.store.ScheduleJob(ctx, reminder); err != nil {
			return fmt.Errorf("schedule immediate reminder: %w", err)
		}
	}

	if t.NextCheckAt == nil {
		if d, ok := poller.NextCheckDelay(now, t); ok {
			at := now.Add(d)
			if err := o.store.UpdateNextCheckAt(ctx, t.ID, &at); err != nil {
				return fmt.Errorf("store first check: %w", err)
			}
			log.Info().Time("next_check_at", at).Msg("trip onboarded")
		}
	}
	return nil
}

// OnPollTick runs one poll cycle for a due trip: fetch the snapshot, diff it
// against the last history row, persist, message the surviving changes and
// book the next slot. A returned error means the cycle could not commit its
// writes; the trip stays due and the next scan retries it.
func (o *Orchestrator) OnPollTick(ctx context.Context, t *trip.Trip) error {
	now := o.clock.Now().UTC()
	log := o.log.With().Str("trip_id", t.ID).Str("flight", t.FlightNumber).Logger()

	snap, err := o.flights.GetFlightStatus(ctx, t.FlightNumber, t.DepartureUTC)
	if err != nil {
		return o.fetchFailed(ctx, t, now, err)
	}

	prev, err := o.store.GetLatestStatus(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("load last status: %w", err)
	}

	events := o.detector.Consolidate([]*trip.FlightSnapshot{prev, snap})

	// History and the trip row commit before anything is messaged, so a
	// crash after this point can at worst delay a notification, never
	// invent one from a stale baseline.
	raw, _ := json.Marshal(snap)
	if err := o.store.AppendFlightStatus(ctx, t.ID, snap, string(raw)); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	if err := o.store.UpdateTripFromSnapshot(ctx, t.ID, snap); err != nil {
		return fmt.Errorf("update trip: %w", err)
	}

	var terminal trip.Status
	for _, ev := range events {
		if ev.Notification == "" {
			continue
		}
		if err := o.dispatcher.Dispatch(ctx, t, ev.Notification, inputFor(ev, snap)); err != nil {
			// The pipeline owns its own retries; a dispatch failure
			// must not wedge the rest of the cycle.
			log.Error().Err(err).Str("type", string(ev.Notification)).Msg("dispatch failed")
		}
		if ev.Notification == trip.NotifCancelled {
			terminal = trip.StatusCancelled
		}
	}

	if terminal == "" && snap.Landed(now, landedAfter) {
		if err := o.dispatcher.Dispatch(ctx, t, trip.NotifLandingWelcome, registry.Input{}); err != nil {
			log.Error().Err(err).Msg("landing welcome dispatch failed")
		}
		terminal = trip.StatusCompleted
	}

	if terminal != "" {
		if err := o.store.UpdateTripStatus(ctx, t.ID, terminal); err != nil {
			return fmt.Errorf("update trip status: %w", err)
		}
		if err := o.store.UpdateNextCheckAt(ctx, t.ID, nil); err != nil {
			return fmt.Errorf("clear next check: %w", err)
		}
		log.Info().Str("status", string(terminal)).Msg("trip left the polling rotation")
		o.publishUpdated(t, snap)
		return nil
	}

	// The cadence runs off the post-cycle view of the trip, mirroring what
	// UpdateTripFromSnapshot just wrote.
	cur := *t
	cur.LastFlightStatus = snap.Status
	cur.EstimatedOut = snap.EstimatedOut
	if d, ok := poller.NextCheckDelay(now, &cur); ok {
		at := now.Add(d)
		if err := o.store.UpdateNextCheckAt(ctx, t.ID, &at); err != nil {
			return fmt.Errorf("store next check: %w", err)
		}
	} else {
		if err := o.store.UpdateNextCheckAt(ctx, t.ID, nil); err != nil {
			return fmt.Errorf("clear next check: %w", err)
		}
		log.Info().Msg("tracking window closed")
	}

	if len(events) > 0 {
		o.publishUpdated(t, snap)
	}
	return nil
}

// inputFor builds the template input for one change event. Dispatch fills
// in the trip itself.
func inputFor(ev detect.ChangeEvent, snap *trip.FlightSnapshot) registry.Input {
	var in registry.Input
	switch ev.Kind {
	case detect.KindDepartureTimeChange:
		in.NewDeparture = ev.ToTime
	case detect.KindStatusChange:
		// A status flip to Delayed without a moved estimate still wants
		// the best-known departure in the message body.
		if ev.Notification == trip.NotifDelayed {
			in.NewDeparture = snap.EstimatedOut
		}
	case detect.KindGateChange:
		in.NewGate = ev.To
	}
	return in
}

// fetchFailed books the recovery slot after a provider failure. Not-found
// is normal early in a trip's life (schedules publish a few days out) and
// keeps the regular cadence; transient failures shorten it; permanent
// failures wait for the regular slot rather than hammering a broken key.
func (o *Orchestrator) fetchFailed(ctx context.Context, t *trip.Trip, now time.Time, err error) error {
	d, ok := poller.NextCheckDelay(now, t)
	if flightdata.IsTransient(err) {
		d, ok = poller.AfterFailure(d, ok), true
	}

	if !ok {
		if uerr := o.store.UpdateNextCheckAt(ctx, t.ID, nil); uerr != nil {
			return fmt.Errorf("clear next check: %w", uerr)
		}
	} else {
		at := now.Add(d)
		if uerr := o.store.UpdateNextCheckAt(ctx, t.ID, &at); uerr != nil {
			return fmt.Errorf("store next check: %w", uerr)
		}
	}

	if flightdata.IsNotFound(err) {
		o.log.Debug().Str("trip_id", t.ID).Str("flight", t.FlightNumber).
			Msg("flight not in provider yet")
		return nil
	}
	return fmt.Errorf("fetch status: %w", err)
}

// ItineraryReady records the generated itinerary and tells the client. Both
// the itinerary.ready consumer and the generator's HTTP callback land here.
func (o *Orchestrator) ItineraryReady(ctx context.Context, tripID, content string) error {
	t, err := o.store.GetTrip(ctx, tripID)
	if err != nil {
		return fmt.Errorf("load trip: %w", err)
	}
	if t == nil {
		return fmt.Errorf("itinerary ready for unknown trip %s", tripID)
	}

	if err := o.store.MarkItineraryReady(ctx, tripID, content); err != nil {
		return fmt.Errorf("mark itinerary ready: %w", err)
	}
	if err := o.dispatcher.Dispatch(ctx, t, trip.NotifItineraryReady, registry.Input{}); err != nil {
		return fmt.Errorf("itinerary ready notification: %w", err)
	}
	return nil
}

// ConsumeBus attaches the ingress consumers: trip.created triggers
// onboarding and itinerary.ready completes the itinerary flow. Failures are
// logged, not fatal; the catch-up sweep re-runs missed onboarding.
func (o *Orchestrator) ConsumeBus(b *bus.Bus) error {
	sub, err := b.Subscribe(bus.SubjectTripCreated, func(data []byte) {
		var ev bus.TripEvent
		if err := json.Unmarshal(data, &ev); err != nil || ev.TripID == "" {
			o.log.Warn().Err(err).Msg("unusable trip.created payload")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), consumeTimeout)
		defer cancel()

		t, err := o.store.GetTrip(ctx, ev.TripID)
		if err != nil || t == nil {
			o.log.Warn().Err(err).Str("trip_id", ev.TripID).Msg("trip.created for unknown trip")
			return
		}
		if err := o.OnTripCreated(ctx, t); err != nil {
			o.log.Error().Err(err).Str("trip_id", ev.TripID).
				Msg("onboarding failed, catch-up sweep will retry")
		}
	})
	if err != nil {
		return err
	}
	o.subs = append(o.subs, sub)

	sub, err = b.Subscribe(bus.SubjectItineraryReady, func(data []byte) {
		var ev bus.ItineraryEvent
		if err := json.Unmarshal(data, &ev); err != nil || ev.TripID == "" {
			o.log.Warn().Err(err).Msg("unusable itinerary.ready payload")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), consumeTimeout)
		defer cancel()

		if err := o.ItineraryReady(ctx, ev.TripID, ev.Content); err != nil {
			o.log.Error().Err(err).Str("trip_id", ev.TripID).Msg("itinerary ready handling failed")
		}
	})
	if err != nil {
		return err
	}
	o.subs = append(o.subs, sub)
	return nil
}

// OnShutdown detaches the bus consumers so no new work arrives while the
// poller and scheduler drain their in-flight cycles. The daemon closes the
// stores and the bus connection after everything has stopped.
func (o *Orchestrator) OnShutdown() {
	for _, s := range o.subs {
		if err := s.Unsubscribe(); err != nil {
			o.log.Warn().Err(err).Msg("unsubscribe failed")
		}
	}
	o.subs = nil
}

// publishUpdated emits trip.updated after a cycle that changed something.
func (o *Orchestrator) publishUpdated(t *trip.Trip, snap *trip.FlightSnapshot) {
	if o.bus == nil {
		return
	}
	err := o.bus.Publish(bus.SubjectTripUpdated, bus.TripEvent{
		TripID:       t.ID,
		FlightNumber: t.FlightNumber,
		Status:       snap.Status,
	})
	if err != nil {
		o.log.Warn().Err(err).Str("trip_id", t.ID).Msg("trip.updated publish failed")
	}
}
