package scheduler

import (
	"context"
	"time"

	"tripwatch/internal/registry"
	"tripwatch/internal/trip"
)

const (
	// Reminder sweep window: trips departing 23 to 25 hours from now. The
	// two hour width means an hourly sweep cannot skip over a trip.
	reminderWindowFrom = 23 * time.Hour
	reminderWindowTo   = 25 * time.Hour

	// Boarding sweep window: 35 to 45 minutes before departure, aimed at
	// the T-40 mark.
	boardingWindowFrom = 35 * time.Minute
	boardingWindowTo   = 45 * time.Minute

	// How far back the landing sweep looks for departed trips, and how old
	// an actual_in must be to count as a landing signal.
	landingLookback = 48 * time.Hour
	landedAfter     = 30 * time.Minute

	// The catch-up sweep only picks trips old enough that the bus consumer
	// clearly missed them.
	confirmationAge = 2 * time.Minute
)

// ReminderSweep dispatches REMINDER_24H for trips departing in [now+23h,
// now+25h] that have no reminder logged yet. Quiet hours are handled inside
// the dispatcher.
func (s *Scheduler) ReminderSweep(ctx context.Context, now time.Time) {
	trips, err := s.store.TripsDepartingBetween(ctx, now.Add(reminderWindowFrom), now.Add(reminderWindowTo))
	if err != nil {
		s.log.Error().Err(err).Msg("reminder sweep query failed")
		return
	}
	for i := range trips {
		t := &trips[i]
		last, err := s.store.LastNotificationOfType(ctx, t.ID, trip.NotifReminder24h)
		if err != nil {
			s.log.Error().Err(err).Str("trip_id", t.ID).Msg("reminder lookup failed")
			continue
		}
		if last != nil {
			continue
		}
		if err := s.dispatcher.Dispatch(ctx, t, trip.NotifReminder24h, registry.Input{}); err != nil {
			s.log.Error().Err(err).Str("trip_id", t.ID).Str("flight", t.FlightNumber).Msg("reminder dispatch failed")
		}
	}
	s.metrics.Sweep("reminder_24h")
}

// BoardingSweep dispatches BOARDING for trips departing in [now+35m,
// now+45m]. The detector's Boarding status path and this sweep collapse on
// the same idempotency key, so whichever fires first wins.
func (s *Scheduler) BoardingSweep(ctx context.Context, now time.Time) {
	trips, err := s.store.TripsDepartingBetween(ctx, now.Add(boardingWindowFrom), now.Add(boardingWindowTo))
	if err != nil {
		s.log.Error().Err(err).Msg("boarding sweep query failed")
		return
	}
	for i := range trips {
		t := &trips[i]
		if err := s.dispatcher.Dispatch(ctx, t, trip.NotifBoarding, registry.Input{}); err != nil {
			s.log.Error().Err(err).Str("trip_id", t.ID).Str("flight", t.FlightNumber).Msg("boarding dispatch failed")
		}
	}
	s.metrics.Sweep("boarding")
}

// LandingSweep welcomes passengers whose flight landed. It catches arrivals
// the poll cycle missed: a flight whose polling stopped before the provider
// reported the landing, or a late actual_in. After the welcome the trip stops
// polling and completes.
func (s *Scheduler) LandingSweep(ctx context.Context, now time.Time) {
	trips, err := s.store.TripsDepartingBetween(ctx, now.Add(-landingLookback), now)
	if err != nil {
		s.log.Error().Err(err).Msg("landing sweep query failed")
		return
	}
	for i := range trips {
		t := &trips[i]
		snap, err := s.store.GetLatestStatus(ctx, t.ID)
		if err != nil {
			s.log.Error().Err(err).Str("trip_id", t.ID).Msg("latest status lookup failed")
			continue
		}
		if snap == nil || !snap.Landed(now, landedAfter) {
			continue
		}
		last, err := s.store.LastNotificationOfType(ctx, t.ID, trip.NotifLandingWelcome)
		if err != nil {
			s.log.Error().Err(err).Str("trip_id", t.ID).Msg("welcome lookup failed")
			continue
		}
		if last == nil {
			if err := s.dispatcher.Dispatch(ctx, t, trip.NotifLandingWelcome, registry.Input{}); err != nil {
				s.log.Error().Err(err).Str("trip_id", t.ID).Str("flight", t.FlightNumber).Msg("welcome dispatch failed")
				continue
			}
		}
		if err := s.store.UpdateNextCheckAt(ctx, t.ID, nil); err != nil {
			s.log.Error().Err(err).Str("trip_id", t.ID).Msg("failed to stop polling")
		}
		if err := s.store.UpdateTripStatus(ctx, t.ID, trip.StatusCompleted); err != nil {
			s.log.Error().Err(err).Str("trip_id", t.ID).Msg("failed to complete trip")
		}
	}
	s.metrics.Sweep("landing_welcome")
}

// ConfirmationSweep re-runs the on-created flow for trips that never got a
// reservation confirmation: the bus event was missed or the daemon restarted
// between the API insert and the send.
func (s *Scheduler) ConfirmationSweep(ctx context.Context, now time.Time) {
	trips, err := s.store.TripsCreatedWithoutConfirmation(ctx, now.Add(-confirmationAge))
	if err != nil {
		s.log.Error().Err(err).Msg("confirmation sweep query failed")
		return
	}
	for i := range trips {
		t := &trips[i]
		if s.onTripCreated != nil {
			if err := s.onTripCreated(ctx, t); err != nil {
				s.log.Error().Err(err).Str("trip_id", t.ID).Str("flight", t.FlightNumber).Msg("catch-up on-created flow failed")
			}
			continue
		}
		if err := s.dispatcher.Dispatch(ctx, t, trip.NotifReservationConfirmation, registry.Input{}); err != nil {
			s.log.Error().Err(err).Str("trip_id", t.ID).Str("flight", t.FlightNumber).Msg("confirmation dispatch failed")
		}
	}
	s.metrics.Sweep("confirmation_catchup")
}
