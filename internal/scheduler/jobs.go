package scheduler

import (
	"context"
	"fmt"
	"time"

	"tripwatch/internal/bus"
	"tripwatch/internal/registry"
	"tripwatch/internal/storage"
	"tripwatch/internal/trip"
)

const (
	jobRetryBase   = 30 * time.Second
	jobRetryCap    = 30 * time.Minute
	maxJobAttempts = 5
)

// JobBackoff returns the wait before re-running a job after its n-th failure.
func JobBackoff(failure int) time.Duration {
	d := jobRetryBase
	for i := 1; i < failure; i++ {
		d *= 2
		if d >= jobRetryCap {
			return jobRetryCap
		}
	}
	return d
}

// ItineraryLaunchDelay returns how long after trip creation the itinerary
// generation should start. Trips leaving soon get theirs quickly; far-out
// trips wait so late agency edits land in the generated document.
func ItineraryLaunchDelay(untilDeparture time.Duration) time.Duration {
	switch {
	case untilDeparture <= 24*time.Hour:
		return 5 * time.Minute
	case untilDeparture <= 7*24*time.Hour:
		return 30 * time.Minute
	case untilDeparture <= 30*24*time.Hour:
		return time.Hour
	default:
		return 2 * time.Hour
	}
}

// ClaimJobs runs one pass of the claim loop: take due jobs, execute each,
// complete or reschedule with backoff.
func (s *Scheduler) ClaimJobs(ctx context.Context, now time.Time) {
	jobs, err := s.store.ClaimDueJobs(ctx, now, claimBatch)
	if err != nil {
		s.log.Error().Err(err).Msg("job claim failed")
		return
	}
	for i := range jobs {
		s.runJob(ctx, now, &jobs[i])
	}
}

func (s *Scheduler) runJob(ctx context.Context, now time.Time, j *storage.Job) {
	log := s.log.With().Int64("job_id", j.ID).Str("kind", j.Kind).Str("trip_id", j.TripID).Logger()

	if err := s.execute(ctx, j); err != nil {
		s.jobFailed(ctx, now, j, err)
		return
	}
	if err := s.store.CompleteJob(ctx, j.ID); err != nil {
		log.Error().Err(err).Msg("job done but completion not recorded")
		return
	}
	s.metrics.Job(j.Kind, "done")
	log.Debug().Msg("job done")
}

func (s *Scheduler) execute(ctx context.Context, j *storage.Job) error {
	t, err := s.store.GetTrip(ctx, j.TripID)
	if err != nil {
		return fmt.Errorf("load trip: %w", err)
	}
	if t == nil {
		s.log.Warn().Int64("job_id", j.ID).Str("trip_id", j.TripID).Msg("job for unknown trip, dropped")
		return nil
	}
	if !t.Active() {
		return nil
	}

	switch j.Kind {
	case storage.JobItineraryLaunch:
		if err := s.store.CreateItinerary(ctx, t.ID); err != nil {
			return fmt.Errorf("create itinerary: %w", err)
		}
		if s.bus != nil {
			if err := s.bus.Publish(bus.SubjectItineraryGenerate, bus.ItineraryEvent{
				TripID: t.ID, Destination: t.Destination,
			}); err != nil {
				return fmt.Errorf("publish generate: %w", err)
			}
		}
		return nil

	case storage.JobImmediateReminder:
		return s.dispatcher.Dispatch(ctx, t, trip.NotifReminder24h, registry.Input{})

	case storage.JobDeferredNotification:
		typ := trip.NotificationType(j.Payload["type"])
		if typ == "" {
			return fmt.Errorf("deferred job without a type")
		}
		return s.dispatcher.Dispatch(ctx, t, typ, registry.Input{})

	default:
		return fmt.Errorf("unknown job kind %q", j.Kind)
	}
}

func (s *Scheduler) jobFailed(ctx context.Context, now time.Time, j *storage.Job, execErr error) {
	log := s.log.With().Int64("job_id", j.ID).Str("kind", j.Kind).Str("trip_id", j.TripID).Logger()

	failures := j.Attempts + 1
	if failures >= maxJobAttempts {
		if err := s.store.FailJob(ctx, j.ID, execErr.Error()); err != nil {
			log.Error().Err(err).Msg("failed to park job")
			return
		}
		s.metrics.Job(j.Kind, "failed")
		log.Error().Err(execErr).Int("attempts", failures).Msg("job failed permanently")
		return
	}

	runAt := now.Add(JobBackoff(failures))
	if err := s.store.RescheduleJob(ctx, j.ID, runAt, execErr.Error()); err != nil {
		log.Error().Err(err).Msg("failed to reschedule job")
		return
	}
	s.metrics.Job(j.Kind, "retried")
	log.Warn().Err(execErr).Int("attempt", failures).Time("next_run", runAt).Msg("job failed, rescheduled")
}
