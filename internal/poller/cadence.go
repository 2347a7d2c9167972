// Package poller drives the periodic flight status checks: a scan loop finds
// trips whose next_check_at has come due and a small worker pool runs one
// cycle per trip. How often a trip is looked at depends on how close the
// flight is, so a trip created a month out costs four requests a day while
// one about to board is watched every few minutes.
package poller

import (
	"strings"
	"time"

	"tripwatch/internal/trip"
)

const (
	farCadence      = 6 * time.Hour
	nearCadence     = 1 * time.Hour
	imminentCadence = 15 * time.Minute
	inFlightCadence = 30 * time.Minute

	// How long after departure a flight is still worth watching when no
	// arrival signal ever came through.
	watchAfterDeparture = 12 * time.Hour

	// A transient provider failure must not push the next look far out.
	transientRetryCap = 10 * time.Minute
)

// NextCheckDelay returns how long to wait before the next status check for a
// trip, based on proximity to departure. ok is false when polling should
// stop: the flight reached a terminal state or departed long enough ago that
// nothing more will change.
func NextCheckDelay(now time.Time, t *trip.Trip) (time.Duration, bool) {
	status := strings.TrimSpace(t.LastFlightStatus)
	if strings.EqualFold(status, "Arrived") || strings.EqualFold(status, "Cancelled") {
		return 0, false
	}

	departure := t.DepartureUTC
	if t.EstimatedOut != nil {
		departure = *t.EstimatedOut
	}

	until := departure.Sub(now)
	switch {
	case until > 24*time.Hour:
		return farCadence, true
	case until > 4*time.Hour:
		return nearCadence, true
	case until > 0:
		return imminentCadence, true
	}

	if -until < watchAfterDeparture {
		return inFlightCadence, true
	}
	return 0, false
}

// AfterFailure caps the cadence after a transient provider failure so the
// trip is looked at again soon. The normal cadence comes from the last known
// state; a stopped trip that somehow got polled retries at the cap and
// self-heals on the next successful cycle.
func AfterFailure(d time.Duration, ok bool) time.Duration {
	if !ok || d > transientRetryCap {
		return transientRetryCap
	}
	return d
}
