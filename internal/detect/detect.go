// Package detect compares successive flight snapshots and turns the
// differences that matter to a traveller into change events. It is the
// gatekeeper between the raw provider feed and the notification pipeline:
// everything it stays quiet about, the traveller never hears about.
package detect

import (
	"time"

	"github.com/rs/zerolog"

	"tripwatch/internal/trip"
)

// Kind identifies what changed between two snapshots.
type Kind string

const (
	KindStatusChange        Kind = "status_change"
	KindGateChange          Kind = "gate_change"
	KindDepartureTimeChange Kind = "departure_time_change"
	KindCancelled           Kind = "cancelled"
	KindDiverted            Kind = "diverted"
)

// ChangeEvent is one traveller-relevant difference between two snapshots.
// Notification is empty for changes that are recorded but never messaged.
type ChangeEvent struct {
	Kind         Kind
	From         string
	To           string
	FromTime     *time.Time
	ToTime       *time.Time
	Notification trip.NotificationType
}

// statusNotifications maps every provider status we understand to the
// notification it triggers. Statuses mapping to "" are tracked silently.
var statusNotifications = map[string]trip.NotificationType{
	"Scheduled": "",
	"On Time":   "",
	"Taxiing":   "",
	"Pushback":  "",
	"Unknown":   "",
	"En Route":  "",
	"Arrived":   "",
	"Delayed":   trip.NotifDelayed,
	"Cancelled": trip.NotifCancelled,
	"Boarding":  trip.NotifBoarding,
}

// MapStatus returns the notification type a provider status triggers, if
// any. The second result reports whether the status is known at all.
func MapStatus(status string) (trip.NotificationType, bool) {
	n, ok := statusNotifications[status]
	return n, ok
}

// IsActualDelay reports whether the move from prev to cur estimated
// departure is worth a message. Backward moves never are. A Delayed status
// lowers the threshold to 5 minutes; otherwise the estimate has to slip by
// at least 15 minutes, which filters the constant small revisions providers
// emit for perfectly healthy flights.
func IsActualDelay(prev, cur *time.Time, status string) bool {
	if prev == nil || cur == nil {
		return false
	}
	if !cur.After(*prev) {
		return false
	}
	delta := cur.Sub(*prev)
	if status == "Delayed" {
		return delta >= 5*time.Minute
	}
	return delta >= 15*time.Minute
}

// Detector turns snapshot pairs into change events.
type Detector struct {
	log zerolog.Logger
}

// New returns a detector that logs unrecognized provider statuses.
func New(log zerolog.Logger) *Detector {
	return &Detector{log: log}
}

// Detect returns the change events between two consecutive snapshots. A nil
// previous snapshot means this is the first observation of the flight, which
// is never an event: there is no baseline to have changed from.
func (d *Detector) Detect(prev, cur *trip.FlightSnapshot) []ChangeEvent {
	if prev == nil || cur == nil {
		return nil
	}

	var events []ChangeEvent

	curNotif, known := MapStatus(cur.Status)
	if !known {
		d.log.Warn().Str("status", cur.Status).Str("ident", cur.Ident).
			Msg("unrecognized flight status, treating as no-op")
	}
	prevNotif, _ := MapStatus(prev.Status)

	// Cancellation is checked first and against both the flag and the
	// status string: providers disagree on which one flips.
	cancelledNow := cur.Cancelled || curNotif == trip.NotifCancelled
	cancelledBefore := prev.Cancelled || prevNotif == trip.NotifCancelled
	if cancelledNow && !cancelledBefore {
		events = append(events, ChangeEvent{
			Kind:         KindCancelled,
			From:         prev.Status,
			To:           cur.Status,
			Notification: trip.NotifCancelled,
		})
	}

	// Diversions are recorded but have no message in the taxonomy yet.
	if cur.Diverted && !prev.Diverted {
		events = append(events, ChangeEvent{
			Kind: KindDiverted,
			From: prev.Destination,
			To:   cur.Destination,
		})
		d.log.Warn().Str("ident", cur.Ident).
			Str("destination", cur.Destination).Msg("flight diverted")
	}

	if curNotif != "" && curNotif != trip.NotifCancelled && curNotif != prevNotif {
		events = append(events, ChangeEvent{
			Kind:         KindStatusChange,
			From:         prev.Status,
			To:           cur.Status,
			Notification: curNotif,
		})
	}

	// A gate change needs both sides: appearing or vanishing gates are
	// provider noise, not reassignments.
	if prev.GateOrigin != nil && cur.GateOrigin != nil && *prev.GateOrigin != *cur.GateOrigin {
		events = append(events, ChangeEvent{
			Kind:         KindGateChange,
			From:         *prev.GateOrigin,
			To:           *cur.GateOrigin,
			Notification: trip.NotifGateChange,
		})
	}

	if IsActualDelay(prev.EstimatedOut, cur.EstimatedOut, cur.Status) {
		events = append(events, ChangeEvent{
			Kind:         KindDepartureTimeChange,
			FromTime:     prev.EstimatedOut,
			ToTime:       cur.EstimatedOut,
			Notification: trip.NotifDelayed,
		})
	}

	return events
}
