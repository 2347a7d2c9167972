package detect

import "tripwatch/internal/trip"

// Consolidate reduces a chronological run of snapshots to the net change
// events between the first state and the last. A value that flaps and comes
// back to where it started produces nothing, and intermediate hops collapse
// into a single first-to-last event. When several events in the result would
// trigger the same notification, only one survives.
//
// The run's first element is the baseline (the state the traveller last
// heard about); fewer than two snapshots means nothing to compare.
func (d *Detector) Consolidate(snaps []*trip.FlightSnapshot) []ChangeEvent {
	if len(snaps) < 2 {
		return nil
	}

	eff := snaps[1]
	for _, s := range snaps[2:] {
		eff = overlay(eff, s)
	}

	return collapse(d.Detect(snaps[0], eff))
}

// overlay folds next onto base, producing the effective current state.
// Concrete values win over nulls: a provider momentarily dropping a field
// does not erase what it last reported. The cancel and divert flags are
// sticky for the same reason.
func overlay(base, next *trip.FlightSnapshot) *trip.FlightSnapshot {
	out := *base

	if next.Status != "" {
		out.Status = next.Status
	}
	if next.GateOrigin != nil {
		out.GateOrigin = next.GateOrigin
	}
	if next.GateDestination != nil {
		out.GateDestination = next.GateDestination
	}
	if next.ScheduledOut != nil {
		out.ScheduledOut = next.ScheduledOut
	}
	if next.EstimatedOut != nil {
		out.EstimatedOut = next.EstimatedOut
	}
	if next.ActualOut != nil {
		out.ActualOut = next.ActualOut
	}
	if next.ScheduledIn != nil {
		out.ScheduledIn = next.ScheduledIn
	}
	if next.EstimatedIn != nil {
		out.EstimatedIn = next.EstimatedIn
	}
	if next.ActualIn != nil {
		out.ActualIn = next.ActualIn
	}
	if next.ProgressPercent != nil {
		out.ProgressPercent = next.ProgressPercent
	}
	out.Cancelled = out.Cancelled || next.Cancelled
	out.Diverted = out.Diverted || next.Diverted
	out.RecordedAt = next.RecordedAt

	return &out
}

// collapse drops events whose notification another event already triggers.
// A status flip to Delayed plus a moved estimate is one DELAYED message,
// not two; the event carrying the concrete times wins because the message
// body needs them.
func collapse(events []ChangeEvent) []ChangeEvent {
	if len(events) < 2 {
		return events
	}

	var out []ChangeEvent
	seen := make(map[trip.NotificationType]int)
	for _, ev := range events {
		if ev.Notification == "" {
			out = append(out, ev)
			continue
		}
		if i, ok := seen[ev.Notification]; ok {
			if out[i].ToTime == nil && ev.ToTime != nil {
				out[i] = ev
			}
			continue
		}
		seen[ev.Notification] = len(out)
		out = append(out, ev)
	}
	return out
}
