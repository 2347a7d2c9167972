package notify

import (
	"time"

	"tripwatch/internal/airport"
)

// Overnight window, in the passenger's origin-local wall clock, during which
// reminders hold.
const (
	quietStartHour = 22
	quietEndHour   = 8
)

// InQuietHours reports whether now falls in the overnight window at the
// origin airport.
func InQuietHours(now time.Time, originIATA string) bool {
	h := airport.UTCToLocal(now, originIATA).Hour()
	return h >= quietStartHour || h < quietEndHour
}

// NextAllowedSend returns the next quiet-hours exit, 08:00 origin-local, as
// a UTC instant.
func NextAllowedSend(now time.Time, originIATA string) time.Time {
	local := airport.UTCToLocal(now, originIATA)
	next := time.Date(local.Year(), local.Month(), local.Day(), quietEndHour, 0, 0, 0, time.UTC)
	if local.Hour() >= quietEndHour {
		next = next.AddDate(0, 0, 1)
	}
	return airport.LocalToUTC(next, originIATA)
}
