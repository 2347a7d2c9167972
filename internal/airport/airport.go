// Package airport maps IATA airport codes to IANA timezones and city
// metadata, and converts between airport-local wall clock times and UTC.
// All trip departures are stored as UTC instants; this package is the only
// place where wall clocks are interpreted.
package airport

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Airport holds the embedded metadata for one airport.
type Airport struct {
	IATA string
	City string
	Zone string
	Lat  float64
	Lon  float64
}

// Lookup returns the metadata for an IATA code.
func Lookup(iata string) (Airport, bool) {
	a, ok := airports[strings.ToUpper(strings.TrimSpace(iata))]
	return a, ok
}

// City returns the city name for an IATA code, or the code itself when the
// airport is unknown.
func City(iata string) string {
	if a, ok := Lookup(iata); ok {
		return a.City
	}
	return strings.ToUpper(strings.TrimSpace(iata))
}

// ZoneFor returns the IANA location for an IATA code. Unknown codes and
// unloadable zones fall back to UTC with a warning; they never fail the
// caller.
func ZoneFor(iata string) *time.Location {
	a, ok := Lookup(iata)
	if !ok {
		log.Warn().Str("component", "airport").Str("iata", iata).Msg("unknown airport code, assuming UTC")
		return time.UTC
	}
	loc, err := time.LoadLocation(a.Zone)
	if err != nil {
		log.Warn().Str("component", "airport").Str("iata", iata).Str("zone", a.Zone).Err(err).Msg("zone load failed, assuming UTC")
		return time.UTC
	}
	return loc
}

// LocalToUTC interprets the wall-clock fields of local (its own location is
// ignored) in the airport's zone and returns the UTC instant.
//
// DST transitions are resolved deterministically: a wall clock inside a
// spring-forward gap maps to the instant just after the gap, and an ambiguous
// fall-back wall clock maps to its first occurrence.
func LocalToUTC(local time.Time, iata string) time.Time {
	loc := ZoneFor(iata)
	y, mo, d := local.Date()
	h, mi, s := local.Clock()

	// Treat the wall clock as if it were UTC, then shift by candidate zone
	// offsets. An offset is valid when shifting reproduces the wall clock.
	guess := time.Date(y, mo, d, h, mi, s, 0, time.UTC)

	var earliest time.Time
	for _, off := range candidateOffsets(guess, loc) {
		cand := guess.Add(-time.Duration(off) * time.Second)
		if sameWallClock(cand.In(loc), y, mo, d, h, mi, s) {
			if earliest.IsZero() || cand.Before(earliest) {
				earliest = cand
			}
		}
	}
	if !earliest.IsZero() {
		return earliest
	}

	// No offset reproduces the wall clock: the time sits inside a forward
	// gap. Applying the pre-transition offset lands just past the gap.
	offBefore := offsetAt(guess.Add(-24*time.Hour), loc)
	return guess.Add(-time.Duration(offBefore) * time.Second)
}

// UTCToLocal converts a UTC instant to the airport's local time.
func UTCToLocal(utc time.Time, iata string) time.Time {
	return utc.In(ZoneFor(iata))
}

// FormatHumanLocal renders a UTC instant as airport-local date and time with
// a fixed, locale-independent pattern.
func FormatHumanLocal(utc time.Time, iata string) string {
	return UTCToLocal(utc, iata).Format("02 Jan 2006 15:04")
}

// FormatClockLocal renders only the airport-local wall clock of a UTC
// instant.
func FormatClockLocal(utc time.Time, iata string) string {
	return UTCToLocal(utc, iata).Format("15:04")
}

func sameWallClock(t time.Time, y int, mo time.Month, d, h, mi, s int) bool {
	ty, tmo, td := t.Date()
	th, tmi, ts := t.Clock()
	return ty == y && tmo == mo && td == d && th == h && tmi == mi && ts == s
}

func offsetAt(t time.Time, loc *time.Location) int {
	_, off := t.In(loc).Zone()
	return off
}

// candidateOffsets returns the distinct zone offsets in effect around the
// guessed instant. One day either side covers every real transition.
func candidateOffsets(guess time.Time, loc *time.Location) []int {
	offs := []int{
		offsetAt(guess.Add(-24*time.Hour), loc),
		offsetAt(guess, loc),
		offsetAt(guess.Add(24*time.Hour), loc),
	}
	uniq := offs[:0]
	for _, o := range offs {
		dup := false
		for _, u := range uniq {
			if u == o {
				dup = true
				break
			}
		}
		if !dup {
			uniq = append(uniq, o)
		}
	}
	return uniq
}
