// Package main sanity-checks airport timezone conversion against known
// instants, including the DST transition edges where wall clocks vanish or
// repeat. Run it after a tzdata bump or an airport table change.
//
// Usage:
//
//	tzcheck                         run the built-in conversion cases
//	tzcheck JFK 2025-12-01T14:30    convert one local wall clock
package main

import (
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"tripwatch/internal/airport"
)

const localLayout = "2006-01-02T15:04"

// Conversion cases with their expected UTC instants.
var testCases = []struct {
	iata  string
	local string // wall clock at the airport
	want  string // expected UTC instant
	note  string
}{
	{"JFK", "2025-12-01T14:30", "2025-12-01T19:30:00Z", "EST, winter"},
	{"JFK", "2025-07-01T14:30", "2025-07-01T18:30:00Z", "EDT, summer"},
	{"JFK", "2025-03-09T02:30", "2025-03-09T07:30:00Z", "spring-forward gap, resolves past the gap"},
	{"JFK", "2025-11-02T01:30", "2025-11-02T05:30:00Z", "fall-back ambiguity, first occurrence (EDT)"},
	{"EZE", "2025-12-01T09:00", "2025-12-01T12:00:00Z", "ART, no DST"},
	{"LHR", "2025-12-02T02:30", "2025-12-02T02:30:00Z", "GMT, winter"},
	{"LHR", "2025-07-15T10:00", "2025-07-15T09:00:00Z", "BST, summer"},
	{"MAD", "2025-10-26T02:30", "2025-10-26T00:30:00Z", "fall-back ambiguity, first occurrence (CEST)"},
}

func main() {
	if len(os.Args) == 3 {
		convertOne(os.Args[1], os.Args[2])
		return
	}
	if len(os.Args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: tzcheck [IATA LOCAL-TIME]")
		fmt.Fprintln(os.Stderr, "  e.g. tzcheck JFK 2025-12-01T14:30")
		os.Exit(2)
	}

	fmt.Println("Checking airport local time -> UTC conversion")
	fmt.Println("=============================================")

	failed := 0
	for _, tc := range testCases {
		local, err := time.Parse(localLayout, tc.local)
		if err != nil {
			fmt.Printf("BAD CASE %s %s: %v\n", tc.iata, tc.local, err)
			failed++
			continue
		}
		got := airport.LocalToUTC(local, tc.iata)
		want, _ := time.Parse(time.RFC3339, tc.want)

		status := "ok  "
		if !got.Equal(want) {
			status = "FAIL"
			failed++
		}
		fmt.Printf("%s %s %s -> %s (want %s)  %s\n",
			status, tc.iata, tc.local, got.Format(time.RFC3339), tc.want, tc.note)
	}

	fmt.Println("\nRound-trip check (UTC -> human local)")
	fmt.Println("=====================================")
	for _, tc := range testCases {
		want, _ := time.Parse(time.RFC3339, tc.want)
		fmt.Printf("     %s %s -> %q\n", tc.iata, tc.want, airport.FormatHumanLocal(want, tc.iata))
	}

	if failed > 0 {
		fmt.Printf("\n%d case(s) FAILED\n", failed)
		os.Exit(1)
	}
	fmt.Println("\nAll cases passed")
}

func convertOne(iata, localStr string) {
	local, err := time.Parse(localLayout, localStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot parse %q: use %s\n", localStr, localLayout)
		os.Exit(2)
	}

	a, known := airport.Lookup(iata)
	utc := airport.LocalToUTC(local, iata)

	fmt.Printf("Airport:     %s", iata)
	if known {
		fmt.Printf(" (%s, %s)", a.City, a.Zone)
	} else {
		fmt.Printf(" (unknown, assuming UTC)")
	}
	fmt.Println()
	fmt.Printf("Local:       %s\n", localStr)
	fmt.Printf("UTC:         %s\n", utc.Format(time.RFC3339))
	fmt.Printf("Round-trip:  %s\n", airport.FormatHumanLocal(utc, iata))
	fmt.Printf("Clock only:  %s\n", airport.FormatClockLocal(utc, iata))
}
