// Package validate holds the compiled field patterns used at the API
// boundary and before provider requests. Patterns are named and compiled
// once so handlers can share them.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	// Flight ident: 2-char (optionally 3) carrier code plus 1-4 digit
	// number, optional operational suffix. e.g. AA123, IB 6845, LA800A.
	identRe = regexp.MustCompile(`^([A-Z0-9]{2}[A-Z]?)\s?(\d{1,4})([A-Z]?)$`)

	// IATA airport code: LHR, EZE.
	iataRe = regexp.MustCompile(`^[A-Z]{3}$`)

	// E.164 phone number: +5491155550000.
	phoneRe = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)
)

// NormalizeIdent uppercases a flight ident and strips the optional space
// between carrier and number. Returns an error when the ident does not look
// like a flight number.
func NormalizeIdent(ident string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(ident))
	m := identRe.FindStringSubmatch(s)
	if m == nil {
		return "", fmt.Errorf("invalid flight ident %q", ident)
	}
	return m[1] + m[2] + m[3], nil
}

// SplitIdent returns the carrier and number parts of a normalized ident.
func SplitIdent(ident string) (carrier, number string, err error) {
	m := identRe.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(ident)))
	if m == nil {
		return "", "", fmt.Errorf("invalid flight ident %q", ident)
	}
	return m[1], m[2] + m[3], nil
}

// IATA reports whether s is a well-formed IATA airport code. It does not
// check the code against the embedded airport table; unknown codes degrade
// to UTC handling downstream.
func IATA(s string) bool {
	return iataRe.MatchString(strings.ToUpper(strings.TrimSpace(s)))
}

// Phone reports whether s is an E.164 phone number.
func Phone(s string) bool {
	return phoneRe.MatchString(strings.TrimSpace(s))
}

// NormalizePhone strips spaces, dashes and a leading whatsapp: prefix so
// stored numbers are bare E.164.
func NormalizePhone(s string) (string, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "whatsapp:")
	s = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(s)
	if !Phone(s) {
		return "", fmt.Errorf("invalid phone number %q", s)
	}
	return s, nil
}

// Date parses a YYYY-MM-DD string.
func Date(s string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}
