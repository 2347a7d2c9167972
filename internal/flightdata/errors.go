package flightdata

import (
	"errors"
	"fmt"
)

// NotFoundError means the provider has no flight for the ident and date.
// These results are negative-cached so repeated polls do not hammer the
// provider.
type NotFoundError struct {
	Ident string
	Date  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("flight %s on %s not found", e.Ident, e.Date)
}

// TransientError covers transport failures, timeouts and 5xx responses.
// Callers retry these and shorten the poll cadence.
type TransientError struct {
	Status int // 0 for transport errors
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider returned %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("provider request failed: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError covers non-404 4xx responses. These fail fast: retrying a
// bad request or a revoked key does not help.
type PermanentError struct {
	Status int
	Body   string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("provider rejected request with %d: %s", e.Status, e.Body)
}

// IsNotFound reports whether err is a flight-not-found result.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
