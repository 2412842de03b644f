package types

import "errors"

// Dispatch error taxonomy. Callers match with errors.Is; intermediate layers
// wrap with fmt.Errorf("...: %w", err) so the sentinel survives propagation.
var (
	// ErrInvalidInput flags malformed coordinates or radii. Caller error,
	// returned synchronously, never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownService flags a service type missing from the catalog or
	// marked inactive.
	ErrUnknownService = errors.New("unknown or inactive service")

	// ErrNoCandidate means no eligible helper was found for an attempt.
	// The booking stays pending; retrying is the caller's decision.
	ErrNoCandidate = errors.New("no eligible helper available")

	// ErrAlreadyReserved is the internal race signal returned when a
	// reserve loses a compare-and-set. Consumed by the assignment engine's
	// retry loop, never surfaced past it.
	ErrAlreadyReserved = errors.New("helper already reserved")

	// ErrExhausted means the rejection ceiling was reached and the booking
	// was terminally marked no-helper-available.
	ErrExhausted = errors.New("rejection ceiling reached")

	// ErrNotFound flags an unknown booking or helper ID.
	ErrNotFound = errors.New("not found")
)
