package ledger

import "errors"

var (
	// ErrUnavailable is returned when the ledger backend cannot be reached.
	ErrUnavailable = errors.New("history ledger unavailable")

	// ErrConflict is returned when an appended event's ID already exists.
	// Given append-only semantics this only happens when a deferred append
	// is replayed after a partial failure.
	ErrConflict = errors.New("history event already appended")
)
