package store

import "errors"

var (
	// ErrNotFound is returned when a record is not found in the store.
	ErrNotFound = errors.New("record not found")

	// ErrUnavailable is returned when the store backend cannot be reached.
	ErrUnavailable = errors.New("memory store unavailable")

	// ErrConflict is returned when a write collides with concurrent state the
	// driver cannot resolve on its own.
	ErrConflict = errors.New("memory store write conflict")
)
