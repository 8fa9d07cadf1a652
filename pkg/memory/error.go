package memory

import "errors"

// ErrEmptyScope is returned when an operation is attempted with a scope that
// has no components set. An empty scope is caller misuse, not a partial
// failure, so it surfaces as a hard error.
var ErrEmptyScope = errors.New("scope must have at least one component")
