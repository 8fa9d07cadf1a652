package classify

import (
	"errors"
	"fmt"
)

var (
	// ErrClassification is returned when the classifier call fails.
	ErrClassification = errors.New("decision classification failed")

	// ErrInvalidDecision is returned when a decision is structurally
	// malformed or references a memory not visible in the scope.
	ErrInvalidDecision = errors.New("invalid reconciliation decision")
)

// Validate checks the decision's structural invariants. Scope-level checks
// (does TargetID reference a live in-scope memory) belong to the engine,
// which alone knows the candidate set.
func (d *Decision) Validate() error {
	switch d.Operation {
	case OpAdd:
		if d.TargetID != "" {
			return fmt.Errorf("%w: ADD must not carry a target memory id", ErrInvalidDecision)
		}
		if d.Content == "" {
			return fmt.Errorf("%w: ADD requires resolved content", ErrInvalidDecision)
		}
	case OpUpdate:
		if d.TargetID == "" {
			return fmt.Errorf("%w: UPDATE requires a target memory id", ErrInvalidDecision)
		}
		if d.Content == "" {
			return fmt.Errorf("%w: UPDATE requires resolved content", ErrInvalidDecision)
		}
	case OpDelete:
		if d.TargetID == "" {
			return fmt.Errorf("%w: DELETE requires a target memory id", ErrInvalidDecision)
		}
	case OpNone:
		// Nothing to check: NONE is always well-formed.
	default:
		return fmt.Errorf("%w: unknown operation %q", ErrInvalidDecision, d.Operation)
	}

	return nil
}
