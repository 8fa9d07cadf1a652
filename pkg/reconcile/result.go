package reconcile

import (
	"github.com/papercomputeco/engram/pkg/memory"
)

// FailedFact records a fact that could not be reconciled and why. The rest
// of the batch is unaffected.
type FailedFact struct {
	Fact   string `json:"fact"`
	Reason string `json:"reason"`
}

// BatchResult reports the outcome of one reconciliation batch.
type BatchResult struct {
	// BatchID identifies the batch and is stamped as the actor on every
	// ledger event the batch produced.
	BatchID string `json:"batch_id"`

	// Committed holds the records added, updated, or tombstoned by the
	// batch, in apply order.
	Committed []*memory.Record `json:"committed"`

	// Failed holds facts whose classification or apply step was abandoned
	// after exhausting retries.
	Failed []FailedFact `json:"failed,omitempty"`

	// Skipped holds facts never attempted because the batch deadline
	// expired first.
	Skipped []string `json:"skipped,omitempty"`
}
