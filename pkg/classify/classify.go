// Package classify defines the reconciliation decision protocol. The
// classifier is the only component permitted semantic judgment over meaning:
// given a new fact and the semantically closest existing memories, it decides
// whether the fact is novel (ADD), refines or contradicts an existing memory
// (UPDATE), invalidates one (DELETE), or adds nothing (NONE). The engine in
// pkg/reconcile enforces policy over the returned decision; the classifier is
// never trusted blindly.
package classify

import "context"

// Operation is the kind of mutation a decision requests.
type Operation string

const (
	OpAdd    Operation = "ADD"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
	OpNone   Operation = "NONE"
)

// Candidate is an existing memory offered to the classifier. Only the id and
// content are exposed; similarity scores are retrieval's concern.
type Candidate struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// Decision is the classifier's output for one incoming fact: exactly one
// operation, never a partial or multi-operation result.
type Decision struct {
	// Operation is ADD, UPDATE, DELETE, or NONE.
	Operation Operation `json:"operation"`

	// TargetID references the memory to mutate. Required for UPDATE and
	// DELETE, absent for ADD and NONE.
	TargetID string `json:"target_memory_id,omitempty"`

	// Content is the text to store. Required for ADD and UPDATE, absent for
	// DELETE and NONE.
	Content string `json:"resolved_content,omitempty"`
}

// Classifier produces exactly one Decision per fact.
type Classifier interface {
	Classify(ctx context.Context, fact string, embedding []float32, candidates []Candidate) (*Decision, error)

	// Close releases classifier resources.
	Close() error
}
