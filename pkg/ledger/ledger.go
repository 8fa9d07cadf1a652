// Package ledger defines the append-only history ledger for memory lifecycle
// events. The ledger is audit-only: the memory store is the source of truth
// for current content, and the ledger is reconciled to match it, never the
// reverse. Events are never mutated or deleted; retention is an external
// policy.
package ledger

import (
	"context"
	"time"

	"github.com/papercomputeco/engram/pkg/memory"
)

// EventType identifies the lifecycle operation an event records.
type EventType string

const (
	EventAdd    EventType = "ADD"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Event is one immutable audit row. Replaying a memory's events in timestamp
// order reconstructs every historical value of that memory; a tombstoned
// memory's sequence ends in exactly one DELETE.
type Event struct {
	// ID is a unique event identifier, used to deduplicate replayed appends.
	ID string `json:"id"`

	// MemoryID is the memory the event belongs to.
	MemoryID string `json:"memory_id"`

	// Type is ADD, UPDATE, or DELETE.
	Type EventType `json:"event_type"`

	// PreviousContent is the content before the operation, empty for ADD.
	PreviousContent string `json:"previous_content,omitempty"`

	// NewContent is the content after the operation, empty for DELETE.
	NewContent string `json:"new_content,omitempty"`

	// Actor is the reconciliation run (batch id) that produced the event.
	Actor string `json:"actor"`

	// Scope is the partition the memory belongs to.
	Scope memory.Scope `json:"scope"`

	// CreatedAt is the event timestamp.
	CreatedAt time.Time `json:"created_at"`
}

// Driver handles appending and reading history events.
type Driver interface {
	// Append adds an event to the ledger. Appending an event whose ID already
	// exists returns ErrConflict; callers replaying a deferred append treat
	// that as already-recorded.
	Append(ctx context.Context, event *Event) error

	// Events returns all events for a memory ID in append order.
	// An unknown memory ID yields an empty slice, not an error.
	Events(ctx context.Context, memoryID string) ([]*Event, error)

	// Close releases driver resources.
	Close() error
}
