package eventstream

import (
	"time"

	"github.com/papercomputeco/engram/pkg/memory"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeMemoryChanged is emitted after a reconciliation operation is
	// applied to the memory store.
	EventTypeMemoryChanged = "engram.memory.changed"
)

// MemoryChangedEvent is a transport-neutral event payload for an applied
// reconciliation operation. It mirrors the ledger event plus the resulting
// record version, so downstream consumers never need to read the ledger.
type MemoryChangedEvent struct {
	SchemaVersion   int          `json:"schema_version"`
	EventType       string       `json:"event_type"`
	EventID         string       `json:"event_id"`
	EmittedAt       time.Time    `json:"emitted_at"`
	Scope           memory.Scope `json:"scope"`
	MemoryID        string       `json:"memory_id"`
	Operation       string       `json:"operation"`
	PreviousContent string       `json:"previous_content,omitempty"`
	NewContent      string       `json:"new_content,omitempty"`
	Version         int          `json:"version"`
	Actor           string       `json:"actor"`
}
