// Package extract defines the fact extraction contract: a batch of
// conversation messages in, an ordered list of durable fact strings out.
// Facts are distilled knowledge, not raw messages.
package extract

import (
	"context"
	"errors"

	"github.com/papercomputeco/engram/pkg/memory"
)

// ErrExtraction is returned when fact extraction fails. Unlike per-fact
// errors, an extraction failure aborts the whole reconciliation batch —
// there is nothing to reconcile.
var ErrExtraction = errors.New("fact extraction failed")

// Message is a single conversation message submitted for extraction.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Extractor turns conversation messages into candidate fact strings.
type Extractor interface {
	// Extract returns the facts found in the messages, in extraction order.
	// An empty result is valid — the conversation contained nothing durable.
	Extract(ctx context.Context, messages []Message, scope memory.Scope) ([]string, error)

	// Close releases extractor resources.
	Close() error
}
