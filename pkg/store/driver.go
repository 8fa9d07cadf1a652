// Package store defines the scoped memory store contract: upsert, lookup,
// tombstoning, and scope-partitioned nearest-neighbor search over fact
// embeddings. Backends are passive data holders — all reconciliation logic
// lives in pkg/reconcile.
package store

import (
	"context"

	"github.com/papercomputeco/engram/pkg/memory"
)

// SearchResult pairs a record with its similarity score (higher = more similar).
type SearchResult struct {
	Record *memory.Record

	Score float32
}

// Driver handles storage and retrieval of memory records.
type Driver interface {
	// Upsert stores a record, replacing any existing record with the same ID.
	// The record's embedding must already be consistent with its content.
	Upsert(ctx context.Context, rec *memory.Record) error

	// Get retrieves a record by ID, including tombstoned records.
	// Returns ErrNotFound if no record with the ID exists.
	Get(ctx context.Context, id string) (*memory.Record, error)

	// Search returns up to k non-tombstoned records in the given scope ranked
	// by similarity to the embedding. An empty scope partition yields an empty
	// result, not an error.
	Search(ctx context.Context, scope memory.Scope, embedding []float32, k int) ([]SearchResult, error)

	// Tombstone logically deletes a record. The record is retained (the ID is
	// never reused) but excluded from Search. Returns ErrNotFound if no record
	// with the ID exists.
	Tombstone(ctx context.Context, id string) error

	// Close releases any resources held by the driver.
	Close() error
}
