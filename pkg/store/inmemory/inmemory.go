// Package inmemory provides an in-process store.Driver used for tests and
// local development. Search is a brute-force cosine-similarity scan over the
// scope partition, which is fine at dev-sized record counts.
package inmemory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/papercomputeco/engram/pkg/memory"
	"github.com/papercomputeco/engram/pkg/store"
)

// Driver implements store.Driver using in-process data structures.
type Driver struct {
	mu sync.RWMutex

	// records maps record ID -> record, tombstoned included.
	records map[string]*memory.Record
}

// NewDriver creates an empty in-memory store driver.
func NewDriver() *Driver {
	return &Driver{
		records: make(map[string]*memory.Record),
	}
}

// Upsert stores a record, replacing any existing record with the same ID.
func (d *Driver) Upsert(_ context.Context, rec *memory.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.records[rec.ID] = rec.Clone()
	return nil
}

// Get retrieves a record by ID, including tombstoned records.
func (d *Driver) Get(_ context.Context, id string) (*memory.Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	return rec.Clone(), nil
}

// Search returns up to k live records in the scope ranked by cosine similarity.
func (d *Driver) Search(_ context.Context, scope memory.Scope, embedding []float32, k int) ([]store.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var results []store.SearchResult
	for _, rec := range d.records {
		if rec.Tombstoned || rec.Scope != scope {
			continue
		}

		results = append(results, store.SearchResult{
			Record: rec.Clone(),
			Score:  cosineSimilarity(embedding, rec.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > k {
		results = results[:k]
	}

	return results, nil
}

// Tombstone logically deletes a record.
func (d *Driver) Tombstone(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.records[id]
	if !ok {
		return store.ErrNotFound
	}

	rec.Tombstoned = true
	return nil
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched or zero-length vectors score 0.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

var _ store.Driver = (*Driver)(nil)
