package memory

import (
	"maps"
	"time"
)

// Record is one durable fact with its metadata.
//
// The Embedding field is always consistent with the current Content — every
// content mutation recomputes it. Version increments on every content or
// metadata mutation and is never reset. A tombstoned record is retained (its
// id is never reused) but is invisible to candidate retrieval and search.
type Record struct {
	// ID is an opaque unique identifier, assigned at creation, immutable.
	ID string `json:"id"`

	// Scope is the partition the record belongs to.
	Scope Scope `json:"scope"`

	// Content is the natural-language fact text, current version.
	Content string `json:"content"`

	// Embedding is the vector representation of Content.
	Embedding []float32 `json:"embedding,omitempty"`

	// Metadata is a caller-supplied key/value mapping, merged on update.
	Metadata map[string]string `json:"metadata,omitempty"`

	// Version starts at 1 and increments on every mutation.
	Version int `json:"version"`

	// Tombstoned marks the record as logically deleted.
	Tombstoned bool `json:"tombstoned,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the record. Drivers return clones so callers
// cannot mutate stored state through shared slices and maps.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}

	out := *r

	if r.Embedding != nil {
		out.Embedding = make([]float32, len(r.Embedding))
		copy(out.Embedding, r.Embedding)
	}

	if r.Metadata != nil {
		out.Metadata = maps.Clone(r.Metadata)
	}

	return &out
}

// MergeMetadata merges the given metadata into the record, overwriting
// existing keys but never removing them.
func (r *Record) MergeMetadata(md map[string]string) {
	if len(md) == 0 {
		return
	}
	if r.Metadata == nil {
		r.Metadata = make(map[string]string, len(md))
	}
	maps.Copy(r.Metadata, md)
}
