package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/papercomputeco/engram/pkg/ledger"
	"github.com/papercomputeco/engram/pkg/memory"
	"github.com/papercomputeco/engram/pkg/store"
)

// FlakyStore wraps a store driver and fails a configurable number of Upsert
// or Tombstone calls before letting them through.
type FlakyStore struct {
	store.Driver

	mu             sync.Mutex
	FailUpserts    int
	FailTombstones int

	UpsertCalls    int
	TombstoneCalls int
}

func NewFlakyStore(inner store.Driver) *FlakyStore {
	return &FlakyStore{Driver: inner}
}

func (f *FlakyStore) Upsert(ctx context.Context, rec *memory.Record) error {
	f.mu.Lock()
	f.UpsertCalls++
	fail := f.FailUpserts > 0
	if fail {
		f.FailUpserts--
	}
	f.mu.Unlock()

	if fail {
		return fmt.Errorf("%w: injected upsert failure", store.ErrUnavailable)
	}
	return f.Driver.Upsert(ctx, rec)
}

func (f *FlakyStore) Tombstone(ctx context.Context, id string) error {
	f.mu.Lock()
	f.TombstoneCalls++
	fail := f.FailTombstones > 0
	if fail {
		f.FailTombstones--
	}
	f.mu.Unlock()

	if fail {
		return fmt.Errorf("%w: injected tombstone failure", store.ErrUnavailable)
	}
	return f.Driver.Tombstone(ctx, id)
}

// FlakyLedger wraps a ledger driver and fails a configurable number of
// Append calls before letting them through.
type FlakyLedger struct {
	ledger.Driver

	mu          sync.Mutex
	FailAppends int

	AppendCalls int
}

func NewFlakyLedger(inner ledger.Driver) *FlakyLedger {
	return &FlakyLedger{Driver: inner}
}

func (f *FlakyLedger) Append(ctx context.Context, event *ledger.Event) error {
	f.mu.Lock()
	f.AppendCalls++
	fail := f.FailAppends > 0
	if fail {
		f.FailAppends--
	}
	f.mu.Unlock()

	if fail {
		return fmt.Errorf("%w: injected append failure", ledger.ErrUnavailable)
	}
	return f.Driver.Append(ctx, event)
}
