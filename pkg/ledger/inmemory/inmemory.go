// Package inmemory provides an in-process ledger.Driver used for tests and
// local development.
package inmemory

import (
	"context"
	"sync"

	"github.com/papercomputeco/engram/pkg/ledger"
)

// Driver implements ledger.Driver using in-process data structures.
type Driver struct {
	mu sync.RWMutex

	// events holds all appended events in append order.
	events []*ledger.Event

	// seen tracks event IDs for conflict detection.
	seen map[string]struct{}
}

// NewDriver creates an empty in-memory ledger driver.
func NewDriver() *Driver {
	return &Driver{
		seen: make(map[string]struct{}),
	}
}

// Append adds an event to the ledger.
func (d *Driver) Append(_ context.Context, event *ledger.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[event.ID]; ok {
		return ledger.ErrConflict
	}

	clone := *event
	d.events = append(d.events, &clone)
	d.seen[event.ID] = struct{}{}

	return nil
}

// Events returns all events for a memory ID in append order.
func (d *Driver) Events(_ context.Context, memoryID string) ([]*ledger.Event, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*ledger.Event
	for _, e := range d.events {
		if e.MemoryID == memoryID {
			clone := *e
			out = append(out, &clone)
		}
	}

	return out, nil
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}

var _ ledger.Driver = (*Driver)(nil)
