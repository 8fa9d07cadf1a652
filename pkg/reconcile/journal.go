package reconcile

import (
	"sync"

	"github.com/papercomputeco/engram/pkg/ledger"
)

// journal holds ledger events whose append exhausted its retries after the
// store mutation already committed. Deferred events are flushed, in order,
// the next time their scope reconciles.
type journal struct {
	mu      sync.Mutex
	pending map[string][]*ledger.Event
}

func newJournal() *journal {
	return &journal{
		pending: make(map[string][]*ledger.Event),
	}
}

func (j *journal) stash(key string, event *ledger.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.pending[key] = append(j.pending[key], event)
}

// take removes and returns all deferred events for the key in append order.
func (j *journal) take(key string) []*ledger.Event {
	j.mu.Lock()
	defer j.mu.Unlock()

	events := j.pending[key]
	delete(j.pending, key)
	return events
}

// restore puts an unflushed suffix back at the head of the key's queue,
// ahead of anything stashed while the flush was in flight.
func (j *journal) restore(key string, events []*ledger.Event) {
	if len(events) == 0 {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.pending[key] = append(events, j.pending[key]...)
}

func (j *journal) size(key string) int {
	j.mu.Lock()
	defer j.mu.Unlock()

	return len(j.pending[key])
}
