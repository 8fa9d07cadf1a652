package reconcile

import (
	"context"
	"sync"
)

// scopeGate serializes reconciliation per scope key. A scope is either idle
// or reconciling; a second run requested while reconciling queues FIFO behind
// the holder instead of running concurrently. Distinct scopes are fully
// independent.
type scopeGate struct {
	mu     sync.Mutex
	scopes map[string]*gateState
}

type gateState struct {
	held    bool
	waiters []chan struct{}
}

func newScopeGate() *scopeGate {
	return &scopeGate{
		scopes: make(map[string]*gateState),
	}
}

// Acquire blocks until the caller holds the gate for the key, or the context
// is done. Waiters are granted the gate in arrival order.
func (g *scopeGate) Acquire(ctx context.Context, key string) error {
	g.mu.Lock()

	st := g.scopes[key]
	if st == nil {
		st = &gateState{}
		g.scopes[key] = st
	}

	if !st.held {
		st.held = true
		g.mu.Unlock()
		return nil
	}

	ch := make(chan struct{})
	st.waiters = append(st.waiters, ch)
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		for i, w := range st.waiters {
			if w == ch {
				st.waiters = append(st.waiters[:i], st.waiters[i+1:]...)
				g.mu.Unlock()
				return ctx.Err()
			}
		}
		g.mu.Unlock()

		// The gate was handed to us between cancellation and requeue
		// cleanup; pass it on so the queue keeps moving.
		g.Release(key)
		return ctx.Err()
	}
}

// Release hands the gate to the oldest waiter, or marks the scope idle when
// none are queued.
func (g *scopeGate) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.scopes[key]
	if st == nil || !st.held {
		return
	}

	if len(st.waiters) == 0 {
		delete(g.scopes, key)
		return
	}

	ch := st.waiters[0]
	st.waiters = st.waiters[1:]

	// Ownership transfers directly; held stays true.
	close(ch)
}
