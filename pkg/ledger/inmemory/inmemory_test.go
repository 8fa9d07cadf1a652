package inmemory_test

import (
	"context"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/engram/pkg/ledger"
	"github.com/papercomputeco/engram/pkg/ledger/inmemory"
	"github.com/papercomputeco/engram/pkg/memory"
)

var _ = Describe("Driver", func() {
	var (
		ctx    context.Context
		driver *inmemory.Driver
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()
	})

	event := func(id, memoryID string, typ ledger.EventType) *ledger.Event {
		return &ledger.Event{
			ID:       id,
			MemoryID: memoryID,
			Type:     typ,
			Actor:    "batch-1",
			Scope:    memory.Scope{UserID: "alice"},
		}
	}

	Describe("Append", func() {
		It("records events in append order", func() {
			Expect(driver.Append(ctx, event("evt-1", "mem-1", ledger.EventAdd))).To(Succeed())
			Expect(driver.Append(ctx, event("evt-2", "mem-1", ledger.EventUpdate))).To(Succeed())

			events, err := driver.Events(ctx, "mem-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(2))
			Expect(events[0].Type).To(Equal(ledger.EventAdd))
			Expect(events[1].Type).To(Equal(ledger.EventUpdate))
		})

		It("rejects a duplicate event id with ErrConflict", func() {
			Expect(driver.Append(ctx, event("evt-1", "mem-1", ledger.EventAdd))).To(Succeed())
			err := driver.Append(ctx, event("evt-1", "mem-1", ledger.EventAdd))
			Expect(err).To(MatchError(ledger.ErrConflict))

			events, err := driver.Events(ctx, "mem-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(1))
		})

		It("isolates stored events from caller mutation", func() {
			evt := event("evt-1", "mem-1", ledger.EventAdd)
			Expect(driver.Append(ctx, evt)).To(Succeed())
			evt.NewContent = "mutated after append"

			events, err := driver.Events(ctx, "mem-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(events[0].NewContent).To(BeEmpty())
		})
	})

	Describe("Events", func() {
		It("returns an empty slice for an unknown memory id", func() {
			events, err := driver.Events(ctx, "nope")
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(BeEmpty())
		})

		It("filters events by memory id", func() {
			for i := range 3 {
				id := fmt.Sprintf("evt-a-%d", i)
				Expect(driver.Append(ctx, event(id, "mem-a", ledger.EventAdd))).To(Succeed())
			}
			Expect(driver.Append(ctx, event("evt-b-0", "mem-b", ledger.EventAdd))).To(Succeed())

			events, err := driver.Events(ctx, "mem-a")
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(3))
			for _, e := range events {
				Expect(e.MemoryID).To(Equal("mem-a"))
			}
		})
	})
})
