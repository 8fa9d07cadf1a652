package sqlite_test

import (
	"context"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/ledger"
	"github.com/papercomputeco/engram/pkg/ledger/sqlite"
	"github.com/papercomputeco/engram/pkg/memory"
)

var _ = Describe("Driver", func() {
	var (
		ctx    context.Context
		driver *sqlite.Driver
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		driver, err = sqlite.NewDriver(":memory:", zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(driver.Close()).To(Succeed())
	})

	event := func(id, memoryID string, typ ledger.EventType, at time.Time) *ledger.Event {
		return &ledger.Event{
			ID:         id,
			MemoryID:   memoryID,
			Type:       typ,
			NewContent: "likes espresso",
			Actor:      "batch-1",
			Scope:      memory.Scope{UserID: "alice", AgentID: "support-bot"},
			CreatedAt:  at,
		}
	}

	Describe("NewDriver", func() {
		It("requires a database path", func() {
			_, err := sqlite.NewDriver("", zap.NewNop())
			Expect(err).To(HaveOccurred())
		})

		It("creates the database file on disk", func() {
			path := filepath.Join(GinkgoT().TempDir(), "ledger.db")
			d, err := sqlite.NewDriver(path, zap.NewNop())
			Expect(err).NotTo(HaveOccurred())
			Expect(d.Close()).To(Succeed())
		})
	})

	Describe("Append and Events", func() {
		It("round-trips every event field", func() {
			now := time.Now().UTC().Truncate(time.Second)
			evt := event("evt-1", "mem-1", ledger.EventUpdate, now)
			evt.PreviousContent = "likes coffee"

			Expect(driver.Append(ctx, evt)).To(Succeed())

			events, err := driver.Events(ctx, "mem-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(1))

			got := events[0]
			Expect(got.ID).To(Equal("evt-1"))
			Expect(got.MemoryID).To(Equal("mem-1"))
			Expect(got.Type).To(Equal(ledger.EventUpdate))
			Expect(got.PreviousContent).To(Equal("likes coffee"))
			Expect(got.NewContent).To(Equal("likes espresso"))
			Expect(got.Actor).To(Equal("batch-1"))
			Expect(got.Scope).To(Equal(memory.Scope{UserID: "alice", AgentID: "support-bot"}))
			Expect(got.CreatedAt.UTC()).To(Equal(now))
		})

		It("returns events in append order", func() {
			base := time.Now().UTC()
			Expect(driver.Append(ctx, event("evt-1", "mem-1", ledger.EventAdd, base))).To(Succeed())
			Expect(driver.Append(ctx, event("evt-2", "mem-1", ledger.EventUpdate, base.Add(time.Second)))).To(Succeed())
			Expect(driver.Append(ctx, event("evt-3", "mem-1", ledger.EventDelete, base.Add(2*time.Second)))).To(Succeed())

			events, err := driver.Events(ctx, "mem-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(3))
			Expect(events[0].Type).To(Equal(ledger.EventAdd))
			Expect(events[1].Type).To(Equal(ledger.EventUpdate))
			Expect(events[2].Type).To(Equal(ledger.EventDelete))
		})

		It("rejects a duplicate event id with ErrConflict", func() {
			now := time.Now().UTC()
			Expect(driver.Append(ctx, event("evt-1", "mem-1", ledger.EventAdd, now))).To(Succeed())

			err := driver.Append(ctx, event("evt-1", "mem-1", ledger.EventAdd, now))
			Expect(err).To(MatchError(ledger.ErrConflict))
		})

		It("returns an empty slice for an unknown memory id", func() {
			events, err := driver.Events(ctx, "nope")
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(BeEmpty())
		})

		It("filters events by memory id", func() {
			now := time.Now().UTC()
			Expect(driver.Append(ctx, event("evt-1", "mem-a", ledger.EventAdd, now))).To(Succeed())
			Expect(driver.Append(ctx, event("evt-2", "mem-b", ledger.EventAdd, now))).To(Succeed())

			events, err := driver.Events(ctx, "mem-a")
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(1))
			Expect(events[0].MemoryID).To(Equal("mem-a"))
		})
	})
})
