package inmemory_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/engram/pkg/memory"
	"github.com/papercomputeco/engram/pkg/store"
	"github.com/papercomputeco/engram/pkg/store/inmemory"
)

var _ = Describe("Driver", func() {
	var (
		ctx    context.Context
		driver *inmemory.Driver
		scope  memory.Scope
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()
		scope = memory.Scope{UserID: "alice"}
	})

	record := func(id, content string, embedding []float32) *memory.Record {
		return &memory.Record{
			ID:        id,
			Scope:     scope,
			Content:   content,
			Embedding: embedding,
			Version:   1,
		}
	}

	Describe("Upsert and Get", func() {
		It("stores and retrieves a record", func() {
			Expect(driver.Upsert(ctx, record("mem-1", "likes espresso", []float32{1, 0}))).To(Succeed())

			got, err := driver.Get(ctx, "mem-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Content).To(Equal("likes espresso"))
			Expect(got.Version).To(Equal(1))
		})

		It("replaces an existing record with the same id", func() {
			Expect(driver.Upsert(ctx, record("mem-1", "likes espresso", []float32{1, 0}))).To(Succeed())

			updated := record("mem-1", "prefers oat milk lattes", []float32{0, 1})
			updated.Version = 2
			Expect(driver.Upsert(ctx, updated)).To(Succeed())

			got, err := driver.Get(ctx, "mem-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Content).To(Equal("prefers oat milk lattes"))
			Expect(got.Version).To(Equal(2))
		})

		It("returns ErrNotFound for an unknown id", func() {
			_, err := driver.Get(ctx, "nope")
			Expect(err).To(MatchError(store.ErrNotFound))
		})

		It("isolates stored state from caller mutation", func() {
			rec := record("mem-1", "likes espresso", []float32{1, 0})
			Expect(driver.Upsert(ctx, rec)).To(Succeed())
			rec.Content = "mutated after upsert"

			got, err := driver.Get(ctx, "mem-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Content).To(Equal("likes espresso"))

			got.Content = "mutated after get"
			again, err := driver.Get(ctx, "mem-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(again.Content).To(Equal("likes espresso"))
		})
	})

	Describe("Search", func() {
		BeforeEach(func() {
			Expect(driver.Upsert(ctx, record("mem-1", "likes espresso", []float32{1, 0}))).To(Succeed())
			Expect(driver.Upsert(ctx, record("mem-2", "works at a bakery", []float32{0, 1}))).To(Succeed())
			Expect(driver.Upsert(ctx, record("mem-3", "drinks an espresso daily", []float32{0.9, 0.1}))).To(Succeed())
		})

		It("ranks results by cosine similarity", func() {
			results, err := driver.Search(ctx, scope, []float32{1, 0}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(3))
			Expect(results[0].Record.ID).To(Equal("mem-1"))
			Expect(results[1].Record.ID).To(Equal("mem-3"))
			Expect(results[2].Record.ID).To(Equal("mem-2"))
			Expect(results[0].Score).To(BeNumerically(">", results[1].Score))
		})

		It("truncates to k results", func() {
			results, err := driver.Search(ctx, scope, []float32{1, 0}, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Record.ID).To(Equal("mem-1"))
		})

		It("returns nothing for a non-positive k", func() {
			results, err := driver.Search(ctx, scope, []float32{1, 0}, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
		})

		It("only returns records in the requested scope", func() {
			other := &memory.Record{
				ID:        "mem-bob",
				Scope:     memory.Scope{UserID: "bob"},
				Content:   "allergic to peanuts",
				Embedding: []float32{1, 0},
				Version:   1,
			}
			Expect(driver.Upsert(ctx, other)).To(Succeed())

			results, err := driver.Search(ctx, scope, []float32{1, 0}, 10)
			Expect(err).NotTo(HaveOccurred())
			for _, res := range results {
				Expect(res.Record.Scope).To(Equal(scope))
			}
		})

		It("excludes tombstoned records", func() {
			Expect(driver.Tombstone(ctx, "mem-1")).To(Succeed())

			results, err := driver.Search(ctx, scope, []float32{1, 0}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			for _, res := range results {
				Expect(res.Record.ID).NotTo(Equal("mem-1"))
			}
		})
	})

	Describe("Tombstone", func() {
		It("keeps the record retrievable by id", func() {
			Expect(driver.Upsert(ctx, record("mem-1", "likes espresso", []float32{1, 0}))).To(Succeed())
			Expect(driver.Tombstone(ctx, "mem-1")).To(Succeed())

			got, err := driver.Get(ctx, "mem-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Tombstoned).To(BeTrue())
		})

		It("returns ErrNotFound for an unknown id", func() {
			Expect(driver.Tombstone(ctx, "nope")).To(MatchError(store.ErrNotFound))
		})
	})
})
