package reconcile

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/classify"
	"github.com/papercomputeco/engram/pkg/extract"
	"github.com/papercomputeco/engram/pkg/ledger"
	ledgermem "github.com/papercomputeco/engram/pkg/ledger/inmemory"
	"github.com/papercomputeco/engram/pkg/memory"
	storemem "github.com/papercomputeco/engram/pkg/store/inmemory"
	testutils "github.com/papercomputeco/engram/pkg/utils/test"
)

// newTestEngine wires an engine from in-memory drivers and mocks. The
// returned collaborators are shared with the engine for scripting and
// assertions.
func newTestEngine() (*Engine, *storemem.Driver, *ledgermem.Driver, *testutils.MockExtractor, *testutils.MockClassifier) {
	logger := zap.NewNop()
	st := storemem.NewDriver()
	ld := ledgermem.NewDriver()
	extractor := testutils.NewMockExtractor()
	classifier := testutils.NewMockClassifier()

	engine, err := NewEngine(Config{
		Store:      st,
		Ledger:     ld,
		Embedder:   testutils.NewMockEmbedder(),
		Extractor:  extractor,
		Classifier: classifier,
		RetryBase:  time.Millisecond,
	}, logger)
	Expect(err).NotTo(HaveOccurred())

	return engine, st, ld, extractor, classifier
}

var _ = Describe("Engine", func() {
	var (
		engine     *Engine
		st         *storemem.Driver
		ld         *ledgermem.Driver
		extractor  *testutils.MockExtractor
		classifier *testutils.MockClassifier
		ctx        context.Context
		scope      memory.Scope
	)

	BeforeEach(func() {
		engine, st, ld, extractor, classifier = newTestEngine()
		ctx = context.Background()
		scope = memory.Scope{UserID: "alice"}
	})

	turns := []extract.Message{
		{Role: "user", Content: "I just moved to Lisbon and I love espresso."},
	}

	Describe("Reconcile", func() {
		It("rejects an empty scope", func() {
			_, err := engine.Reconcile(ctx, Batch{Messages: turns})
			Expect(err).To(MatchError(memory.ErrEmptyScope))
		})

		It("aborts the batch when extraction fails", func() {
			extractor.Fail = true

			_, err := engine.Reconcile(ctx, Batch{Scope: scope, Messages: turns})
			Expect(err).To(MatchError(extract.ErrExtraction))
		})

		It("commits nothing when no facts are extracted", func() {
			result, err := engine.Reconcile(ctx, Batch{Scope: scope, Messages: turns})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Committed).To(BeEmpty())
			Expect(result.Failed).To(BeEmpty())
		})

		It("skips all facts when the context is already done", func() {
			extractor.Facts = []string{"fact one", "fact two"}

			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			result, err := engine.Reconcile(cancelled, Batch{Scope: scope, Messages: turns})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Skipped).To(Equal([]string{"fact one", "fact two"}))
			Expect(result.Committed).To(BeEmpty())
		})
	})

	Describe("ADD", func() {
		BeforeEach(func() {
			extractor.Facts = []string{"lives in Lisbon"}
		})

		It("creates a record at version 1 with exactly one ADD event", func() {
			result, err := engine.Reconcile(ctx, Batch{Scope: scope, Messages: turns})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Committed).To(HaveLen(1))

			rec := result.Committed[0]
			Expect(rec.Content).To(Equal("lives in Lisbon"))
			Expect(rec.Version).To(Equal(1))
			Expect(rec.Scope).To(Equal(scope))

			stored, err := st.Get(ctx, rec.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Content).To(Equal("lives in Lisbon"))

			events, err := ld.Events(ctx, rec.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(1))
			Expect(events[0].Type).To(Equal(ledger.EventAdd))
			Expect(events[0].NewContent).To(Equal("lives in Lisbon"))
			Expect(events[0].Actor).To(Equal(result.BatchID))
		})

		It("merges batch metadata into the new record", func() {
			result, err := engine.Reconcile(ctx, Batch{
				Scope:    scope,
				Messages: turns,
				Metadata: map[string]string{"source": "chat"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Committed[0].Metadata).To(HaveKeyWithValue("source", "chat"))
		})

		It("derives the same record id when the same batch content is re-applied", func() {
			id1 := recordID(scope, "lives in Lisbon", "batch-1")
			id2 := recordID(scope, "lives in Lisbon", "batch-1")
			other := recordID(scope, "lives in Lisbon", "batch-2")

			Expect(id1).To(Equal(id2))
			Expect(id1).NotTo(Equal(other))
		})

		It("stores the classifier's resolved content, not the raw fact", func() {
			classifier.Script("lives in Lisbon", &classify.Decision{
				Operation: classify.OpAdd,
				Content:   "User lives in Lisbon",
			})

			result, err := engine.Reconcile(ctx, Batch{Scope: scope, Messages: turns})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Committed[0].Content).To(Equal("User lives in Lisbon"))
		})
	})

	Describe("UPDATE", func() {
		var existing *memory.Record

		BeforeEach(func() {
			extractor.Facts = []string{"moved to Porto"}

			existing = &memory.Record{
				ID:        "mem-1",
				Scope:     scope,
				Content:   "lives in Lisbon",
				Embedding: []float32{0.1, 0.2, 0.3},
				Version:   1,
				CreatedAt: time.Now().UTC(),
				UpdatedAt: time.Now().UTC(),
			}
			Expect(st.Upsert(ctx, existing)).To(Succeed())
		})

		It("rewrites the target in place and bumps the version", func() {
			classifier.Script("moved to Porto", &classify.Decision{
				Operation: classify.OpUpdate,
				TargetID:  "mem-1",
				Content:   "lives in Porto",
			})

			result, err := engine.Reconcile(ctx, Batch{Scope: scope, Messages: turns})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Committed).To(HaveLen(1))

			updated, err := st.Get(ctx, "mem-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Content).To(Equal("lives in Porto"))
			Expect(updated.Version).To(Equal(2))

			events, err := ld.Events(ctx, "mem-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(1))
			Expect(events[0].Type).To(Equal(ledger.EventUpdate))
			Expect(events[0].PreviousContent).To(Equal("lives in Lisbon"))
			Expect(events[0].NewContent).To(Equal("lives in Porto"))
		})

		It("fails the fact when the target is not a candidate", func() {
			classifier.Script("moved to Porto", &classify.Decision{
				Operation: classify.OpUpdate,
				TargetID:  "no-such-memory",
				Content:   "lives in Porto",
			})

			result, err := engine.Reconcile(ctx, Batch{Scope: scope, Messages: turns})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Committed).To(BeEmpty())
			Expect(result.Failed).To(HaveLen(1))
			Expect(result.Failed[0].Fact).To(Equal("moved to Porto"))

			// The target memory must be untouched.
			unchanged, err := st.Get(ctx, "mem-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(unchanged.Version).To(Equal(1))
		})

		It("collapses an update with identical content to a no-op", func() {
			classifier.Script("moved to Porto", &classify.Decision{
				Operation: classify.OpUpdate,
				TargetID:  "mem-1",
				Content:   "lives in Lisbon",
			})

			result, err := engine.Reconcile(ctx, Batch{Scope: scope, Messages: turns})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Committed).To(BeEmpty())
			Expect(result.Failed).To(BeEmpty())

			unchanged, err := st.Get(ctx, "mem-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(unchanged.Version).To(Equal(1))

			events, err := ld.Events(ctx, "mem-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(BeEmpty())
		})
	})

	Describe("DELETE", func() {
		BeforeEach(func() {
			extractor.Facts = []string{"no longer vegetarian"}

			Expect(st.Upsert(ctx, &memory.Record{
				ID:        "mem-veg",
				Scope:     scope,
				Content:   "is vegetarian",
				Embedding: []float32{0.1, 0.2, 0.3},
				Version:   1,
			})).To(Succeed())
		})

		It("tombstones the target and records one DELETE event", func() {
			classifier.Script("no longer vegetarian", &classify.Decision{
				Operation: classify.OpDelete,
				TargetID:  "mem-veg",
			})

			result, err := engine.Reconcile(ctx, Batch{Scope: scope, Messages: turns})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Committed).To(HaveLen(1))
			Expect(result.Committed[0].Tombstoned).To(BeTrue())

			stored, err := st.Get(ctx, "mem-veg")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Tombstoned).To(BeTrue())

			// Tombstoned memories are invisible to retrieval.
			matches, err := st.Search(ctx, scope, []float32{0.1, 0.2, 0.3}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(matches).To(BeEmpty())

			events, err := ld.Events(ctx, "mem-veg")
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(1))
			Expect(events[0].Type).To(Equal(ledger.EventDelete))
			Expect(events[0].PreviousContent).To(Equal("is vegetarian"))
		})

		It("treats an unknown target as a no-op, not a failure", func() {
			classifier.Script("no longer vegetarian", &classify.Decision{
				Operation: classify.OpDelete,
				TargetID:  "already-gone",
			})

			result, err := engine.Reconcile(ctx, Batch{Scope: scope, Messages: turns})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Committed).To(BeEmpty())
			Expect(result.Failed).To(BeEmpty())
		})

		It("reports the extracted fact when the tombstone cannot be applied", func() {
			flaky := testutils.NewFlakyStore(st)
			flaky.FailTombstones = DefaultMaxAttempts

			mocks := testutils.NewMockClassifier()
			mocks.Script("no longer vegetarian", &classify.Decision{
				Operation: classify.OpDelete,
				TargetID:  "mem-veg",
			})

			eng, err := NewEngine(Config{
				Store:      flaky,
				Ledger:     ld,
				Embedder:   testutils.NewMockEmbedder(),
				Extractor:  testutils.NewMockExtractor("no longer vegetarian"),
				Classifier: mocks,
				RetryBase:  time.Millisecond,
			}, zap.NewNop())
			Expect(err).NotTo(HaveOccurred())

			result, err := eng.Reconcile(ctx, Batch{Scope: scope, Messages: turns})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Committed).To(BeEmpty())
			Expect(result.Failed).To(HaveLen(1))
			Expect(result.Failed[0].Fact).To(Equal("no longer vegetarian"))
		})
	})

	Describe("decision validation", func() {
		It("fails the fact when an ADD carries no resolved content", func() {
			extractor.Facts = []string{"lives in Lisbon"}
			classifier.Script("lives in Lisbon", &classify.Decision{
				Operation: classify.OpAdd,
			})

			result, err := engine.Reconcile(ctx, Batch{Scope: scope, Messages: turns})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Committed).To(BeEmpty())
			Expect(result.Failed).To(HaveLen(1))
			Expect(result.Failed[0].Fact).To(Equal("lives in Lisbon"))
			Expect(result.Failed[0].Reason).To(ContainSubstring("invalid reconciliation decision"))

			// Nothing was written to the store or the ledger.
			matches, err := st.Search(ctx, scope, []float32{0.1, 0.2, 0.3}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(matches).To(BeEmpty())
		})

		It("fails the fact when an UPDATE carries no resolved content", func() {
			Expect(st.Upsert(ctx, &memory.Record{
				ID:        "mem-coffee",
				Scope:     scope,
				Content:   "likes coffee",
				Embedding: []float32{0.1, 0.2, 0.3},
				Version:   1,
			})).To(Succeed())

			extractor.Facts = []string{"prefers espresso"}
			classifier.Script("prefers espresso", &classify.Decision{
				Operation: classify.OpUpdate,
				TargetID:  "mem-coffee",
			})

			result, err := engine.Reconcile(ctx, Batch{Scope: scope, Messages: turns})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Committed).To(BeEmpty())
			Expect(result.Failed).To(HaveLen(1))

			stored, err := st.Get(ctx, "mem-coffee")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Content).To(Equal("likes coffee"))
			Expect(stored.Version).To(Equal(1))
		})

		It("fails the fact when an ADD names a target memory", func() {
			extractor.Facts = []string{"lives in Lisbon"}
			classifier.Script("lives in Lisbon", &classify.Decision{
				Operation: classify.OpAdd,
				TargetID:  "mem-somewhere",
				Content:   "lives in Lisbon",
			})

			result, err := engine.Reconcile(ctx, Batch{Scope: scope, Messages: turns})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Committed).To(BeEmpty())
			Expect(result.Failed).To(HaveLen(1))
		})
	})

	Describe("fact isolation", func() {
		It("continues the batch after one fact fails", func() {
			extractor.Facts = []string{"bad fact", "good fact"}
			classifier.Script("bad fact", &classify.Decision{
				Operation: classify.OpUpdate,
				TargetID:  "unknown",
				Content:   "whatever",
			})

			result, err := engine.Reconcile(ctx, Batch{Scope: scope, Messages: turns})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Failed).To(HaveLen(1))
			Expect(result.Committed).To(HaveLen(1))
			Expect(result.Committed[0].Content).To(Equal("good fact"))
		})

		It("applies facts sequentially so later facts see earlier writes", func() {
			extractor.Facts = []string{"likes espresso", "prefers filter coffee"}

			result, err := engine.Reconcile(ctx, Batch{Scope: scope, Messages: turns})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Committed).To(HaveLen(2))

			// The second classification saw the first fact's record as a
			// candidate.
			Expect(classifier.Candidates[0]).To(BeEmpty())
			Expect(classifier.Candidates[1]).To(HaveLen(1))
			Expect(classifier.Candidates[1][0].Content).To(Equal("likes espresso"))
		})
	})

	Describe("retries", func() {
		It("retries transient classification failures", func() {
			extractor.Facts = []string{"flaky fact"}
			classifier.FailOn["flaky fact"] = 2

			result, err := engine.Reconcile(ctx, Batch{Scope: scope, Messages: turns})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Committed).To(HaveLen(1))
			Expect(classifier.Calls).To(HaveLen(3))
		})

		It("fails the fact when classification exhausts its attempts", func() {
			extractor.Facts = []string{"flaky fact"}
			classifier.FailOn["flaky fact"] = 10

			result, err := engine.Reconcile(ctx, Batch{Scope: scope, Messages: turns})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Committed).To(BeEmpty())
			Expect(result.Failed).To(HaveLen(1))
			Expect(classifier.Calls).To(HaveLen(DefaultMaxAttempts))
		})

		It("retries transient store failures during apply", func() {
			flaky := testutils.NewFlakyStore(st)
			flaky.FailUpserts = 1

			eng, err := NewEngine(Config{
				Store:      flaky,
				Ledger:     ld,
				Embedder:   testutils.NewMockEmbedder(),
				Extractor:  testutils.NewMockExtractor("resilient fact"),
				Classifier: testutils.NewMockClassifier(),
				RetryBase:  time.Millisecond,
			}, zap.NewNop())
			Expect(err).NotTo(HaveOccurred())

			result, err := eng.Reconcile(ctx, Batch{Scope: scope, Messages: turns})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Committed).To(HaveLen(1))
			Expect(flaky.UpsertCalls).To(Equal(2))
		})
	})

	Describe("deferred ledger appends", func() {
		It("commits the fact and defers the event when the ledger stays down", func() {
			flaky := testutils.NewFlakyLedger(ld)
			flaky.FailAppends = DefaultMaxAttempts

			eng, err := NewEngine(Config{
				Store:      st,
				Ledger:     flaky,
				Embedder:   testutils.NewMockEmbedder(),
				Extractor:  testutils.NewMockExtractor("durable fact"),
				Classifier: testutils.NewMockClassifier(),
				RetryBase:  time.Millisecond,
			}, zap.NewNop())
			Expect(err).NotTo(HaveOccurred())

			result, err := eng.Reconcile(ctx, Batch{Scope: scope, Messages: turns})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Committed).To(HaveLen(1))
			Expect(result.Failed).To(BeEmpty())

			rec := result.Committed[0]

			// Store has the record, ledger does not, journal holds the event.
			_, err = st.Get(ctx, rec.ID)
			Expect(err).NotTo(HaveOccurred())

			events, err := ld.Events(ctx, rec.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(BeEmpty())
			Expect(eng.PendingAppends(scope)).To(Equal(1))

			// The next batch for the scope replays the deferred event before
			// doing anything else.
			eng.config.Extractor = testutils.NewMockExtractor()
			_, err = eng.Reconcile(ctx, Batch{Scope: scope, Messages: turns})
			Expect(err).NotTo(HaveOccurred())

			events, err = ld.Events(ctx, rec.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(1))
			Expect(events[0].Type).To(Equal(ledger.EventAdd))
			Expect(eng.PendingAppends(scope)).To(Equal(0))
		})

		It("aborts the batch when the replay itself cannot complete", func() {
			flaky := testutils.NewFlakyLedger(ld)
			flaky.FailAppends = DefaultMaxAttempts * 2

			eng, err := NewEngine(Config{
				Store:      st,
				Ledger:     flaky,
				Embedder:   testutils.NewMockEmbedder(),
				Extractor:  testutils.NewMockExtractor("durable fact"),
				Classifier: testutils.NewMockClassifier(),
				RetryBase:  time.Millisecond,
			}, zap.NewNop())
			Expect(err).NotTo(HaveOccurred())

			_, err = eng.Reconcile(ctx, Batch{Scope: scope, Messages: turns})
			Expect(err).NotTo(HaveOccurred())
			Expect(eng.PendingAppends(scope)).To(Equal(1))

			_, err = eng.Reconcile(ctx, Batch{Scope: scope, Messages: turns})
			Expect(err).To(MatchError(ledger.ErrUnavailable))
			Expect(eng.PendingAppends(scope)).To(Equal(1))
		})
	})

	Describe("scope isolation", func() {
		It("never offers another scope's memories as candidates", func() {
			other := memory.Scope{UserID: "bob"}
			Expect(st.Upsert(ctx, &memory.Record{
				ID:        "bob-mem",
				Scope:     other,
				Content:   "bob lives in Berlin",
				Embedding: []float32{0.1, 0.2, 0.3},
				Version:   1,
			})).To(Succeed())

			extractor.Facts = []string{"lives in Lisbon"}

			_, err := engine.Reconcile(ctx, Batch{Scope: scope, Messages: turns})
			Expect(err).NotTo(HaveOccurred())
			Expect(classifier.Candidates[0]).To(BeEmpty())
		})
	})

	Describe("same-scope concurrency", func() {
		It("serializes concurrent batches into the sequential end state", func() {
			eng, err := NewEngine(Config{
				Store:      st,
				Ledger:     ld,
				Embedder:   testutils.NewMockEmbedder(),
				Extractor:  testutils.NewMockExtractor("lives in Lisbon", "likes espresso"),
				Classifier: dedupingClassifier{},
				RetryBase:  time.Millisecond,
			}, zap.NewNop())
			Expect(err).NotTo(HaveOccurred())

			results := make([]*BatchResult, 2)
			var wg sync.WaitGroup
			for i := range results {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					defer GinkgoRecover()

					r, rerr := eng.Reconcile(ctx, Batch{Scope: scope, Messages: turns})
					Expect(rerr).NotTo(HaveOccurred())
					results[i] = r
				}(i)
			}
			wg.Wait()

			// Whichever batch held the gate first committed both facts; the
			// other saw them as candidates and resolved every fact to NONE.
			// An interleaved apply would split the commits between batches.
			committed := []int{len(results[0].Committed), len(results[1].Committed)}
			Expect(committed).To(ConsistOf(2, 0))
			Expect(results[0].Failed).To(BeEmpty())
			Expect(results[1].Failed).To(BeEmpty())

			matches, err := st.Search(ctx, scope, []float32{0.1, 0.2, 0.3}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(matches).To(HaveLen(2))

			contents := make([]string, 0, len(matches))
			for _, m := range matches {
				contents = append(contents, m.Record.Content)
				Expect(m.Record.Version).To(Equal(1))

				events, err := ld.Events(ctx, m.Record.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(events).To(HaveLen(1))
				Expect(events[0].Type).To(Equal(ledger.EventAdd))
			}
			Expect(contents).To(ConsistOf("lives in Lisbon", "likes espresso"))
		})
	})

	Describe("end to end", func() {
		It("evolves a preference across three batches", func() {
			// Batch 1: a new fact arrives.
			extractor.Facts = []string{"drinks espresso every morning"}
			result, err := engine.Reconcile(ctx, Batch{Scope: scope, Messages: turns})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Committed).To(HaveLen(1))
			memID := result.Committed[0].ID

			// Batch 2: the preference changes.
			extractor.Facts = []string{"switched to decaf"}
			classifier.Script("switched to decaf", &classify.Decision{
				Operation: classify.OpUpdate,
				TargetID:  memID,
				Content:   "drinks decaf every morning",
			})
			result, err = engine.Reconcile(ctx, Batch{Scope: scope, Messages: turns})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Committed).To(HaveLen(1))
			Expect(result.Committed[0].Version).To(Equal(2))

			// Batch 3: the habit is dropped entirely.
			extractor.Facts = []string{"quit coffee"}
			classifier.Script("quit coffee", &classify.Decision{
				Operation: classify.OpDelete,
				TargetID:  memID,
			})
			result, err = engine.Reconcile(ctx, Batch{Scope: scope, Messages: turns})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Committed).To(HaveLen(1))

			// The ledger replays the full lifecycle in order.
			events, err := ld.Events(ctx, memID)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(3))
			Expect(events[0].Type).To(Equal(ledger.EventAdd))
			Expect(events[1].Type).To(Equal(ledger.EventUpdate))
			Expect(events[1].PreviousContent).To(Equal("drinks espresso every morning"))
			Expect(events[2].Type).To(Equal(ledger.EventDelete))
			Expect(events[2].PreviousContent).To(Equal("drinks decaf every morning"))

			// And the store no longer surfaces the memory.
			matches, err := st.Search(ctx, scope, []float32{0.1, 0.2, 0.3}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(matches).To(BeEmpty())
		})
	})

	Describe("NewEngine", func() {
		It("requires every collaborator", func() {
			_, err := NewEngine(Config{}, zap.NewNop())
			Expect(err).To(HaveOccurred())
		})

		It("fills tuning defaults", func() {
			Expect(engine.config.CandidateLimit).To(Equal(DefaultCandidateLimit))
			Expect(engine.config.MaxAttempts).To(Equal(DefaultMaxAttempts))
		})
	})

	Describe("search result scores", func() {
		It("uses store search results directly as candidates", func() {
			Expect(st.Upsert(ctx, &memory.Record{
				ID:        "mem-close",
				Scope:     scope,
				Content:   "likes hiking",
				Embedding: []float32{0.1, 0.2, 0.3},
				Version:   1,
			})).To(Succeed())

			extractor.Facts = []string{"enjoys trail running"}
			_, err := engine.Reconcile(ctx, Batch{Scope: scope, Messages: turns})
			Expect(err).NotTo(HaveOccurred())

			Expect(classifier.Candidates[0]).To(ContainElement(classify.Candidate{
				ID:      "mem-close",
				Content: "likes hiking",
			}))
		})
	})
})

// dedupingClassifier adds unseen facts and resolves facts already present in
// the candidate set to NONE, so the end state of repeated submissions is
// deterministic regardless of which batch runs first.
type dedupingClassifier struct{}

func (dedupingClassifier) Classify(_ context.Context, fact string, _ []float32, candidates []classify.Candidate) (*classify.Decision, error) {
	for _, c := range candidates {
		if c.Content == fact {
			return &classify.Decision{Operation: classify.OpNone}, nil
		}
	}
	return &classify.Decision{Operation: classify.OpAdd, Content: fact}, nil
}

func (dedupingClassifier) Close() error { return nil }
