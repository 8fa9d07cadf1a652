package worker

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/extract"
	ledgermem "github.com/papercomputeco/engram/pkg/ledger/inmemory"
	"github.com/papercomputeco/engram/pkg/memory"
	"github.com/papercomputeco/engram/pkg/reconcile"
	storemem "github.com/papercomputeco/engram/pkg/store/inmemory"
	testutils "github.com/papercomputeco/engram/pkg/utils/test"
)

// newTestPool creates a worker pool backed by in-memory drivers.
// Callers should "wp.Close()" to drain enqueued jobs before asserting store state.
func newTestPool(facts ...string) (*Pool, *storemem.Driver) {
	logger := zap.NewNop()
	st := storemem.NewDriver()

	engine, err := reconcile.NewEngine(reconcile.Config{
		Store:      st,
		Ledger:     ledgermem.NewDriver(),
		Embedder:   testutils.NewMockEmbedder(),
		Extractor:  testutils.NewMockExtractor(facts...),
		Classifier: testutils.NewMockClassifier(),
		RetryBase:  time.Millisecond,
	}, logger)
	Expect(err).NotTo(HaveOccurred())

	wp, err := NewPool(&Config{
		Engine: engine,
		Logger: logger,
	})
	Expect(err).NotTo(HaveOccurred())

	return wp, st
}

var _ = Describe("Worker Pool", func() {
	var (
		ctx   context.Context
		scope memory.Scope
	)

	BeforeEach(func() {
		ctx = context.Background()
		scope = memory.Scope{UserID: "alice"}
	})

	turns := []extract.Message{
		{Role: "user", Content: "I adopted a dog named Rex."},
	}

	Describe("NewPool", func() {
		It("requires an engine", func() {
			_, err := NewPool(&Config{Logger: zap.NewNop()})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Enqueue", func() {
		It("returns true when the queue has capacity", func() {
			wp, _ := newTestPool()
			ok := wp.Enqueue(Job{
				Batch: reconcile.Batch{Scope: scope, Messages: turns},
			})
			Expect(ok).To(BeTrue())
			wp.Close()
		})

		It("reconciles queued batches before Close returns", func() {
			wp, st := newTestPool("has a dog named Rex")

			ok := wp.Enqueue(Job{
				Batch: reconcile.Batch{Scope: scope, Messages: turns},
			})
			Expect(ok).To(BeTrue())

			wp.Close()

			matches, err := st.Search(ctx, scope, []float32{0.1, 0.2, 0.3}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(matches).To(HaveLen(1))
			Expect(matches[0].Record.Content).To(Equal("has a dog named Rex"))
		})

		It("keeps scopes independent across queued batches", func() {
			wp, st := newTestPool("shared fact")

			other := memory.Scope{UserID: "bob"}
			Expect(wp.Enqueue(Job{Batch: reconcile.Batch{Scope: scope, Messages: turns}})).To(BeTrue())
			Expect(wp.Enqueue(Job{Batch: reconcile.Batch{Scope: other, Messages: turns}})).To(BeTrue())

			wp.Close()

			for _, s := range []memory.Scope{scope, other} {
				matches, err := st.Search(ctx, s, []float32{0.1, 0.2, 0.3}, 10)
				Expect(err).NotTo(HaveOccurred())
				Expect(matches).To(HaveLen(1))
			}
		})
	})
})
