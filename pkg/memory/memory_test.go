package memory_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/engram/pkg/memory"
)

var _ = Describe("Scope", func() {
	Describe("IsZero", func() {
		It("reports true when no component is set", func() {
			Expect(memory.Scope{}.IsZero()).To(BeTrue())
		})

		It("reports false when any component is set", func() {
			Expect(memory.Scope{UserID: "alice"}.IsZero()).To(BeFalse())
			Expect(memory.Scope{AgentID: "support-bot"}.IsZero()).To(BeFalse())
			Expect(memory.Scope{RunID: "run-7"}.IsZero()).To(BeFalse())
		})
	})

	Describe("Key", func() {
		It("produces equal keys for equal scopes", func() {
			a := memory.Scope{UserID: "alice", AgentID: "support-bot"}
			b := memory.Scope{UserID: "alice", AgentID: "support-bot"}
			Expect(a.Key()).To(Equal(b.Key()))
		})

		It("produces distinct keys for distinct scopes", func() {
			a := memory.Scope{UserID: "alice"}
			b := memory.Scope{UserID: "bob"}
			Expect(a.Key()).NotTo(Equal(b.Key()))
		})

		It("keeps components positional so values cannot collide across fields", func() {
			a := memory.Scope{UserID: "x"}
			b := memory.Scope{AgentID: "x"}
			Expect(a.Key()).NotTo(Equal(b.Key()))
		})
	})
})

var _ = Describe("Record", func() {
	Describe("Clone", func() {
		It("returns nil for a nil record", func() {
			var rec *memory.Record
			Expect(rec.Clone()).To(BeNil())
		})

		It("deep copies the embedding and metadata", func() {
			rec := &memory.Record{
				ID:        "mem-1",
				Content:   "likes espresso",
				Embedding: []float32{0.1, 0.2, 0.3},
				Metadata:  map[string]string{"source": "chat"},
				Version:   1,
			}

			clone := rec.Clone()
			clone.Embedding[0] = 9.9
			clone.Metadata["source"] = "import"
			clone.Content = "changed"

			Expect(rec.Embedding[0]).To(Equal(float32(0.1)))
			Expect(rec.Metadata["source"]).To(Equal("chat"))
			Expect(rec.Content).To(Equal("likes espresso"))
		})
	})

	Describe("MergeMetadata", func() {
		It("overwrites existing keys and keeps the rest", func() {
			rec := &memory.Record{
				Metadata: map[string]string{"source": "chat", "lang": "en"},
			}

			rec.MergeMetadata(map[string]string{"source": "import", "topic": "coffee"})

			Expect(rec.Metadata).To(Equal(map[string]string{
				"source": "import",
				"lang":   "en",
				"topic":  "coffee",
			}))
		})

		It("initializes the map when the record has none", func() {
			rec := &memory.Record{}
			rec.MergeMetadata(map[string]string{"source": "chat"})
			Expect(rec.Metadata).To(HaveKeyWithValue("source", "chat"))
		})

		It("leaves a nil map nil when merging nothing", func() {
			rec := &memory.Record{}
			rec.MergeMetadata(nil)
			Expect(rec.Metadata).To(BeNil())
		})
	})
})
