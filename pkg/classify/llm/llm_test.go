package llm_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/classify"
	"github.com/papercomputeco/engram/pkg/classify/llm"
	"github.com/papercomputeco/engram/pkg/completion"
)

var _ = Describe("Classifier", func() {
	var (
		ctx        context.Context
		candidates []classify.Candidate
	)

	BeforeEach(func() {
		ctx = context.Background()
		candidates = []classify.Candidate{
			{ID: "mem-1", Content: "likes coffee"},
		}
	})

	classifierReturning := func(response string) *llm.Classifier {
		call := completion.CallFunc(func(_ context.Context, _ string) (string, error) {
			return response, nil
		})
		return llm.NewClassifier(call, zap.NewNop())
	}

	It("parses a plain JSON decision", func() {
		c := classifierReturning(`{"operation": "UPDATE", "target_memory_id": "mem-1", "resolved_content": "likes espresso"}`)

		decision, err := c.Classify(ctx, "likes espresso", nil, candidates)
		Expect(err).NotTo(HaveOccurred())
		Expect(decision.Operation).To(Equal(classify.OpUpdate))
		Expect(decision.TargetID).To(Equal("mem-1"))
		Expect(decision.Content).To(Equal("likes espresso"))
	})

	It("parses a decision wrapped in a markdown code fence", func() {
		c := classifierReturning("Here is my decision:\n```json\n{\"operation\": \"ADD\", \"resolved_content\": \"works at a bakery\"}\n```")

		decision, err := c.Classify(ctx, "works at a bakery", nil, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(decision.Operation).To(Equal(classify.OpAdd))
		Expect(decision.Content).To(Equal("works at a bakery"))
	})

	It("normalizes a lowercased operation", func() {
		c := classifierReturning(`{"operation": "none"}`)

		decision, err := c.Classify(ctx, "likes coffee", nil, candidates)
		Expect(err).NotTo(HaveOccurred())
		Expect(decision.Operation).To(Equal(classify.OpNone))
	})

	It("wraps call failures in ErrClassification", func() {
		call := completion.CallFunc(func(_ context.Context, _ string) (string, error) {
			return "", errors.New("connection refused")
		})
		c := llm.NewClassifier(call, zap.NewNop())

		_, err := c.Classify(ctx, "likes espresso", nil, candidates)
		Expect(err).To(MatchError(classify.ErrClassification))
	})

	It("wraps unparseable responses in ErrClassification", func() {
		c := classifierReturning("I think this is probably an update.")

		_, err := c.Classify(ctx, "likes espresso", nil, candidates)
		Expect(err).To(MatchError(classify.ErrClassification))
	})

	It("rejects a structurally invalid decision", func() {
		c := classifierReturning(`{"operation": "UPDATE", "resolved_content": "likes espresso"}`)

		_, err := c.Classify(ctx, "likes espresso", nil, candidates)
		Expect(err).To(MatchError(classify.ErrInvalidDecision))
	})

	It("includes each candidate in the prompt", func() {
		var prompt string
		call := completion.CallFunc(func(_ context.Context, p string) (string, error) {
			prompt = p
			return `{"operation": "NONE"}`, nil
		})
		c := llm.NewClassifier(call, zap.NewNop())

		_, err := c.Classify(ctx, "likes espresso", nil, []classify.Candidate{
			{ID: "mem-1", Content: "likes coffee"},
			{ID: "mem-2", Content: "works at a bakery"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(prompt).To(ContainSubstring("likes espresso"))
		Expect(prompt).To(ContainSubstring("mem-1"))
		Expect(prompt).To(ContainSubstring("likes coffee"))
		Expect(prompt).To(ContainSubstring("mem-2"))
		Expect(prompt).To(ContainSubstring("works at a bakery"))
	})
})
