package llm_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/completion"
	"github.com/papercomputeco/engram/pkg/extract"
	"github.com/papercomputeco/engram/pkg/extract/llm"
	"github.com/papercomputeco/engram/pkg/memory"
)

var _ = Describe("Extractor", func() {
	var (
		ctx      context.Context
		scope    memory.Scope
		messages []extract.Message
	)

	BeforeEach(func() {
		ctx = context.Background()
		scope = memory.Scope{UserID: "alice"}
		messages = []extract.Message{
			{Role: "user", Content: "I switched to decaf last month"},
			{Role: "assistant", Content: "Noted, decaf it is."},
		}
	})

	extractorReturning := func(response string) *llm.Extractor {
		call := completion.CallFunc(func(_ context.Context, _ string) (string, error) {
			return response, nil
		})
		return llm.NewExtractor(call, zap.NewNop())
	}

	It("parses facts from a plain JSON response", func() {
		e := extractorReturning(`{"facts": ["switched to decaf", "drinks coffee daily"]}`)

		facts, err := e.Extract(ctx, messages, scope)
		Expect(err).NotTo(HaveOccurred())
		Expect(facts).To(Equal([]string{"switched to decaf", "drinks coffee daily"}))
	})

	It("parses facts wrapped in a markdown code fence", func() {
		e := extractorReturning("```json\n{\"facts\": [\"switched to decaf\"]}\n```")

		facts, err := e.Extract(ctx, messages, scope)
		Expect(err).NotTo(HaveOccurred())
		Expect(facts).To(Equal([]string{"switched to decaf"}))
	})

	It("returns no facts for an empty facts array", func() {
		e := extractorReturning(`{"facts": []}`)

		facts, err := e.Extract(ctx, messages, scope)
		Expect(err).NotTo(HaveOccurred())
		Expect(facts).To(BeEmpty())
	})

	It("drops empty and whitespace-only fact strings", func() {
		e := extractorReturning(`{"facts": ["switched to decaf", "", "   "]}`)

		facts, err := e.Extract(ctx, messages, scope)
		Expect(err).NotTo(HaveOccurred())
		Expect(facts).To(Equal([]string{"switched to decaf"}))
	})

	It("skips the call entirely for empty messages", func() {
		called := false
		call := completion.CallFunc(func(_ context.Context, _ string) (string, error) {
			called = true
			return `{"facts": ["should not happen"]}`, nil
		})
		e := llm.NewExtractor(call, zap.NewNop())

		facts, err := e.Extract(ctx, nil, scope)
		Expect(err).NotTo(HaveOccurred())
		Expect(facts).To(BeEmpty())
		Expect(called).To(BeFalse())
	})

	It("wraps call failures in ErrExtraction", func() {
		call := completion.CallFunc(func(_ context.Context, _ string) (string, error) {
			return "", errors.New("connection refused")
		})
		e := llm.NewExtractor(call, zap.NewNop())

		_, err := e.Extract(ctx, messages, scope)
		Expect(err).To(MatchError(extract.ErrExtraction))
	})

	It("wraps unparseable responses in ErrExtraction", func() {
		e := extractorReturning("The user seems to prefer decaf now.")

		_, err := e.Extract(ctx, messages, scope)
		Expect(err).To(MatchError(extract.ErrExtraction))
	})

	It("includes every message in the prompt", func() {
		var prompt string
		call := completion.CallFunc(func(_ context.Context, p string) (string, error) {
			prompt = p
			return `{"facts": []}`, nil
		})
		e := llm.NewExtractor(call, zap.NewNop())

		_, err := e.Extract(ctx, messages, scope)
		Expect(err).NotTo(HaveOccurred())
		Expect(prompt).To(ContainSubstring("I switched to decaf last month"))
		Expect(prompt).To(ContainSubstring("Noted, decaf it is."))
		Expect(prompt).To(ContainSubstring("[user]"))
		Expect(prompt).To(ContainSubstring("[assistant]"))
	})
})
