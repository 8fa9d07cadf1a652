package completion_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/engram/pkg/completion"
)

var _ = Describe("ExtractJSON", func() {
	It("returns a bare JSON object unchanged", func() {
		in := `{"operation": "NONE"}`
		Expect(completion.ExtractJSON(in)).To(Equal(in))
	})

	It("strips a markdown code fence around an object", func() {
		in := "```json\n{\"operation\": \"NONE\"}\n```"
		Expect(completion.ExtractJSON(in)).To(Equal(`{"operation": "NONE"}`))
	})

	It("strips surrounding prose", func() {
		in := `Sure, here is the decision: {"operation": "NONE"} Let me know if you need more.`
		Expect(completion.ExtractJSON(in)).To(Equal(`{"operation": "NONE"}`))
	})

	It("extracts a top-level array when no object is present", func() {
		in := "```json\n[\"fact one\", \"fact two\"]\n```"
		Expect(completion.ExtractJSON(in)).To(Equal(`["fact one", "fact two"]`))
	})

	It("keeps nested braces intact", func() {
		in := "prefix {\"facts\": [\"a\"], \"meta\": {\"count\": 1}} suffix"
		Expect(completion.ExtractJSON(in)).To(Equal(`{"facts": ["a"], "meta": {"count": 1}}`))
	})

	It("returns the input unchanged when no JSON is found", func() {
		in := "no structured output here"
		Expect(completion.ExtractJSON(in)).To(Equal(in))
	})
})

var _ = Describe("NewCaller", func() {
	It("creates an ollama caller without an API key", func() {
		call, err := completion.NewCaller(completion.Config{Provider: "ollama"})
		Expect(err).NotTo(HaveOccurred())
		Expect(call).NotTo(BeNil())
	})

	It("creates an openai caller with an explicit API key", func() {
		call, err := completion.NewCaller(completion.Config{Provider: "openai", APIKey: "sk-test"})
		Expect(err).NotTo(HaveOccurred())
		Expect(call).NotTo(BeNil())
	})

	It("creates an anthropic caller with an explicit API key", func() {
		call, err := completion.NewCaller(completion.Config{Provider: "anthropic", APIKey: "sk-test"})
		Expect(err).NotTo(HaveOccurred())
		Expect(call).NotTo(BeNil())
	})

	It("rejects an unsupported provider", func() {
		_, err := completion.NewCaller(completion.Config{Provider: "bedrock"})
		Expect(err).To(HaveOccurred())
	})
})
