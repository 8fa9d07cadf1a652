// Package llm implements extract.Extractor over a completion.CallFunc.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/completion"
	"github.com/papercomputeco/engram/pkg/extract"
	"github.com/papercomputeco/engram/pkg/memory"
)

// Extractor extracts facts from conversations via an LLM completion call.
type Extractor struct {
	call   completion.CallFunc
	logger *zap.Logger
}

// NewExtractor creates an LLM-backed fact extractor.
func NewExtractor(call completion.CallFunc, logger *zap.Logger) *Extractor {
	return &Extractor{
		call:   call,
		logger: logger,
	}
}

// factsResponse is the JSON shape the extraction prompt asks for.
type factsResponse struct {
	Facts []string `json:"facts"`
}

// Extract returns the facts found in the messages, in extraction order.
func (e *Extractor) Extract(ctx context.Context, messages []extract.Message, scope memory.Scope) ([]string, error) {
	if len(messages) == 0 {
		return nil, nil
	}

	response, err := e.call(ctx, buildExtractionPrompt(messages))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", extract.ErrExtraction, err)
	}

	var parsed factsResponse
	if err := json.Unmarshal([]byte(completion.ExtractJSON(response)), &parsed); err != nil {
		return nil, fmt.Errorf("%w: unmarshal facts JSON: %v", extract.ErrExtraction, err)
	}

	// Drop empty strings the model occasionally emits.
	facts := make([]string, 0, len(parsed.Facts))
	for _, f := range parsed.Facts {
		if f = strings.TrimSpace(f); f != "" {
			facts = append(facts, f)
		}
	}

	e.logger.Debug("extracted facts",
		zap.String("scope", scope.Key()),
		zap.Int("messages", len(messages)),
		zap.Int("facts", len(facts)),
	)

	return facts, nil
}

// Close is a no-op; the underlying caller holds no resources.
func (e *Extractor) Close() error {
	return nil
}

func buildExtractionPrompt(messages []extract.Message) string {
	var b strings.Builder
	b.WriteString("You distill conversations into durable facts about the user and their world.\n")
	b.WriteString("Extract only lasting, self-contained facts (preferences, attributes, plans, relationships).\n")
	b.WriteString("Ignore small talk, transient requests, and anything about the assistant itself.\n")
	b.WriteString("Return ONLY valid JSON of the form:\n\n")
	b.WriteString("{\"facts\": [\"fact one\", \"fact two\"]}\n\n")
	b.WriteString("Return {\"facts\": []} if the conversation contains nothing durable.\n\n")
	b.WriteString("Conversation:\n")
	for _, msg := range messages {
		fmt.Fprintf(&b, "[%s] %s\n", msg.Role, msg.Content)
	}
	return b.String()
}

var _ extract.Extractor = (*Extractor)(nil)
