// Package llm implements classify.Classifier over a completion.CallFunc.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/classify"
	"github.com/papercomputeco/engram/pkg/completion"
)

// Classifier classifies facts against candidate memories via an LLM call.
type Classifier struct {
	call   completion.CallFunc
	logger *zap.Logger
}

// NewClassifier creates an LLM-backed decision classifier.
func NewClassifier(call completion.CallFunc, logger *zap.Logger) *Classifier {
	return &Classifier{
		call:   call,
		logger: logger,
	}
}

// Classify produces exactly one decision for the fact. The fact embedding is
// unused here — retrieval already spent it — but stays in the contract so
// non-LLM classifiers can rank candidates themselves.
func (c *Classifier) Classify(ctx context.Context, fact string, _ []float32, candidates []classify.Candidate) (*classify.Decision, error) {
	response, err := c.call(ctx, buildDecisionPrompt(fact, candidates))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", classify.ErrClassification, err)
	}

	var decision classify.Decision
	if err := json.Unmarshal([]byte(completion.ExtractJSON(response)), &decision); err != nil {
		return nil, fmt.Errorf("%w: unmarshal decision JSON: %v", classify.ErrClassification, err)
	}

	// Normalize: models like to lowercase the operation.
	decision.Operation = classify.Operation(strings.ToUpper(string(decision.Operation)))

	if err := decision.Validate(); err != nil {
		return nil, err
	}

	c.logger.Debug("classified fact",
		zap.String("operation", string(decision.Operation)),
		zap.String("target_memory_id", decision.TargetID),
		zap.Int("candidates", len(candidates)),
	)

	return &decision, nil
}

// Close is a no-op; the underlying caller holds no resources.
func (c *Classifier) Close() error {
	return nil
}

func buildDecisionPrompt(fact string, candidates []classify.Candidate) string {
	var b strings.Builder
	b.WriteString("You reconcile a new fact against a user's existing memories.\n")
	b.WriteString("Decide exactly one operation:\n")
	b.WriteString("- ADD: the fact is new information not covered by any existing memory\n")
	b.WriteString("- UPDATE: the fact refines or contradicts one existing memory; resolved_content is the corrected text\n")
	b.WriteString("- DELETE: the fact invalidates one existing memory entirely\n")
	b.WriteString("- NONE: the fact is already captured or adds nothing\n\n")
	b.WriteString("Return ONLY valid JSON of the form:\n")
	b.WriteString("{\"operation\": \"ADD|UPDATE|DELETE|NONE\", \"target_memory_id\": \"id or omit\", \"resolved_content\": \"text or omit\"}\n\n")
	fmt.Fprintf(&b, "New fact: %s\n\n", fact)

	if len(candidates) == 0 {
		b.WriteString("Existing memories: none\n")
		return b.String()
	}

	b.WriteString("Existing memories:\n")
	for _, cand := range candidates {
		fmt.Fprintf(&b, "- id=%s content=%q\n", cand.ID, cand.Content)
	}

	return b.String()
}

var _ classify.Classifier = (*Classifier)(nil)
