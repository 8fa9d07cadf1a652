package testutils

import (
	"context"
	"fmt"

	"github.com/papercomputeco/engram/pkg/classify"
)

// MockClassifier is a test classifier that returns scripted decisions per
// fact. Unscripted facts resolve to ADD with the fact as content.
type MockClassifier struct {
	// Decisions maps a fact to the decision Classify returns for it.
	Decisions map[string]*classify.Decision

	// FailOn maps a fact to how many times Classify fails for it before
	// succeeding. Useful for exercising retry behavior.
	FailOn map[string]int

	// Calls accumulates every fact passed to Classify.
	Calls []string

	// Candidates records the candidate set offered for each call.
	Candidates [][]classify.Candidate
}

func NewMockClassifier() *MockClassifier {
	return &MockClassifier{
		Decisions: make(map[string]*classify.Decision),
		FailOn:    make(map[string]int),
	}
}

// Script sets the decision returned for a fact.
func (m *MockClassifier) Script(fact string, decision *classify.Decision) {
	m.Decisions[fact] = decision
}

func (m *MockClassifier) Classify(_ context.Context, fact string, _ []float32, candidates []classify.Candidate) (*classify.Decision, error) {
	m.Calls = append(m.Calls, fact)
	m.Candidates = append(m.Candidates, candidates)

	if remaining, ok := m.FailOn[fact]; ok && remaining > 0 {
		m.FailOn[fact] = remaining - 1
		return nil, fmt.Errorf("%w: mock classification failure for: %s", classify.ErrClassification, fact)
	}

	if d, ok := m.Decisions[fact]; ok {
		return d, nil
	}

	return &classify.Decision{
		Operation: classify.OpAdd,
		Content:   fact,
	}, nil
}

func (m *MockClassifier) Close() error {
	return nil
}
