package testutils

import (
	"context"
	"fmt"

	"github.com/papercomputeco/engram/pkg/extract"
	"github.com/papercomputeco/engram/pkg/memory"
)

// MockExtractor is a test extractor that returns a fixed fact list.
type MockExtractor struct {
	// Facts is returned by Extract for any input.
	Facts []string

	// Fail causes Extract to return an error.
	Fail bool

	// Calls accumulates the message batches passed to Extract.
	Calls [][]extract.Message
}

func NewMockExtractor(facts ...string) *MockExtractor {
	return &MockExtractor{Facts: facts}
}

func (m *MockExtractor) Extract(_ context.Context, messages []extract.Message, _ memory.Scope) ([]string, error) {
	m.Calls = append(m.Calls, messages)

	if m.Fail {
		return nil, fmt.Errorf("%w: mock extraction failure", extract.ErrExtraction)
	}

	return m.Facts, nil
}

func (m *MockExtractor) Close() error {
	return nil
}
