package llm

import (
	"context"
	"sync"
)

var _ Generator = (*MockGenerator)(nil)

// MockCall records one Generate invocation.
type MockCall struct {
	Question string
	Context  string
}

// MockGenerator returns canned answers in order and records every call.
// Once the responses run out the last one repeats.
type MockGenerator struct {
	mu        sync.Mutex
	responses []string
	respIndex int
	calls     []MockCall
	err       error
}

// NewMockGenerator creates a mock returning responses in order.
func NewMockGenerator(responses ...string) *MockGenerator {
	return &MockGenerator{responses: responses}
}

func (m *MockGenerator) Name() string { return "mock" }

// SetError makes every subsequent Generate call fail with err.
func (m *MockGenerator) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockGenerator) Generate(ctx context.Context, question, docContext string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, MockCall{Question: question, Context: docContext})
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.err != nil {
		return "", m.err
	}
	if len(m.responses) == 0 {
		return NoAnswer, nil
	}
	resp := m.responses[m.respIndex]
	if m.respIndex < len(m.responses)-1 {
		m.respIndex++
	}
	return resp, nil
}

// Calls returns a copy of the recorded calls.
func (m *MockGenerator) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}
