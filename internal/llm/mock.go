package llm

import (
	"context"
	"sync"
)

// MockProvider is a scriptable provider used in tests and for local
// development without API keys. Outcomes are consumed in order; when the
// script is exhausted the last outcome repeats.
type MockProvider struct {
	name string

	mu      sync.Mutex
	script  []mockOutcome
	calls   int
	lastReq Request
}

type mockOutcome struct {
	resp *Response
	err  error
}

// NewMockProvider builds a provider that always echoes the prompt.
func NewMockProvider(name string) *MockProvider {
	m := &MockProvider{name: name}
	return m
}

func (m *MockProvider) Name() string { return m.name }

// Respond appends a success outcome to the script.
func (m *MockProvider) Respond(text string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, mockOutcome{resp: &Response{Text: text, Model: m.name + "-mock"}})
	return m
}

// Fail appends a failure outcome to the script.
func (m *MockProvider) Fail(kind FailureKind, err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, mockOutcome{err: Classify(m.name, kind, err)})
	return m
}

// Calls reports how many times Generate ran.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastRequest returns the most recent request seen.
func (m *MockProvider) LastRequest() Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastReq
}

func (m *MockProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, Classify(m.name, FailureTransient, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastReq = req

	if len(m.script) == 0 {
		return &Response{Text: "mock response: " + req.Prompt, Model: m.name + "-mock"}, nil
	}
	out := m.script[0]
	if len(m.script) > 1 {
		m.script = m.script[1:]
	}
	if out.err != nil {
		return nil, out.err
	}
	resp := *out.resp
	return &resp, nil
}
