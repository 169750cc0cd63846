package provider

import (
	"context"
	"strings"
	"sync"
)

// MockProvider returns scripted responses, keyed by a substring of the
// system prompt, with an optional per-call error script. Used in tests and
// offline development.
type MockProvider struct {
	mu        sync.Mutex
	responses map[string]string
	fallback  string
	errs      map[string]error
	calls     []string
}

// NewMockProvider creates a mock with no scripted responses; Complete
// returns an empty fallback until responses are added.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		responses: make(map[string]string),
		errs:      make(map[string]error),
	}
}

// Respond scripts a response for any call whose system prompt contains key.
func (p *MockProvider) Respond(key, response string) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses[key] = response
	return p
}

// Fallback sets the response for unscripted calls.
func (p *MockProvider) Fallback(response string) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fallback = response
	return p
}

// Fail scripts an error for any call whose system prompt contains key.
func (p *MockProvider) Fail(key string, err error) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[key] = err
	return p
}

// Calls returns the system prompts of all calls made so far.
func (p *MockProvider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	copy(out, p.calls)
	return out
}

// Complete implements Provider.Complete.
func (p *MockProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, systemPrompt)

	for key, err := range p.errs {
		if strings.Contains(systemPrompt, key) {
			return "", err
		}
	}
	for key, response := range p.responses {
		if strings.Contains(systemPrompt, key) {
			return response, nil
		}
	}
	return p.fallback, nil
}

// Name implements Provider.Name.
func (p *MockProvider) Name() string {
	return BackendMock
}

// Model implements Provider.Model.
func (p *MockProvider) Model() string {
	return "mock"
}
