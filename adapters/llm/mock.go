package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
)

// MockProvider is a deterministic provider for tests and offline runs. The
// same prompt always yields the same response, derived from the prompt
// hash; canned responses can override specific prompts.
type MockProvider struct {
	mu        sync.Mutex
	responses map[string]string // prompt substring -> response
	Err       error             // simulate provider failure
	Calls     []string
}

// NewMockProvider creates an empty deterministic mock.
func NewMockProvider() *MockProvider {
	return &MockProvider{responses: map[string]string{}}
}

// Respond registers a canned response for prompts containing the substring.
func (p *MockProvider) Respond(promptSubstring, response string) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses[promptSubstring] = response
	return p
}

func (p *MockProvider) Name() string  { return "mock" }
func (p *MockProvider) Model() string { return "mock-model" }

func (p *MockProvider) Complete(ctx context.Context, prompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return "", p.Err
	}
	p.Calls = append(p.Calls, prompt)

	keys := make([]string, 0, len(p.responses))
	for substring := range p.responses {
		keys = append(keys, substring)
	}
	sort.Strings(keys)
	for _, substring := range keys {
		if strings.Contains(prompt, substring) {
			return p.responses[substring], nil
		}
	}

	// Default: a refinement-shaped response deterministic in the prompt.
	h := fnv.New64a()
	h.Write([]byte(prompt))
	return fmt.Sprintf(
		`{"insight": "mock insight %016x", "suggested_role": null, "confidence": 0.5}`,
		h.Sum64()), nil
}

func (p *MockProvider) CompleteJSON(ctx context.Context, prompt string, out interface{}) error {
	text, err := p.Complete(ctx, prompt)
	if err != nil {
		return err
	}
	return decodeJSON(text, out)
}
