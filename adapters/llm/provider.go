package llm

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/shandley/crucible/internal/errors"
	"github.com/shandley/crucible/ports"
)

// Config holds provider settings shared by all backends.
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

func (c *Config) withDefaults(defaultModel string) Config {
	out := *c
	if out.Model == "" {
		out.Model = defaultModel
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = 1024
	}
	if out.Timeout <= 0 {
		out.Timeout = 30 * time.Second
	}
	return out
}

// New creates a provider by name: "anthropic", "openai", "ollama", "mock".
// An empty name returns nil (augmentation disabled).
func New(name string, config Config) (ports.Provider, error) {
	switch name {
	case "":
		return nil, nil
	case "anthropic":
		return NewAnthropicProvider(config)
	case "openai":
		return NewOpenAIProvider(config)
	case "ollama":
		return NewOllamaProvider(config)
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, errors.Newf(errors.CodeConfigInvalid, "unknown LLM provider: %s", name)
	}
}

// decodeJSON strips markdown code fences and leading chatter before
// unmarshaling a model response into out.
func decodeJSON(content string, out interface{}) error {
	cleaned := cleanJSONContent(content)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return errors.LLMError("parse structured response", err)
	}
	return nil
}

// cleanJSONContent removes markdown wrappers and text preceding the first
// JSON object or array.
func cleanJSONContent(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}

	// Drop prefix chatter before the first brace/bracket.
	objIdx := strings.IndexAny(content, "{[")
	if objIdx > 0 {
		content = content[objIdx:]
	}
	return content
}

// checkContext converts context errors into the crucible error taxonomy.
func checkContext(ctx context.Context) error {
	switch ctx.Err() {
	case context.Canceled:
		return errors.Cancelled("llm call cancelled")
	case context.DeadlineExceeded:
		return errors.LLMError("llm call timed out", ctx.Err())
	}
	return nil
}
