package llm

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/shandley/crucible/internal/errors"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"

// systemPrompt frames every provider call; the prompt builders supply the
// task-specific body.
const systemPrompt = "You are a data quality expert. Be concise and specific. " +
	"Always respond with valid JSON when the task asks for it."

// AnthropicProvider calls the Anthropic Messages API.
type AnthropicProvider struct {
	client anthropic.Client
	config Config
}

// NewAnthropicProvider creates the provider; an API key is required.
func NewAnthropicProvider(config Config) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New(errors.CodeConfigInvalid, "anthropic provider requires an API key")
	}
	cfg := config.withDefaults(defaultAnthropicModel)
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
		config: cfg,
	}, nil
}

func (p *AnthropicProvider) Name() string  { return "anthropic" }
func (p *AnthropicProvider) Model() string { return p.config.Model }

// Complete sends a single-turn message and returns the text content.
func (p *AnthropicProvider) Complete(ctx context.Context, prompt string) (string, error) {
	message, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.config.Model),
		MaxTokens: int64(p.config.MaxTokens),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		if ctxErr := checkContext(ctx); ctxErr != nil {
			return "", ctxErr
		}
		return "", errors.LLMError("anthropic request failed", err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", errors.LLMError("no text content in anthropic response", nil)
}

// CompleteJSON completes and parses a strictly-shaped JSON response.
func (p *AnthropicProvider) CompleteJSON(ctx context.Context, prompt string, out interface{}) error {
	text, err := p.Complete(ctx, prompt)
	if err != nil {
		return err
	}
	return decodeJSON(text, out)
}
