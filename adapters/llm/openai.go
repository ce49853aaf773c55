package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shandley/crucible/internal/errors"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIProvider calls the OpenAI chat completions API.
type OpenAIProvider struct {
	config Config
	client *http.Client
}

// NewOpenAIProvider creates the provider; an API key is required.
func NewOpenAIProvider(config Config) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New(errors.CodeConfigInvalid, "openai provider requires an API key")
	}
	cfg := config.withDefaults(defaultOpenAIModel)
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (p *OpenAIProvider) Name() string  { return "openai" }
func (p *OpenAIProvider) Model() string { return p.config.Model }

func (p *OpenAIProvider) Complete(ctx context.Context, prompt string) (string, error) {
	type message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	type requestBody struct {
		Model       string    `json:"model"`
		Messages    []message `json:"messages"`
		Temperature float64   `json:"temperature,omitempty"`
		MaxTokens   int       `json:"max_tokens,omitempty"`
	}

	body := requestBody{
		Model: p.config.Model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: p.config.Temperature,
		MaxTokens:   p.config.MaxTokens,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", errors.LLMError("marshal request", err)
	}

	url := strings.TrimRight(p.config.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return "", errors.LLMError("build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if ctxErr := checkContext(ctx); ctxErr != nil {
			return "", ctxErr
		}
		return "", errors.LLMError("openai request failed", err)
	}
	defer resp.Body.Close()

	respRaw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.LLMError("read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.LLMError(fmt.Sprintf("openai http %d: %s", resp.StatusCode, respRaw), nil)
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respRaw, &decoded); err != nil {
		return "", errors.LLMError("unmarshal response", err)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.LLMError("openai response missing choices", nil)
	}
	return decoded.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) CompleteJSON(ctx context.Context, prompt string, out interface{}) error {
	text, err := p.Complete(ctx, prompt)
	if err != nil {
		return err
	}
	return decodeJSON(text, out)
}
