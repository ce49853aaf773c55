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

const defaultOllamaModel = "llama3.1"

// OllamaProvider calls a local Ollama-compatible HTTP runtime.
type OllamaProvider struct {
	config Config
	client *http.Client
}

// NewOllamaProvider creates the provider. No API key is needed.
func NewOllamaProvider(config Config) (*OllamaProvider, error) {
	cfg := config.withDefaults(defaultOllamaModel)
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (p *OllamaProvider) Name() string  { return "ollama" }
func (p *OllamaProvider) Model() string { return p.config.Model }

func (p *OllamaProvider) Complete(ctx context.Context, prompt string) (string, error) {
	type requestBody struct {
		Model   string `json:"model"`
		System  string `json:"system,omitempty"`
		Prompt  string `json:"prompt"`
		Stream  bool   `json:"stream"`
		Options struct {
			Temperature float64 `json:"temperature,omitempty"`
			NumPredict  int     `json:"num_predict,omitempty"`
		} `json:"options"`
	}

	body := requestBody{
		Model:  p.config.Model,
		System: systemPrompt,
		Prompt: prompt,
		Stream: false,
	}
	body.Options.Temperature = p.config.Temperature
	body.Options.NumPredict = p.config.MaxTokens

	raw, err := json.Marshal(body)
	if err != nil {
		return "", errors.LLMError("marshal request", err)
	}

	url := strings.TrimRight(p.config.BaseURL, "/") + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return "", errors.LLMError("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if ctxErr := checkContext(ctx); ctxErr != nil {
			return "", ctxErr
		}
		return "", errors.LLMError("ollama request failed", err)
	}
	defer resp.Body.Close()

	respRaw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.LLMError("read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.LLMError(fmt.Sprintf("ollama http %d: %s", resp.StatusCode, respRaw), nil)
	}

	var decoded struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(respRaw, &decoded); err != nil {
		return "", errors.LLMError("unmarshal response", err)
	}
	if decoded.Response == "" {
		return "", errors.LLMError("empty ollama response", nil)
	}
	return decoded.Response, nil
}

func (p *OllamaProvider) CompleteJSON(ctx context.Context, prompt string, out interface{}) error {
	text, err := p.Complete(ctx, prompt)
	if err != nil {
		return err
	}
	return decodeJSON(text, out)
}
