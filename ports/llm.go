package ports

import "context"

// Provider is the narrow capability pair every LLM backend implements.
// Complete returns free text; CompleteJSON parses a strictly-shaped JSON
// response into out.
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteJSON(ctx context.Context, prompt string, out interface{}) error

	// Name identifies the provider for logging and provenance markers.
	Name() string
	// Model identifies the model for cache keying.
	Model() string
}

// ResponseCache memoizes provider responses keyed by (prompt hash, model).
type ResponseCache interface {
	Get(promptHash, model string) (string, bool)
	Put(promptHash, model, response string) error
}
