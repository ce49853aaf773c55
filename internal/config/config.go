package config

import (
	"os"
	"strconv"
	"time"

	"github.com/shandley/crucible/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	LLM      LLMConfig
	Analysis AnalysisConfig
	Server   ServerConfig
	Cache    CacheConfig
}

// LLMConfig holds LLM provider settings
type LLMConfig struct {
	Provider    string // "anthropic", "openai", "ollama", "mock", "" (disabled)
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	CallTimeout time.Duration
	TotalBudget time.Duration
}

// AnalysisConfig holds inference and validation settings
type AnalysisConfig struct {
	Workers             int
	ConfidenceThreshold float64
	MaxRows             int // 0 = all
}

// ServerConfig holds review server settings
type ServerConfig struct {
	Port string
}

// CacheConfig holds LLM response cache settings
type CacheConfig struct {
	Path string // sqlite file; empty disables the persistent cache
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		LLM: LLMConfig{
			Provider:    os.Getenv("CRUCIBLE_LLM_PROVIDER"),
			APIKey:      firstEnv("CRUCIBLE_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY"),
			Model:       os.Getenv("CRUCIBLE_LLM_MODEL"),
			BaseURL:     os.Getenv("CRUCIBLE_LLM_BASE_URL"),
			MaxTokens:   envInt("CRUCIBLE_LLM_MAX_TOKENS", 1024),
			Temperature: envFloat("CRUCIBLE_LLM_TEMPERATURE", 0.3),
			CallTimeout: envDuration("CRUCIBLE_LLM_TIMEOUT", 30*time.Second),
			TotalBudget: envDuration("CRUCIBLE_LLM_BUDGET", 2*time.Minute),
		},
		Analysis: AnalysisConfig{
			Workers:             envInt("CRUCIBLE_WORKERS", 4),
			ConfidenceThreshold: envFloat("CRUCIBLE_CONFIDENCE_THRESHOLD", 0.7),
			MaxRows:             envInt("CRUCIBLE_MAX_ROWS", 0),
		},
		Server: ServerConfig{
			Port: envOr("CRUCIBLE_PORT", "8734"),
		},
		Cache: CacheConfig{
			Path: os.Getenv("CRUCIBLE_CACHE_PATH"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "", "mock", "ollama":
		// no key required
	case "anthropic", "openai":
		if c.LLM.APIKey == "" {
			return errors.New(errors.CodeConfigInvalid,
				"LLM provider "+c.LLM.Provider+" requires an API key")
		}
	default:
		return errors.New(errors.CodeConfigInvalid,
			"unknown LLM provider: "+c.LLM.Provider)
	}
	if c.Analysis.Workers < 1 {
		c.Analysis.Workers = 1
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
