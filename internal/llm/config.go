package llm

import (
	"context"
	"fmt"
	"time"
)

// Config selects and configures the generation backend.
type Config struct {
	// Provider is one of "openai", "anthropic", "gemini", "mock".
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
	Retry    RetryConfig
}

// DefaultConfig returns the configuration used when no flags are set.
func DefaultConfig() Config {
	return Config{
		Provider: "openai",
		Model:    "gpt-4o-mini",
		Timeout:  15 * time.Second,
		Retry:    DefaultRetry(),
	}
}

// Validate checks that the selected provider has what it needs.
func (c Config) Validate() error {
	switch c.Provider {
	case "openai":
		// Local OpenAI-compatible servers often run without a key.
		if c.APIKey == "" && c.BaseURL == "" {
			return fmt.Errorf("an API key or base URL is required for the openai provider")
		}
	case "anthropic", "gemini":
		if c.APIKey == "" {
			return fmt.Errorf("an API key is required for the %s provider", c.Provider)
		}
	case "mock":
	default:
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	if c.Model == "" && c.Provider != "mock" {
		return fmt.Errorf("model name is required")
	}
	return nil
}

// NewGenerator builds a Generator from configuration, wrapped as
// caller → timeout → retry → logging → provider.
func NewGenerator(ctx context.Context, cfg Config) (Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var base Generator
	var err error
	switch cfg.Provider {
	case "openai":
		base = New(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case "anthropic":
		base, err = NewAnthropic(cfg.APIKey, cfg.Model, cfg.BaseURL)
	case "gemini":
		base, err = NewGemini(ctx, cfg.APIKey, cfg.Model)
	case "mock":
		base = NewMock()
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	g := WithLogging(base)
	g = WithRetry(g, cfg.Retry)
	return WithTimeout(g, cfg.Timeout), nil
}
