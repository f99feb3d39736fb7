package llm

import (
	"fmt"
	"strings"

	"github.com/scanforge/api/internal/config"
)

// NewProvider creates the configured LLM provider. It returns
// ErrProviderNotConfigured when no credentials are present so callers can
// treat enrichment as disabled rather than broken.
func NewProvider(cfg *config.EnrichmentConfig) (Provider, error) {
	if !cfg.IsConfigured() {
		return nil, ErrProviderNotConfigured
	}

	provider := strings.ToLower(cfg.Provider)
	if provider == "" {
		// Credentials imply the provider when only one set is present.
		switch {
		case cfg.AnthropicAPIKey != "":
			provider = "claude"
		case cfg.OpenAIAPIKey != "":
			provider = "openai"
		}
	}

	switch provider {
	case "claude", "anthropic":
		return NewClaudeProvider(ClaudeConfig{
			APIKey:     cfg.AnthropicAPIKey,
			Model:      cfg.Model,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
		})
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.Model,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidProvider, cfg.Provider)
	}
}
