package embedder

import (
	"fmt"
	"os"
	"strings"
)

// Config holds embedder configuration
type Config struct {
	Provider  string  // jina, openai, local; empty auto-detects
	APIKey    string  // falls back to the provider's environment variable
	Endpoint  string  // overrides the provider URL
	Model     string  // overrides the provider default model
	RateLimit float64 // requests per second, 0 uses DefaultRateLimit
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	provider := strings.ToLower(cfg.Provider)
	if provider == "" {
		provider = DetectProvider()
	}

	rateLimit := cfg.RateLimit
	if rateLimit == 0 {
		rateLimit = DefaultRateLimit
	}
	opts := []ProviderOption{
		WithEndpoint(cfg.Endpoint),
		WithModel(cfg.Model),
		WithRateLimit(rateLimit),
	}

	switch provider {
	case ProviderJina:
		return NewJinaProvider(cfg.APIKey, opts...)
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.APIKey, opts...)
	case ProviderLocal:
		return NewLocalProvider()
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// NewFromEnv creates an embedder based on environment variables
func NewFromEnv() (Embedder, error) {
	return New(Config{})
}

// DetectProvider returns the provider selected by the environment:
//  1. CODEGRAPH_EMBEDDING_PROVIDER (jina, openai, local)
//  2. JINA_API_KEY, then OPENAI_API_KEY
//  3. local
func DetectProvider() string {
	provider := os.Getenv(EnvProvider)
	if provider != "" {
		return strings.ToLower(provider)
	}

	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}

	return ProviderLocal
}
