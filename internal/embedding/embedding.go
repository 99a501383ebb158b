// Package embedding turns text into vectors for the guidance search
// index. Two wire formats are supported: OpenAI-compatible batch APIs
// and Ollama-style per-text endpoints.
package embedding

import (
	"context"
	"fmt"
)

// Provider generates vector embeddings from text.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Config holds embedding provider configuration.
type Config struct {
	Provider  string `json:"provider"` // "api" or "local"
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
}

// FromConfig builds the configured provider. An empty provider name
// returns nil, nil: embedding is optional and the search index stays
// disabled without it.
func FromConfig(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "api", "openai":
		return NewAPIProvider(cfg), nil
	case "local", "ollama":
		return NewLocalProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
