// Package embedding turns text into vectors for similarity search.
package embedding

import (
	"context"
	"fmt"
	"time"
)

// Providers.
const (
	ProviderHash   = "hash"
	ProviderOllama = "ollama"
)

// Embedder converts free text into a vector.
// Model identifies the vector space; vectors from different models are not comparable.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// Config selects and configures an Embedder.
type Config struct {
	Provider   string
	BaseURL    string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// New builds the Embedder named by cfg.Provider.
func New(cfg Config) (Embedder, error) {
	switch cfg.Provider {
	case "", ProviderHash:
		return NewHasher(cfg.Dimensions), nil
	case ProviderOllama:
		return NewOllama(cfg), nil
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q", cfg.Provider)
	}
}
