// Package llm provides text-generation clients.
package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Providers.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// DefaultTimeout bounds a single generation request.
const DefaultTimeout = 120 * time.Second

// Generator produces a completion for a prompt. Failures are returned, never retried.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Options are the sampling parameters sent with every request.
type Options struct {
	Temperature     float64
	TopP            float64
	TopK            int
	MaxOutputTokens int
}

// DefaultOptions returns the sampling parameters used when none are configured.
func DefaultOptions() Options {
	return Options{
		Temperature:     0.7,
		TopP:            0.95,
		TopK:            64,
		MaxOutputTokens: 1000,
	}
}

// Config selects and configures a Generator.
type Config struct {
	Provider string
	BaseURL  string
	Model    string
	APIKey   string
	Timeout  time.Duration
	Options  Options

	// RequestsPerSecond throttles outgoing calls; zero disables throttling.
	RequestsPerSecond float64
	Burst             int
}

// New builds the Generator named by cfg.Provider.
func New(cfg Config) (Generator, error) {
	switch cfg.Provider {
	case "", ProviderGemini:
		return NewGemini(cfg), nil
	case ProviderOllama:
		return NewOllama(cfg), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

func newLimiter(cfg Config) *rate.Limiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
}

func wait(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	if err := l.Wait(ctx); err != nil {
		return fmt.Errorf("llm: rate limit: %w", err)
	}
	return nil
}
