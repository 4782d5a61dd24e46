package internal

import (
	"io"

	"github.com/starford/ansuz/internal/embedding"
	"github.com/starford/ansuz/internal/llm"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	version   string
	logOutput io.Writer
	embedder  embedding.Embedder
	generator llm.Generator
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}

// WithLogOutput redirects the structured logger (stdout by default).
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}

// WithEmbedder overrides the embedder built from configuration.
func WithEmbedder(e embedding.Embedder) Option {
	return func(a *application) {
		a.embedder = e
	}
}

// WithGenerator overrides the generator built from configuration.
func WithGenerator(g llm.Generator) Option {
	return func(a *application) {
		a.generator = g
	}
}
