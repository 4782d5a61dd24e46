package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ansuz/internal/chunker"
	"github.com/starford/ansuz/internal/conversation"
	"github.com/starford/ansuz/internal/embedding"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/llm"
	"github.com/starford/ansuz/internal/retrieval"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/vectorstore"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App          ApplicationConfig  `yaml:"app"`
	Vault        VaultConfig        `yaml:"vault"`
	SQLite       SQLiteConfig       `yaml:"sqlite"`
	Auth         AuthConfig         `yaml:"auth"`
	Chunker      ChunkerConfig      `yaml:"chunker"`
	Retrieval    RetrievalConfig    `yaml:"retrieval"`
	Conversation ConversationConfig `yaml:"conversation"`
	Sync         SyncConfig         `yaml:"sync"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Generation   GenerationConfig   `yaml:"generation"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{
		&c.App, &c.Vault, &c.SQLite, &c.Auth, &c.Chunker, &c.Retrieval,
		&c.Conversation, &c.Sync, &c.Embedding, &c.Generation,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig describes the Markdown vault being indexed.
//
// Only files ending in Extension are indexed. Ignore holds doublestar globs
// matched against vault-relative paths (e.g. "chats/**", "templates/*.md").
type VaultConfig struct {
	Path      string   `yaml:"path"`
	Extension string   `yaml:"extension"`
	Ignore    []string `yaml:"ignore"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Extension, validation.Required, validation.Length(2, 16)),
		validation.Field(&c.Ignore, validation.Each(validation.By(func(v interface{}) error {
			return storage.ValidatePattern(v.(string))
		}))),
	)
}

// StorageOptions returns the storage.FS options for this vault.
func (c *VaultConfig) StorageOptions() []storage.Option {
	return []storage.Option{
		storage.WithExtension(c.Extension),
		storage.WithIgnore(c.Ignore...),
	}
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// ChunkerConfig controls how documents are split into passages.
type ChunkerConfig struct {
	MaxSize int `yaml:"max_size"`
}

// Validate validates the chunker configuration.
func (c *ChunkerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxSize, validation.Required, validation.Min(1)),
	)
}

// RetrievalConfig controls nearest-neighbour search.
type RetrievalConfig struct {
	TopK              int     `yaml:"top_k"`
	DistanceThreshold float64 `yaml:"distance_threshold"`
}

// Validate validates the retrieval configuration.
func (c *RetrievalConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TopK, validation.Required, validation.Min(1)),
		validation.Field(&c.DistanceThreshold, validation.Required, validation.Min(0.0), validation.Max(vectorstore.MaxDistance)),
	)
}

// ConversationConfig controls the history kept per session.
type ConversationConfig struct {
	Window int `yaml:"window"`
}

// Validate validates the conversation configuration.
func (c *ConversationConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Window, validation.Required, validation.Min(1)),
	)
}

// SyncConfig controls how file events reach the index.
type SyncConfig struct {
	Debounce    time.Duration `yaml:"debounce"`
	EventBuffer int           `yaml:"event_buffer"`
	// SSEThrottle is the minimum gap between index.updated events.
	SSEThrottle time.Duration `yaml:"sse_throttle"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
		validation.Field(&c.EventBuffer, validation.Required, validation.Min(1)),
		validation.Field(&c.SSEThrottle, validation.Min(time.Duration(0))),
	)
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider"`
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Validate validates the embedding configuration.
func (c *EmbeddingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.Required, validation.In(embedding.ProviderHash, embedding.ProviderOllama)),
		validation.Field(&c.Dimensions, validation.When(c.Provider == embedding.ProviderHash, validation.Required, validation.Min(1))),
	)
}

// Embedder returns the embedding.Config for this section.
func (c *EmbeddingConfig) Embedder() embedding.Config {
	return embedding.Config{
		Provider:   c.Provider,
		BaseURL:    c.BaseURL,
		Model:      c.Model,
		Dimensions: c.Dimensions,
		Timeout:    c.Timeout,
	}
}

// GenerationConfig selects the text-generation provider and its sampling parameters.
type GenerationConfig struct {
	Provider          string        `yaml:"provider"`
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model"`
	APIKey            string        `yaml:"api_key"`
	Temperature       float64       `yaml:"temperature"`
	TopP              float64       `yaml:"top_p"`
	TopK              int           `yaml:"top_k"`
	MaxOutputTokens   int           `yaml:"max_output_tokens"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

// Validate validates the generation configuration.
func (c *GenerationConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.Required, validation.In(llm.ProviderGemini, llm.ProviderOllama)),
		validation.Field(&c.APIKey, validation.When(c.Provider == llm.ProviderGemini, validation.Required.Error("is required for gemini"))),
		validation.Field(&c.Temperature, validation.Min(0.0), validation.Max(2.0)),
		validation.Field(&c.TopP, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.TopK, validation.Min(0)),
		validation.Field(&c.MaxOutputTokens, validation.Required, validation.Min(1)),
		validation.Field(&c.RequestsPerSecond, validation.Min(0.0)),
		validation.Field(&c.Burst, validation.Min(0)),
	)
}

// Generator returns the llm.Config for this section.
func (c *GenerationConfig) Generator() llm.Config {
	return llm.Config{
		Provider: c.Provider,
		BaseURL:  c.BaseURL,
		Model:    c.Model,
		APIKey:   c.APIKey,
		Timeout:  c.Timeout,
		Options: llm.Options{
			Temperature:     c.Temperature,
			TopP:            c.TopP,
			TopK:            c.TopK,
			MaxOutputTokens: c.MaxOutputTokens,
		},
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	opts := llm.DefaultOptions()
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path:      "./vault",
			Extension: storage.DefaultExtension,
			Ignore:    []string{conversation.ExportDir + "/**"},
		},
		SQLite: SQLiteConfig{
			Path: "./ansuz.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Chunker: ChunkerConfig{
			MaxSize: chunker.DefaultMaxSize,
		},
		Retrieval: RetrievalConfig{
			TopK:              retrieval.DefaultTopK,
			DistanceThreshold: retrieval.DefaultDistanceThreshold,
		},
		Conversation: ConversationConfig{
			Window: conversation.DefaultWindow,
		},
		Sync: SyncConfig{
			Debounce:    index.DefaultDebounce,
			EventBuffer: 256,
			SSEThrottle: 2 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider:   embedding.ProviderHash,
			Dimensions: embedding.DefaultHashDimensions,
			Timeout:    30 * time.Second,
		},
		Generation: GenerationConfig{
			Provider:        llm.ProviderGemini,
			Temperature:     opts.Temperature,
			TopP:            opts.TopP,
			TopK:            opts.TopK,
			MaxOutputTokens: opts.MaxOutputTokens,
			Timeout:         llm.DefaultTimeout,
		},
	}
}
