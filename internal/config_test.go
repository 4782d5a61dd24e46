package internal

import (
	"strings"
	"testing"
	"time"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func validConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Generation.APIKey = "key"
	return cfg
}

func TestDefaultConfig_ValidWithAPIKey(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestDefaultConfig_GeminiNeedsAPIKey(t *testing.T) {
	err := NewDefaultConfig().Validate()
	if err == nil || !strings.Contains(err.Error(), "gemini") {
		t.Fatalf("err = %v, want api key error", err)
	}

	cfg := NewDefaultConfig()
	cfg.Generation.Provider = "ollama"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("ollama needs no key: %v", err)
	}
}

func TestDefaultConfig_IgnoresChatExports(t *testing.T) {
	cfg := NewDefaultConfig()
	if len(cfg.Vault.Ignore) != 1 || cfg.Vault.Ignore[0] != "chats/**" {
		t.Errorf("ignore = %v", cfg.Vault.Ignore)
	}
}

func TestConfig_InvalidSections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown embedding provider", func(c *Config) { c.Embedding.Provider = "word2vec" }},
		{"unknown generation provider", func(c *Config) { c.Generation.Provider = "gpt" }},
		{"zero top k", func(c *Config) { c.Retrieval.TopK = 0 }},
		{"threshold above max", func(c *Config) { c.Retrieval.DistanceThreshold = 5 }},
		{"zero window", func(c *Config) { c.Conversation.Window = 0 }},
		{"zero chunk size", func(c *Config) { c.Chunker.MaxSize = 0 }},
		{"bad ignore glob", func(c *Config) { c.Vault.Ignore = []string{"a/[b"} }},
		{"empty extension", func(c *Config) { c.Vault.Extension = "" }},
		{"negative debounce", func(c *Config) { c.Sync.Debounce = -time.Second }},
		{"top p above one", func(c *Config) { c.Generation.TopP = 1.5 }},
		{"port out of range", func(c *Config) { c.App.HTTP.Port = 70000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestGenerationConfig_Generator(t *testing.T) {
	cfg := validConfig()
	cfg.Generation.RequestsPerSecond = 2
	g := cfg.Generation.Generator()
	if g.Options.TopK != 64 || g.Options.MaxOutputTokens != 1000 || g.Options.Temperature != 0.7 {
		t.Errorf("options = %+v", g.Options)
	}
	if g.APIKey != "key" || g.RequestsPerSecond != 2 {
		t.Errorf("config = %+v", g)
	}
}
