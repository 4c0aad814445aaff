package config

import (
	"errors"
	"testing"
)

// validConfig returns a configuration that passes Validate().
func validConfig() *Config {
	return &Config{
		Provider:            ProviderGemini,
		ModelName:           "gemini-2.5-flash",
		Temperature:         0.7,
		MaxTokens:           2048,
		EmbedderModel:       "text-embedding-004",
		TopK:                3,
		Oversample:          3,
		MinSimilarity:       0.2,
		EntityBoost:         0.05,
		SessionIdleTimeout:  1800,
		SessionSweepSeconds: 300,
		MaxTurns:            20,
		ContextBudget:       6000,
		HistoryShare:        0.5,
		SynthesisTimeout:    30,
		RetryBackoffMS:      500,
		PostgresHost:        "localhost",
		PostgresPort:        5432,
		PostgresUser:        "sumo",
		PostgresPassword:    "a_valid_password",
		PostgresDBName:      "sumo",
		PostgresSSLMode:     "disable",
		ListenAddr:          ":8080",
	}
}

func TestValidateOK(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate() failed on a valid config: %v", err)
	}
}

func TestValidateNil(t *testing.T) {
	var cfg *Config
	if err := cfg.Validate(); !errors.Is(err, ErrConfigNil) {
		t.Errorf("expected ErrConfigNil, got %v", err)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"unknown provider", func(c *Config) { c.Provider = "anthropic" }, ErrInvalidProvider},
		{"empty model name", func(c *Config) { c.ModelName = "" }, ErrInvalidModelName},
		{"temperature too high", func(c *Config) { c.Temperature = 2.5 }, ErrInvalidTemperature},
		{"temperature negative", func(c *Config) { c.Temperature = -0.1 }, ErrInvalidTemperature},
		{"max tokens zero", func(c *Config) { c.MaxTokens = 0 }, ErrInvalidMaxTokens},
		{"empty embedder", func(c *Config) { c.EmbedderModel = "" }, ErrInvalidEmbedderModel},
		{"top_k zero", func(c *Config) { c.TopK = 0 }, ErrInvalidRetrieval},
		{"top_k above cap", func(c *Config) { c.TopK = MaxTopK + 1 }, ErrInvalidRetrieval},
		{"oversample zero", func(c *Config) { c.Oversample = 0 }, ErrInvalidRetrieval},
		{"min_similarity above one", func(c *Config) { c.MinSimilarity = 1.5 }, ErrInvalidRetrieval},
		{"entity_boost negative", func(c *Config) { c.EntityBoost = -0.1 }, ErrInvalidRetrieval},
		{"idle timeout zero", func(c *Config) { c.SessionIdleTimeout = 0 }, ErrInvalidSession},
		{"max_turns too small", func(c *Config) { c.MaxTurns = 1 }, ErrInvalidSession},
		{"budget too small", func(c *Config) { c.ContextBudget = 50 }, ErrInvalidContext},
		{"history_share above one", func(c *Config) { c.HistoryShare = 1.1 }, ErrInvalidContext},
		{"empty postgres host", func(c *Config) { c.PostgresHost = "" }, ErrInvalidPostgresHost},
		{"port out of range", func(c *Config) { c.PostgresPort = 70000 }, ErrInvalidPostgresPort},
		{"empty db name", func(c *Config) { c.PostgresDBName = "" }, ErrInvalidPostgresDBName},
		{"empty password", func(c *Config) { c.PostgresPassword = "" }, ErrInvalidPostgresPassword},
		{"short password", func(c *Config) { c.PostgresPassword = "short" }, ErrInvalidPostgresPassword},
		{"deprecated sslmode", func(c *Config) { c.PostgresSSLMode = "prefer" }, ErrInvalidPostgresSSLMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GEMINI_API_KEY", "test-key")
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateOllamaProvider(t *testing.T) {
	cfg := validConfig()
	cfg.Provider = ProviderOllama
	cfg.OllamaHost = "http://localhost:11434"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() failed for ollama: %v", err)
	}

	cfg.OllamaHost = "localhost:11434"
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidOllamaHost) {
		t.Errorf("expected ErrInvalidOllamaHost for missing scheme, got %v", err)
	}
}

func TestValidateOpenAIProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	cfg := validConfig()
	cfg.Provider = ProviderOpenAI
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() failed for openai: %v", err)
	}
}

func TestClampTopK(t *testing.T) {
	cfg := validConfig()

	tests := []struct {
		name string
		in   int
		want int
	}{
		{"zero falls back to default", 0, 3},
		{"negative falls back to default", -5, 3},
		{"in range passes through", 7, 7},
		{"above cap clamps", 100, MaxTopK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.ClampTopK(tt.in); got != tt.want {
				t.Errorf("ClampTopK(%d) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}
