package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// 1. Provider and credentials
	switch c.Provider {
	case ProviderGemini, ProviderGoogleAI:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
				"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
				ErrMissingAPIKey)
		}
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required", ErrMissingAPIKey)
		}
	case ProviderOllama:
		if c.OllamaHost == "" {
			return fmt.Errorf("%w: ollama_host cannot be empty", ErrInvalidOllamaHost)
		}
		if !strings.HasPrefix(c.OllamaHost, "http://") && !strings.HasPrefix(c.OllamaHost, "https://") {
			return fmt.Errorf("%w: %q must start with http:// or https://", ErrInvalidOllamaHost, c.OllamaHost)
		}
	default:
		return fmt.Errorf("%w: %q is not supported, must be one of: gemini, ollama, openai",
			ErrInvalidProvider, c.Provider)
	}

	// 2. Model configuration
	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	if c.MaxTokens < 1 || c.MaxTokens > 2097152 {
		return fmt.Errorf("%w: must be between 1 and 2,097,152, got %d", ErrInvalidMaxTokens, c.MaxTokens)
	}

	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	// 3. Retrieval configuration
	if c.TopK < 1 || c.TopK > MaxTopK {
		return fmt.Errorf("%w: top_k must be between 1 and %d, got %d", ErrInvalidRetrieval, MaxTopK, c.TopK)
	}
	if c.Oversample < 1 || c.Oversample > 10 {
		return fmt.Errorf("%w: oversample must be between 1 and 10, got %d", ErrInvalidRetrieval, c.Oversample)
	}
	if c.MinSimilarity < 0 || c.MinSimilarity > 1 {
		return fmt.Errorf("%w: min_similarity must be between 0.0 and 1.0, got %.2f", ErrInvalidRetrieval, c.MinSimilarity)
	}
	if c.EntityBoost < 0 || c.EntityBoost > 1 {
		return fmt.Errorf("%w: entity_boost must be between 0.0 and 1.0, got %.2f", ErrInvalidRetrieval, c.EntityBoost)
	}

	// 4. Session configuration
	if c.SessionIdleTimeout < 1 {
		return fmt.Errorf("%w: session_idle_timeout must be positive, got %d", ErrInvalidSession, c.SessionIdleTimeout)
	}
	if c.SessionSweepSeconds < 1 {
		return fmt.Errorf("%w: session_sweep_seconds must be positive, got %d", ErrInvalidSession, c.SessionSweepSeconds)
	}
	if c.MaxTurns < 2 {
		return fmt.Errorf("%w: max_turns must be at least 2, got %d", ErrInvalidSession, c.MaxTurns)
	}

	// 5. Context assembly configuration
	if c.ContextBudget < 100 {
		return fmt.Errorf("%w: context_budget must be at least 100, got %d", ErrInvalidContext, c.ContextBudget)
	}
	if c.HistoryShare < 0 || c.HistoryShare > 1 {
		return fmt.Errorf("%w: history_share must be between 0.0 and 1.0, got %.2f", ErrInvalidContext, c.HistoryShare)
	}

	// 6. PostgreSQL configuration
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set in config.yaml",
			ErrInvalidPostgresPassword)
	}

	if c.PostgresPassword == "sumo_dev_password" {
		slog.Warn("Using default development password for PostgreSQL",
			"warning", "Change postgres_password in config.yaml for production deployments")
	}

	if len(c.PostgresPassword) < 8 {
		return fmt.Errorf("%w: postgres_password must be at least 8 characters (got %d)",
			ErrInvalidPostgresPassword, len(c.PostgresPassword))
	}

	// Modern SSL modes only; allow/prefer are deprecated (MITM vulnerable)
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if c.PostgresSSLMode == "" {
		return fmt.Errorf("%w: postgres_ssl_mode is empty (should have default from setDefaults)",
			ErrInvalidPostgresSSLMode)
	}

	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	return nil
}

// ClampTopK clamps a per-request top-k override into the valid range.
// Zero or negative falls back to the configured default.
func (c *Config) ClampTopK(k int) int {
	if k <= 0 {
		return c.TopK
	}
	if k > MaxTopK {
		return MaxTopK
	}
	return k
}
