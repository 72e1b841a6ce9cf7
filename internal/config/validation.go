package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// 1. Provider and API key validation
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
			return fmt.Errorf("%w: ollama_host cannot be empty when provider is ollama", ErrInvalidOllamaHost)
		}
	default:
		return fmt.Errorf("%w: %q is not supported, must be one of: gemini, ollama, openai",
			ErrInvalidProvider, c.Provider)
	}

	// 2. Model configuration validation
	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	// Temperature range: 0.0 (deterministic) to 2.0 (maximum creativity)
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	// MaxTokens range: 1 to 2097152 (Gemini 2.5 max context window)
	if c.MaxTokens < 1 || c.MaxTokens > 2097152 {
		return fmt.Errorf("%w: must be between 1 and 2,097,152, got %d", ErrInvalidMaxTokens, c.MaxTokens)
	}

	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	// 3. Retrieval tuning validation
	if err := c.validateRetrieval(); err != nil {
		return err
	}

	// 4. Cache validation
	if err := c.validateCache(); err != nil {
		return err
	}

	// 5. PostgreSQL configuration validation
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

	// Warn on the default dev password but don't block, user might be in dev
	if c.PostgresPassword == "quickvetpro_dev_password" {
		slog.Warn("Using default development password for PostgreSQL",
			"warning", "Change postgres_password in config.yaml for production deployments")
	}

	if len(c.PostgresPassword) < 8 {
		return fmt.Errorf("%w: postgres_password must be at least 8 characters (got %d)",
			ErrInvalidPostgresPassword, len(c.PostgresPassword))
	}

	// Modern SSL modes only - exclude deprecated allow/prefer (MITM vulnerable)
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if c.PostgresSSLMode == "" {
		return fmt.Errorf("%w: postgres_ssl_mode is empty (should have default from setDefaults)",
			ErrInvalidPostgresSSLMode)
	}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v\n"+
			"Note: 'allow' and 'prefer' modes are deprecated (vulnerable to MITM attacks)",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	return nil
}

func (c *Config) validateRetrieval() error {
	r := c.Retrieval

	if r.TopK < 1 || r.TopK > 50 {
		return fmt.Errorf("%w: top_k must be between 1 and 50, got %d", ErrInvalidRetrieval, r.TopK)
	}
	if r.MinSimilarity < 0 || r.MinSimilarity > 1 {
		return fmt.Errorf("%w: min_similarity must be between 0.0 and 1.0, got %.2f",
			ErrInvalidRetrieval, r.MinSimilarity)
	}
	if r.MaxDepth < 1 || r.MaxDepth > 20 {
		return fmt.Errorf("%w: max_depth must be between 1 and 20, got %d", ErrInvalidRetrieval, r.MaxDepth)
	}
	if r.MaxSteps < 1 || r.MaxSteps > 50 {
		return fmt.Errorf("%w: max_steps must be between 1 and 50, got %d", ErrInvalidRetrieval, r.MaxSteps)
	}
	if r.BatchWidth < 1 || r.BatchWidth > 16 {
		return fmt.Errorf("%w: batch_width must be between 1 and 16, got %d", ErrInvalidRetrieval, r.BatchWidth)
	}
	// pgvector clamps ef_search to [1, 1000]; require at least top_k
	// so the index can return a full result set.
	if r.EFSearch < 1 || r.EFSearch > 1000 {
		return fmt.Errorf("%w: ef_search must be between 1 and 1000, got %d", ErrInvalidRetrieval, r.EFSearch)
	}
	if r.EFSearch < r.TopK {
		return fmt.Errorf("%w: ef_search (%d) must be >= top_k (%d)",
			ErrInvalidRetrieval, r.EFSearch, r.TopK)
	}

	return nil
}

func (c *Config) validateCache() error {
	if !c.Cache.Enabled {
		return nil
	}

	if c.Cache.Dir == "" {
		return fmt.Errorf("%w: cache.dir cannot be empty when the cache is enabled", ErrInvalidCache)
	}
	for name, ttl := range map[string]time.Duration{
		"embedding_ttl":     c.Cache.EmbeddingTTL,
		"vector_result_ttl": c.Cache.VectorResultTTL,
		"navigation_ttl":    c.Cache.NavigationTTL,
		"toc_ttl":           c.Cache.TOCTTL,
	} {
		if ttl <= 0 {
			return fmt.Errorf("%w: cache.%s must be positive, got %s", ErrInvalidCache, name, ttl)
		}
	}

	return nil
}
