package config

import "time"

// RetrievalConfig tunes the knowledge retrieval pipeline.
type RetrievalConfig struct {
	// TopK is the number of chunks returned by vector search (1-50).
	TopK int32 `mapstructure:"top_k" json:"top_k"`

	// MinSimilarity is the cosine similarity floor below which matches
	// are discarded (0.0-1.0).
	MinSimilarity float32 `mapstructure:"min_similarity" json:"min_similarity"`

	// MaxDepth bounds how deep a structural walk may descend.
	MaxDepth int32 `mapstructure:"max_depth" json:"max_depth"`

	// MaxSteps bounds the total number of model decisions per walk.
	MaxSteps int `mapstructure:"max_steps" json:"max_steps"`

	// BatchWidth bounds how many batch queries run concurrently.
	BatchWidth int `mapstructure:"batch_width" json:"batch_width"`

	// EFSearch is the HNSW ef_search value applied per search
	// transaction. Higher values trade latency for recall.
	EFSearch int32 `mapstructure:"ef_search" json:"ef_search"`

	// TriggerTerms override the built-in vocabulary that routes auto
	// mode to structural navigation. Empty keeps the defaults.
	TriggerTerms []string `mapstructure:"trigger_terms" json:"trigger_terms"`

	// WarmupQueries are run in auto mode at startup to prime the cache.
	WarmupQueries []string `mapstructure:"warmup_queries" json:"warmup_queries"`
}

// CacheConfig controls the embedded result cache.
type CacheConfig struct {
	// Dir is the Badger data directory.
	Dir string `mapstructure:"dir" json:"dir"`

	// Enabled turns the cache off entirely when false. The retrieval
	// pipeline then computes every query directly.
	Enabled bool `mapstructure:"enabled" json:"enabled"`

	// Per-class entry lifetimes. Viper parses Go duration strings
	// ("168h", "30m").
	EmbeddingTTL    time.Duration `mapstructure:"embedding_ttl" json:"embedding_ttl"`
	VectorResultTTL time.Duration `mapstructure:"vector_result_ttl" json:"vector_result_ttl"`
	NavigationTTL   time.Duration `mapstructure:"navigation_ttl" json:"navigation_ttl"`
	TOCTTL          time.Duration `mapstructure:"toc_ttl" json:"toc_ttl"`
}
