package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Port     int
	DBPath   string
	IndexDir string
	LogLevel string
	APIKey   string
	// Embedding
	Embedder       string // "local" or "ollama"
	OllamaBaseURL  string
	EmbeddingModel string
	EmbeddingDim   int
	EmbedCacheSize int64
	// Dedup
	NearDupThreshold float64
	// Assembly
	StaleAfterDays int
	DigestTokens   int
	// Extraction
	PatternsPath string
	// Write locking
	LockRetries int
	LockRetryMS int
	// Hook boundary
	HookTimeoutMS int
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:             envInt("PORT", 8741),
		DBPath:           envStr("MEMKEEP_DB_PATH", "./data/memkeep.db"),
		IndexDir:         envStr("MEMKEEP_INDEX_DIR", "./data/index"),
		LogLevel:         envStr("LOG_LEVEL", "info"),
		APIKey:           envStr("MEMKEEP_API_KEY", ""),
		Embedder:         envStr("EMBEDDER", "local"),
		OllamaBaseURL:    envStr("OLLAMA_BASE_URL", "http://localhost:11434"),
		EmbeddingModel:   envStr("EMBEDDING_MODEL", "nomic-embed-text"),
		EmbeddingDim:     envInt("EMBEDDING_DIM", 768),
		EmbedCacheSize:   int64(envInt("EMBED_CACHE_SIZE", 10000)),
		NearDupThreshold: envFloat("NEAR_DUP_THRESHOLD", 0.85),
		StaleAfterDays:   envInt("STALE_AFTER_DAYS", 14),
		DigestTokens:     envInt("DIGEST_TOKENS", 40),
		PatternsPath:     envStr("PATTERNS_PATH", ""),
		LockRetries:      envInt("LOCK_RETRIES", 50),
		LockRetryMS:      envInt("LOCK_RETRY_MS", 10),
		HookTimeoutMS:    envInt("HOOK_TIMEOUT_MS", 2000),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("MEMKEEP_DB_PATH must not be empty")
	}
	if c.Embedder != "local" && c.Embedder != "ollama" {
		return fmt.Errorf("EMBEDDER must be local or ollama, got %q", c.Embedder)
	}
	if c.Embedder == "ollama" && c.OllamaBaseURL == "" {
		return fmt.Errorf("OLLAMA_BASE_URL must not be empty")
	}
	if c.EmbeddingDim < 1 {
		return fmt.Errorf("EMBEDDING_DIM must be positive, got %d", c.EmbeddingDim)
	}
	if c.NearDupThreshold <= 0 || c.NearDupThreshold > 1 {
		return fmt.Errorf("NEAR_DUP_THRESHOLD must be in (0,1], got %f", c.NearDupThreshold)
	}
	if c.HookTimeoutMS < 1 {
		return fmt.Errorf("HOOK_TIMEOUT_MS must be positive, got %d", c.HookTimeoutMS)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
