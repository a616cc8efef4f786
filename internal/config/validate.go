package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	// ErrMissingCredential is returned by Validate when a required secret
	// is not set in the environment.
	ErrMissingCredential = errors.New("missing credential")
	// ErrInvalidConfig is returned for unknown providers or types.
	ErrInvalidConfig = errors.New("invalid config")
)

// Validate checks provider and type names and resolves every secret the
// selected components need from the environment.
func Validate(cfg *AppConfig) error {
	applyConfigDefaults(cfg)

	switch cfg.Chat.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("%w: unknown chat provider %q", ErrInvalidConfig, cfg.Chat.Provider)
	}
	if cfg.Chat.Temperature < 0 || cfg.Chat.Temperature > 2 {
		return fmt.Errorf("%w: chat temperature %v out of range [0, 2]", ErrInvalidConfig, cfg.Chat.Temperature)
	}
	key, err := require(cfg.Chat.APIKeyEnv)
	if err != nil {
		return err
	}
	cfg.Chat.APIKey = key

	switch cfg.Embedder.Type {
	case "tfidf":
	case "openai":
		if cfg.Embedder.OpenAI.APIKey, err = require(cfg.Embedder.OpenAI.APIKeyEnv); err != nil {
			return err
		}
	case "gemini":
		if cfg.Embedder.Gemini.APIKey, err = require(cfg.Embedder.Gemini.APIKeyEnv); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown embedder %q", ErrInvalidConfig, cfg.Embedder.Type)
	}
	if c := cfg.Embedder.Cache; c != nil && c.URL == "" {
		return fmt.Errorf("%w: embedder.cache.url is required when the cache is enabled", ErrInvalidConfig)
	}

	if cfg.Chunker.Type != "sentence" {
		return fmt.Errorf("%w: unknown chunker %q", ErrInvalidConfig, cfg.Chunker.Type)
	}
	if cfg.Summarizer.Type != "frequency" {
		return fmt.Errorf("%w: unknown summarizer %q", ErrInvalidConfig, cfg.Summarizer.Type)
	}

	switch cfg.VectorStore.Type {
	case "memory":
	case "qdrant":
		q := cfg.VectorStore.Qdrant
		if q == nil || q.URL == "" {
			return fmt.Errorf("%w: vector_store.qdrant.url is required", ErrInvalidConfig)
		}
		if q.APIKeyEnv != "" {
			if q.APIKey, err = require(q.APIKeyEnv); err != nil {
				return err
			}
		}
	case "pgvector":
		if cfg.VectorStore.Postgres.DSN, err = require(cfg.VectorStore.Postgres.DSNEnv); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown vector store %q", ErrInvalidConfig, cfg.VectorStore.Type)
	}
	return nil
}

func require(env string) (string, error) {
	v := strings.TrimSpace(os.Getenv(env))
	if v == "" {
		return "", fmt.Errorf("%w: environment variable %s is not set", ErrMissingCredential, env)
	}
	return v, nil
}
