package embed

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

// ProviderType represents an embedding provider.
type ProviderType string

const (
	// ProviderOllama uses the Ollama API for embeddings (default).
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses hash-based embeddings (offline fallback).
	ProviderStatic ProviderType = "static"
)

// ParseProvider maps a config string to a provider type.
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(s) {
	case "static":
		return ProviderStatic
	default:
		return ProviderOllama
	}
}

// FactoryConfig selects and configures an embedding backend.
type FactoryConfig struct {
	Provider   ProviderType
	Model      string
	OllamaHost string
	Dimensions int
	BatchSize  int
	CacheSize  int
}

// NewEmbedder creates an embedder for the given backend configuration.
// The DEDUPIT_EMBEDDER environment variable overrides the provider.
// The result is wrapped with an LRU cache.
func NewEmbedder(ctx context.Context, cfg FactoryConfig) (Embedder, error) {
	provider := cfg.Provider
	if env := os.Getenv("DEDUPIT_EMBEDDER"); env != "" {
		provider = ParseProvider(env)
	}

	var embedder Embedder
	var err error

	switch provider {
	case ProviderStatic:
		embedder = NewStaticEmbedder()
	case ProviderOllama:
		embedder, err = NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       cfg.OllamaHost,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
		})
	default:
		err = fmt.Errorf("unknown embedding provider %q", provider)
	}
	if err != nil {
		return nil, err
	}

	return NewCachedEmbedder(embedder, cfg.CacheSize), nil
}

var (
	sharedMu sync.Mutex
	shared   = make(map[string]Embedder)
)

// Shared returns the process-wide embedder for the given configuration,
// initializing it lazily on first use. The embedding model load is the
// expensive step, so one embedder per configuration is kept for the process
// lifetime and reused across requests; it is never mutated after creation.
func Shared(ctx context.Context, cfg FactoryConfig) (Embedder, error) {
	key := fmt.Sprintf("%s|%s|%s|%d", cfg.Provider, cfg.Model, cfg.OllamaHost, cfg.Dimensions)

	sharedMu.Lock()
	defer sharedMu.Unlock()

	if e, ok := shared[key]; ok {
		return e, nil
	}

	e, err := NewEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}
	shared[key] = e
	return e, nil
}

// ResetShared clears the process-wide embedder cache (for tests).
func ResetShared() {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	shared = make(map[string]Embedder)
}
