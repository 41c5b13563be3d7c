// Package config loads dedupit configuration from defaults, an optional
// YAML file, and environment overrides (highest priority).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment variable overrides
// (e.g. DEDUPIT_SERVER_PORT, DEDUPIT_EMBEDDINGS_OLLAMA_HOST).
const EnvPrefix = "dedupit"

// Config is the complete dedupit configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" envconfig:"server"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" envconfig:"embeddings"`
	Grouping   GroupingConfig   `yaml:"grouping" envconfig:"grouping"`
	Oracle     LLMConfig        `yaml:"oracle" envconfig:"oracle"`
	Merger     LLMConfig        `yaml:"merger" envconfig:"merger"`
	Logging    LoggingConfig    `yaml:"logging" envconfig:"logging"`
}

// ServerConfig configures the HTTP front-end.
type ServerConfig struct {
	// Port is the listen port. The bare PORT env var also overrides it
	// for platform deploys.
	Port int `yaml:"port" envconfig:"port"`

	// MaxRecords is the maximum number of records per request.
	MaxRecords int `yaml:"max_records" envconfig:"max_records"`

	// MaxBodyBytes is the maximum request body size in bytes.
	MaxBodyBytes int64 `yaml:"max_body_bytes" envconfig:"max_body_bytes"`
}

// EmbeddingsConfig configures the embedding backend.
type EmbeddingsConfig struct {
	// Provider selects the backend: "ollama" (default) or "static".
	Provider string `yaml:"provider" envconfig:"provider"`

	// Model is the sentence-embedding model identifier.
	Model string `yaml:"model" envconfig:"model"`

	// OllamaHost is the Ollama API endpoint.
	OllamaHost string `yaml:"ollama_host" envconfig:"ollama_host"`

	// Dimensions is the embedding dimension; 0 means auto-detect.
	Dimensions int `yaml:"dimensions" envconfig:"dimensions"`

	// BatchSize is the per-request batch size for the backend API.
	BatchSize int `yaml:"batch_size" envconfig:"batch_size"`

	// CacheSize is the number of embeddings kept in the LRU cache.
	CacheSize int `yaml:"cache_size" envconfig:"cache_size"`
}

// GroupingConfig configures the candidate-generation pipeline.
type GroupingConfig struct {
	// MaxNeighbors is k for the ANN neighbor search.
	MaxNeighbors int `yaml:"max_neighbors" envconfig:"max_neighbors"`

	// CompareBatchSize is the oracle fan-out chunk size.
	CompareBatchSize int `yaml:"compare_batch_size" envconfig:"compare_batch_size"`
}

// LLMConfig configures one LLM-backed capability (oracle or merger).
type LLMConfig struct {
	// Model is the chat-completion model id.
	Model string `yaml:"model" envconfig:"model"`

	// MaxRetries is the number of rate-limit retries.
	MaxRetries int `yaml:"max_retries" envconfig:"max_retries"`

	// InitialDelaySeconds is the first backoff delay in seconds.
	InitialDelaySeconds float64 `yaml:"initial_delay" envconfig:"initial_delay"`
}

// InitialDelay returns the first backoff delay as a duration.
func (c LLMConfig) InitialDelay() time.Duration {
	return time.Duration(c.InitialDelaySeconds * float64(time.Second))
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"level"`
	FilePath string `yaml:"file_path" envconfig:"file_path"`
}

// NewConfig returns the default configuration.
func NewConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			MaxRecords:   100,
			MaxBodyBytes: 100 * 1024,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			Model:      "intfloat/e5-base",
			OllamaHost: "http://localhost:11434",
			BatchSize:  32,
			CacheSize:  1000,
		},
		Grouping: GroupingConfig{
			MaxNeighbors:     3,
			CompareBatchSize: 200,
		},
		Oracle: LLMConfig{
			Model:               "claude-3-5-sonnet-20241022",
			MaxRetries:          5,
			InitialDelaySeconds: 1.0,
		},
		Merger: LLMConfig{
			Model:               "claude-3-haiku-20240307",
			MaxRetries:          5,
			InitialDelaySeconds: 1.0,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if it
// exists), then environment overrides. An empty path skips the file step.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("process env overrides: %w", err)
	}

	// PORT without the prefix wins, for platform deploys.
	if port := os.Getenv("PORT"); port != "" {
		var p int
		if _, err := fmt.Sscanf(port, "%d", &p); err == nil && p > 0 {
			cfg.Server.Port = p
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Server.MaxRecords <= 0 {
		return fmt.Errorf("max_records must be positive, got %d", c.Server.MaxRecords)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("max_body_bytes must be positive, got %d", c.Server.MaxBodyBytes)
	}
	if c.Grouping.MaxNeighbors <= 0 {
		return fmt.Errorf("max_neighbors must be positive, got %d", c.Grouping.MaxNeighbors)
	}
	if c.Grouping.CompareBatchSize <= 0 {
		return fmt.Errorf("compare_batch_size must be positive, got %d", c.Grouping.CompareBatchSize)
	}
	for name, llm := range map[string]LLMConfig{"oracle": c.Oracle, "merger": c.Merger} {
		if llm.Model == "" {
			return fmt.Errorf("%s model must not be empty", name)
		}
		if llm.MaxRetries < 0 {
			return fmt.Errorf("%s max_retries must not be negative, got %d", name, llm.MaxRetries)
		}
		if llm.InitialDelaySeconds < 0 {
			return fmt.Errorf("%s initial_delay must not be negative, got %f", name, llm.InitialDelaySeconds)
		}
	}
	return nil
}
