// Package config loads server configuration from an optional YAML file with
// environment variable overrides. A local .env file is honored for
// development via godotenv.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvConfigFile names the environment variable pointing at the YAML config.
const EnvConfigFile = "CARDASSIST_CONFIG"

// Duration wraps time.Duration so YAML accepts "30m" style strings.
type Duration time.Duration

// UnmarshalYAML decodes either a duration string or raw nanoseconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration value: %w", err)
	}
	*d = Duration(n)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds every runtime setting for the CardAssist server.
type Config struct {
	// HTTP
	HTTPAddr string `yaml:"http_addr"`

	// Logging
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // json or text

	// Model providers
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	AnthropicModel  string `yaml:"anthropic_model"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	EmbeddingModel  string `yaml:"embedding_model"`

	// Knowledge base documents (S3)
	S3Bucket  string `yaml:"s3_bucket"`
	S3Prefix  string `yaml:"s3_prefix"`
	AWSRegion string `yaml:"aws_region"`

	// Artifact storage. Empty bucket keeps artifacts in memory.
	ArtifactBucket string `yaml:"artifact_bucket"`
	ArtifactPrefix string `yaml:"artifact_prefix"`

	// Vector store
	VectorStore    string `yaml:"vector_store"` // memory or weaviate
	WeaviateHost   string `yaml:"weaviate_host"`
	WeaviateScheme string `yaml:"weaviate_scheme"`
	WeaviateAPIKey string `yaml:"weaviate_api_key"`

	// Session storage. Empty addr keeps sessions in memory.
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	SessionTTL    Duration      `yaml:"session_ttl"`

	// RAG tuning
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	TopK         int `yaml:"top_k"`

	// IndexStatePath is the JSON sidecar tracking which documents are
	// already indexed, so restarts skip unchanged ones. Only honored when
	// the vector store itself survives restarts (weaviate).
	IndexStatePath string `yaml:"index_state_path"`
}

// Default returns the built-in configuration baseline.
func Default() *Config {
	return &Config{
		HTTPAddr:       ":8080",
		LogLevel:       "info",
		LogFormat:      "json",
		VectorStore:    "memory",
		WeaviateScheme: "http",
		ArtifactPrefix: "artifacts",
		SessionTTL:     Duration(24 * time.Hour),
		ChunkSize:      1000,
		ChunkOverlap:   200,
		TopK:           3,
		IndexStatePath: "indexed_documents.json",
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// CARDASSIST_CONFIG (if set), then environment overrides. A .env file in the
// working directory is loaded first when present.
func Load() (*Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg := Default()

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.HTTPAddr, "CARDASSIST_HTTP_ADDR")
	setString(&c.LogLevel, "CARDASSIST_LOG_LEVEL")
	setString(&c.LogFormat, "CARDASSIST_LOG_FORMAT")

	setString(&c.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	setString(&c.AnthropicModel, "CARDASSIST_ANTHROPIC_MODEL")
	setString(&c.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&c.EmbeddingModel, "CARDASSIST_EMBEDDING_MODEL")

	setString(&c.S3Bucket, "CARDASSIST_S3_BUCKET")
	setString(&c.S3Prefix, "CARDASSIST_S3_PREFIX")
	setString(&c.AWSRegion, "AWS_REGION")
	setString(&c.ArtifactBucket, "CARDASSIST_ARTIFACT_BUCKET")
	setString(&c.ArtifactPrefix, "CARDASSIST_ARTIFACT_PREFIX")

	setString(&c.VectorStore, "CARDASSIST_VECTOR_STORE")
	setString(&c.WeaviateHost, "CARDASSIST_WEAVIATE_HOST")
	setString(&c.WeaviateScheme, "CARDASSIST_WEAVIATE_SCHEME")
	setString(&c.WeaviateAPIKey, "WEAVIATE_API_KEY")

	setString(&c.RedisAddr, "CARDASSIST_REDIS_ADDR")
	setString(&c.RedisPassword, "REDIS_PASSWORD")
	setDuration(&c.SessionTTL, "CARDASSIST_SESSION_TTL")

	setInt(&c.ChunkSize, "CARDASSIST_CHUNK_SIZE")
	setInt(&c.ChunkOverlap, "CARDASSIST_CHUNK_OVERLAP")
	setInt(&c.TopK, "CARDASSIST_TOP_K")
	setString(&c.IndexStatePath, "CARDASSIST_INDEX_STATE_PATH")
}

// Validate checks cross-field consistency and enum values.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q (want debug, info, warn or error)", c.LogLevel)
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log_format %q (want json or text)", c.LogFormat)
	}

	switch c.VectorStore {
	case "memory":
	case "weaviate":
		if c.WeaviateHost == "" {
			return fmt.Errorf("vector_store weaviate requires weaviate_host")
		}
	default:
		return fmt.Errorf("invalid vector_store %q (want memory or weaviate)", c.VectorStore)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk_overlap must be in [0, chunk_size), got %d", c.ChunkOverlap)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.TopK)
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("session_ttl must not be negative, got %s", c.SessionTTL.Std())
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}
