package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "memory", cfg.VectorStore)
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 200, cfg.ChunkOverlap)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL.Std())
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr: ":9090"
s3_bucket: policy-docs
vector_store: weaviate
weaviate_host: weaviate.internal:8080
chunk_size: 500
chunk_overlap: 50
`), 0o600))
	t.Setenv(EnvConfigFile, path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "policy-docs", cfg.S3Bucket)
	assert.Equal(t, "weaviate", cfg.VectorStore)
	assert.Equal(t, 500, cfg.ChunkSize)
	// Untouched fields keep defaults.
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http_addr: \":9090\"\n"), 0o600))
	t.Setenv(EnvConfigFile, path)
	t.Setenv("CARDASSIST_HTTP_ADDR", ":7070")
	t.Setenv("CARDASSIST_REDIS_ADDR", "localhost:6379")
	t.Setenv("CARDASSIST_SESSION_TTL", "30m")
	t.Setenv("CARDASSIST_TOP_K", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTPAddr)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL.Std())
	assert.Equal(t, 5, cfg.TopK)
}

func TestLoad_MissingFileErrors(t *testing.T) {
	t.Setenv(EnvConfigFile, filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "log_level"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"weaviate without host", func(c *Config) { c.VectorStore = "weaviate" }, "weaviate_host"},
		{"unknown vector store", func(c *Config) { c.VectorStore = "pinecone" }, "vector_store"},
		{"zero chunk size", func(c *Config) { c.ChunkSize = 0 }, "chunk_size"},
		{"overlap too large", func(c *Config) { c.ChunkOverlap = 1000 }, "chunk_overlap"},
		{"zero top k", func(c *Config) { c.TopK = 0 }, "top_k"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
