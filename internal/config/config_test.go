package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/docs")
	t.Setenv("GOOGLE_API_KEY", "test-key")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Equal(t, "pgdriver", cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost:5432/docs", cfg.Database.DSN)
	assert.Equal(t, "gemini", cfg.EmbedLLM.Provider)
	assert.Equal(t, "gemini-embedding-001", cfg.EmbedLLM.Model)
	assert.Equal(t, 3072, cfg.EmbedLLM.Dimension)
	assert.Equal(t, "test-key", cfg.EmbedLLM.Key)
	assert.Equal(t, 512, cfg.RAG.ChunkSize)
	assert.Equal(t, 64, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 1000, cfg.RAG.FallbackChunkSize)
	assert.Equal(t, 0.7, cfg.RAG.Threshold)
	assert.Equal(t, 10, cfg.RAG.MaxResults)
	assert.Equal(t, 30*time.Second, cfg.EmbedLLM.Timeout)
}

func TestLoadConfig_YAML(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: chromem
  in_memory: true
embed_llm:
  provider: ollama
  base_url: http://localhost:11434
  model: nomic-embed-text
  dimension: 768
rag:
  chunk_size: 256
  chunk_overlap: 32
log:
  level: debug
  pretty: true
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "chromem", cfg.Store.Backend)
	assert.True(t, cfg.Store.InMemory)
	assert.Equal(t, "ollama", cfg.EmbedLLM.Provider)
	assert.Equal(t, 768, cfg.EmbedLLM.Dimension)
	assert.Equal(t, 256, cfg.RAG.ChunkSize)
	assert.Equal(t, 32, cfg.RAG.ChunkOverlap)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Pretty)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env-host/docs")
	t.Setenv("EMBEDDING_DIMENSION", "1536")
	t.Setenv("LOG_LEVEL", "warn")
	path := writeConfig(t, `
database:
  dsn: postgres://file-host/docs
embed_llm:
  provider: openai
  model: text-embedding-3-small
  key: file-key
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env-host/docs", cfg.Database.DSN)
	assert.Equal(t, 1536, cfg.EmbedLLM.Dimension)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "file-key", cfg.EmbedLLM.Key)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	tests := []struct {
		name string
		body string
	}{
		{"postgres without dsn", "store:\n  backend: postgres\n"},
		{"unknown backend", "store:\n  backend: sqlite\n"},
		{"unknown provider", "store:\n  backend: chromem\nembed_llm:\n  provider: cohere\n"},
		{"overlap not below size", "store:\n  backend: chromem\nrag:\n  chunk_size: 100\n  chunk_overlap: 100\n"},
		{"malformed yaml", "store: [backend\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_ExampleFile(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/docs")
	t.Setenv("LOG_LEVEL", "")

	cfg, err := LoadConfig(filepath.Join("..", "..", "configs", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Equal(t, 5.0, cfg.EmbedLLM.RateLimit)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
	assert.Equal(t, 4, cfg.Queue.Concurrency)
}

func TestLoadConfig_ExplicitZerosKept(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: chromem
rag:
  similarity_threshold: 0
  chunk_overlap: 0
telemetry:
  sample_ratio: 0
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 0.0, cfg.RAG.Threshold)
	assert.Equal(t, 0, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 0.0, cfg.Telemetry.SampleRatio)
	assert.Equal(t, 512, cfg.RAG.ChunkSize)
	assert.Equal(t, 10, cfg.RAG.MaxResults)
}

func TestLoadConfig_BurstFollowsRateLimit(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: chromem
embed_llm:
  rate_limit: 2
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.EmbedLLM.Burst)
}
