package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Store     StoreConfig     `yaml:"store"`
	EmbedLLM  LLMConfig       `yaml:"embed_llm"`
	ChatLLM   LLMConfig       `yaml:"chat_llm"`
	RAG       RAGConfig       `yaml:"rag"`
	Cache     CacheConfig     `yaml:"cache"`
	Queue     QueueConfig     `yaml:"queue"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type DatabaseConfig struct {
	// Driver is "pgdriver" (default) or "pq".
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

type StoreConfig struct {
	// Backend is "postgres" (default) or "chromem".
	Backend        string `yaml:"backend"`
	ChromemPath    string `yaml:"chromem_path"`
	InMemory       bool   `yaml:"in_memory"`
	Compress       bool   `yaml:"compress"`
	EncryptionKey  string `yaml:"encryption_key"`
	CollectionName string `yaml:"collection_name"`
}

type LLMConfig struct {
	// Provider is "gemini", "openai" or "ollama".
	Provider  string        `yaml:"provider"`
	BaseURL   string        `yaml:"base_url"`
	Key       string        `yaml:"key"`
	Model     string        `yaml:"model"`
	Dimension int           `yaml:"dimension"`
	Timeout   time.Duration `yaml:"timeout"`
	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

type RAGConfig struct {
	ChunkSize         int     `yaml:"chunk_size"`
	ChunkOverlap      int     `yaml:"chunk_overlap"`
	FallbackChunkSize int     `yaml:"fallback_chunk_size"`
	EncodingName      string  `yaml:"encoding_name"`
	Threshold         float64 `yaml:"similarity_threshold"`
	MaxResults        int     `yaml:"max_results"`
}

type CacheConfig struct {
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
}

type QueueConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Concurrency   int    `yaml:"concurrency"`
	MaxRetry      int    `yaml:"max_retry"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Pretty     bool   `yaml:"pretty"`
	WithCaller bool   `yaml:"with_caller"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type TelemetryConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// LoadConfig reads the YAML file at path over the defaults, loads .env when
// present and applies environment overrides. A missing file yields the
// defaults. Keys set explicitly in the file win, zero values included.
func LoadConfig(path string) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	if cfg.EmbedLLM.RateLimit > 0 && cfg.EmbedLLM.Burst <= 0 {
		cfg.EmbedLLM.Burst = 1
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("database.dsn (or DATABASE_URL) is required for the postgres store")
		}
	case "chromem":
	default:
		return fmt.Errorf("unknown store backend: %s", c.Store.Backend)
	}
	switch c.EmbedLLM.Provider {
	case "gemini", "openai", "ollama":
	default:
		return fmt.Errorf("unknown embedding provider: %s", c.EmbedLLM.Provider)
	}
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("rag.chunk_size must be positive, got %d", c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap (%d) must be in [0, rag.chunk_size %d)", c.RAG.ChunkOverlap, c.RAG.ChunkSize)
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Database.DSN, "DATABASE_URL")
	setString(&cfg.Database.Password, "SUPABASE_SERVICE_ROLE_KEY")
	setString(&cfg.Cache.RedisURL, "REDIS_URL")
	setString(&cfg.Queue.RedisAddr, "REDIS_ADDR")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")

	for _, llm := range []*LLMConfig{&cfg.EmbedLLM, &cfg.ChatLLM} {
		if llm.Key != "" {
			continue
		}
		switch llm.Provider {
		case "gemini", "":
			llm.Key = os.Getenv("GOOGLE_API_KEY")
		case "openai":
			llm.Key = os.Getenv("OPENAI_API_KEY")
		}
	}

	if v := os.Getenv("EMBEDDING_DIMENSION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EmbedLLM.Dimension = n
		}
	}
}

func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{Driver: "pgdriver"},
		Store: StoreConfig{
			Backend:        "postgres",
			ChromemPath:    "./chromemdb",
			CollectionName: "document_chunks",
		},
		EmbedLLM: LLMConfig{
			Provider:  "gemini",
			Model:     "gemini-embedding-001",
			Dimension: 3072,
			Timeout:   30 * time.Second,
		},
		ChatLLM: LLMConfig{Timeout: 60 * time.Second},
		RAG: RAGConfig{
			ChunkSize:         512,
			ChunkOverlap:      64,
			FallbackChunkSize: 1000,
			EncodingName:      "cl100k_base",
			Threshold:         0.7,
			MaxResults:        10,
		},
		Cache: CacheConfig{TTL: 24 * time.Hour},
		Queue: QueueConfig{
			RedisAddr:   "localhost:6379",
			Concurrency: 4,
		},
		Log: LogConfig{Level: "info"},
		Telemetry: TelemetryConfig{
			ServiceName: "document-intelligence",
			SampleRatio: 0.1,
		},
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
