package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"google.golang.org/api/option"

	"document-intelligence/internal/config"
	"document-intelligence/internal/models"
)

// Provider turns text into a vector. langchaingo embedders satisfy it.
type Provider interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

var (
	_ Provider = (*GeminiProvider)(nil)
	_ Provider = (*embeddings.EmbedderImpl)(nil)
)

// NewProvider builds the provider named in cfg. The returned close func
// releases the underlying client and is never nil.
func NewProvider(ctx context.Context, cfg config.LLMConfig) (Provider, func() error, error) {
	noop := func() error { return nil }

	log.Debug().Interface("config", map[string]string{
		"provider":        cfg.Provider,
		"base_url":        cfg.BaseURL,
		"embedding_model": cfg.Model,
	}).Msg("Creating embedding provider")

	switch cfg.Provider {
	case "gemini", "":
		p, err := NewGeminiProvider(ctx, cfg.Key, cfg.Model)
		if err != nil {
			return nil, noop, err
		}
		return p, p.Close, nil
	case "openai":
		e, err := NewOpenAIEmbedder(cfg.Key, cfg.BaseURL, cfg.Model)
		return e, noop, err
	case "ollama":
		e, err := NewOllamaEmbedder(cfg.BaseURL, cfg.Model)
		return e, noop, err
	default:
		return nil, noop, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}

// GeminiProvider embeds text with a Google Generative AI embedding model.
type GeminiProvider struct {
	client *genai.Client
	model  *genai.EmbeddingModel
}

func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("missing GOOGLE_API_KEY for gemini embeddings")
	}
	if model == "" {
		model = models.DefaultEmbeddingModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: client.EmbeddingModel(model)}, nil
}

func (g *GeminiProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	res, err := g.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, err
	}
	if res == nil || res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, models.ErrNoEmbedding
	}
	return res.Embedding.Values, nil
}

func (g *GeminiProvider) Close() error {
	return g.client.Close()
}

// NewOpenAIEmbedder creates an embedder for any OpenAI-compatible endpoint.
func NewOpenAIEmbedder(key, baseURL, model string) (*embeddings.EmbedderImpl, error) {
	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(key, "Bearer ")),
		openai.WithEmbeddingModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize openai client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm, embeddings.WithStripNewLines(false))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return embedder, nil
}

func NewOllamaEmbedder(serverURL, model string) (*embeddings.EmbedderImpl, error) {
	opts := []ollama.Option{ollama.WithModel(model)}
	if serverURL != "" {
		opts = append(opts, ollama.WithServerURL(serverURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize ollama client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return embedder, nil
}
