// Package llmservice wraps the chat model used to answer queries.
package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"document-intelligence/internal/config"
)

var ErrEmptyResponse = errors.New("model returned no choices")

// Client holds one model connection for the life of the process.
type Client struct {
	llm   llms.Model
	model string
}

// NewClient builds the model client for cfg.Provider.
func NewClient(ctx context.Context, cfg config.LLMConfig) (*Client, error) {
	llm, err := newModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s chat client: %w", cfg.Provider, err)
	}
	return NewWithModel(llm, cfg.Model), nil
}

// NewWithModel wraps an existing langchaingo model.
func NewWithModel(llm llms.Model, model string) *Client {
	return &Client{llm: llm, model: model}
}

func newModel(ctx context.Context, cfg config.LLMConfig) (llms.Model, error) {
	key := strings.TrimPrefix(cfg.Key, "Bearer ")
	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{openai.WithToken(key), openai.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...)
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		return ollama.New(opts...)
	case "gemini", "":
		return googleai.New(ctx, googleai.WithAPIKey(key), googleai.WithDefaultModel(cfg.Model))
	default:
		return nil, fmt.Errorf("unknown chat provider: %s", cfg.Provider)
	}
}

func (c *Client) Model() string { return c.model }

// GenerateContent sends messages to the model, passing tools when given.
func (c *Client) GenerateContent(ctx context.Context, tools []llms.Tool, messages []llms.MessageContent) (*llms.ContentResponse, error) {
	log.Debug().Str("model", c.model).Int("messages", len(messages)).Msg("Generating content")
	if len(tools) > 0 {
		return c.llm.GenerateContent(ctx, messages, llms.WithTools(tools))
	}
	return c.llm.GenerateContent(ctx, messages)
}

// Complete runs a system + user exchange and returns the first choice.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	resp, err := c.GenerateContent(ctx, nil, messages)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Content, nil
}
