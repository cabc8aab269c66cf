package llmservice

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"document-intelligence/internal/config"
)

type fakeModel struct {
	got  []llms.MessageContent
	resp *llms.ContentResponse
	err  error
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.got = messages
	return f.resp, f.err
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestComplete(t *testing.T) {
	m := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "forty-two"}}}}
	c := NewWithModel(m, "test-model")

	got, err := c.Complete(context.Background(), "be brief", "what is the answer?")
	require.NoError(t, err)
	assert.Equal(t, "forty-two", got)
	assert.Equal(t, "test-model", c.Model())

	require.Len(t, m.got, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, m.got[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, m.got[1].Role)
	assert.Equal(t, llms.TextContent{Text: "what is the answer?"}, m.got[1].Parts[0])
}

func TestComplete_Errors(t *testing.T) {
	_, err := NewWithModel(&fakeModel{resp: &llms.ContentResponse{}}, "m").Complete(context.Background(), "s", "p")
	assert.ErrorIs(t, err, ErrEmptyResponse)

	boom := errors.New("rate limited")
	_, err = NewWithModel(&fakeModel{err: boom}, "m").Complete(context.Background(), "s", "p")
	assert.ErrorIs(t, err, boom)
}

func TestNewClient_UnknownProvider(t *testing.T) {
	_, err := NewClient(context.Background(), config.LLMConfig{Provider: "palm"})
	assert.Error(t, err)
}

func TestNewClient_OpenAI(t *testing.T) {
	c, err := NewClient(context.Background(), config.LLMConfig{
		Provider: "openai",
		Key:      "Bearer sk-test",
		BaseURL:  "http://localhost:1/v1",
		Model:    "gpt-4o-mini",
	})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", c.Model())
}
