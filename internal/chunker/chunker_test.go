package chunker

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/textsplitter"

	"document-intelligence/internal/models"
)

type failingSplitter struct{ err error }

func (f failingSplitter) SplitText(string) ([]string, error) { return nil, f.err }

type panickingSplitter struct{}

func (panickingSplitter) SplitText(string) ([]string, error) { panic("encoding table missing") }

type emptySplitter struct{}

func (emptySplitter) SplitText(string) ([]string, error) { return []string{"", "  "}, nil }

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = fmt.Sprintf("word%03d", i)
	}
	return strings.Join(w, " ")
}

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c := New()
		assert.Equal(t, DefaultChunkSize, c.chunkSize)
		assert.Equal(t, DefaultChunkOverlap, c.overlap)
		assert.Equal(t, DefaultFallbackChunkSize, c.fallbackSize)
		assert.Equal(t, DefaultEncodingName, c.encoding)
		assert.NotNil(t, c.primary)
	})

	t.Run("overlap reduced when not below size", func(t *testing.T) {
		c := New(WithTokenBudget(100, 150))
		assert.Less(t, c.overlap, c.chunkSize)
	})

	t.Run("invalid values ignored", func(t *testing.T) {
		c := New(WithTokenBudget(0, -1), WithFallbackSize(0), WithEncoding(""))
		assert.Equal(t, DefaultChunkSize, c.chunkSize)
		assert.Equal(t, DefaultChunkOverlap, c.overlap)
		assert.Equal(t, DefaultFallbackChunkSize, c.fallbackSize)
		assert.Equal(t, DefaultEncodingName, c.encoding)
	})
}

func TestChunk_EmptyInput(t *testing.T) {
	c := New(WithSplitter(failingSplitter{errors.New("unused")}))

	assert.Empty(t, c.Chunk(""))
	res := c.Split(" \n\t ")
	assert.Empty(t, res.Segments)
	assert.False(t, res.Fallback)
}

func TestChunk_PrimarySplitter(t *testing.T) {
	primary := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(200),
		textsplitter.WithChunkOverlap(20),
	)
	c := New(WithSplitter(primary))
	text := words(120)

	res := c.Split(text)
	require.NotEmpty(t, res.Segments)
	assert.False(t, res.Fallback)
	assert.Equal(t, models.ChunkingStrategyToken, res.Strategy)
	assert.Greater(t, len(res.Segments), 1)

	joined := strings.Join(res.Segments, " ")
	for _, w := range strings.Fields(text) {
		assert.Contains(t, joined, w)
	}
	assert.True(t, strings.HasSuffix(strings.TrimSpace(res.Segments[len(res.Segments)-1]), "word119"))
}

func TestChunk_FallbackOnError(t *testing.T) {
	tests := []struct {
		name     string
		splitter textsplitter.TextSplitter
	}{
		{"error", failingSplitter{errors.New("tokenizer unavailable")}},
		{"panic", panickingSplitter{}},
		{"no segments", emptySplitter{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(WithSplitter(tt.splitter), WithFallbackSize(50))
			text := words(30)

			res := c.Split(text)
			assert.True(t, res.Fallback)
			assert.Error(t, res.Err)
			assert.Equal(t, models.ChunkingStrategySimple, res.Strategy)
			assert.Equal(t, SimpleChunk(text, 50), res.Segments)
			assert.Equal(t, strings.Fields(text), strings.Fields(strings.Join(res.Segments, " ")))
		})
	}
}

func TestChunk_Idempotent(t *testing.T) {
	c := New(WithSplitter(textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(100),
		textsplitter.WithChunkOverlap(10),
	)))
	text := words(80)

	assert.Equal(t, c.Chunk(text), c.Chunk(text))

	fb := New(WithSplitter(failingSplitter{errors.New("x")}), WithFallbackSize(40))
	assert.Equal(t, fb.Chunk(text), fb.Chunk(text))
}

func TestSimpleChunk(t *testing.T) {
	t.Run("threshold counts separators", func(t *testing.T) {
		// "aaaa" counts 5, two words reach 10.
		got := SimpleChunk("aaaa bbbb cccc dddd eeee", 10)
		assert.Equal(t, []string{"aaaa bbbb", "cccc dddd", "eeee"}, got)
	})

	t.Run("trailing partial kept", func(t *testing.T) {
		got := SimpleChunk("one two three", 1000)
		assert.Equal(t, []string{"one two three"}, got)
	})

	t.Run("long single word emitted alone", func(t *testing.T) {
		long := strings.Repeat("x", 30)
		got := SimpleChunk(long+" tail", 10)
		assert.Equal(t, []string{long, "tail"}, got)
	})

	t.Run("whitespace collapsed", func(t *testing.T) {
		got := SimpleChunk("  a\n\nb\tc  ", 1000)
		assert.Equal(t, []string{"a b c"}, got)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, SimpleChunk("   ", 10))
	})

	t.Run("non-positive size uses default", func(t *testing.T) {
		text := words(10)
		assert.Equal(t, SimpleChunk(text, DefaultFallbackChunkSize), SimpleChunk(text, 0))
	})

	t.Run("covers every word in order", func(t *testing.T) {
		text := words(500)
		got := SimpleChunk(text, 120)
		require.Greater(t, len(got), 1)
		assert.Equal(t, strings.Fields(text), strings.Fields(strings.Join(got, " ")))
	})
}

func TestSplit_DefaultTokenSplitter(t *testing.T) {
	c := New()

	res := c.Split("Hello world. This is a test.")
	require.NoError(t, res.Err)
	assert.False(t, res.Fallback)
	assert.Equal(t, models.ChunkingStrategyToken, res.Strategy)
	assert.Equal(t, []string{"Hello world. This is a test."}, res.Segments)

	long := words(2000)
	res = c.Split(long)
	require.NoError(t, res.Err)
	assert.False(t, res.Fallback)
	assert.Equal(t, models.ChunkingStrategyToken, res.Strategy)
	require.Greater(t, len(res.Segments), 1)
	assert.True(t, strings.HasPrefix(res.Segments[0], "word000 "))
	assert.True(t, strings.HasSuffix(long, res.Segments[len(res.Segments)-1]))
	assert.Contains(t, strings.Join(res.Segments, " "), "word1999")

	assert.Equal(t, res.Segments, c.Split(long).Segments)
}
