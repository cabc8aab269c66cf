// Package chunker splits normalized document text into overlapping,
// token-budgeted segments with a word-based fallback.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/textsplitter"

	"document-intelligence/internal/models"
)

const (
	DefaultChunkSize         = 512
	DefaultChunkOverlap      = 64
	DefaultFallbackChunkSize = 1000
	DefaultEncodingName      = "cl100k_base"
)

// The BPE tables are embedded so token splitting works without network access.
func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// Result is the outcome of a split. Fallback is set when the primary
// strategy failed and the word splitter produced the segments.
type Result struct {
	Segments []string
	Strategy string
	Fallback bool
	Err      error
}

type Chunker struct {
	chunkSize    int
	overlap      int
	encoding     string
	fallbackSize int
	primary      textsplitter.TextSplitter
}

type Option func(*Chunker)

// WithTokenBudget sets the primary chunk size and overlap in tokens.
func WithTokenBudget(size, overlap int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

func WithEncoding(name string) Option {
	return func(c *Chunker) {
		if name != "" {
			c.encoding = name
		}
	}
}

// WithFallbackSize sets the character threshold of the word splitter.
func WithFallbackSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.fallbackSize = size
		}
	}
}

// WithSplitter replaces the primary token splitter.
func WithSplitter(s textsplitter.TextSplitter) Option {
	return func(c *Chunker) {
		c.primary = s
	}
}

func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize:    DefaultChunkSize,
		overlap:      DefaultChunkOverlap,
		encoding:     DefaultEncodingName,
		fallbackSize: DefaultFallbackChunkSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.chunkSize {
		c.overlap = c.chunkSize / 8
	}
	if c.primary == nil {
		c.primary = textsplitter.NewTokenSplitter(
			textsplitter.WithChunkSize(c.chunkSize),
			textsplitter.WithChunkOverlap(c.overlap),
			textsplitter.WithEncodingName(c.encoding),
		)
	}
	return c
}

// Chunk returns the ordered segments for text. Empty input yields no segments.
func (c *Chunker) Chunk(text string) []string {
	return c.Split(text).Segments
}

// Split runs the primary splitter and falls back to word accumulation on
// any error. It never fails.
func (c *Chunker) Split(text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Strategy: models.ChunkingStrategyToken}
	}

	segments, err := c.splitPrimary(text)
	if err == nil && len(segments) == 0 {
		err = fmt.Errorf("primary splitter returned no segments for %d characters", len(text))
	}
	if err == nil {
		return Result{Segments: segments, Strategy: models.ChunkingStrategyToken}
	}

	log.Warn().Err(err).Int("fallback_size", c.fallbackSize).Msg("Token chunking failed, using simple chunking")
	return Result{
		Segments: SimpleChunk(text, c.fallbackSize),
		Strategy: models.ChunkingStrategySimple,
		Fallback: true,
		Err:      err,
	}
}

func (c *Chunker) splitPrimary(text string) (segments []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("token splitter panic: %v", r)
		}
	}()
	raw, err := c.primary.SplitText(text)
	if err != nil {
		return nil, err
	}
	segments = make([]string, 0, len(raw))
	for _, s := range raw {
		if strings.TrimSpace(s) != "" {
			segments = append(segments, s)
		}
	}
	return segments, nil
}

// SimpleChunk greedily packs whitespace-separated words into segments. A
// segment is emitted once its length (each word plus one separator)
// reaches maxChars; the trailing partial segment is always kept.
func SimpleChunk(content string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultFallbackChunkSize
	}

	var chunks []string
	var current []string
	length := 0
	for _, word := range strings.Fields(content) {
		current = append(current, word)
		length += utf8.RuneCountInString(word) + 1
		if length >= maxChars {
			chunks = append(chunks, strings.Join(current, " "))
			current = current[:0]
			length = 0
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}
