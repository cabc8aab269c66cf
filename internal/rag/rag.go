// Package rag answers similarity queries over stored chunks and, when a chat
// model is configured, generates answers grounded on them.
package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"document-intelligence/internal/embedding"
	"document-intelligence/internal/metrics"
	"document-intelligence/internal/models"
	"document-intelligence/internal/telemetry"
)

var (
	ErrDegradedQuery = errors.New("query embedding unavailable")
	ErrNoAnswerModel = errors.New("no chat model configured")

	thinkRe = regexp.MustCompile(models.ThinkTag)
)

type Embedder interface {
	Embed(ctx context.Context, text string) embedding.Result
}

type Searcher interface {
	SimilaritySearch(ctx context.Context, q models.SimilarityQuery) ([]models.SearchResult, error)
}

// Completer generates text from a system prompt and a user prompt.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

type RAG struct {
	embedder Embedder
	searcher Searcher
	llm      Completer
	metrics  *metrics.Metrics
}

type Option func(*RAG)

func WithCompleter(c Completer) Option {
	return func(r *RAG) {
		r.llm = c
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *RAG) {
		r.metrics = m
	}
}

func NewRAG(embedder Embedder, searcher Searcher, opts ...Option) *RAG {
	r := &RAG{embedder: embedder, searcher: searcher}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Search embeds the query and returns matching chunks in the order the
// store produced them. It never returns an error; failures yield an empty,
// degraded response.
func (r *RAG) Search(ctx context.Context, req models.SearchRequest) models.SearchResponse {
	start := time.Now()
	req = req.Normalize()

	ctx, span := telemetry.Tracer().Start(ctx, "rag.search", trace.WithAttributes(
		attribute.String("search.workspace_id", req.WorkspaceID),
		attribute.Float64("search.threshold", req.SimilarityThreshold),
		attribute.Int("search.limit", req.MaxResults),
	))
	defer span.End()

	results, err := r.search(ctx, req)
	elapsed := time.Since(start)
	resp := models.SearchResponse{
		Query:             req.Query,
		Results:           results,
		TotalResults:      len(results),
		SearchTimeSeconds: roundTo(elapsed.Seconds(), 3),
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error().Err(err).Str("workspace_id", req.WorkspaceID).Msg("Search failed")
		r.metrics.RecordSearch("degraded", 0, elapsed)

		resp.Results = []models.SearchResult{}
		resp.TotalResults = 0
		resp.Degraded = true
		resp.Error = err.Error()
		return resp
	}

	span.SetAttributes(attribute.Int("search.results", len(results)))
	r.metrics.RecordSearch("ok", len(results), elapsed)
	log.Debug().Str("workspace_id", req.WorkspaceID).Int("results", len(results)).Dur("elapsed", elapsed).Msg("Search completed")
	return resp
}

func (r *RAG) search(ctx context.Context, req models.SearchRequest) (results []models.SearchResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			results, err = nil, fmt.Errorf("search panic: %v", rec)
		}
	}()

	emb := r.embedder.Embed(ctx, req.Query)
	if emb.Fallback {
		// A zero vector has no direction; the store is never asked.
		if emb.Err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDegradedQuery, emb.Err)
		}
		return nil, ErrDegradedQuery
	}

	results, err = r.searcher.SimilaritySearch(ctx, models.SimilarityQuery{
		Vector:      emb.Vector,
		WorkspaceID: req.WorkspaceID,
		Threshold:   req.SimilarityThreshold,
		Limit:       req.MaxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	if results == nil {
		results = []models.SearchResult{}
	}
	return results, nil
}

// Answer searches for context and asks the chat model to answer the query
// from it. With no matching chunks the model is not called.
func (r *RAG) Answer(ctx context.Context, req models.SearchRequest) (models.PromptResponse, error) {
	if r.llm == nil {
		return models.PromptResponse{}, ErrNoAnswerModel
	}

	ctx, span := telemetry.Tracer().Start(ctx, "rag.answer")
	defer span.End()

	found := r.Search(ctx, req)
	resp := models.PromptResponse{
		Query:  found.Query,
		Chunks: found.Results,
		Source: sources(found.Results),
	}
	if found.Degraded {
		return resp, errors.New(found.Error)
	}
	if len(found.Results) == 0 {
		resp.Content = "No relevant context found for the query."
		return resp, nil
	}

	texts := make([]string, len(found.Results))
	for i, res := range found.Results {
		texts[i] = res.ChunkText
	}
	prompt := fmt.Sprintf(models.AnswerPromptTemplate, strings.Join(texts, models.ContextSeparator), found.Query)

	content, err := r.llm.Complete(ctx, models.AnswerSystemPrompt, prompt)
	if err != nil {
		span.RecordError(err)
		return resp, fmt.Errorf("failed to generate answer: %w", err)
	}
	resp.Content = strings.TrimSpace(thinkRe.ReplaceAllString(content, ""))
	return resp, nil
}

// sources lists the distinct documents the results came from, in order.
func sources(results []models.SearchResult) string {
	seen := make(map[string]bool)
	var ids []string
	for _, res := range results {
		id := res.DocumentID.String()
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return strings.Join(ids, ", ")
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
