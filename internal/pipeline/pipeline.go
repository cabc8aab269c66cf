// Package pipeline drives a document from uploaded to processed or failed:
// convert, chunk, classify, embed, store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"document-intelligence/internal/chunker"
	"document-intelligence/internal/classifier"
	"document-intelligence/internal/embedding"
	"document-intelligence/internal/metrics"
	"document-intelligence/internal/models"
	"document-intelligence/internal/telemetry"
)

type Converter interface {
	Convert(ctx context.Context, path string) (string, error)
}

type Chunker interface {
	Split(text string) chunker.Result
}

type Embedder interface {
	Embed(ctx context.Context, text string) embedding.Result
	Model() string
}

// Store is the persistence the pipeline needs.
type Store interface {
	UpdateStatus(ctx context.Context, documentID uuid.UUID, status models.ProcessingStatus) error
	InsertChunks(ctx context.Context, chunks []models.DocumentChunk) (int, error)
	GetChunks(ctx context.Context, documentID uuid.UUID) ([]models.DocumentChunk, error)
}

var (
	_ Chunker  = (*chunker.Chunker)(nil)
	_ Embedder = (*embedding.Service)(nil)
)

type Service struct {
	converter Converter
	chunker   Chunker
	embedder  Embedder
	store     Store
	metrics   *metrics.Metrics
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func NewService(converter Converter, ch Chunker, embedder Embedder, store Store, opts ...Option) *Service {
	s := &Service{
		converter: converter,
		chunker:   ch,
		embedder:  embedder,
		store:     store,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// outcome collects what a run produced, for the summary and for metrics.
type outcome struct {
	chunks          int
	fallbackChunks  int
	chunkerFallback bool
}

// ProcessDocument runs the full pipeline for one document. It never returns
// an error: failures are reported through the result status and message,
// and the stored status always ends as processed or failed.
func (s *Service) ProcessDocument(ctx context.Context, meta models.DocumentMetadata, filePath string) models.ProcessResult {
	start := time.Now()
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.process_document", trace.WithAttributes(
		attribute.String("document.id", meta.DocumentID.String()),
		attribute.String("document.workspace_id", meta.WorkspaceID),
	))
	defer span.End()

	logger := log.With().Str("document_id", meta.DocumentID.String()).Str("workspace_id", meta.WorkspaceID).Logger()
	ctx = logger.WithContext(ctx)
	logger.Info().Str("file", filePath).Msg("Starting document processing")

	out, err := s.run(ctx, meta, filePath)
	elapsed := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Dur("elapsed", elapsed).Msg("Document processing failed")

		// The failed status is written even when ctx was cancelled.
		uerr := s.store.UpdateStatus(context.WithoutCancel(ctx), meta.DocumentID, models.StatusFailed)
		s.metrics.RecordStoreOp("update_status", uerr)
		if uerr != nil {
			logger.Error().Err(uerr).Msg("Failed to mark document as failed")
		}
		s.metrics.RecordProcessing(string(models.StatusFailed), 0, out.chunkerFallback, elapsed)

		return models.ProcessResult{
			DocumentID:            meta.DocumentID,
			Status:                models.StatusFailed,
			ProcessingTimeSeconds: roundTo(elapsed.Seconds(), 2),
			Message:               fmt.Sprintf("Document processing failed: %v", err),
			ChunkerFallback:       out.chunkerFallback,
		}
	}

	span.SetAttributes(attribute.Int("document.chunks", out.chunks))
	s.metrics.RecordProcessing(string(models.StatusProcessed), out.chunks, out.chunkerFallback, elapsed)
	logger.Info().Int("chunks", out.chunks).Int("fallback_chunks", out.fallbackChunks).Dur("elapsed", elapsed).Msg("Document processed")

	return models.ProcessResult{
		DocumentID:            meta.DocumentID,
		Status:                models.StatusProcessed,
		ChunksCreated:         out.chunks,
		ProcessingTimeSeconds: roundTo(elapsed.Seconds(), 2),
		Message:               fmt.Sprintf("Successfully processed document with %d chunks", out.chunks),
		FallbackChunks:        out.fallbackChunks,
		ChunkerFallback:       out.chunkerFallback,
	}
}

func (s *Service) run(ctx context.Context, meta models.DocumentMetadata, filePath string) (out outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if err := s.updateStatus(ctx, meta.DocumentID, models.StatusProcessing); err != nil {
		return out, err
	}

	text, err := s.convert(ctx, filePath)
	if err != nil {
		return out, err
	}

	chunks, out, err := s.buildChunks(ctx, meta, text)
	if err != nil {
		return out, err
	}

	written, err := s.insertChunks(ctx, chunks)
	if err != nil {
		return out, err
	}
	if written != len(chunks) {
		zerolog.Ctx(ctx).Warn().Int("written", written).Int("expected", len(chunks)).Msg("Store wrote fewer chunks than built")
	}
	out.chunks = written

	if err := s.updateStatus(ctx, meta.DocumentID, models.StatusProcessed); err != nil {
		return out, err
	}
	return out, nil
}

func (s *Service) updateStatus(ctx context.Context, id uuid.UUID, status models.ProcessingStatus) error {
	err := s.store.UpdateStatus(ctx, id, status)
	s.metrics.RecordStoreOp("update_status", err)
	if err != nil {
		return fmt.Errorf("failed to set status %s: %w", status, err)
	}
	return nil
}

func (s *Service) convert(ctx context.Context, filePath string) (string, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.convert")
	defer span.End()

	text, err := s.converter.Convert(ctx, filePath)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", models.ErrEmptyContent
	}
	span.SetAttributes(attribute.Int("document.characters", len(text)))
	return text, nil
}

// buildChunks splits text and builds one chunk per segment, in order. It
// stops at the first error; nothing is returned for storage in that case.
func (s *Service) buildChunks(ctx context.Context, meta models.DocumentMetadata, text string) ([]models.DocumentChunk, outcome, error) {
	var out outcome
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.chunk_and_embed")
	defer span.End()

	split := s.chunker.Split(text)
	out.chunkerFallback = split.Fallback
	if len(split.Segments) == 0 {
		return nil, out, errors.New("chunking produced no segments")
	}
	span.SetAttributes(
		attribute.Int("chunks.segments", len(split.Segments)),
		attribute.String("chunks.strategy", split.Strategy),
	)

	chunks := make([]models.DocumentChunk, 0, len(split.Segments))
	for i, segment := range split.Segments {
		if err := ctx.Err(); err != nil {
			return nil, out, fmt.Errorf("aborted at chunk %d: %w", i, err)
		}

		emb := s.embedder.Embed(ctx, segment)
		if emb.Fallback {
			out.fallbackChunks++
		}
		chunks = append(chunks, models.DocumentChunk{
			DocumentID:       meta.DocumentID,
			WorkspaceID:      meta.WorkspaceID,
			UserID:           meta.UserID,
			ChunkText:        segment,
			ChunkIndex:       i,
			ChunkType:        classifier.Classify(segment),
			TokenCount:       len(strings.Fields(segment)),
			CharacterCount:   utf8.RuneCountInString(segment),
			Embedding:        emb.Vector,
			EmbeddingModel:   s.embedder.Model(),
			ChunkingStrategy: split.Strategy,
			EmbeddingFailed:  emb.Fallback,
		})
	}

	if out.fallbackChunks > 0 {
		zerolog.Ctx(ctx).Warn().Int("fallback_chunks", out.fallbackChunks).Int("chunks", len(chunks)).Msg("Some chunks stored with zero embeddings")
	}
	return chunks, out, nil
}

func (s *Service) insertChunks(ctx context.Context, chunks []models.DocumentChunk) (int, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.store_chunks")
	defer span.End()

	n, err := s.store.InsertChunks(ctx, chunks)
	s.metrics.RecordStoreOp("insert_chunks", err)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to store chunks: %w", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("failed to store chunks: %w", models.ErrNoRowsWritten)
	}
	return n, nil
}

// GetDocumentChunks returns the stored chunks of a document in chunk_index
// order. Store errors are logged and yield an empty list.
func (s *Service) GetDocumentChunks(ctx context.Context, documentID uuid.UUID) []models.DocumentChunk {
	chunks, err := s.store.GetChunks(ctx, documentID)
	s.metrics.RecordStoreOp("get_chunks", err)
	if err != nil {
		log.Error().Err(err).Str("document_id", documentID.String()).Msg("Error getting document chunks")
		return []models.DocumentChunk{}
	}
	return chunks
}

// Preview converts and chunks a file without embedding or storing anything.
func (s *Service) Preview(ctx context.Context, filePath string) ([]models.DocumentChunk, chunker.Result, error) {
	text, err := s.convert(ctx, filePath)
	if err != nil {
		return nil, chunker.Result{}, err
	}
	split := s.chunker.Split(text)
	chunks := make([]models.DocumentChunk, len(split.Segments))
	for i, segment := range split.Segments {
		chunks[i] = models.DocumentChunk{
			ChunkText:        segment,
			ChunkIndex:       i,
			ChunkType:        classifier.Classify(segment),
			TokenCount:       len(strings.Fields(segment)),
			CharacterCount:   utf8.RuneCountInString(segment),
			ChunkingStrategy: split.Strategy,
		}
	}
	return chunks, split, nil
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
