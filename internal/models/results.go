package models

import (
	"time"

	"github.com/google/uuid"
)

// ProcessResult is returned by every pipeline run, successful or not.
type ProcessResult struct {
	DocumentID            uuid.UUID        `json:"document_id"`
	Status                ProcessingStatus `json:"status"`
	ChunksCreated         int              `json:"chunks_created"`
	ProcessingTimeSeconds float64          `json:"processing_time_seconds"`
	Message               string           `json:"message"`
	FallbackChunks        int              `json:"fallback_chunks,omitempty"`
	ChunkerFallback       bool             `json:"chunker_fallback,omitempty"`
}

const (
	DefaultSimilarityThreshold = 0.7
	DefaultMaxResults          = 10
	MaxResultsLimit            = 100
)

type SearchRequest struct {
	Query               string  `json:"query"`
	WorkspaceID         string  `json:"workspace_id"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	MaxResults          int     `json:"max_results"`
}

// Normalize clamps the threshold to [0,1] and the result count to [1,100].
func (r SearchRequest) Normalize() SearchRequest {
	switch {
	case r.SimilarityThreshold < 0:
		r.SimilarityThreshold = 0
	case r.SimilarityThreshold > 1:
		r.SimilarityThreshold = 1
	}
	switch {
	case r.MaxResults <= 0:
		r.MaxResults = DefaultMaxResults
	case r.MaxResults > MaxResultsLimit:
		r.MaxResults = MaxResultsLimit
	}
	return r
}

// SimilarityQuery is what the search path hands to the store.
type SimilarityQuery struct {
	Vector      []float32
	WorkspaceID string
	Threshold   float64
	Limit       int
}

type SearchResult struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	ChunkText  string    `json:"chunk_text"`
	ChunkType  ChunkType `json:"chunk_type"`
	ChunkIndex int       `json:"chunk_index"`
	Similarity float64   `json:"similarity"`
}

type SearchResponse struct {
	Query             string         `json:"query"`
	Results           []SearchResult `json:"results"`
	TotalResults      int            `json:"total_results"`
	SearchTimeSeconds float64        `json:"search_time_seconds"`
	// Degraded is set when the results are empty because of a failure
	// rather than because nothing matched.
	Degraded bool   `json:"degraded,omitempty"`
	Error    string `json:"error,omitempty"`
}

// PromptResponse carries a generated answer and the chunks it was grounded on.
type PromptResponse struct {
	Query   string         `json:"query"`
	Source  string         `json:"source"`
	Content string         `json:"content"`
	Chunks  []SearchResult `json:"chunks"`
}

const (
	HealthHealthy   = "healthy"
	HealthUnhealthy = "unhealthy"
	ServiceOK       = "ok"
)

type HealthReport struct {
	Status    string            `json:"status"`
	Services  map[string]string `json:"services,omitempty"`
	Error     string            `json:"error,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
