package models

import (
	"time"

	"github.com/google/uuid"
)

// ProcessingStatus tracks a document through the ingestion pipeline.
type ProcessingStatus string

const (
	StatusUploaded   ProcessingStatus = "uploaded"
	StatusProcessing ProcessingStatus = "processing"
	StatusProcessed  ProcessingStatus = "processed"
	StatusFailed     ProcessingStatus = "failed"
)

// Terminal reports whether no further transition is expected for the status.
func (s ProcessingStatus) Terminal() bool {
	return s == StatusProcessed || s == StatusFailed
}

// ChunkType is a coarse content label attached to every chunk.
type ChunkType string

const (
	ChunkTypeText    ChunkType = "text"
	ChunkTypeTable   ChunkType = "table"
	ChunkTypeHeading ChunkType = "heading"
	// ChunkTypeParagraph is accepted by the store but never produced by the classifier.
	ChunkTypeParagraph ChunkType = "paragraph"
)

// DocumentMetadata describes an uploaded file. It is created by the caller
// before processing and never modified by the pipeline.
type DocumentMetadata struct {
	DocumentID    uuid.UUID `json:"document_id" yaml:"document_id"`
	WorkspaceID   string    `json:"workspace_id" yaml:"workspace_id"`
	UserID        string    `json:"user_id" yaml:"user_id"`
	OriginalName  string    `json:"original_name" yaml:"original_name"`
	FileName      string    `json:"file_name" yaml:"file_name"`
	FilePath      string    `json:"file_path" yaml:"file_path"`
	PublicURL     string    `json:"public_url" yaml:"public_url"`
	FileSize      int64     `json:"file_size" yaml:"file_size"`
	FileType      string    `json:"file_type" yaml:"file_type"`
	FileExtension string    `json:"file_extension" yaml:"file_extension"`
}

// DocumentChunk is one retrievable slice of a document with its embedding.
type DocumentChunk struct {
	ID               uuid.UUID `json:"id"`
	DocumentID       uuid.UUID `json:"document_id"`
	WorkspaceID      string    `json:"workspace_id"`
	UserID           string    `json:"user_id"`
	ChunkText        string    `json:"chunk_text"`
	ChunkIndex       int       `json:"chunk_index"`
	ChunkType        ChunkType `json:"chunk_type"`
	TokenCount       int       `json:"token_count"`
	CharacterCount   int       `json:"character_count"`
	Embedding        []float32 `json:"-"`
	EmbeddingModel   string    `json:"embedding_model"`
	ChunkingStrategy string    `json:"chunking_strategy"`
	// EmbeddingFailed marks chunks stored with a zero vector because the
	// provider failed. They are skipped by similarity search.
	EmbeddingFailed bool      `json:"embedding_failed"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
