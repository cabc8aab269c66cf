package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/uptrace/bun"

	"document-intelligence/internal/models"
)

type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`

	ID               uuid.UUID  `bun:"id,pk,type:uuid"`
	WorkspaceID      string     `bun:"workspace_id,notnull"`
	UserID           string     `bun:"user_id"`
	OriginalName     string     `bun:"original_name"`
	FileName         string     `bun:"file_name"`
	FilePath         string     `bun:"file_path"`
	PublicURL        string     `bun:"public_url"`
	FileSize         int64      `bun:"file_size"`
	FileType         string     `bun:"file_type"`
	FileExtension    string     `bun:"file_extension"`
	ProcessingStatus string     `bun:"processing_status,notnull,default:'uploaded'"`
	ProcessedAt      *time.Time `bun:"processed_at"`
	CreatedAt        time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type Chunk struct {
	bun.BaseModel `bun:"table:document_chunks,alias:c"`

	ID               uuid.UUID       `bun:"id,pk,type:uuid,nullzero,default:gen_random_uuid()"`
	DocumentID       uuid.UUID       `bun:"document_id,type:uuid,notnull"`
	WorkspaceID      string          `bun:"workspace_id,notnull"`
	UserID           string          `bun:"user_id"`
	ChunkText        string          `bun:"chunk_text,notnull"`
	ChunkIndex       int             `bun:"chunk_index,notnull"`
	ChunkType        string          `bun:"chunk_type,notnull"`
	TokenCount       int             `bun:"token_count,notnull"`
	CharacterCount   int             `bun:"character_count,notnull"`
	Embedding        pgvector.Vector `bun:"embedding,type:vector"`
	EmbeddingModel   string          `bun:"embedding_model"`
	ChunkingStrategy string          `bun:"chunking_strategy"`
	EmbeddingFailed  bool            `bun:"embedding_failed,notnull"`
	CreatedAt        time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time       `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// similarityRow is one row of a similarity query.
type similarityRow struct {
	ID         uuid.UUID `bun:"id"`
	DocumentID uuid.UUID `bun:"document_id"`
	ChunkText  string    `bun:"chunk_text"`
	ChunkType  string    `bun:"chunk_type"`
	ChunkIndex int       `bun:"chunk_index"`
	Similarity float64   `bun:"similarity"`
}

func documentFromMetadata(meta models.DocumentMetadata) *Document {
	return &Document{
		ID:               meta.DocumentID,
		WorkspaceID:      meta.WorkspaceID,
		UserID:           meta.UserID,
		OriginalName:     meta.OriginalName,
		FileName:         meta.FileName,
		FilePath:         meta.FilePath,
		PublicURL:        meta.PublicURL,
		FileSize:         meta.FileSize,
		FileType:         meta.FileType,
		FileExtension:    meta.FileExtension,
		ProcessingStatus: string(models.StatusUploaded),
	}
}

func chunkFromModel(c models.DocumentChunk) Chunk {
	return Chunk{
		ID:               c.ID,
		DocumentID:       c.DocumentID,
		WorkspaceID:      c.WorkspaceID,
		UserID:           c.UserID,
		ChunkText:        c.ChunkText,
		ChunkIndex:       c.ChunkIndex,
		ChunkType:        string(c.ChunkType),
		TokenCount:       c.TokenCount,
		CharacterCount:   c.CharacterCount,
		Embedding:        pgvector.NewVector(c.Embedding),
		EmbeddingModel:   c.EmbeddingModel,
		ChunkingStrategy: c.ChunkingStrategy,
		EmbeddingFailed:  c.EmbeddingFailed,
	}
}

func (c Chunk) toModel() models.DocumentChunk {
	return models.DocumentChunk{
		ID:               c.ID,
		DocumentID:       c.DocumentID,
		WorkspaceID:      c.WorkspaceID,
		UserID:           c.UserID,
		ChunkText:        c.ChunkText,
		ChunkIndex:       c.ChunkIndex,
		ChunkType:        models.ChunkType(c.ChunkType),
		TokenCount:       c.TokenCount,
		CharacterCount:   c.CharacterCount,
		Embedding:        c.Embedding.Slice(),
		EmbeddingModel:   c.EmbeddingModel,
		ChunkingStrategy: c.ChunkingStrategy,
		EmbeddingFailed:  c.EmbeddingFailed,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

func (r similarityRow) toResult() models.SearchResult {
	return models.SearchResult{
		ID:         r.ID,
		DocumentID: r.DocumentID,
		ChunkText:  r.ChunkText,
		ChunkType:  models.ChunkType(r.ChunkType),
		ChunkIndex: r.ChunkIndex,
		Similarity: r.Similarity,
	}
}
