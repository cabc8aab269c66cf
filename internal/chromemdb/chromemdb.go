// Package chromemdb is an embedded document store backed by chromem-go,
// used for local runs and tests.
package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"document-intelligence/internal/config"
	"document-intelligence/internal/models"
)

const documentsSuffix = "_documents"

// Metadata keys of chunk and document records.
const (
	keyChunkID          = "chunk_id"
	keyDocumentID       = "document_id"
	keyWorkspaceID      = "workspace_id"
	keyUserID           = "user_id"
	keyChunkIndex       = "chunk_index"
	keyChunkType        = "chunk_type"
	keyTokenCount       = "token_count"
	keyCharacterCount   = "character_count"
	keyEmbeddingModel   = "embedding_model"
	keyChunkingStrategy = "chunking_strategy"
	keyEmbeddingFailed  = "embedding_failed"
	keyCreatedAt        = "created_at"

	keyStatus        = "processing_status"
	keyProcessedAt   = "processed_at"
	keyChunkCount    = "chunk_count"
	keyOriginalName  = "original_name"
	keyFileName      = "file_name"
	keyFilePath      = "file_path"
	keyPublicURL     = "public_url"
	keyFileSize      = "file_size"
	keyFileType      = "file_type"
	keyFileExtension = "file_extension"
)

// Document records carry a constant one-dimensional embedding; they are
// only ever read by id.
var documentEmbedding = []float32{1}

// Store keeps chunks in one collection, keyed <documentID>:<index>, and
// document records with their status in a second one.
type Store struct {
	mu            sync.Mutex
	db            *chromem.DB
	chunks        *chromem.Collection
	documents     *chromem.Collection
	dbPath        string
	compress      bool
	encryptionKey string
	filePath      string
}

// New opens the database described by cfg and creates its collections.
func New(cfg config.StoreConfig) (*Store, error) {
	var db *chromem.DB
	var err error
	if cfg.InMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.ChromemPath, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	name := cfg.CollectionName
	if name == "" {
		name = "document_chunks"
	}
	s := &Store{
		db:            db,
		dbPath:        cfg.ChromemPath,
		compress:      cfg.Compress,
		encryptionKey: cfg.EncryptionKey,
		filePath:      filepath.Join(cfg.ChromemPath, name+".chromem"),
	}
	if err := s.initCollections(name); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) initCollections(name string) error {
	var err error
	s.chunks, err = s.db.GetOrCreateCollection(name, nil, requireEmbedding)
	if err != nil {
		return fmt.Errorf("failed to create/get collection %s: %w", name, err)
	}
	s.documents, err = s.db.GetOrCreateCollection(name+documentsSuffix, nil, requireEmbedding)
	if err != nil {
		return fmt.Errorf("failed to create/get collection %s: %w", name+documentsSuffix, err)
	}
	return nil
}

// requireEmbedding stops chromem from calling a remote embedding API for
// records added without a vector.
func requireEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromemdb: records must carry their embedding")
}

// InitSchema is a no-op; collections are created by New.
func (s *Store) InitSchema(context.Context) error { return nil }

func (s *Store) Ping(context.Context) error {
	if s.db == nil || s.chunks == nil {
		return errors.New("chromemdb: store not initialized")
	}
	return nil
}

// Close is a no-op; persistent databases write through on every change.
func (s *Store) Close() error { return nil }

func (s *Store) RegisterDocument(ctx context.Context, meta models.DocumentMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.documents.GetByID(ctx, meta.DocumentID.String()); err == nil {
		return fmt.Errorf("register document %s: already exists", meta.DocumentID)
	}
	return s.documents.AddDocument(ctx, chromem.Document{
		ID:        meta.DocumentID.String(),
		Content:   meta.OriginalName,
		Embedding: documentEmbedding,
		Metadata: map[string]string{
			keyWorkspaceID:   meta.WorkspaceID,
			keyUserID:        meta.UserID,
			keyOriginalName:  meta.OriginalName,
			keyFileName:      meta.FileName,
			keyFilePath:      meta.FilePath,
			keyPublicURL:     meta.PublicURL,
			keyFileSize:      strconv.FormatInt(meta.FileSize, 10),
			keyFileType:      meta.FileType,
			keyFileExtension: meta.FileExtension,
			keyStatus:        string(models.StatusUploaded),
			keyChunkCount:    "0",
		},
	})
}

// UpdateStatus rewrites the document record. processed_at is set for
// processed and cleared otherwise.
func (s *Store) UpdateStatus(ctx context.Context, documentID uuid.UUID, status models.ProcessingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateDocument(ctx, documentID, func(m map[string]string) {
		m[keyStatus] = string(status)
		if status == models.StatusProcessed {
			m[keyProcessedAt] = time.Now().UTC().Format(time.RFC3339Nano)
		} else {
			delete(m, keyProcessedAt)
		}
	})
}

func (s *Store) updateDocument(ctx context.Context, documentID uuid.UUID, update func(map[string]string)) error {
	doc, err := s.documents.GetByID(ctx, documentID.String())
	if err != nil {
		return fmt.Errorf("document %s: %w", documentID, models.ErrDocumentNotFound)
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]string{}
	}
	update(doc.Metadata)
	doc.Embedding = documentEmbedding
	return s.documents.AddDocument(ctx, doc)
}

func (s *Store) GetDocumentStatus(ctx context.Context, documentID uuid.UUID) (models.ProcessingStatus, error) {
	doc, err := s.documents.GetByID(ctx, documentID.String())
	if err != nil {
		return "", models.ErrDocumentNotFound
	}
	return models.ProcessingStatus(doc.Metadata[keyStatus]), nil
}

// InsertChunks replaces the chunk set of every document in the batch and
// returns the number of chunks written.
func (s *Store) InsertChunks(ctx context.Context, chunks []models.DocumentChunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[uuid.UUID]int)
	docs := make([]chromem.Document, len(chunks))
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for i := range chunks {
		if chunks[i].ID == uuid.Nil {
			chunks[i].ID = uuid.New()
		}
		docs[i] = toRecord(chunks[i], now)
		counts[chunks[i].DocumentID]++
	}

	for id := range counts {
		if err := s.chunks.Delete(ctx, map[string]string{keyDocumentID: id.String()}, nil); err != nil {
			return 0, fmt.Errorf("delete previous chunks of %s: %w", id, err)
		}
	}
	if err := s.chunks.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return 0, fmt.Errorf("failed to add chunks: %w", err)
	}

	for id, n := range counts {
		err := s.updateDocument(ctx, id, func(m map[string]string) {
			m[keyChunkCount] = strconv.Itoa(n)
		})
		if err != nil && !errors.Is(err, models.ErrDocumentNotFound) {
			return 0, err
		}
	}
	return len(docs), nil
}

// SimilaritySearch returns the workspace chunks whose similarity exceeds the
// threshold, most similar first. Chunks with failed embeddings are skipped.
func (s *Store) SimilaritySearch(ctx context.Context, q models.SimilarityQuery) ([]models.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := min(q.Limit, s.chunks.Count())
	if n <= 0 {
		return []models.SearchResult{}, nil
	}

	where := map[string]string{
		keyWorkspaceID:     q.WorkspaceID,
		keyEmbeddingFailed: "false",
	}
	res, err := s.chunks.QueryEmbedding(ctx, q.Vector, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	results := make([]models.SearchResult, 0, len(res))
	for _, r := range res {
		// NaN similarities from degenerate vectors fail this comparison.
		if !(float64(r.Similarity) > q.Threshold) {
			continue
		}
		results = append(results, models.SearchResult{
			ID:         parseID(r.Metadata[keyChunkID]),
			DocumentID: parseID(r.Metadata[keyDocumentID]),
			ChunkText:  r.Content,
			ChunkType:  models.ChunkType(r.Metadata[keyChunkType]),
			ChunkIndex: atoi(r.Metadata[keyChunkIndex]),
			Similarity: float64(r.Similarity),
		})
	}
	return results, nil
}

// GetChunks returns the chunks of a document ordered by chunk_index.
func (s *Store) GetChunks(ctx context.Context, documentID uuid.UUID) ([]models.DocumentChunk, error) {
	doc, err := s.documents.GetByID(ctx, documentID.String())
	if err != nil {
		return nil, fmt.Errorf("get chunks of %s: %w", documentID, models.ErrDocumentNotFound)
	}

	count := atoi(doc.Metadata[keyChunkCount])
	chunks := make([]models.DocumentChunk, 0, count)
	for i := 0; i < count; i++ {
		rec, err := s.chunks.GetByID(ctx, chunkKey(documentID, i))
		if err != nil {
			return nil, fmt.Errorf("chunk %d of %s missing: %w", i, documentID, err)
		}
		chunks = append(chunks, fromRecord(rec))
	}
	return chunks, nil
}

func (s *Store) DeleteDocument(ctx context.Context, documentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.documents.GetByID(ctx, documentID.String()); err != nil {
		return models.ErrDocumentNotFound
	}
	if err := s.chunks.Delete(ctx, map[string]string{keyDocumentID: documentID.String()}, nil); err != nil {
		return fmt.Errorf("delete chunks of %s: %w", documentID, err)
	}
	if err := s.documents.Delete(ctx, nil, nil, documentID.String()); err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	return nil
}

// Export writes both collections to an encrypted file next to the database.
func (s *Store) Export(ctx context.Context) (string, error) {
	if s.encryptionKey == "" {
		return "", fmt.Errorf("encryption key is required")
	}
	if s.dbPath == "" {
		return "", fmt.Errorf("db path is required")
	}

	log.Debug().Str("file", s.filePath).Bool("compress", s.compress).Msg("Exporting chromem collections")
	err := s.db.ExportToFile(s.filePath, s.compress, s.encryptionKey, s.chunks.Name, s.documents.Name)
	if err != nil {
		return "", fmt.Errorf("failed to export database: %w", err)
	}
	return s.filePath, nil
}

// Import loads collections previously written by Export.
func (s *Store) Import(ctx context.Context) error {
	if err := s.db.ImportFromFile(s.filePath, s.encryptionKey, s.chunks.Name, s.documents.Name); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	return s.initCollections(s.chunks.Name)
}

func chunkKey(documentID uuid.UUID, index int) string {
	return documentID.String() + ":" + strconv.Itoa(index)
}

func toRecord(c models.DocumentChunk, createdAt string) chromem.Document {
	return chromem.Document{
		ID:        chunkKey(c.DocumentID, c.ChunkIndex),
		Content:   c.ChunkText,
		Embedding: c.Embedding,
		Metadata: map[string]string{
			keyChunkID:          c.ID.String(),
			keyDocumentID:       c.DocumentID.String(),
			keyWorkspaceID:      c.WorkspaceID,
			keyUserID:           c.UserID,
			keyChunkIndex:       strconv.Itoa(c.ChunkIndex),
			keyChunkType:        string(c.ChunkType),
			keyTokenCount:       strconv.Itoa(c.TokenCount),
			keyCharacterCount:   strconv.Itoa(c.CharacterCount),
			keyEmbeddingModel:   c.EmbeddingModel,
			keyChunkingStrategy: c.ChunkingStrategy,
			keyEmbeddingFailed:  strconv.FormatBool(c.EmbeddingFailed),
			keyCreatedAt:        createdAt,
		},
	}
}

func fromRecord(d chromem.Document) models.DocumentChunk {
	m := d.Metadata
	failed, _ := strconv.ParseBool(m[keyEmbeddingFailed])
	embedding := d.Embedding
	if failed {
		// Stored zero vectors come back normalized to NaN.
		embedding = make([]float32, len(d.Embedding))
	}
	created, _ := time.Parse(time.RFC3339Nano, m[keyCreatedAt])
	return models.DocumentChunk{
		ID:               parseID(m[keyChunkID]),
		DocumentID:       parseID(m[keyDocumentID]),
		WorkspaceID:      m[keyWorkspaceID],
		UserID:           m[keyUserID],
		ChunkText:        d.Content,
		ChunkIndex:       atoi(m[keyChunkIndex]),
		ChunkType:        models.ChunkType(m[keyChunkType]),
		TokenCount:       atoi(m[keyTokenCount]),
		CharacterCount:   atoi(m[keyCharacterCount]),
		Embedding:        embedding,
		EmbeddingModel:   m[keyEmbeddingModel],
		ChunkingStrategy: m[keyChunkingStrategy],
		EmbeddingFailed:  failed,
		CreatedAt:        created,
		UpdatedAt:        created,
	}
}

func parseID(s string) uuid.UUID {
	id, _ := uuid.Parse(s)
	return id
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
