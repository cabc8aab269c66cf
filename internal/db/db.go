// Package db is the Postgres/pgvector document store.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"document-intelligence/internal/config"
	"document-intelligence/internal/models"
)

type Store struct {
	db *bun.DB
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens a connection pool with the configured driver: "pgdriver"
// (default) or "pq".
func ConnectDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case "pq":
		return sql.Open("postgres", cfg.DSN)
	case "pgdriver", "":
		opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	default:
		return nil, fmt.Errorf("unknown database driver: %s", cfg.Driver)
	}
}

// Open connects to Postgres and returns a Store.
func Open(cfg config.DatabaseConfig) (*Store, error) {
	sqldb, err := ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	return New(NewDB(sqldb, cfg.Debug)), nil
}

func New(db *bun.DB) *Store {
	return &Store{db: db}
}

// InitSchema creates the vector extension, both tables and their indexes.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	if _, err := s.db.NewCreateTable().Model((*Document)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create documents table: %w", err)
	}
	if _, err := s.db.NewCreateTable().
		Model((*Chunk)(nil)).
		IfNotExists().
		ForeignKey(`("document_id") REFERENCES "documents" ("id") ON DELETE CASCADE`).
		Exec(ctx); err != nil {
		return fmt.Errorf("create document_chunks table: %w", err)
	}
	if _, err := s.db.NewCreateIndex().
		Model((*Chunk)(nil)).
		Index("document_chunks_document_id_chunk_index_key").
		IfNotExists().
		Unique().
		Column("document_id", "chunk_index").
		Exec(ctx); err != nil {
		return fmt.Errorf("create chunk index: %w", err)
	}
	if _, err := s.db.NewCreateIndex().
		Model((*Chunk)(nil)).
		Index("document_chunks_workspace_id_idx").
		IfNotExists().
		Column("workspace_id").
		Exec(ctx); err != nil {
		return fmt.Errorf("create workspace index: %w", err)
	}
	log.Info().Msg("Database schema initialized")
	return nil
}

// DropSchema removes both tables.
func (s *Store) DropSchema(ctx context.Context) error {
	if _, err := s.db.NewDropTable().Model((*Chunk)(nil)).IfExists().Exec(ctx); err != nil {
		return err
	}
	_, err := s.db.NewDropTable().Model((*Document)(nil)).IfExists().Exec(ctx)
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RegisterDocument inserts the document row with status uploaded.
func (s *Store) RegisterDocument(ctx context.Context, meta models.DocumentMetadata) error {
	_, err := s.db.NewInsert().Model(documentFromMetadata(meta)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("register document %s: %w", meta.DocumentID, err)
	}
	return nil
}

// UpdateStatus sets the processing status. processed_at is set to now for
// processed and cleared otherwise.
func (s *Store) UpdateStatus(ctx context.Context, documentID uuid.UUID, status models.ProcessingStatus) error {
	q := s.db.NewUpdate().
		Model((*Document)(nil)).
		Set("processing_status = ?", string(status)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", documentID)
	if status == models.StatusProcessed {
		q = q.Set("processed_at = ?", time.Now().UTC())
	} else {
		q = q.Set("processed_at = NULL")
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("update status of %s to %s: %w", documentID, status, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update status of %s: %w", documentID, models.ErrDocumentNotFound)
	}
	return nil
}

func (s *Store) GetDocumentStatus(ctx context.Context, documentID uuid.UUID) (models.ProcessingStatus, error) {
	var status string
	err := s.db.NewSelect().
		Model((*Document)(nil)).
		Column("processing_status").
		Where("id = ?", documentID).
		Scan(ctx, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", models.ErrDocumentNotFound
	}
	if err != nil {
		return "", err
	}
	return models.ProcessingStatus(status), nil
}

// InsertChunks writes the whole batch in one transaction and returns the
// number of rows written. Store-assigned ids are copied back into chunks.
func (s *Store) InsertChunks(ctx context.Context, chunks []models.DocumentChunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	rows := make([]Chunk, len(chunks))
	for i, c := range chunks {
		rows[i] = chunkFromModel(c)
	}

	var written int64
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// A rerun replaces the chunk set of the document.
		if _, err := tx.NewDelete().
			Model((*Chunk)(nil)).
			Where("document_id IN (?)", bun.In(documentIDs(chunks))).
			Exec(ctx); err != nil {
			return err
		}
		res, err := tx.NewInsert().Model(&rows).Returning("id").Exec(ctx)
		if err != nil {
			return err
		}
		written, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("insert %d chunks: %w", len(chunks), err)
	}
	for i := range rows {
		chunks[i].ID = rows[i].ID
	}
	return int(written), nil
}

func documentIDs(chunks []models.DocumentChunk) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID
	for _, c := range chunks {
		if _, ok := seen[c.DocumentID]; !ok {
			seen[c.DocumentID] = struct{}{}
			ids = append(ids, c.DocumentID)
		}
	}
	return ids
}

// SimilaritySearch returns chunks of the workspace whose cosine similarity to
// the query vector exceeds the threshold, most similar first.
func (s *Store) SimilaritySearch(ctx context.Context, q models.SimilarityQuery) ([]models.SearchResult, error) {
	vec := pgvector.NewVector(q.Vector)

	var rows []similarityRow
	err := s.db.NewSelect().
		Model((*Chunk)(nil)).
		Column("c.id", "c.document_id", "c.chunk_text", "c.chunk_type", "c.chunk_index").
		ColumnExpr("1 - (c.embedding <=> ?) AS similarity", vec).
		Where("c.workspace_id = ?", q.WorkspaceID).
		Where("c.embedding_failed = false").
		Where("1 - (c.embedding <=> ?) > ?", vec, q.Threshold).
		OrderExpr("c.embedding <=> ?", vec).
		Limit(q.Limit).
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	results := make([]models.SearchResult, 0, len(rows))
	for _, r := range rows {
		results = append(results, r.toResult())
	}
	return results, nil
}

// GetChunks returns the chunks of a document ordered by chunk_index.
func (s *Store) GetChunks(ctx context.Context, documentID uuid.UUID) ([]models.DocumentChunk, error) {
	var rows []Chunk
	err := s.db.NewSelect().
		Model(&rows).
		Where("c.document_id = ?", documentID).
		OrderExpr("c.chunk_index ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chunks of %s: %w", documentID, err)
	}

	chunks := make([]models.DocumentChunk, len(rows))
	for i, r := range rows {
		chunks[i] = r.toModel()
	}
	return chunks, nil
}

// DeleteDocument removes the document and its chunks.
func (s *Store) DeleteDocument(ctx context.Context, documentID uuid.UUID) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*Chunk)(nil)).Where("document_id = ?", documentID).Exec(ctx); err != nil {
			return fmt.Errorf("delete chunks of %s: %w", documentID, err)
		}
		res, err := tx.NewDelete().Model((*Document)(nil)).Where("id = ?", documentID).Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete document %s: %w", documentID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return models.ErrDocumentNotFound
		}
		return nil
	})
}
