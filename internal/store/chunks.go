package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/docchat/internal/domain"
	"github.com/pgvector/pgvector-go"
)

// InsertChunks writes every chunk of a document in one transaction. Chunk order
// is kept in chunk_index and in the seq column used for tie-breaking.
func (s *Store) InsertChunks(ctx context.Context, documentID string, chunks []domain.NewChunk) (err error) {
	if documentID == "" {
		return fmt.Errorf("%w: document_id required", domain.ErrInvalidInput)
	}
	for i, c := range chunks {
		if len(c.Embedding) != s.dims() {
			return fmt.Errorf("%w: chunk %d has %d dimensions, want %d", domain.ErrDimensionMismatch, i, len(c.Embedding), s.dims())
		}
	}
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin chunk insert: %w", domain.ErrPersistence, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	// row lock serialises concurrent ingestions of the same document
	var hasChunks bool
	err = tx.QueryRowContext(ctx, `
SELECT EXISTS(SELECT 1 FROM document_chunks c WHERE c.document_id = d.id)
FROM documents d WHERE d.id=$1 FOR UPDATE`, documentID).Scan(&hasChunks)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%w: lock document: %w", domain.ErrPersistence, err)
	}
	if hasChunks {
		return fmt.Errorf("document %s: %w", documentID, domain.ErrAlreadyIngested)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO document_chunks (id, document_id, chunk_index, content, embedding)
VALUES ($1,$2,$3,$4,$5)`)
	if err != nil {
		return fmt.Errorf("%w: prepare chunk insert: %w", domain.ErrPersistence, err)
	}
	defer stmt.Close()
	for i, c := range chunks {
		if _, err = stmt.ExecContext(ctx, uuid.NewString(), documentID, i, c.Text, pgvector.NewVector(c.Embedding)); err != nil {
			return fmt.Errorf("%w: insert chunk %d: %w", domain.ErrPersistence, i, err)
		}
	}
	return nil
}

// Nearest runs an exact L2 scan restricted to one document. Rows are fully read
// and the connection returned to the pool before this returns.
func (s *Store) Nearest(ctx context.Context, documentID string, query []float32, k int) ([]domain.Hit, error) {
	if k <= 0 {
		return []domain.Hit{}, nil
	}
	if len(query) != s.dims() {
		return nil, fmt.Errorf("%w: query has %d dimensions, want %d", domain.ErrDimensionMismatch, len(query), s.dims())
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, chunk_index, content, embedding <-> $2 AS distance
FROM document_chunks
WHERE document_id = $1
ORDER BY distance, seq
LIMIT $3`, documentID, pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("%w: nearest chunks: %w", domain.ErrRetrieval, err)
	}
	defer rows.Close()

	hits := make([]domain.Hit, 0, k)
	for rows.Next() {
		var h domain.Hit
		if err := rows.Scan(&h.ChunkID, &h.Index, &h.Text, &h.Distance); err != nil {
			return nil, fmt.Errorf("%w: scan hit: %w", domain.ErrRetrieval, err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: nearest chunks: %w", domain.ErrRetrieval, err)
	}
	return hits, nil
}
