package litestore

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/docchat/internal/domain"
	"github.com/mohammad-safakhou/docchat/internal/vecmath"
)

func (s *Store) InsertChunks(ctx context.Context, documentID string, chunks []domain.NewChunk) (err error) {
	if documentID == "" {
		return fmt.Errorf("%w: document_id required", domain.ErrInvalidInput)
	}
	for i, c := range chunks {
		if len(c.Embedding) != s.dims {
			return fmt.Errorf("%w: chunk %d has %d dimensions, want %d", domain.ErrDimensionMismatch, i, len(c.Embedding), s.dims)
		}
	}
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
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

	var docExists, hasChunks bool
	err = tx.QueryRowContext(ctx, `
SELECT EXISTS(SELECT 1 FROM documents WHERE id=?1),
       EXISTS(SELECT 1 FROM document_chunks WHERE document_id=?1)`, documentID).Scan(&docExists, &hasChunks)
	if err != nil {
		return fmt.Errorf("%w: check document: %w", domain.ErrPersistence, err)
	}
	if !docExists {
		return fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
	}
	if hasChunks {
		return fmt.Errorf("document %s: %w", documentID, domain.ErrAlreadyIngested)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO document_chunks (id, document_id, chunk_index, content, embedding) VALUES (?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("%w: prepare chunk insert: %w", domain.ErrPersistence, err)
	}
	defer stmt.Close()
	for i, c := range chunks {
		if _, err = stmt.ExecContext(ctx, uuid.NewString(), documentID, i, c.Text, encodeVector(c.Embedding)); err != nil {
			return fmt.Errorf("%w: insert chunk %d: %w", domain.ErrPersistence, i, err)
		}
	}
	return nil
}

// Nearest loads the document's vectors in insertion order and keeps the k closest.
func (s *Store) Nearest(ctx context.Context, documentID string, query []float32, k int) ([]domain.Hit, error) {
	if k <= 0 {
		return []domain.Hit{}, nil
	}
	if len(query) != s.dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, want %d", domain.ErrDimensionMismatch, len(query), s.dims)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chunk_index, content, embedding FROM document_chunks WHERE document_id=? ORDER BY seq`, documentID)
	if err != nil {
		return nil, fmt.Errorf("%w: nearest chunks: %w", domain.ErrRetrieval, err)
	}
	defer rows.Close()

	var (
		hits      []domain.Hit
		distances []float64
	)
	for rows.Next() {
		var (
			h    domain.Hit
			blob []byte
		)
		if err := rows.Scan(&h.ChunkID, &h.Index, &h.Text, &blob); err != nil {
			return nil, fmt.Errorf("%w: scan chunk: %w", domain.ErrRetrieval, err)
		}
		vec := decodeVector(blob)
		if len(vec) != s.dims {
			return nil, fmt.Errorf("%w: %w: stored chunk %s has %d dimensions", domain.ErrRetrieval, domain.ErrDimensionMismatch, h.ChunkID, len(vec))
		}
		hits = append(hits, h)
		distances = append(distances, vecmath.SquaredL2(query, vec))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: nearest chunks: %w", domain.ErrRetrieval, err)
	}

	top := vecmath.TopK(distances, k)
	out := make([]domain.Hit, len(top))
	for i, idx := range top {
		out[i] = hits[idx]
		out[i].Distance = math.Sqrt(distances[idx])
	}
	return out, nil
}
