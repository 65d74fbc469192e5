package litestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/docchat/internal/domain"
)

func (s *Store) CreateDocument(ctx context.Context, doc domain.Document) (domain.Document, error) {
	if strings.TrimSpace(doc.UserID) == "" {
		return domain.Document{}, fmt.Errorf("%w: user_id required", domain.ErrInvalidInput)
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, user_id, title, content_type, file_size, uploaded_at) VALUES (?,?,?,?,?,?)`,
		doc.ID, doc.UserID, doc.Title, doc.ContentType, doc.FileSize, doc.UploadedAt.UnixNano())
	if err != nil {
		return domain.Document{}, fmt.Errorf("%w: insert document: %w", domain.ErrPersistence, err)
	}
	return doc, nil
}

func (s *Store) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	var (
		doc domain.Document
		at  int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, content_type, file_size, uploaded_at FROM documents WHERE id=?`, id).
		Scan(&doc.ID, &doc.UserID, &doc.Title, &doc.ContentType, &doc.FileSize, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Document{}, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Document{}, fmt.Errorf("%w: get document: %w", domain.ErrRetrieval, err)
	}
	doc.UploadedAt = time.Unix(0, at).UTC()
	return doc, nil
}

func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("%w: delete document: %w", domain.ErrPersistence, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) ListChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chunk_index, content FROM document_chunks WHERE document_id=? ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, fmt.Errorf("%w: list chunks: %w", domain.ErrRetrieval, err)
	}
	defer rows.Close()
	out := []domain.Chunk{}
	for rows.Next() {
		c := domain.Chunk{DocumentID: documentID}
		if err := rows.Scan(&c.ID, &c.Index, &c.Text); err != nil {
			return nil, fmt.Errorf("%w: scan chunk: %w", domain.ErrRetrieval, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list chunks: %w", domain.ErrRetrieval, err)
	}
	return out, nil
}
