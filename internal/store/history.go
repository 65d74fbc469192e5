package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mohammad-safakhou/docchat/internal/domain"
)

// AppendConversation inserts entries in one transaction, in slice order.
func (s *Store) AppendConversation(ctx context.Context, entries []domain.ConversationEntry) (err error) {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin history insert: %w", domain.ErrPersistence, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO chat_messages (id, user_id, document_id, role, message, created_at)
VALUES ($1,$2,$3,$4,$5,$6)`)
	if err != nil {
		return fmt.Errorf("%w: prepare history insert: %w", domain.ErrPersistence, err)
	}
	defer stmt.Close()
	for _, e := range entries {
		var docID sql.NullString
		if e.DocumentID != nil {
			docID = sql.NullString{String: *e.DocumentID, Valid: true}
		}
		if _, err = stmt.ExecContext(ctx, e.ID, e.UserID, docID, string(e.Role), e.Message, e.CreatedAt); err != nil {
			return fmt.Errorf("%w: insert %s entry: %w", domain.ErrPersistence, e.Role, err)
		}
	}
	return nil
}

// ListConversation returns a user's history in chronological order, optionally for one document.
func (s *Store) ListConversation(ctx context.Context, userID string, documentID *string) ([]domain.ConversationEntry, error) {
	query := `
SELECT id, user_id, document_id, role, message, created_at
FROM chat_messages
WHERE user_id=$1`
	args := []any{userID}
	if documentID != nil {
		query += ` AND document_id=$2`
		args = append(args, *documentID)
	}
	query += `
ORDER BY created_at, seq`

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list history: %w", domain.ErrRetrieval, err)
	}
	defer rows.Close()

	out := []domain.ConversationEntry{}
	for rows.Next() {
		var (
			e     domain.ConversationEntry
			docID sql.NullString
			role  string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &docID, &role, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan history: %w", domain.ErrRetrieval, err)
		}
		e.Role = domain.Role(role)
		if docID.Valid {
			id := docID.String
			e.DocumentID = &id
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list history: %w", domain.ErrRetrieval, err)
	}
	return out, nil
}
