package litestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/docchat/internal/domain"
)

func (s *Store) AppendConversation(ctx context.Context, entries []domain.ConversationEntry) (err error) {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
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

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chat_messages (id, user_id, document_id, role, message, created_at) VALUES (?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("%w: prepare history insert: %w", domain.ErrPersistence, err)
	}
	defer stmt.Close()
	for _, e := range entries {
		var docID sql.NullString
		if e.DocumentID != nil {
			docID = sql.NullString{String: *e.DocumentID, Valid: true}
		}
		if _, err = stmt.ExecContext(ctx, e.ID, e.UserID, docID, string(e.Role), e.Message, e.CreatedAt.UnixNano()); err != nil {
			return fmt.Errorf("%w: insert %s entry: %w", domain.ErrPersistence, e.Role, err)
		}
	}
	return nil
}

func (s *Store) ListConversation(ctx context.Context, userID string, documentID *string) ([]domain.ConversationEntry, error) {
	query := `SELECT id, user_id, document_id, role, message, created_at FROM chat_messages WHERE user_id=?`
	args := []any{userID}
	if documentID != nil {
		query += ` AND document_id=?`
		args = append(args, *documentID)
	}
	query += ` ORDER BY created_at, seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
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
			at    int64
		)
		if err := rows.Scan(&e.ID, &e.UserID, &docID, &role, &e.Message, &at); err != nil {
			return nil, fmt.Errorf("%w: scan history: %w", domain.ErrRetrieval, err)
		}
		e.Role = domain.Role(role)
		e.CreatedAt = time.Unix(0, at).UTC()
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
