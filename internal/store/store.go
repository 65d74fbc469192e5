// Package store is the PostgreSQL + pgvector backend for documents, chunk vectors
// and conversation history.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/mohammad-safakhou/docchat/internal/domain"
)

type Store struct {
	DB *sql.DB
	// Dimensions is the vector(n) width of document_chunks.embedding; zero means domain.Dimensions.
	Dimensions int
}

var _ domain.Store = (*Store)(nil)

// NewWithDSN opens a pooled connection and verifies it.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

func (s *Store) dims() int {
	if s.Dimensions > 0 {
		return s.Dimensions
	}
	return domain.Dimensions
}
