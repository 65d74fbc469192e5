package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/mohammad-safakhou/docchat/internal/domain"
)

const userID = "9b2e4f6a-1c3d-4e5f-8a7b-6c5d4e3f2a1b"

func TestCreateDocument(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO documents (id, user_id, title, content_type, file_size, uploaded_at)`)).
		WithArgs(sqlmock.AnyArg(), userID, "manual.pdf", "application/pdf", int64(2048), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	doc, err := st.CreateDocument(context.Background(), domain.Document{
		UserID: userID, Title: "manual.pdf", ContentType: "application/pdf", FileSize: 2048,
	})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if doc.ID == "" || doc.UploadedAt.IsZero() {
		t.Fatalf("expected generated id and timestamp got %+v", doc)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`FROM documents WHERE id=\$1`).WithArgs(docID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title", "content_type", "file_size", "uploaded_at"}))

	_, err = (&Store{DB: db}).GetDocument(context.Background(), docID)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
}

func TestGetDocument(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM documents WHERE id=\$1`).WithArgs(docID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title", "content_type", "file_size", "uploaded_at"}).
			AddRow(docID, userID, "manual.pdf", "application/pdf", 10, at))

	doc, err := (&Store{DB: db}).GetDocument(context.Background(), docID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.Title != "manual.pdf" || doc.FileSize != 10 || !doc.UploadedAt.Equal(at) {
		t.Fatalf("unexpected document %+v", doc)
	}
}

func TestDeleteDocument(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM documents WHERE id=$1`)).WithArgs(docID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM documents WHERE id=$1`)).WithArgs(docID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := st.DeleteDocument(context.Background(), docID); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if err := st.DeleteDocument(context.Background(), docID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListChunks(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY chunk_index`)).WithArgs(docID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "chunk_index", "content"}).
			AddRow("c-0", 0, "alpha").
			AddRow("c-1", 1, "beta"))

	chunks, err := (&Store{DB: db}).ListChunks(context.Background(), docID)
	if err != nil {
		t.Fatalf("ListChunks: %v", err)
	}
	if len(chunks) != 2 || chunks[1].Text != "beta" || chunks[0].DocumentID != docID {
		t.Fatalf("unexpected chunks %+v", chunks)
	}
}
