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

var insertMessageQuery = regexp.QuoteMeta(`
INSERT INTO chat_messages (id, user_id, document_id, role, message, created_at)
VALUES ($1,$2,$3,$4,$5,$6)`)

func pair(doc *string) []domain.ConversationEntry {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return []domain.ConversationEntry{
		{ID: "m-1", UserID: userID, DocumentID: doc, Role: domain.RoleUser, Message: "question", CreatedAt: at},
		{ID: "m-2", UserID: userID, DocumentID: doc, Role: domain.RoleAssistant, Message: "answer", CreatedAt: at.Add(time.Microsecond)},
	}
}

func TestAppendConversation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	doc := docID
	entries := pair(&doc)
	mock.ExpectBegin()
	prep := mock.ExpectPrepare(insertMessageQuery)
	prep.ExpectExec().WithArgs("m-1", userID, docID, "user", "question", entries[0].CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("m-2", userID, docID, "assistant", "answer", entries[1].CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := (&Store{DB: db}).AppendConversation(context.Background(), entries); err != nil {
		t.Fatalf("AppendConversation: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppendConversationRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(insertMessageQuery)
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = (&Store{DB: db}).AppendConversation(context.Background(), pair(nil))
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListConversationFilters(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cols := []string{"id", "user_id", "document_id", "role", "message", "created_at"}

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE user_id=$1 AND document_id=$2`)).
		WithArgs(userID, docID).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("m-1", userID, docID, "user", "q", at).
			AddRow("m-2", userID, docID, "assistant", "a", at.Add(time.Microsecond)))
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE user_id=$1
ORDER BY created_at, seq`)).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("m-3", userID, nil, "user", "general", at))

	st := &Store{DB: db}
	doc := docID
	scoped, err := st.ListConversation(context.Background(), userID, &doc)
	if err != nil {
		t.Fatalf("ListConversation: %v", err)
	}
	if len(scoped) != 2 || scoped[0].Role != domain.RoleUser || scoped[1].Role != domain.RoleAssistant || *scoped[0].DocumentID != docID {
		t.Fatalf("unexpected scoped history %+v", scoped)
	}

	all, err := st.ListConversation(context.Background(), userID, nil)
	if err != nil {
		t.Fatalf("ListConversation: %v", err)
	}
	if len(all) != 1 || all[0].DocumentID != nil {
		t.Fatalf("unexpected history %+v", all)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
