// Package history records question/answer exchanges as an append-only conversation log.
package history

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/docchat/internal/domain"
	"github.com/mohammad-safakhou/docchat/internal/telemetry"
)

// step separates the user and assistant timestamps; Postgres keeps microseconds.
const step = time.Microsecond

type Recorder struct {
	store   domain.HistoryStore
	logger  *log.Logger
	metrics *telemetry.Metrics
	now     func() time.Time

	mu   sync.Mutex
	last time.Time
}

func NewRecorder(store domain.HistoryStore, metrics *telemetry.Metrics) *Recorder {
	return &Recorder{
		store:   store,
		logger:  log.New(log.Writer(), "[HISTORY] ", log.LstdFlags),
		metrics: metrics,
		now:     time.Now,
	}
}

// Record writes the question and the answer as one atomic pair, user entry first.
func (r *Recorder) Record(ctx context.Context, userID string, documentID *string, question, answer string) error {
	at := r.stamp()
	entries := []domain.ConversationEntry{
		{
			ID:         uuid.NewString(),
			UserID:     userID,
			DocumentID: documentID,
			Role:       domain.RoleUser,
			Message:    question,
			CreatedAt:  at,
		},
		{
			ID:         uuid.NewString(),
			UserID:     userID,
			DocumentID: documentID,
			Role:       domain.RoleAssistant,
			Message:    answer,
			CreatedAt:  at.Add(step),
		},
	}
	if err := r.store.AppendConversation(ctx, entries); err != nil {
		r.metrics.HistoryFailure()
		r.logger.Printf("warn: failed to record conversation for user %s: %v", userID, err)
		return persistence(err)
	}
	return nil
}

// stamp returns the user timestamp for a new pair. Stamps strictly increase
// across pairs, so two pairs never share a timestamp even when the clock
// repeats or steps back.
func (r *Recorder) stamp() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	at := r.now().UTC().Truncate(step)
	if !at.After(r.last) {
		at = r.last.Add(step)
	}
	r.last = at.Add(step)
	return at
}

// List returns the user's history in chronological order, optionally scoped to one document.
func (r *Recorder) List(ctx context.Context, userID string, documentID *string) ([]domain.ConversationEntry, error) {
	entries, err := r.store.ListConversation(ctx, userID, documentID)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func persistence(err error) error {
	if errors.Is(err, domain.ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
}
