package pipeline

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/docchat/internal/domain"
)

func (p *Pipeline) Document(ctx context.Context, id string) (domain.Document, error) {
	if err := validateID("document_id", id); err != nil {
		return domain.Document{}, err
	}
	return p.store.GetDocument(ctx, id)
}

// Chunks lists the stored chunks of a document in index order. A document
// without chunks is reported as not found.
func (p *Pipeline) Chunks(ctx context.Context, id string) ([]domain.Chunk, error) {
	if err := validateID("document_id", id); err != nil {
		return nil, err
	}
	chunks, err := p.store.ListChunks(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks for document %s", domain.ErrNotFound, id)
	}
	return chunks, nil
}

// DeleteDocument removes the document together with its chunks and history.
func (p *Pipeline) DeleteDocument(ctx context.Context, id string) error {
	if err := validateID("document_id", id); err != nil {
		return err
	}
	return p.store.DeleteDocument(ctx, id)
}

func (p *Pipeline) History(ctx context.Context, userID string, documentID *string) ([]domain.ConversationEntry, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id required", domain.ErrInvalidInput)
	}
	if err := validateID("user_id", userID); err != nil {
		return nil, err
	}
	if documentID != nil {
		if err := validateID("document_id", *documentID); err != nil {
			return nil, err
		}
	}
	return p.recorder.List(ctx, userID, documentID)
}
