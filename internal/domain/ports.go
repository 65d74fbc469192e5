package domain

import "context"

// Embedder maps texts to vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}

// ChunkStore persists chunk vectors and answers document-scoped k-NN queries.
type ChunkStore interface {
	// InsertChunks stores all chunks of a document in one transaction, or none of them.
	InsertChunks(ctx context.Context, documentID string, chunks []NewChunk) error
	// Nearest returns up to k chunks of documentID ordered by L2 distance, ties by insertion order.
	Nearest(ctx context.Context, documentID string, query []float32, k int) ([]Hit, error)
}

// DocumentStore manages document metadata.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc Document) (Document, error)
	GetDocument(ctx context.Context, id string) (Document, error)
	DeleteDocument(ctx context.Context, id string) error
	ListChunks(ctx context.Context, documentID string) ([]Chunk, error)
}

// HistoryStore is the append-only conversation log.
type HistoryStore interface {
	AppendConversation(ctx context.Context, entries []ConversationEntry) error
	ListConversation(ctx context.Context, userID string, documentID *string) ([]ConversationEntry, error)
}

// Store is everything a backend provides.
type Store interface {
	ChunkStore
	DocumentStore
	HistoryStore
	Close() error
}
