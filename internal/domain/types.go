package domain

import "time"

// Dimensions is the embedding length used across the whole corpus.
const Dimensions = 384

// Document is the unit of ingestion. Its chunks are created once and never updated.
type Document struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	ContentType string    `json:"content_type,omitempty"`
	FileSize    int64     `json:"file_size"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// NewChunk is a chunk waiting to be persisted.
type NewChunk struct {
	Text      string
	Embedding []float32
}

// Chunk is a stored window of a document's text.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Index      int       `json:"index"`
	Text       string    `json:"content"`
	Embedding  []float32 `json:"-"`
}

// Hit is one nearest-neighbour result.
type Hit struct {
	ChunkID  string  `json:"chunk_id"`
	Index    int     `json:"index"`
	Text     string  `json:"content"`
	Distance float64 `json:"distance"`
}

// Role of a conversation entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleUser || r == RoleAssistant }

// ConversationEntry is one immutable history line.
type ConversationEntry struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	DocumentID *string   `json:"document_id"`
	Role       Role      `json:"role"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}
