package domain

import "errors"

// Error taxonomy shared by every layer. Wrap with fmt.Errorf("%w: %w", ErrX, cause)
// and test with errors.Is.
var (
	// ErrExtraction marks an unreadable or non-text document. Fatal to that document's ingestion only.
	ErrExtraction = errors.New("extraction failed")
	// ErrEmbedding marks an unavailable or misbehaving embedding backend.
	ErrEmbedding = errors.New("embedding failed")
	// ErrRetrieval marks an unreachable vector store on the read path.
	ErrRetrieval = errors.New("retrieval failed")
	// ErrGeneration marks an LLM failure. It never escapes the answer engine.
	ErrGeneration = errors.New("generation failed")
	// ErrTimeout marks an LLM call that exceeded its wall-clock budget.
	ErrTimeout = errors.New("generation timed out")
	// ErrPersistence marks a failed history write.
	ErrPersistence = errors.New("persistence failed")

	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrAlreadyIngested   = errors.New("document already ingested")
)
