package models

// EmbeddingSource tells whether an embedding was read from the store or generated on demand.
type EmbeddingSource string

const (
	SourceCache     EmbeddingSource = "cache"
	SourceGenerated EmbeddingSource = "generated"
)

// EmbeddingResponse is the result of a get-or-generate embedding lookup.
type EmbeddingResponse struct {
	EmbeddingID string          `json:"embedding_id"`
	Embedding   []float32       `json:"embedding"`
	Source      EmbeddingSource `json:"source"`
}
