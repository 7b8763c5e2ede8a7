// Package vectorstore provides pluggable vector index backends for semantic
// search over document chunks. The in-memory store is the default; Weaviate
// is available for deployments that need a persistent index.
package vectorstore

import "context"

// Chunk is an embedded fragment of a source document.
type Chunk struct {
	// ID uniquely identifies the chunk, e.g. "<document>#<index>".
	ID string `json:"id"`

	// Document is the name of the source document.
	Document string `json:"document"`

	// Index is the position of this chunk within the document.
	Index int `json:"index"`

	// Text is the chunk content.
	Text string `json:"text"`

	// Vector is the chunk's embedding.
	Vector []float32 `json:"vector"`
}

// Match is a search hit with its similarity score in [0, 1], higher is
// more similar.
type Match struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// Store is a vector index over document chunks.
type Store interface {
	// Upsert inserts or replaces chunks in the index.
	Upsert(ctx context.Context, chunks []Chunk) error

	// DeleteDocument removes all chunks belonging to a document.
	DeleteDocument(ctx context.Context, document string) error

	// Query returns the top k chunks most similar to the query vector.
	Query(ctx context.Context, vector []float32, k int) ([]Match, error)

	// Count returns the number of indexed chunks.
	Count(ctx context.Context) (int, error)
}
