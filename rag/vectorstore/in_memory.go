package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"
)

// InMemoryStore is a Store holding all chunks in memory with brute-force
// cosine similarity search. Suitable for knowledge bases up to a few
// thousand chunks, which covers the card document corpus comfortably.
type InMemoryStore struct {
	mu     sync.RWMutex
	chunks map[string]Chunk
}

// NewInMemoryStore creates an empty in-memory vector store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{chunks: make(map[string]Chunk)}
}

// Upsert inserts or replaces chunks keyed by their ID.
func (s *InMemoryStore) Upsert(_ context.Context, chunks []Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range chunks {
		s.chunks[c.ID] = c
	}

	return nil
}

// DeleteDocument removes all chunks of the named document.
func (s *InMemoryStore) DeleteDocument(_ context.Context, document string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range s.chunks {
		if c.Document == document {
			delete(s.chunks, id)
		}
	}

	return nil
}

// Query scans all chunks and returns the k nearest by cosine similarity.
func (s *InMemoryStore) Query(_ context.Context, vector []float32, k int) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if k <= 0 {
		k = 5
	}

	matches := make([]Match, 0, len(s.chunks))
	for _, c := range s.chunks {
		matches = append(matches, Match{
			Chunk: c,
			Score: cosineSimilarity(vector, c.Vector),
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })

	if len(matches) > k {
		matches = matches[:k]
	}

	return matches, nil
}

// Count returns the number of indexed chunks.
func (s *InMemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.chunks), nil
}

// cosineSimilarity returns the cosine of the angle between a and b, clamped
// to [0, 1]. Mismatched or zero vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if cos < 0 {
		return 0
	}

	return cos
}
