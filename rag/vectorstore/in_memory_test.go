package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStore_UpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	err := store.Upsert(ctx, []Chunk{
		{ID: "policy.md#0", Document: "policy.md", Index: 0, Text: "annual fee", Vector: []float32{1, 0, 0}},
		{ID: "policy.md#1", Document: "policy.md", Index: 1, Text: "travel insurance", Vector: []float32{0, 1, 0}},
		{ID: "faq.md#0", Document: "faq.md", Index: 0, Text: "interest rate", Vector: []float32{0.9, 0.1, 0}},
	})
	require.NoError(t, err)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	matches, err := store.Query(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, "policy.md#0", matches[0].Chunk.ID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
	assert.Equal(t, "faq.md#0", matches[1].Chunk.ID)
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

func TestInMemoryStore_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	require.NoError(t, store.Upsert(ctx, []Chunk{
		{ID: "doc#0", Document: "doc", Text: "old", Vector: []float32{1, 0}},
	}))
	require.NoError(t, store.Upsert(ctx, []Chunk{
		{ID: "doc#0", Document: "doc", Text: "new", Vector: []float32{0, 1}},
	}))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	matches, err := store.Query(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "new", matches[0].Chunk.Text)
}

func TestInMemoryStore_DeleteDocument(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	require.NoError(t, store.Upsert(ctx, []Chunk{
		{ID: "a#0", Document: "a", Vector: []float32{1, 0}},
		{ID: "a#1", Document: "a", Vector: []float32{0, 1}},
		{ID: "b#0", Document: "b", Vector: []float32{1, 1}},
	}))

	require.NoError(t, store.DeleteDocument(ctx, "a"))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	assert.Zero(t, cosineSimilarity([]float32{1, 0}, []float32{0, 1}))
	// Opposed vectors clamp to zero rather than going negative.
	assert.Zero(t, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}))
	// Length mismatch and zero vectors are not comparable.
	assert.Zero(t, cosineSimilarity([]float32{1, 0}, []float32{1}))
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{0, 0}))
}
