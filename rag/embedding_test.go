package rag

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedBatched_OrderPreserved(t *testing.T) {
	texts := make([]string, 10)
	for i := range texts {
		texts[i] = fmt.Sprintf("policy chunk %d", i)
	}

	// Each vector encodes its input position so reordering would be visible.
	var mu sync.Mutex
	var batchSizes []int
	fn := func(_ context.Context, batch []string) ([][]float32, error) {
		mu.Lock()
		batchSizes = append(batchSizes, len(batch))
		mu.Unlock()

		out := make([][]float32, len(batch))
		for i, text := range batch {
			var pos int
			fmt.Sscanf(text, "policy chunk %d", &pos)
			out[i] = []float32{float32(pos)}
		}
		return out, nil
	}

	vectors, err := embedBatched(context.Background(), texts, 3, 2, fn)
	require.NoError(t, err)
	require.Len(t, vectors, 10)

	for i, v := range vectors {
		assert.Equal(t, float32(i), v[0])
	}
	assert.Len(t, batchSizes, 4)
}

func TestEmbedBatched_ConcurrencyBounded(t *testing.T) {
	texts := make([]string, 12)
	for i := range texts {
		texts[i] = fmt.Sprintf("chunk %d", i)
	}

	var inFlight, peak int32
	filled := make(chan struct{})
	var fillOnce sync.Once
	block := make(chan struct{})
	fn := func(_ context.Context, batch []string) ([][]float32, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		if n == 3 {
			fillOnce.Do(func() { close(filled) })
		}
		<-block
		atomic.AddInt32(&inFlight, -1)
		return make([][]float32, len(batch)), nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := embedBatched(context.Background(), texts, 2, 3, fn)
		assert.NoError(t, err)
	}()

	// Wait until the limiter is saturated, then let all batches finish.
	<-filled
	close(block)
	<-done

	assert.Equal(t, int32(3), atomic.LoadInt32(&peak))
}

func TestEmbedBatched_FirstErrorWins(t *testing.T) {
	texts := make([]string, 6)
	for i := range texts {
		texts[i] = fmt.Sprintf("chunk %d", i)
	}

	embeddingErr := errors.New("embedding api unavailable")
	var calls int32
	fn := func(_ context.Context, batch []string) ([][]float32, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, embeddingErr
		}
		return make([][]float32, len(batch)), nil
	}

	// Sequential so the first batch fails before the rest are attempted.
	vectors, err := embedBatched(context.Background(), texts, 2, 1, fn)
	assert.Nil(t, vectors)
	assert.ErrorIs(t, err, embeddingErr)
	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(3))
}

func TestEmbedBatched_Empty(t *testing.T) {
	vectors, err := embedBatched(context.Background(), nil, 16, 4, nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}
