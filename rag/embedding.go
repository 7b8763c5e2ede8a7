package rag

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/sony/gobreaker"
)

// Embedder converts texts into dense vectors for similarity search.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// OpenAIEmbedderOptions configure the OpenAI embedder.
type OpenAIEmbedderOptions struct {
	Model     string
	BatchSize int

	// MaxConcurrency bounds how many embedding batches are in flight at
	// once during indexing.
	MaxConcurrency int
}

// OpenAIEmbedder produces embeddings via the OpenAI Embeddings API, guarded
// by a circuit breaker so that a failing upstream does not stall indexing.
type OpenAIEmbedder struct {
	client  *openai.Client
	breaker *gobreaker.CircuitBreaker
	opts    OpenAIEmbedderOptions
}

// NewOpenAIEmbedder creates an embedder using the default OpenAI client,
// which resolves its API key from the environment.
func NewOpenAIEmbedder(optFns ...func(o *OpenAIEmbedderOptions)) *OpenAIEmbedder {
	client := openai.NewClient()
	return NewOpenAIEmbedderFromClient(&client, optFns...)
}

// NewOpenAIEmbedderFromClient creates an embedder from an existing client.
func NewOpenAIEmbedderFromClient(client *openai.Client, optFns ...func(o *OpenAIEmbedderOptions)) *OpenAIEmbedder {
	opts := OpenAIEmbedderOptions{
		Model:          openai.EmbeddingModelTextEmbedding3Small,
		BatchSize:      64,
		MaxConcurrency: 4,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 1
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "openai-embeddings",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &OpenAIEmbedder{client: client, breaker: breaker, opts: opts}
}

// Embed generates embeddings for all texts, batching requests to stay under
// API input limits. Batches run concurrently up to MaxConcurrency; output
// order matches input order. The first failing batch aborts the rest.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return embedBatched(ctx, texts, e.opts.BatchSize, e.opts.MaxConcurrency, e.embedBatch)
}

// embedBatched splits texts into batches and runs them through embedBatch
// with at most maxConcurrency in flight. Vectors land at their input
// positions regardless of batch completion order.
func embedBatched(
	ctx context.Context,
	texts []string,
	batchSize, maxConcurrency int,
	embedBatch func(ctx context.Context, texts []string) ([][]float32, error),
) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if batchSize < 1 {
		batchSize = 1
	}
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	type span struct{ start, end int }
	var spans []span
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		spans = append(spans, span{start, end})
	}

	vectors := make([][]float32, len(texts))
	sem := make(chan struct{}, maxConcurrency)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, sp := range spans {
		wg.Add(1)
		sem <- struct{}{}
		go func(sp span) {
			defer wg.Done()
			defer func() { <-sem }()

			mu.Lock()
			failed := firstErr != nil
			mu.Unlock()
			if failed {
				return
			}

			batch, err := embedBatch(ctx, texts[sp.start:sp.end])
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			copy(vectors[sp.start:sp.end], batch)
		}(sp)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	return vectors, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result, err := e.breaker.Execute(func() (any, error) {
		return e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Model: e.opts.Model,
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}

	resp := result.(*openai.CreateEmbeddingResponse)
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response mismatch: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		vectors[d.Index] = vec
	}

	return vectors, nil
}
