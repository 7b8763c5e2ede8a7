package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// WeaviateConfig configures the Weaviate backed vector store.
type WeaviateConfig struct {
	Host   string
	Scheme string
	APIKey string

	// ClassName is the Weaviate class holding chunks. Defaults to
	// "KnowledgeChunk".
	ClassName string
}

// WeaviateStore is a Store backed by a Weaviate cluster. Vectors are
// supplied by the caller, so the class is created with vectorizer "none".
type WeaviateStore struct {
	client    *weaviate.Client
	className string
}

// NewWeaviateStore connects to Weaviate and ensures the chunk class exists.
func NewWeaviateStore(ctx context.Context, cfg WeaviateConfig) (*WeaviateStore, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("weaviate host is required")
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "http"
	}
	if cfg.ClassName == "" {
		cfg.ClassName = "KnowledgeChunk"
	}

	wcfg := weaviate.Config{
		Host:   cfg.Host,
		Scheme: cfg.Scheme,
	}
	if cfg.APIKey != "" {
		wcfg.AuthConfig = auth.ApiKey{Value: cfg.APIKey}
	}

	client, err := weaviate.NewClient(wcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}

	s := &WeaviateStore{client: client, className: cfg.ClassName}
	if err := s.ensureClass(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *WeaviateStore) ensureClass(ctx context.Context) error {
	class := &models.Class{
		Class:      s.className,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: "chunkId", DataType: []string{"text"}},
			{Name: "document", DataType: []string{"text"}},
			{Name: "chunkIndex", DataType: []string{"int"}},
			{Name: "content", DataType: []string{"text"}},
		},
	}

	err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("failed to create class %s: %w", s.className, err)
	}

	return nil
}

// Upsert writes chunks with deterministic object IDs derived from the chunk
// ID, so re-indexing a document replaces its objects in place.
func (s *WeaviateStore) Upsert(ctx context.Context, chunks []Chunk) error {
	batcher := s.client.Batch().ObjectsBatcher()
	for _, c := range chunks {
		batcher = batcher.WithObjects(&models.Object{
			Class: s.className,
			ID:    strfmt.UUID(objectID(c.ID)),
			Properties: map[string]any{
				"chunkId":    c.ID,
				"document":   c.Document,
				"chunkIndex": c.Index,
				"content":    c.Text,
			},
			Vector: c.Vector,
		})
	}

	resp, err := batcher.Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert chunks: %w", err)
	}

	for _, obj := range resp {
		if obj.Result != nil && obj.Result.Errors != nil && len(obj.Result.Errors.Error) > 0 {
			return fmt.Errorf("failed to upsert chunk: %s", obj.Result.Errors.Error[0].Message)
		}
	}

	return nil
}

// DeleteDocument removes all chunks of the named document.
func (s *WeaviateStore) DeleteDocument(ctx context.Context, document string) error {
	where := filters.Where().
		WithPath([]string{"document"}).
		WithOperator(filters.Equal).
		WithValueText(document)

	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(s.className).
		WithWhere(where).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete chunks for %s: %w", document, err)
	}

	return nil
}

// Query runs a nearVector search and converts distance to similarity.
func (s *WeaviateStore) Query(ctx context.Context, vector []float32, k int) ([]Match, error) {
	if k <= 0 {
		k = 5
	}

	fields := []graphql.Field{
		{Name: "chunkId"},
		{Name: "document"},
		{Name: "chunkIndex"},
		{Name: "content"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "distance"},
		}},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithNearVector(
			s.client.GraphQL().NearVectorArgBuilder().WithVector(vector),
		).
		WithFields(fields...).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate query failed: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("weaviate query failed: %s", result.Errors[0].Message)
	}

	var matches []Match

	data, ok := result.Data["Get"].(map[string]any)
	if !ok {
		return matches, nil
	}
	items, ok := data[s.className].([]any)
	if !ok {
		return matches, nil
	}

	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}

		chunk := Chunk{}
		if v, ok := m["chunkId"].(string); ok {
			chunk.ID = v
		}
		if v, ok := m["document"].(string); ok {
			chunk.Document = v
		}
		if v, ok := m["chunkIndex"].(float64); ok {
			chunk.Index = int(v)
		}
		if v, ok := m["content"].(string); ok {
			chunk.Text = v
		}

		score := 0.0
		if add, ok := m["_additional"].(map[string]any); ok {
			if dist, ok := add["distance"].(float64); ok {
				score = 1 - dist
				if score < 0 {
					score = 0
				}
			}
		}

		matches = append(matches, Match{Chunk: chunk, Score: score})
	}

	return matches, nil
}

// Count returns the number of objects in the chunk class.
func (s *WeaviateStore) Count(ctx context.Context) (int, error) {
	result, err := s.client.GraphQL().Aggregate().
		WithClassName(s.className).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("weaviate aggregate failed: %w", err)
	}
	if len(result.Errors) > 0 {
		return 0, fmt.Errorf("weaviate aggregate failed: %s", result.Errors[0].Message)
	}

	data, ok := result.Data["Aggregate"].(map[string]any)
	if !ok {
		return 0, nil
	}
	items, ok := data[s.className].([]any)
	if !ok || len(items) == 0 {
		return 0, nil
	}
	item, ok := items[0].(map[string]any)
	if !ok {
		return 0, nil
	}
	meta, ok := item["meta"].(map[string]any)
	if !ok {
		return 0, nil
	}
	count, _ := meta["count"].(float64)

	return int(count), nil
}

// objectID derives a stable Weaviate object UUID from a chunk ID.
func objectID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}
