package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// InMemoryStore is a Store backed by a map. Used in tests and local
// development where no S3 bucket is available.
type InMemoryStore struct {
	mu   sync.RWMutex
	docs map[string]memoryDoc
}

type memoryDoc struct {
	data     []byte
	modified time.Time
}

// NewInMemoryStore creates an empty in-memory document store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{docs: make(map[string]memoryDoc)}
}

// Put stores or replaces a document.
func (s *InMemoryStore) Put(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs[name] = memoryDoc{
		data:     append([]byte(nil), data...),
		modified: time.Now(),
	}
}

// Delete removes a document if present.
func (s *InMemoryStore) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.docs, name)
}

// List returns metadata for all documents, sorted by name.
func (s *InMemoryStore) List(_ context.Context) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]Document, 0, len(s.docs))
	for name, d := range s.docs {
		docs = append(docs, Document{
			Name:         name,
			Size:         int64(len(d.data)),
			LastModified: d.modified,
			ContentType:  ContentTypeFor(name),
		})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })

	return docs, nil
}

// Get returns a document's content and metadata.
func (s *InMemoryStore) Get(_ context.Context, name string) ([]byte, *Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.docs[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	data := append([]byte(nil), d.data...)

	return data, &Document{
		Name:         name,
		Size:         int64(len(data)),
		LastModified: d.modified,
		ContentType:  ContentTypeFor(name),
	}, nil
}
