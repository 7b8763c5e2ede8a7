// Package rag implements retrieval augmented generation over the card
// knowledge base: it syncs documents from a document store, chunks and
// embeds them, and serves semantic search used to ground agent answers.
package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cardassist/cardassist/docstore"
	"github.com/cardassist/cardassist/logging"
	"github.com/cardassist/cardassist/rag/vectorstore"
)

// SearchResult is a single retrieval hit.
type SearchResult struct {
	// Document is the source document name.
	Document string `json:"document"`

	// Text is the retrieved chunk.
	Text string `json:"text"`

	// Score is the similarity score in [0, 1].
	Score float64 `json:"score"`
}

// Stats summarizes the state of the knowledge base index.
type Stats struct {
	Status        string    `json:"status"`
	DocumentCount int       `json:"document_count"`
	ChunkCount    int       `json:"chunk_count"`
	LastSync      time.Time `json:"last_sync,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
}

// Index states reported by Stats.
const (
	StatusEmpty    = "empty"
	StatusIndexing = "indexing"
	StatusReady    = "ready"
	StatusError    = "error"
)

// docState tracks what was last indexed for a document, so unchanged
// documents are skipped on re-sync.
type docState struct {
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
	Chunks   int       `json:"chunks"`
}

// ManagerOptions configure the RAG manager.
type ManagerOptions struct {
	// ChunkSize and ChunkOverlap control document splitting.
	ChunkSize    int
	ChunkOverlap int

	// TopK is the default number of chunks returned by Search.
	TopK int

	// MinScore filters out weak matches. Zero keeps everything.
	MinScore float64

	// StatePath is the JSON sidecar holding per-document change tracking,
	// so restarts skip unchanged documents. Empty disables persistence.
	StatePath string

	Logger logging.Logger
}

// Manager owns the knowledge base index lifecycle.
type Manager struct {
	docs     docstore.Store
	embedder Embedder
	vectors  vectorstore.Store
	chunker  *Chunker
	opts     ManagerOptions
	logger   logging.Logger

	mu       sync.RWMutex
	indexed  map[string]docState
	status   string
	lastSync time.Time
	lastErr  error
}

// NewManager creates a RAG manager over the given stores.
func NewManager(docs docstore.Store, embedder Embedder, vectors vectorstore.Store, optFns ...func(o *ManagerOptions)) *Manager {
	opts := ManagerOptions{
		ChunkSize:    1000,
		ChunkOverlap: 200,
		TopK:         4,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	m := &Manager{
		docs:     docs,
		embedder: embedder,
		vectors:  vectors,
		chunker:  NewChunker(opts.ChunkSize, opts.ChunkOverlap),
		opts:     opts,
		logger:   opts.Logger,
		indexed:  make(map[string]docState),
		status:   StatusEmpty,
	}
	m.loadState()

	return m
}

// loadState restores change tracking from the sidecar. A missing or
// unreadable sidecar is treated as an empty index.
func (m *Manager) loadState() {
	if m.opts.StatePath == "" {
		return
	}

	data, err := os.ReadFile(m.opts.StatePath)
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn("failed to read index state", "path", m.opts.StatePath, "error", err)
		}
		return
	}

	indexed := make(map[string]docState)
	if err := json.Unmarshal(data, &indexed); err != nil {
		m.logger.Warn("failed to decode index state", "path", m.opts.StatePath, "error", err)
		return
	}

	m.mu.Lock()
	m.indexed = indexed
	if len(indexed) > 0 {
		m.status = StatusReady
	}
	m.mu.Unlock()

	m.logger.Info("restored index state", "path", m.opts.StatePath, "documents", len(indexed))
}

// saveState writes change tracking to the sidecar. Failures are logged, not
// fatal: the worst case is re-indexing after a restart.
func (m *Manager) saveState() {
	if m.opts.StatePath == "" {
		return
	}

	m.mu.RLock()
	snapshot := make(map[string]docState, len(m.indexed))
	for name, st := range m.indexed {
		snapshot[name] = st
	}
	m.mu.RUnlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		m.logger.Warn("failed to encode index state", "error", err)
		return
	}

	if err := os.WriteFile(m.opts.StatePath, data, 0o644); err != nil {
		m.logger.Warn("failed to write index state", "path", m.opts.StatePath, "error", err)
	}
}

// Sync brings the index up to date with the document store. New and changed
// documents (by size or modification time) are re-indexed; documents that
// disappeared from the store are removed from the index.
func (m *Manager) Sync(ctx context.Context) error {
	m.setStatus(StatusIndexing)

	docs, err := m.docs.List(ctx)
	if err != nil {
		m.setError(fmt.Errorf("failed to list documents: %w", err))
		return m.lastError()
	}

	seen := make(map[string]bool, len(docs))
	var indexedCount int

	for _, doc := range docs {
		seen[doc.Name] = true

		m.mu.RLock()
		prev, ok := m.indexed[doc.Name]
		m.mu.RUnlock()

		if ok && prev.Size == doc.Size && prev.Modified.Equal(doc.LastModified) {
			continue
		}

		if err := m.indexDocument(ctx, doc); err != nil {
			m.logger.Error("failed to index document", "document", doc.Name, "error", err)
			m.setError(err)
			continue
		}
		indexedCount++
	}

	// Drop documents that no longer exist upstream.
	m.mu.Lock()
	var removed []string
	for name := range m.indexed {
		if !seen[name] {
			removed = append(removed, name)
		}
	}
	m.mu.Unlock()

	for _, name := range removed {
		if err := m.vectors.DeleteDocument(ctx, name); err != nil {
			m.logger.Error("failed to remove document from index", "document", name, "error", err)
			continue
		}
		m.mu.Lock()
		delete(m.indexed, name)
		m.mu.Unlock()
	}

	m.mu.Lock()
	m.lastSync = time.Now()
	if len(m.indexed) == 0 {
		m.status = StatusEmpty
	} else {
		m.status = StatusReady
	}
	err = m.lastErr
	m.mu.Unlock()

	m.saveState()

	m.logger.Info("knowledge base sync completed",
		"documents", len(docs), "indexed", indexedCount, "removed", len(removed))

	return err
}

// Reindex drops per-document change tracking and rebuilds the whole index.
func (m *Manager) Reindex(ctx context.Context) error {
	m.mu.Lock()
	for name := range m.indexed {
		delete(m.indexed, name)
	}
	m.lastErr = nil
	m.mu.Unlock()

	return m.Sync(ctx)
}

func (m *Manager) indexDocument(ctx context.Context, doc docstore.Document) error {
	data, _, err := m.docs.Get(ctx, doc.Name)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", doc.Name, err)
	}

	text, err := docstore.ExtractText(doc.Name, data)
	if err != nil {
		return fmt.Errorf("failed to extract text from %s: %w", doc.Name, err)
	}

	pieces := m.chunker.Split(text)
	if len(pieces) == 0 {
		m.logger.Warn("document produced no chunks", "document", doc.Name)
		return nil
	}

	vectors, err := m.embedder.Embed(ctx, pieces)
	if err != nil {
		return fmt.Errorf("failed to embed %s: %w", doc.Name, err)
	}

	chunks := make([]vectorstore.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = vectorstore.Chunk{
			ID:       fmt.Sprintf("%s#%d", doc.Name, i),
			Document: doc.Name,
			Index:    i,
			Text:     piece,
			Vector:   vectors[i],
		}
	}

	// Replace before upsert so shrinking documents leave no stale chunks.
	if err := m.vectors.DeleteDocument(ctx, doc.Name); err != nil {
		return fmt.Errorf("failed to clear old chunks for %s: %w", doc.Name, err)
	}
	if err := m.vectors.Upsert(ctx, chunks); err != nil {
		return fmt.Errorf("failed to upsert chunks for %s: %w", doc.Name, err)
	}

	m.mu.Lock()
	m.indexed[doc.Name] = docState{Size: doc.Size, Modified: doc.LastModified, Chunks: len(chunks)}
	m.mu.Unlock()

	m.logger.Debug("indexed document", "document", doc.Name, "chunks", len(chunks))

	return nil
}

// Search embeds the query and returns the most similar chunks, filtered by
// the minimum score.
func (m *Manager) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is empty")
	}
	if k <= 0 {
		k = m.opts.TopK
	}

	vecs, err := m.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embedder returned no vector")
	}

	matches, err := m.vectors.Query(ctx, vecs[0], k)
	if err != nil {
		return nil, fmt.Errorf("vector query failed: %w", err)
	}

	results := make([]SearchResult, 0, len(matches))
	for _, match := range matches {
		if match.Score < m.opts.MinScore {
			continue
		}
		results = append(results, SearchResult{
			Document: match.Chunk.Document,
			Text:     match.Chunk.Text,
			Score:    match.Score,
		})
	}

	return results, nil
}

// ContextForPrompt retrieves relevant chunks and formats them as a context
// block for inclusion in an agent instruction. Returns an empty string when
// nothing relevant is found.
func (m *Manager) ContextForPrompt(ctx context.Context, query string) (string, error) {
	results, err := m.Search(ctx, query, m.opts.TopK)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString("Relevant knowledge base excerpts:\n\n")
	for _, r := range results {
		sb.WriteString(fmt.Sprintf("[Source: %s]\n%s\n\n", r.Document, r.Text))
	}

	return strings.TrimSpace(sb.String()), nil
}

// Stats returns a snapshot of index state.
func (m *Manager) Stats(ctx context.Context) Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{
		Status:        m.status,
		DocumentCount: len(m.indexed),
		LastSync:      m.lastSync,
	}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}

	if count, err := m.vectors.Count(ctx); err == nil {
		s.ChunkCount = count
	}

	return s
}

func (m *Manager) setStatus(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.status = status
}

func (m *Manager) setError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastErr = err
	m.status = StatusError
}

func (m *Manager) lastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.lastErr
}
