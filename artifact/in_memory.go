package artifact

import "sync"

// InMemoryStore keeps artifacts (ticket exports, generated spending
// reports, uploaded receipts) in process memory. It backs tests and the
// single-node dev setup; deployments that need artifacts to survive a
// restart use the S3 store instead.
//
// Bytes are copied on Save and Get so callers cannot mutate what the
// store holds.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]map[string][]byte // sessionID -> artifactID -> data
}

// NewInMemoryStore returns an empty in-memory artifact store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]map[string][]byte)}
}

func cloneBytes(data []byte) []byte {
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp
}

// Save stores or overwrites the artifact bytes for the given session.
func (s *InMemoryStore) Save(sessionID, artifactID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.sessions[sessionID]
	if !ok {
		bucket = make(map[string][]byte)
		s.sessions[sessionID] = bucket
	}
	bucket[artifactID] = cloneBytes(data)
	return nil
}

// Get returns a copy of the stored artifact bytes or ErrNotFound.
func (s *InMemoryStore) Get(sessionID, artifactID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	data, ok := bucket[artifactID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBytes(data), nil
}

// List returns a snapshot of the artifact ids stored for the session.
func (s *InMemoryStore) List(sessionID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket, ok := s.sessions[sessionID]
	if !ok {
		return []string{}, nil
	}
	ids := make([]string, 0, len(bucket))
	for id := range bucket {
		ids = append(ids, id)
	}
	return ids, nil
}

// Delete removes the artifact or returns ErrNotFound when the session or
// artifact does not exist.
func (s *InMemoryStore) Delete(sessionID, artifactID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := bucket[artifactID]; !ok {
		return ErrNotFound
	}
	delete(bucket, artifactID)
	return nil
}
