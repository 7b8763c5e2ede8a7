package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/cardassist/cardassist/core"
)

const defaultRedisKeyPrefix = "cardassist:session:"

// RedisStore is a Redis backed SessionStore. Sessions are serialized as JSON
// under "<prefix><sessionID>" keys, optionally with a TTL so abandoned
// conversations expire on their own. Like the in-memory store, Get lazily
// creates missing sessions.
//
// Mutations are read-modify-write; the store-level mutex serializes writers
// within a single process. Running multiple replicas against the same Redis
// requires sticky session routing.
type RedisStore struct {
	mu     sync.Mutex
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix overrides the Redis key prefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithTTL sets an expiry applied on every write. Zero disables expiry.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// NewRedisStore wraps an existing Redis client as a session store.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: defaultRedisKeyPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns an existing session or creates a new one lazily.
func (s *RedisStore) Get(sessionID string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.load(sessionID)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		return sess, nil
	}
	return s.createLocked(sessionID)
}

// Create forces the creation (or overwriting) of a session with the given id.
func (s *RedisStore) Create(sessionID string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(sessionID)
}

// AppendEvent adds an event to an existing or newly created session.
func (s *RedisStore) AppendEvent(sessionID string, ev core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.load(sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		sess = core.NewSession(sessionID)
	}
	sess.AddEvent(ev)
	return s.save(sess)
}

// ApplyDelta merges a key/value delta into the session state.
func (s *RedisStore) ApplyDelta(sessionID string, delta map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.load(sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		sess = core.NewSession(sessionID)
	}
	sess.ApplyStateDelta(delta)
	return s.save(sess)
}

// Ping verifies connectivity to the Redis backend.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

// load fetches and decodes a session, returning (nil, nil) when absent.
func (s *RedisStore) load(sessionID string) (*core.Session, error) {
	data, err := s.client.Get(context.Background(), s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	var sess core.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", sessionID, err)
	}
	return &sess, nil
}

func (s *RedisStore) save(sess *core.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", sess.ID, err)
	}
	if err := s.client.Set(context.Background(), s.key(sess.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *RedisStore) createLocked(sessionID string) (*core.Session, error) {
	sess := core.NewSession(sessionID)
	if err := s.save(sess); err != nil {
		return nil, err
	}
	return sess, nil
}
