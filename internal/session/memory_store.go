package session

import (
	"context"
	"strings"
	"sync"
	"time"
)

type entry[T any] struct {
	value   T
	expires time.Time
}

// MemoryStore is a process-local Store used when Redis is not configured.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	nonceTTL time.Duration
	now      func() time.Time
	sessions map[string]entry[Session]
	nonces   map[string]entry[string]
}

func NewMemoryStore(ttl, nonceTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		nonceTTL: nonceTTL,
		now:      time.Now,
		sessions: make(map[string]entry[Session]),
		nonces:   make(map[string]entry[string]),
	}
}

func (s *MemoryStore) Create(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = entry[Session]{value: *sess, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok || !s.now().Before(e.expires) {
		delete(s.sessions, id)
		return nil, ErrNotFound
	}
	sess := e.value
	return &sess, nil
}

func (s *MemoryStore) Update(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sess.ID]
	if !ok || !s.now().Before(e.expires) {
		return ErrNotFound
	}
	s.sessions[sess.ID] = entry[Session]{value: *sess, expires: e.expires}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) IssueNonce(ctx context.Context, wallet string) (string, error) {
	nonce := newNonce()
	s.mu.Lock()
	s.nonces[strings.ToLower(wallet)] = entry[string]{value: nonce, expires: s.now().Add(s.nonceTTL)}
	s.mu.Unlock()
	return nonce, nil
}

func (s *MemoryStore) ConsumeNonce(ctx context.Context, wallet string) (string, error) {
	key := strings.ToLower(wallet)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.nonces[key]
	delete(s.nonces, key)
	if !ok || !s.now().Before(e.expires) {
		return "", ErrNotFound
	}
	return e.value, nil
}
