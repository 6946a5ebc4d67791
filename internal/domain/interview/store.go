package interview

import (
	"errors"
	"sync"
	"time"

	"github.com/intake/intake/internal/platform/llm"
)

// ErrSessionNotFound is returned for unknown or expired session IDs.
var ErrSessionNotFound = errors.New("invalid sessionId")

// SessionStore holds live interview sessions. Implementations must serialize
// updates to the same session; callers rely on Update for all mutations.
type SessionStore interface {
	Put(s *Session)
	// Get returns a snapshot copy of the session.
	Get(id string) (*Session, error)
	// Update applies fn to the stored session under the store lock and
	// extends the session's TTL.
	Update(id string, fn func(*Session) error) (*Session, error)
	Delete(id string)
	Len() int
}

// MemoryStore is a mutex-guarded in-memory SessionStore with TTL eviction.
// Expired sessions are treated as unknown on read and removed by a periodic
// sweep.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore creates a store whose sessions expire after ttl of
// inactivity. The background sweep runs until Close is called.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	s := &MemoryStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		stop:     make(chan struct{}),
	}
	go s.sweep()
	return s
}

// TTL returns the configured session lifetime.
func (s *MemoryStore) TTL() time.Duration { return s.ttl }

func (s *MemoryStore) Put(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session.ExpiresAt = time.Now().Add(s.ttl)
	s.sessions[session.ID] = session
}

func (s *MemoryStore) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok || session.Expired(time.Now()) {
		return nil, ErrSessionNotFound
	}
	return copySession(session), nil
}

func (s *MemoryStore) Update(id string, fn func(*Session) error) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok || session.Expired(time.Now()) {
		return nil, ErrSessionNotFound
	}
	if err := fn(session); err != nil {
		return nil, err
	}
	session.ExpiresAt = time.Now().Add(s.ttl)
	return copySession(session), nil
}

func (s *MemoryStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close stops the background sweep.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *MemoryStore) sweep() {
	interval := s.ttl / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.evictExpired(now)
		}
	}
}

func (s *MemoryStore) evictExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, id)
		}
	}
}

func copySession(s *Session) *Session {
	out := *s
	out.History = append([]llm.Message(nil), s.History...)
	return &out
}
