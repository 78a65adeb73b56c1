package answer

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultMaxSessions = 1000
	defaultSessionTTL  = 24 * time.Hour
)

// Session is one conversation's query history.
type Session struct {
	ID string

	mu      sync.Mutex
	queries []string
}

// Append records a question.
func (s *Session) Append(q string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
}

// History returns a copy of the recorded questions, oldest first.
func (s *Session) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.queries))
	copy(out, s.queries)
	return out
}

// Clear forgets all recorded questions.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = nil
}

// Sessions keeps sessions in memory. Idle sessions expire; the least recently used are evicted
// beyond the size limit.
type Sessions struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, *Session]
}

// NewSessions creates a store holding up to size sessions, each expiring ttl after last use.
func NewSessions(size int, ttl time.Duration) *Sessions {
	if size <= 0 {
		size = defaultMaxSessions
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Sessions{cache: expirable.NewLRU[string, *Session](size, nil, ttl)}
}

// GetOrCreate returns the session with id, creating it if needed. An empty id gets a new uuid.
func (s *Sessions) GetOrCreate(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" {
		id = uuid.NewString()
	}
	if sess, ok := s.cache.Get(id); ok {
		// Re-add to refresh the expiry.
		s.cache.Add(id, sess)
		return sess
	}
	sess := &Session{ID: id}
	s.cache.Add(id, sess)
	return sess
}

// Get returns the session with id.
func (s *Sessions) Get(id string) (*Session, bool) {
	return s.cache.Get(id)
}

// Delete removes the session with id and reports whether it existed.
func (s *Sessions) Delete(id string) bool {
	return s.cache.Remove(id)
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	return s.cache.Len()
}
