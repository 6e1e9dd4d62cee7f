package media

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionStore holds live upload sessions in memory, keyed by upload id.
// Sessions are transient; anything older than the TTL is eviction fodder for
// the cleanup job.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionStore constructs an empty store with the given TTL.
func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SessionStore{
		sessions: make(map[uuid.UUID]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Put registers a session under its upload id.
func (st *SessionStore) Put(id uuid.UUID, s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[id] = s
}

// Get returns the session for an upload id, or nil.
func (st *SessionStore) Get(id uuid.UUID) *Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.sessions[id]
}

// Delete drops a session.
func (st *SessionStore) Delete(id uuid.UUID) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

// Len reports the number of live sessions.
func (st *SessionStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// EvictStale removes sessions not touched within the TTL and returns their
// snapshots so the caller can clean up whatever they referenced.
func (st *SessionStore) EvictStale() []Snapshot {
	cutoff := st.now().Add(-st.ttl)

	st.mu.Lock()
	defer st.mu.Unlock()

	var evicted []Snapshot
	for id, s := range st.sessions {
		snap := s.Snapshot()
		if snap.UpdatedAt.Before(cutoff) {
			evicted = append(evicted, snap)
			delete(st.sessions, id)
		}
	}
	return evicted
}
