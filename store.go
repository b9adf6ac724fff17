package wxrelay

import (
	"sort"
	"sync"
)

const (
	// DefaultMaxSessions bounds the number of concurrently tracked users.
	DefaultMaxSessions = 10000
	// evictBatch is how many entries are dropped in one sweep once the store
	// exceeds its cap.
	evictBatch = 1000
)

// ConversationStore maps a user identifier to that user's active Session.
// It is safe for concurrent use. Size is bounded: once the store grows past
// its cap, the batch of users with the lexicographically smallest identifiers
// is evicted.
//
// Lexicographic order is an approximation of "oldest", not true recency —
// a user whose identifier sorts low is evicted regardless of when they last
// spoke. Kept as-is; callers wanting LRU semantics would need an access-time
// index here.
type ConversationStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	max      int
}

// NewConversationStore creates a store bounded at max sessions.
// max <= 0 means DefaultMaxSessions.
func NewConversationStore(max int) *ConversationStore {
	if max <= 0 {
		max = DefaultMaxSessions
	}
	return &ConversationStore{
		sessions: make(map[string]*Session),
		max:      max,
	}
}

// Get returns the user's session, or nil when none is active.
func (c *ConversationStore) Get(user string) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[user]
}

// Put installs s as the user's active session, replacing any previous one.
func (c *ConversationStore) Put(user string, s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[user] = s
}

// Remove deletes the user's session if present.
func (c *ConversationStore) Remove(user string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, user)
}

// Len returns the number of active sessions.
func (c *ConversationStore) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// EvictIfFull drops the evictBatch lexicographically-smallest user entries
// when the store has grown past its cap. Run opportunistically before each
// dispatch rather than on a timer.
func (c *ConversationStore) EvictIfFull() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.sessions) <= c.max {
		return
	}

	users := make([]string, 0, len(c.sessions))
	for u := range c.sessions {
		users = append(users, u)
	}
	sort.Strings(users)

	n := evictBatch
	if n > len(users) {
		n = len(users)
	}
	for _, u := range users[:n] {
		delete(c.sessions, u)
	}
}
