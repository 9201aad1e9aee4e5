// Package session keeps a small per-user history of recent interactions
// so the pipeline can offer context-aware behavior and the chat surface
// can replay a conversation. History is in-memory and bounded.
package session

import (
	"sync"
	"time"
)

// DefaultLimit is the number of interactions retained per user.
const DefaultLimit = 20

// Interaction records one message through the pipeline and its outcome.
type Interaction struct {
	Message  string
	Intent   string
	Response string
	Success  bool
	At       time.Time
}

type history struct {
	mu      sync.Mutex
	entries []Interaction
}

// Registry holds conversation histories keyed by user.
type Registry struct {
	mu    sync.RWMutex
	users map[int64]*history
	limit int
}

// NewRegistry creates a registry retaining up to limit interactions per
// user. A non-positive limit falls back to DefaultLimit.
func NewRegistry(limit int) *Registry {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Registry{users: make(map[int64]*history), limit: limit}
}

func (r *Registry) user(userID int64) *history {
	r.mu.RLock()
	h, ok := r.users[userID]
	r.mu.RUnlock()
	if ok {
		return h
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok = r.users[userID]; ok {
		return h
	}
	h = &history{}
	r.users[userID] = h
	return h
}

// Add appends an interaction, evicting the oldest past the limit.
func (r *Registry) Add(userID int64, in Interaction) {
	if in.At.IsZero() {
		in.At = time.Now()
	}
	h := r.user(userID)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, in)
	if overflow := len(h.entries) - r.limit; overflow > 0 {
		h.entries = append(h.entries[:0], h.entries[overflow:]...)
	}
}

// Recent returns up to n most recent interactions, oldest first.
func (r *Registry) Recent(userID int64, n int) []Interaction {
	h := r.user(userID)
	h.mu.Lock()
	defer h.mu.Unlock()
	if n <= 0 || n > len(h.entries) {
		n = len(h.entries)
	}
	out := make([]Interaction, n)
	copy(out, h.entries[len(h.entries)-n:])
	return out
}

// Clear drops the user's history. Clearing an unknown or already-empty
// user is a no-op, so repeated resets are safe.
func (r *Registry) Clear(userID int64) {
	r.mu.RLock()
	h, ok := r.users[userID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	h.mu.Lock()
	h.entries = nil
	h.mu.Unlock()
}
