// Package session keeps conversation histories and subagent contexts in
// process memory.
package session

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
)

const DefaultHistorySize = 256

// HistoryStore maps conversation ids to message histories. The least
// recently used conversation is evicted once the store is full.
type HistoryStore struct {
	mu    sync.Mutex
	cache *lru.Cache[string, []ports.Message]
	// maxMessages bounds one conversation; 0 means unbounded.
	maxMessages int
}

// NewHistoryStore returns a store holding at most size conversations.
func NewHistoryStore(size, maxMessages int) *HistoryStore {
	if size <= 0 {
		size = DefaultHistorySize
	}
	cache, _ := lru.New[string, []ports.Message](size)
	return &HistoryStore{cache: cache, maxMessages: maxMessages}
}

// Get returns a copy of the history of id.
func (s *HistoryStore) Get(id string) []ports.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs, _ := s.cache.Get(id)
	return cloneMessages(msgs)
}

// Append adds msgs to the history of id.
func (s *HistoryStore) Append(id string, msgs ...ports.Message) {
	if len(msgs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, _ := s.cache.Get(id)
	next := make([]ports.Message, 0, len(existing)+len(msgs))
	next = append(next, existing...)
	next = append(next, cloneMessages(msgs)...)
	if s.maxMessages > 0 && len(next) > s.maxMessages {
		next = trimToTurnBoundary(next[len(next)-s.maxMessages:])
	}
	s.cache.Add(id, next)
}

// Reset drops the history of id.
func (s *HistoryStore) Reset(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Remove(id)
}

// Len reports how many conversations are held.
func (s *HistoryStore) Len() int {
	return s.cache.Len()
}

// trimToTurnBoundary drops leading messages until the history starts with a
// user message, so no tool result is left without its call.
func trimToTurnBoundary(msgs []ports.Message) []ports.Message {
	for i, m := range msgs {
		if m.Role == ports.RoleUser {
			return msgs[i:]
		}
	}
	return nil
}

func cloneMessages(msgs []ports.Message) []ports.Message {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]ports.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
