package session

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
)

// ErrSubagentNotFound is returned for unknown subagent ids or names.
var ErrSubagentNotFound = errors.New("subagent not found")

// ErrSubagentExists is returned when creating a subagent whose name is taken.
var ErrSubagentExists = errors.New("subagent already exists")

// SubagentStore persists subagents and their conversation context.
type SubagentStore interface {
	List(ctx context.Context) ([]ports.Subagent, error)
	Create(ctx context.Context, name, description string) (ports.Subagent, error)
	Delete(ctx context.Context, id string) error
	FindByName(ctx context.Context, name string) (ports.Subagent, error)
	SetContext(ctx context.Context, id string, messages []ports.Message) error
}

// MemorySubagentStore is an in-process SubagentStore.
type MemorySubagentStore struct {
	mu    sync.RWMutex
	items map[string]ports.Subagent
	order []string
}

var _ SubagentStore = (*MemorySubagentStore)(nil)

func NewMemorySubagentStore() *MemorySubagentStore {
	return &MemorySubagentStore{items: map[string]ports.Subagent{}}
}

func (s *MemorySubagentStore) List(context.Context) ([]ports.Subagent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ports.Subagent, 0, len(s.order))
	for _, id := range s.order {
		sub := s.items[id]
		sub.Messages = cloneMessages(sub.Messages)
		out = append(out, sub)
	}
	return out, nil
}

func (s *MemorySubagentStore) Create(_ context.Context, name, description string) (ports.Subagent, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ports.Subagent{}, errors.New("subagent name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.items {
		if sub.Name == name {
			return ports.Subagent{}, ErrSubagentExists
		}
	}
	sub := ports.Subagent{ID: uuid.NewString(), Name: name, Description: strings.TrimSpace(description)}
	s.items[sub.ID] = sub
	s.order = append(s.order, sub.ID)
	return sub, nil
}

func (s *MemorySubagentStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ErrSubagentNotFound
	}
	delete(s.items, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	return nil
}

func (s *MemorySubagentStore) FindByName(_ context.Context, name string) (ports.Subagent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		if sub := s.items[id]; sub.Name == name {
			sub.Messages = cloneMessages(sub.Messages)
			return sub, nil
		}
	}
	return ports.Subagent{}, ErrSubagentNotFound
}

func (s *MemorySubagentStore) SetContext(_ context.Context, id string, messages []ports.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.items[id]
	if !ok {
		return ErrSubagentNotFound
	}
	sub.Messages = cloneMessages(messages)
	s.items[id] = sub
	return nil
}
