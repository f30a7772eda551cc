package group

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps groups in process. A single lock covers the
// read-modify-write of both membership slices.
type MemoryStore struct {
	mu     sync.RWMutex
	groups map[string]*Group
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{groups: make(map[string]*Group)}
}

func (s *MemoryStore) Insert(_ context.Context, g *Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[g.ID] = g.clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, nil
	}
	return g.clone(), nil
}

func (s *MemoryStore) AddMember(_ context.Context, id, username string) (*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, nil
	}
	g.addMember(username)
	return g.clone(), nil
}

func (s *MemoryStore) RemoveMember(_ context.Context, id, username string) (*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, nil
	}
	g.removeMember(username)
	return g.clone(), nil
}

func (s *MemoryStore) ListForUser(_ context.Context, usernameLower string) ([]*Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Group
	for _, g := range s.groups {
		if slices.Contains(g.MembersLower, usernameLower) {
			out = append(out, g.clone())
		}
	}
	return out, nil
}
