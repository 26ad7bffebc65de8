package ai

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore 是 SessionStore 的进程内实现。
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Transcript
}

var _ SessionStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Transcript)}
}

// GetOrCreate 返回 sessionID 的 Transcript，首次访问时创建。
// 并发首次访问同一 ID 只会创建一个实例。
func (s *MemoryStore) GetOrCreate(_ context.Context, sessionID string) (*Transcript, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrSessionID
	}

	s.mu.RLock()
	t, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return t, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.sessions[sessionID]; ok {
		return t, nil
	}
	t = NewTranscript()
	s.sessions[sessionID] = t
	return t, nil
}

// Sessions returns the session IDs in sorted order.
func (s *MemoryStore) Sessions(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ResetAll drops every session.
func (s *MemoryStore) ResetAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*Transcript)
	return nil
}
