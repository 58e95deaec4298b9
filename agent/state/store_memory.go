package state

import (
	"context"
	"sync"
)

// InMemoryStore is the checkpoint store used when Upstash is not configured.
type InMemoryStore struct {
	mu    sync.RWMutex
	items map[string]*ConversationState
	tail  int
}

func NewInMemoryStore(tail int) *InMemoryStore {
	if tail <= 0 {
		tail = defaultTailMessages
	}
	return &InMemoryStore{items: make(map[string]*ConversationState), tail: tail}
}

func (s *InMemoryStore) Load(_ context.Context, actorID, sessionID string) (*ConversationState, error) {
	key, err := checkpointKey("", actorID, sessionID)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.items[key]
	if !ok {
		return nil, ErrStateNotFound
	}
	return st.Clone(), nil
}

func (s *InMemoryStore) Save(_ context.Context, st *ConversationState) error {
	if err := st.Validate(); err != nil {
		return err
	}
	key, err := checkpointKey("", st.ActorID, st.SessionID)
	if err != nil {
		return err
	}
	snapshot := st.Clone()
	snapshot.TrimTo(s.tail)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = snapshot
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, actorID, sessionID string) error {
	key, err := checkpointKey("", actorID, sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}
