package session

import (
	"context"
	"sync"

	"classync/pkg/interfaces"
	"classync/pkg/types"
)

// MemoryStore keeps session records in process. Suited for single-node
// deployments and tests; multi-node deployments use the Redis store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*types.SessionData // roomID -> record
}

// NewMemoryStore creates an in-process session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*types.SessionData)}
}

// SaveSession upserts the room's record. Stored as a copy so callers cannot
// mutate the store through retained pointers.
func (s *MemoryStore) SaveSession(ctx context.Context, sess *types.SessionData) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.RoomID] = cloneSession(sess)
	return nil
}

// GetSessionByRoom returns a copy of the room's record.
func (s *MemoryStore) GetSessionByRoom(ctx context.Context, roomID string) (*types.SessionData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, exists := s.sessions[roomID]
	if !exists {
		return nil, interfaces.ErrSessionNotFound
	}
	return cloneSession(sess), nil
}

// DeleteSession removes the room's record; missing records are a no-op.
func (s *MemoryStore) DeleteSession(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, roomID)
	return nil
}
