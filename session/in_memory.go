package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/recallgraph/core"
)

// InMemoryStore is a volatile CheckpointStore storing snapshots in a process
// local map. It is safe for concurrent access and best suited for tests or
// ephemeral demo servers. Snapshots are cloned on the way in and out so
// callers never share state with the store.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
}

// NewInMemoryStore constructs an empty in-memory checkpoint store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*core.Session)}
}

// Save stores a clone of s if its version directly follows the stored one.
func (s *InMemoryStore) Save(ctx context.Context, sess *core.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if prev, ok := s.sessions[sess.ThreadID]; ok {
		current = prev.Version
	}
	if sess.Version != current+1 {
		return fmt.Errorf("%w: thread %s at version %d, got %d",
			core.ErrCheckpointConflict, sess.ThreadID, current, sess.Version)
	}

	s.sessions[sess.ThreadID] = sess.Clone()
	return nil
}

// Load returns a clone of the latest snapshot.
func (s *InMemoryStore) Load(ctx context.Context, threadID string) (*core.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[threadID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrCheckpointNotFound, threadID)
	}
	return sess.Clone(), nil
}

// Threads returns the number of stored threads.
func (s *InMemoryStore) Threads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
